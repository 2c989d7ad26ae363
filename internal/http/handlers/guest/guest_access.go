package guest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/baywheel-hotline/internal/domain"
	"github.com/diagnosis/baywheel-hotline/internal/http/response"
	guestsvc "github.com/diagnosis/baywheel-hotline/internal/service/guest"
	"github.com/diagnosis/baywheel-hotline/pkg/logger"
)

type AccessHandler struct {
	Guests guestsvc.Service
	// VerifyLimit guards the token endpoints against guessing. May be nil.
	VerifyLimit func(http.Handler) http.Handler
}

func NewAccessHandler(guests guestsvc.Service, verifyLimit func(http.Handler) http.Handler) *AccessHandler {
	return &AccessHandler{Guests: guests, VerifyLimit: verifyLimit}
}

func (h *AccessHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/access/request", h.request) // {roomNumber, guestName, email, phone, contactChannel, lang}
	r.Group(func(r chi.Router) {
		if h.VerifyLimit != nil {
			r.Use(h.VerifyLimit)
		}
		r.Post("/access/verify", h.verify) // {roomNumber, guestId, token}
		r.Post("/status", h.status)        // {roomNumber, guestId, token, status}
	})
	return r
}

func (h *AccessHandler) request(w http.ResponseWriter, r *http.Request) {
	var in domain.GuestAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return
	}

	out, err := h.Guests.RequestAccess(r.Context(), &in)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	response.JSON(w, http.StatusCreated, out)
}

func (h *AccessHandler) verify(w http.ResponseWriter, r *http.Request) {
	var in domain.GuestAccessVerify
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return
	}

	out, err := h.Guests.VerifyAccess(r.Context(), &in)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, out)
}

func (h *AccessHandler) status(w http.ResponseWriter, r *http.Request) {
	var in domain.GuestStatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return
	}

	if err := h.Guests.AdvanceStatus(r.Context(), &in); err != nil {
		WriteServiceError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"approvalStatus": in.Status,
	})
}

// WriteServiceError maps guest workflow errors onto the JSON error envelope.
func WriteServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, guestsvc.ErrInvalidInput):
		response.BadRequest(w, err.Error())
	case errors.Is(err, guestsvc.ErrNotFound):
		response.NotFound(w, "Guest not found")
	case errors.Is(err, guestsvc.ErrInvalidToken):
		response.WriteError(w, http.StatusUnauthorized, "Invalid access token", response.CodeInvalidToken)
	case errors.Is(err, guestsvc.ErrSessionExpired):
		response.WriteError(w, http.StatusUnauthorized, "Access link has expired", response.CodeExpiredToken)
	case errors.Is(err, guestsvc.ErrInvalidTransition):
		response.WriteErrorWithDetails(w, http.StatusConflict, "Status change not allowed", response.CodeInvalidTransition, err.Error())
	case errors.Is(err, guestsvc.ErrDeliveryFailed):
		response.WriteError(w, http.StatusBadGateway, "Could not deliver the access link", response.CodeDeliveryFailed)
	default:
		logger.ErrorContext(r.Context(), "Guest request failed", "path", r.URL.Path, "error", err)
		response.InternalError(w, "Internal server error")
	}
}
