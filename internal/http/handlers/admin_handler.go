package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/baywheel-hotline/internal/domain"
	"github.com/diagnosis/baywheel-hotline/internal/http/handlers/guest"
	mw "github.com/diagnosis/baywheel-hotline/internal/http/middleware"
	"github.com/diagnosis/baywheel-hotline/internal/http/response"
	"github.com/diagnosis/baywheel-hotline/internal/service/cleanup"
	guestsvc "github.com/diagnosis/baywheel-hotline/internal/service/guest"
	"github.com/diagnosis/baywheel-hotline/pkg/auth"
	"github.com/diagnosis/baywheel-hotline/pkg/logger"
)

// Sweeper runs a cleanup pass on demand.
type Sweeper interface {
	Run(ctx context.Context) (*cleanup.Report, error)
}

type AdminCredentials struct {
	User         string
	PasswordHash string
	JWTSecret    string
	TokenTTL     time.Duration
}

type AdminHandler struct {
	Guests  guestsvc.Service
	Sweeper Sweeper
	Creds   AdminCredentials
}

func NewAdminHandler(guests guestsvc.Service, sweeper Sweeper, creds AdminCredentials) *AdminHandler {
	return &AdminHandler{Guests: guests, Sweeper: sweeper, Creds: creds}
}

func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/login", h.login)

	r.Group(func(r chi.Router) {
		r.Use(mw.RequireJWT(h.Creds.JWTSecret, auth.RoleAdmin))
		r.Post("/guests/{room}/{guestId}/approve", h.approve)
		r.Post("/guests/{room}/{guestId}/reject", h.reject)
		r.Post("/rooms/transfer", h.transfer)
		r.Post("/cleanup", h.cleanup)
	})
	return r
}

func (h *AdminHandler) login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Username == "" || in.Password == "" {
		response.BadRequest(w, "username and password are required")
		return
	}

	token, err := auth.AdminLogin(in.Username, in.Password, h.Creds.User, h.Creds.PasswordHash, h.Creds.JWTSecret, h.Creds.TokenTTL)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			logger.ErrorContext(r.Context(), "Admin token signing failed", "error", err)
			response.InternalError(w, "Failed to create session")
			return
		}
		logger.WarnContext(r.Context(), "Admin login rejected", "username", in.Username, "remote_addr", mw.ClientIP(r))
		response.Unauthorized(w, "Invalid username or password")
		return
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int64(h.Creds.TokenTTL.Seconds()),
	})
}

func (h *AdminHandler) approve(w http.ResponseWriter, r *http.Request) {
	room, guestID := chi.URLParam(r, "room"), chi.URLParam(r, "guestId")
	res, err := h.Guests.Approve(r.Context(), room, guestID)
	if err != nil {
		guest.WriteServiceError(w, r, err)
		return
	}
	logger.InfoContext(r.Context(), "Guest approved", "room", room, "guest_id", guestID, "by", claimsSub(r))
	response.JSON(w, http.StatusOK, res)
}

func (h *AdminHandler) reject(w http.ResponseWriter, r *http.Request) {
	room, guestID := chi.URLParam(r, "room"), chi.URLParam(r, "guestId")
	if err := h.Guests.Reject(r.Context(), room, guestID); err != nil {
		guest.WriteServiceError(w, r, err)
		return
	}
	logger.InfoContext(r.Context(), "Guest rejected", "room", room, "guest_id", guestID, "by", claimsSub(r))
	response.JSON(w, http.StatusOK, domain.ApproveResult{
		GuestID:        guestID,
		RoomNumber:     room,
		ApprovalStatus: domain.StatusRejected,
	})
}

func (h *AdminHandler) transfer(w http.ResponseWriter, r *http.Request) {
	var in domain.RoomTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return
	}
	res, err := h.Guests.TransferRoom(r.Context(), &in)
	if err != nil {
		guest.WriteServiceError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, res)
}

func (h *AdminHandler) cleanup(w http.ResponseWriter, r *http.Request) {
	report, err := h.Sweeper.Run(r.Context())
	if err != nil {
		logger.ErrorContext(r.Context(), "Manual cleanup failed", "error", err)
		response.InternalError(w, "Cleanup failed")
		return
	}
	response.JSON(w, http.StatusOK, report)
}

func claimsSub(r *http.Request) string {
	if c := mw.Claims(r); c != nil {
		return c.Sub
	}
	return ""
}
