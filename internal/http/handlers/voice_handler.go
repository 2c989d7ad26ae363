package handlers

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/baywheel-hotline/internal/hotline/callstate"
	"github.com/diagnosis/baywheel-hotline/internal/hotline/flow"
	"github.com/diagnosis/baywheel-hotline/pkg/logger"
)

const maxVoiceBody = 64 << 10

// TurnHandler renders the markup for one call turn.
type TurnHandler interface {
	Handle(ctx context.Context, in flow.Inbound) string
}

type VoiceHandler struct {
	Turns TurnHandler
}

func NewVoiceHandler(turns TurnHandler) *VoiceHandler {
	return &VoiceHandler{Turns: turns}
}

func (h *VoiceHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.turn)
	r.Post("/", h.turn)
	return r
}

func (h *VoiceHandler) turn(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	form, err := voiceForm(r)
	if err != nil {
		// An unreadable body still gets a menu rather than dead air.
		logger.WarnContext(r.Context(), "Unreadable voice webhook body", "error", err)
		form = url.Values{}
	}

	in := flow.Inbound{
		State:        callstate.Decode(q),
		SpeechResult: form.Get("SpeechResult"),
		Digits:       form.Get("Digits"),
		CallSID:      form.Get("CallSid"),
	}
	ctx := r.Context()
	if in.CallSID != "" {
		ctx = logger.WithCallSID(ctx, in.CallSID)
	}

	doc := h.Turns.Handle(ctx, in)
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, doc)
}

// voiceForm reads the provider's form fields. GET requests carry them in the
// query. The edge may hand a POST body over base64 encoded, flagged by
// header or query.
func voiceForm(r *http.Request) (url.Values, error) {
	if r.Method == http.MethodGet {
		return r.URL.Query(), nil
	}
	if r.Body == nil {
		return url.Values{}, nil
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxVoiceBody))
	if err != nil {
		return nil, err
	}
	body := strings.TrimSpace(string(raw))
	if strings.EqualFold(r.Header.Get("Content-Transfer-Encoding"), "base64") ||
		strings.EqualFold(r.URL.Query().Get("isBase64Encoded"), "true") {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return nil, err
		}
		body = string(decoded)
	}
	return url.ParseQuery(body)
}
