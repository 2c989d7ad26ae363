package guest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/baywheel-hotline/internal/domain"
	"github.com/diagnosis/baywheel-hotline/internal/http/handlers/guest"
	"github.com/diagnosis/baywheel-hotline/internal/http/response"
	guestsvc "github.com/diagnosis/baywheel-hotline/internal/service/guest"
)

// ---------- Mocks ----------

type mockGuests struct {
	err        error
	lastReq    *domain.GuestAccessRequest
	lastVerify *domain.GuestAccessVerify
	lastStatus *domain.GuestStatusUpdate
}

func (m *mockGuests) RequestAccess(_ context.Context, req *domain.GuestAccessRequest) (*domain.GuestAccessResponse, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return &domain.GuestAccessResponse{Success: true, GuestID: "g-1"}, nil
}

func (m *mockGuests) VerifyAccess(_ context.Context, req *domain.GuestAccessVerify) (*domain.GuestVerifyResponse, error) {
	m.lastVerify = req
	if m.err != nil {
		return nil, m.err
	}
	return &domain.GuestVerifyResponse{Success: true, Guest: domain.VerifiedGuest{GuestID: req.GuestID, BookingID: "BK1"}}, nil
}

func (m *mockGuests) AdvanceStatus(_ context.Context, req *domain.GuestStatusUpdate) error {
	m.lastStatus = req
	return m.err
}

func (m *mockGuests) Approve(context.Context, string, string) (*domain.ApproveResult, error) {
	return nil, nil
}
func (m *mockGuests) Reject(context.Context, string, string) error { return nil }
func (m *mockGuests) TransferRoom(context.Context, *domain.RoomTransferRequest) (*domain.RoomTransferResult, error) {
	return nil, nil
}
func (m *mockGuests) SyncFamilyExpiry(context.Context, *domain.GuestRecord) error { return nil }
func (m *mockGuests) ApplyCheckoutChange(context.Context, *domain.GuestRecord, *domain.GuestRecord) error {
	return nil
}

// ---------- Test Setup ----------

func setupTestServer(svc *mockGuests, limit func(http.Handler) http.Handler) *httptest.Server {
	r := chi.NewRouter()
	r.Mount("/v1/guest", guest.NewAccessHandler(svc, limit).Routes())
	return httptest.NewServer(r)
}

// ---------- Tests ----------

func TestGuestAccess_Request(t *testing.T) {
	svc := &mockGuests{}
	server := setupTestServer(svc, nil)
	defer server.Close()

	resp := postJSON(t, server.URL+"/v1/guest/access/request", map[string]string{
		"roomNumber":     "305",
		"guestName":      "Hanako",
		"email":          "hanako@example.com",
		"phone":          "+81 90 1111 2222",
		"contactChannel": "email",
	}, http.StatusCreated)
	defer resp.Body.Close()

	var out domain.GuestAccessResponse
	json.NewDecoder(resp.Body).Decode(&out)
	if !out.Success || out.GuestID != "g-1" {
		t.Fatalf("unexpected response %+v", out)
	}
	if svc.lastReq == nil || svc.lastReq.RoomNumber != "305" || svc.lastReq.ContactChannel != domain.ChannelEmail {
		t.Fatalf("request not passed through: %+v", svc.lastReq)
	}
}

func TestGuestAccess_InvalidJSON(t *testing.T) {
	server := setupTestServer(&mockGuests{}, nil)
	defer server.Close()

	for _, path := range []string{"/access/request", "/access/verify", "/status"} {
		t.Run(path, func(t *testing.T) {
			resp, err := http.Post(server.URL+"/v1/guest"+path, "application/json", bytes.NewBufferString("{"))
			if err != nil {
				t.Fatalf("POST failed: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
		})
	}
}

func TestGuestAccess_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid input", fmt.Errorf("%w: missing required fields", guestsvc.ErrInvalidInput), http.StatusBadRequest, response.CodeInvalidInput},
		{"unknown token", guestsvc.ErrInvalidToken, http.StatusUnauthorized, response.CodeInvalidToken},
		{"expired", guestsvc.ErrSessionExpired, http.StatusUnauthorized, response.CodeExpiredToken},
		{"not found", guestsvc.ErrNotFound, http.StatusNotFound, response.CodeNotFound},
		{"transition", fmt.Errorf("%w: pending -> waitingForBasicInfo", guestsvc.ErrInvalidTransition), http.StatusConflict, response.CodeInvalidTransition},
		{"delivery", guestsvc.ErrDeliveryFailed, http.StatusBadGateway, response.CodeDeliveryFailed},
		{"registry down", fmt.Errorf("failed to load guest: %w", context.DeadlineExceeded), http.StatusInternalServerError, response.CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := setupTestServer(&mockGuests{err: tt.err}, nil)
			defer server.Close()

			resp := postJSON(t, server.URL+"/v1/guest/access/verify", map[string]string{
				"roomNumber": "305", "guestId": "g-1", "token": "tok",
			}, tt.status)
			defer resp.Body.Close()

			var out response.ErrorResponse
			json.NewDecoder(resp.Body).Decode(&out)
			if out.Code != tt.code {
				t.Fatalf("expected code %s, got %+v", tt.code, out)
			}
		})
	}
}

func TestGuestStatus_Advance(t *testing.T) {
	svc := &mockGuests{}
	server := setupTestServer(svc, nil)
	defer server.Close()

	resp := postJSON(t, server.URL+"/v1/guest/status", map[string]string{
		"roomNumber": "305",
		"guestId":    "g-1",
		"token":      "tok",
		"status":     "waitingForPassportImage",
	}, http.StatusOK)
	resp.Body.Close()

	if svc.lastStatus == nil || svc.lastStatus.Status != domain.StatusWaitingForPassportImage || svc.lastStatus.GuestID != "g-1" {
		t.Fatalf("status update not passed through: %+v", svc.lastStatus)
	}
}

func TestGuestVerify_RateLimited(t *testing.T) {
	blocked := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			response.RateLimit(w, "Too many requests. Try again later.")
		})
	}
	svc := &mockGuests{}
	server := setupTestServer(svc, blocked)
	defer server.Close()

	resp := postJSON(t, server.URL+"/v1/guest/access/verify", map[string]string{"token": "x"}, http.StatusTooManyRequests)
	resp.Body.Close()
	if svc.lastVerify != nil {
		t.Fatal("verify should not reach the service when limited")
	}

	// request is not behind the limiter
	resp = postJSON(t, server.URL+"/v1/guest/access/request", map[string]string{"roomNumber": "305"}, http.StatusCreated)
	resp.Body.Close()
}

// ---------- Helpers ----------

func postJSON(t *testing.T, url string, data interface{}, expectedStatus int) *http.Response {
	t.Helper()

	body, _ := json.Marshal(data)
	resp, err := http.Post(url, "application/json", bytes.NewBuffer(body))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}

	if resp.StatusCode != expectedStatus {
		t.Fatalf("POST %s: expected status %d, got %d", url, expectedStatus, resp.StatusCode)
	}

	return resp
}
