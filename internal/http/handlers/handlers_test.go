package handlers_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/baywheel-hotline/internal/domain"
	"github.com/diagnosis/baywheel-hotline/internal/hotline/callstate"
	"github.com/diagnosis/baywheel-hotline/internal/hotline/flow"
	"github.com/diagnosis/baywheel-hotline/internal/hotline/lingual"
	"github.com/diagnosis/baywheel-hotline/internal/http/handlers"
	"github.com/diagnosis/baywheel-hotline/internal/service/cleanup"
	guestsvc "github.com/diagnosis/baywheel-hotline/internal/service/guest"
	"github.com/diagnosis/baywheel-hotline/pkg/auth"
)

// ---------- Voice ----------

type fakeTurns struct {
	last flow.Inbound
	hits int
}

func (f *fakeTurns) Handle(_ context.Context, in flow.Inbound) string {
	f.last = in
	f.hits++
	return "<Response></Response>"
}

func voiceServer(turns *fakeTurns) *httptest.Server {
	r := chi.NewRouter()
	r.Mount("/voice", handlers.NewVoiceHandler(turns).Routes())
	return httptest.NewServer(r)
}

func TestVoice_InitialCall(t *testing.T) {
	turns := &fakeTurns{}
	server := voiceServer(turns)
	defer server.Close()

	resp, err := http.Get(server.URL + "/voice?CallSid=CA1")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "application/xml" {
		t.Fatalf("unexpected response %d %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if string(body) != "<Response></Response>" {
		t.Fatalf("unexpected body %q", body)
	}
	if turns.last.CallSID != "CA1" || turns.last.State.Language != lingual.DefaultLanguage {
		t.Fatalf("unexpected inbound %+v", turns.last)
	}
}

func TestVoice_FormBodies(t *testing.T) {
	form := "SpeechResult=Where+is+breakfast%3F&CallSid=CA9&Digits="
	encoded := base64.StdEncoding.EncodeToString([]byte(form))

	tests := []struct {
		name   string
		query  string
		header string
		body   string
	}{
		{"plain", "", "", form},
		{"base64 header", "", "base64", encoded},
		{"base64 query flag", "&isBase64Encoded=true", "", encoded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			turns := &fakeTurns{}
			server := voiceServer(turns)
			defer server.Close()

			req, _ := http.NewRequest(http.MethodPost,
				server.URL+"/voice?language=en-US&room_number=305&phone_last4=2222"+tt.query,
				strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			if tt.header != "" {
				req.Header.Set("Content-Transfer-Encoding", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("POST failed: %v", err)
			}
			resp.Body.Close()

			want := callstate.State{Language: lingual.English, Attempt: 1, RoomNumber: "305", PhoneLast4: "2222"}
			if turns.last.State != want {
				t.Fatalf("state = %+v, want %+v", turns.last.State, want)
			}
			if turns.last.SpeechResult != "Where is breakfast?" || turns.last.CallSID != "CA9" {
				t.Fatalf("unexpected inbound %+v", turns.last)
			}
		})
	}
}

func TestVoice_BadBase64StillAnswers(t *testing.T) {
	turns := &fakeTurns{}
	server := voiceServer(turns)
	defer server.Close()

	req, _ := http.NewRequest(http.MethodPost, server.URL+"/voice", strings.NewReader("%%%not-base64"))
	req.Header.Set("Content-Transfer-Encoding", "base64")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK || turns.hits != 1 {
		t.Fatalf("expected a rendered turn, got %d (hits %d)", resp.StatusCode, turns.hits)
	}
	if turns.last.SpeechResult != "" || turns.last.Digits != "" {
		t.Fatalf("unexpected inbound %+v", turns.last)
	}
}

// ---------- Admin ----------

const jwtSecret = "admin-secret"

type mockGuests struct {
	approved, rejected string
	transfer           *domain.RoomTransferRequest
	err                error
}

func (m *mockGuests) RequestAccess(context.Context, *domain.GuestAccessRequest) (*domain.GuestAccessResponse, error) {
	return nil, nil
}
func (m *mockGuests) VerifyAccess(context.Context, *domain.GuestAccessVerify) (*domain.GuestVerifyResponse, error) {
	return nil, nil
}
func (m *mockGuests) AdvanceStatus(context.Context, *domain.GuestStatusUpdate) error { return nil }

func (m *mockGuests) Approve(_ context.Context, room, guestID string) (*domain.ApproveResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.approved = room + "/" + guestID
	return &domain.ApproveResult{GuestID: guestID, RoomNumber: room, ApprovalStatus: domain.StatusApproved}, nil
}

func (m *mockGuests) Reject(_ context.Context, room, guestID string) error {
	if m.err != nil {
		return m.err
	}
	m.rejected = room + "/" + guestID
	return nil
}

func (m *mockGuests) TransferRoom(_ context.Context, req *domain.RoomTransferRequest) (*domain.RoomTransferResult, error) {
	m.transfer = req
	if m.err != nil {
		return nil, m.err
	}
	return &domain.RoomTransferResult{Success: true, TransferredCount: 2}, nil
}

func (m *mockGuests) SyncFamilyExpiry(context.Context, *domain.GuestRecord) error { return nil }
func (m *mockGuests) ApplyCheckoutChange(context.Context, *domain.GuestRecord, *domain.GuestRecord) error {
	return nil
}

type fakeSweeper struct{ runs int }

func (f *fakeSweeper) Run(context.Context) (*cleanup.Report, error) {
	f.runs++
	return &cleanup.Report{RejectedRecords: 1, DeletedRecords: 3}, nil
}

func adminServer(t *testing.T, guests *mockGuests, sweeper *fakeSweeper) *httptest.Server {
	t.Helper()
	hash, err := argon2id.CreateHash("front-desk", argon2id.DefaultParams)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h := handlers.NewAdminHandler(guests, sweeper, handlers.AdminCredentials{
		User:         "admin",
		PasswordHash: hash,
		JWTSecret:    jwtSecret,
		TokenTTL:     time.Hour,
	})
	r := chi.NewRouter()
	r.Mount("/v1/admin", h.Routes())
	return httptest.NewServer(r)
}

func adminPost(t *testing.T, url, token string, data any) *http.Response {
	t.Helper()
	body, _ := json.Marshal(data)
	req, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	return resp
}

func TestAdmin_Login(t *testing.T) {
	server := adminServer(t, &mockGuests{}, &fakeSweeper{})
	defer server.Close()

	resp := adminPost(t, server.URL+"/v1/admin/login", "", map[string]string{"username": "admin", "password": "front-desk"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	json.NewDecoder(resp.Body).Decode(&out)
	claims, err := auth.Parse(out.AccessToken, jwtSecret)
	if err != nil || claims.Role != auth.RoleAdmin || out.ExpiresIn != 3600 {
		t.Fatalf("unexpected token: %v %+v %d", err, claims, out.ExpiresIn)
	}

	bad := adminPost(t, server.URL+"/v1/admin/login", "", map[string]string{"username": "admin", "password": "guess"})
	bad.Body.Close()
	if bad.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", bad.StatusCode)
	}
}

func TestAdmin_RequiresAdminToken(t *testing.T) {
	guests := &mockGuests{}
	server := adminServer(t, guests, &fakeSweeper{})
	defer server.Close()

	notAdmin, _ := auth.NewAccessToken("desk", "staff", "", jwtSecret, time.Hour)
	otherKey, _ := auth.NewAccessToken("ops", auth.RoleAdmin, auth.ScopeAdmin, "other", time.Hour)

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"wrong signing key", otherKey, http.StatusUnauthorized},
		{"wrong role", notAdmin, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := adminPost(t, server.URL+"/v1/admin/guests/305/g-1/approve", tt.token, nil)
			resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, resp.StatusCode)
			}
		})
	}
	if guests.approved != "" {
		t.Fatal("approve reached the service without a valid token")
	}
}

func TestAdmin_GuestOperations(t *testing.T) {
	guests := &mockGuests{}
	sweeper := &fakeSweeper{}
	server := adminServer(t, guests, sweeper)
	defer server.Close()
	token, _ := auth.NewAccessToken("ops", auth.RoleAdmin, auth.ScopeAdmin, jwtSecret, time.Hour)

	resp := adminPost(t, server.URL+"/v1/admin/guests/305/g-1/approve", token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || guests.approved != "305/g-1" {
		t.Fatalf("approve: %d %q", resp.StatusCode, guests.approved)
	}

	resp = adminPost(t, server.URL+"/v1/admin/guests/305/g-2/reject", token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || guests.rejected != "305/g-2" {
		t.Fatalf("reject: %d %q", resp.StatusCode, guests.rejected)
	}

	resp = adminPost(t, server.URL+"/v1/admin/rooms/transfer", token, map[string]any{
		"oldRoomNumber": "305", "newRoomNumber": "401", "bookingIds": []string{"BK1"},
	})
	defer resp.Body.Close()
	var res domain.RoomTransferResult
	json.NewDecoder(resp.Body).Decode(&res)
	if resp.StatusCode != http.StatusOK || res.TransferredCount != 2 || guests.transfer.NewRoomNumber != "401" {
		t.Fatalf("transfer: %d %+v", resp.StatusCode, res)
	}

	resp = adminPost(t, server.URL+"/v1/admin/cleanup", token, nil)
	defer resp.Body.Close()
	var report cleanup.Report
	json.NewDecoder(resp.Body).Decode(&report)
	if sweeper.runs != 1 || report.DeletedRecords != 3 {
		t.Fatalf("cleanup: runs=%d report=%+v", sweeper.runs, report)
	}
}

func TestAdmin_ServiceErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"unknown guest", guestsvc.ErrNotFound, http.StatusNotFound},
		{"already decided", guestsvc.ErrInvalidTransition, http.StatusConflict},
		{"bad rooms", guestsvc.ErrInvalidInput, http.StatusBadRequest},
	}
	token, _ := auth.NewAccessToken("ops", auth.RoleAdmin, auth.ScopeAdmin, jwtSecret, time.Hour)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := adminServer(t, &mockGuests{err: tt.err}, &fakeSweeper{})
			defer server.Close()
			resp := adminPost(t, server.URL+"/v1/admin/guests/305/g-1/reject", token, nil)
			resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, resp.StatusCode)
			}
		})
	}
}
