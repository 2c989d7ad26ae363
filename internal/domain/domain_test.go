package domain_test

import (
	"testing"
	"time"

	"github.com/diagnosis/baywheel-hotline/internal/domain"
)

func TestCheckoutNoonEpoch(t *testing.T) {
	got, err := domain.CheckoutNoonEpoch("2025-01-02")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 2025-01-02 12:00 +09:00 == 2025-01-02 03:00 UTC
	want := time.Date(2025, 1, 2, 3, 0, 0, 0, time.UTC).Unix()
	if got != want {
		t.Fatalf("got %d, want %d", got, want)
	}

	if _, err := domain.CheckoutNoonEpoch("01/02/2025"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSessionExpiryFallsBackToProvisionalWindow(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for _, checkout := range []string{"", "not-a-date"} {
		got := domain.SessionExpiry(checkout, now)
		if want := now.Add(48 * time.Hour).Unix(); got != want {
			t.Fatalf("checkout %q: got %d, want %d", checkout, got, want)
		}
	}

	noon, _ := domain.CheckoutNoonEpoch("2025-03-05")
	if got := domain.SessionExpiry("2025-03-05", now); got != noon {
		t.Fatalf("got %d, want checkout noon %d", got, noon)
	}
}

func TestWithinStay(t *testing.T) {
	jst := domain.PropertyZone
	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"before check-in day", time.Date(2025, 5, 9, 23, 59, 0, 0, jst), false},
		{"check-in midnight", time.Date(2025, 5, 10, 0, 0, 0, 0, jst), true},
		{"mid stay", time.Date(2025, 5, 11, 15, 0, 0, 0, jst), true},
		{"checkout noon", time.Date(2025, 5, 12, 12, 0, 0, 0, jst), true},
		{"after checkout noon", time.Date(2025, 5, 12, 12, 1, 0, 0, jst), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := domain.WithinStay("2025-05-10", "2025-05-12", tt.now); got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidRoom(t *testing.T) {
	valid := []string{"201", "204", "504", "801", "804"}
	invalid := []string{"101", "205", "200", "901", "20", "2011", "abc", ""}
	for _, r := range valid {
		if !domain.ValidRoom(r) {
			t.Errorf("%s should be valid", r)
		}
	}
	for _, r := range invalid {
		if domain.ValidRoom(r) {
			t.Errorf("%s should be invalid", r)
		}
	}
	if n := len(domain.Rooms()); n != 28 {
		t.Fatalf("expected 28 rooms, got %d", n)
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to domain.ApprovalStatus
		admin    bool
		want     bool
	}{
		{domain.StatusPendingVerification, domain.StatusWaitingForBasicInfo, false, true},
		{domain.StatusWaitingForBasicInfo, domain.StatusWaitingForPassportImage, false, true},
		{domain.StatusWaitingForPassportImage, domain.StatusPending, false, true},
		{domain.StatusPending, domain.StatusApproved, false, true},
		{domain.StatusPendingVerification, domain.StatusPending, false, false},
		{domain.StatusWaitingForBasicInfo, domain.StatusApproved, false, false},
		{domain.StatusWaitingForBasicInfo, domain.StatusApproved, true, true},
		{domain.StatusApproved, domain.StatusRejected, true, false},
		{domain.StatusRejected, domain.StatusApproved, true, false},
	}
	for _, tt := range tests {
		if got := domain.CanTransition(tt.from, tt.to, tt.admin); got != tt.want {
			t.Errorf("%s -> %s (admin=%v): got %v, want %v", tt.from, tt.to, tt.admin, got, tt.want)
		}
	}
}

func TestGuestAccessRequestNormalizeValidate(t *testing.T) {
	req := domain.GuestAccessRequest{
		RoomNumber: " 304 ",
		GuestName:  " Aiko ",
		Email:      "AIKO@Example.COM",
		Phone:      "090-1234-5678",
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.ContactChannel != domain.ChannelEmail || req.Lang != "en" {
		t.Fatalf("defaults not applied: %+v", req)
	}

	req.RoomNumber = "999"
	if err := req.Validate(); err == nil {
		t.Fatal("expected invalid room error")
	}
}

func TestRoomTransferRequestValidate(t *testing.T) {
	req := domain.RoomTransferRequest{OldRoomNumber: "201", NewRoomNumber: "201"}
	if err := req.Validate(); err == nil {
		t.Fatal("same room should be rejected")
	}
	req.NewRoomNumber = "302"
	req.BookingIDs = []string{" ", "abc"}
	req.Normalize()
	if err := req.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(req.BookingIDs) != 1 || req.BookingIDs[0] != "abc" {
		t.Fatalf("blank booking ids should be dropped, got %v", req.BookingIDs)
	}
}
