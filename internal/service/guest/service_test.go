package guest_test

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/diagnosis/baywheel-hotline/internal/domain"
	"github.com/diagnosis/baywheel-hotline/internal/repo/dynamo/dynamotest"
	"github.com/diagnosis/baywheel-hotline/internal/service/guest"
	"github.com/diagnosis/baywheel-hotline/pkg/events"
)

type sentMail struct {
	to, subject, text, html string
}

type mockMailer struct {
	sent []sentMail
	err  error
}

func (m *mockMailer) Send(ctx context.Context, toEmail, toName, subject, text, html string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, sentMail{to: toEmail, subject: subject, text: text, html: html})
	return "id", nil
}

type sentSMS struct{ phone, body string }

type mockSMS struct {
	sent []sentSMS
	err  error
}

func (m *mockSMS) Send(ctx context.Context, phone, body string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, sentSMS{phone: phone, body: body})
	return "id", nil
}

type mockBus struct{ subjects []string }

func (b *mockBus) Publish(ctx context.Context, subject string, data interface{}) error {
	b.subjects = append(b.subjects, subject)
	return nil
}

func (b *mockBus) Close() error { return nil }

var fixedNow = time.Date(2025, 4, 1, 1, 0, 0, 0, time.UTC)

type fixture struct {
	repo *dynamotest.Repo
	mail *mockMailer
	sms  *mockSMS
	bus  *mockBus
	svc  guest.Service
}

func newFixture(recs ...domain.GuestRecord) *fixture {
	f := &fixture{
		repo: dynamotest.New(recs...),
		mail: &mockMailer{},
		sms:  &mockSMS{},
		bus:  &mockBus{},
	}
	f.svc = guest.NewGuestService(f.repo, f.mail, f.sms, f.bus, guest.Options{
		AppBaseURL: "https://app.example.com",
		Now:        func() time.Time { return fixedNow },
	})
	return f
}

// linkToken pulls the raw token back out of a delivered link.
func linkToken(t *testing.T, body string) (guestID, token string) {
	t.Helper()
	start := strings.Index(body, "https://app.example.com/room/")
	if start < 0 {
		t.Fatalf("no link in %q", body)
	}
	raw := strings.Fields(body[start:])[0]
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	return u.Query().Get("guestId"), u.Query().Get("token")
}

func TestRequestAccessCreatesPendingRecordAndSendsOnce(t *testing.T) {
	f := newFixture()

	resp, err := f.svc.RequestAccess(context.Background(), &domain.GuestAccessRequest{
		RoomNumber: "304", GuestName: "Aiko", Email: "aiko@example.com", Phone: "09012345678",
		ContactChannel: domain.ChannelEmail, Lang: "ja",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec, ok := f.repo.Record("304", resp.GuestID)
	if !ok {
		t.Fatal("record not stored")
	}
	if rec.ApprovalStatus != domain.StatusPendingVerification {
		t.Fatalf("status = %s", rec.ApprovalStatus)
	}
	if stamp := domain.FormatTimestamp(fixedNow); rec.CreatedAt != stamp || rec.UpdatedAt != stamp {
		t.Fatalf("timestamps = %q / %q, want %q", rec.CreatedAt, rec.UpdatedAt, stamp)
	}
	if rec.PendingVerificationTTL != fixedNow.Unix()+86400 {
		t.Fatalf("pending ttl = %d", rec.PendingVerificationTTL)
	}
	if len(rec.BookingID) != 11 {
		t.Fatalf("booking id %q should be 11 chars", rec.BookingID)
	}
	if len(f.mail.sent) != 1 || len(f.sms.sent) != 0 {
		t.Fatalf("expected exactly one email, got %d emails %d sms", len(f.mail.sent), len(f.sms.sent))
	}
	if f.mail.sent[0].subject != "Osaka Bay Wheel ゲストアクセス" {
		t.Fatalf("subject = %q", f.mail.sent[0].subject)
	}

	guestID, token := linkToken(t, f.mail.sent[0].text)
	if guestID != resp.GuestID {
		t.Fatalf("link guest id %q != %q", guestID, resp.GuestID)
	}
	if rec.SessionTokenHash != guest.HashToken(token) {
		t.Fatal("stored hash should be the hash of the delivered token")
	}
	if rec.SessionTokenHash == token {
		t.Fatal("raw token must never be stored")
	}
}

func TestRequestAccessSMSLink(t *testing.T) {
	f := newFixture()
	_, err := f.svc.RequestAccess(context.Background(), &domain.GuestAccessRequest{
		RoomNumber: "201", GuestName: "Ben", Email: "ben@example.com", Phone: "+1 555 010 2000",
		ContactChannel: domain.ChannelSMS,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.sms.sent) != 1 || len(f.mail.sent) != 0 {
		t.Fatal("expected exactly one sms")
	}
	if !strings.Contains(f.sms.sent[0].body, "&source=sms") {
		t.Fatalf("sms link should carry source=sms: %q", f.sms.sent[0].body)
	}
	if !strings.HasPrefix(f.sms.sent[0].body, "[Osaka Bay Wheel]") {
		t.Fatalf("english sms expected: %q", f.sms.sent[0].body)
	}
}

func TestRequestAccessValidationAndDelivery(t *testing.T) {
	f := newFixture()
	_, err := f.svc.RequestAccess(context.Background(), &domain.GuestAccessRequest{RoomNumber: "201"})
	if !errors.Is(err, guest.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if f.repo.Len() != 0 {
		t.Fatal("invalid requests must not create records")
	}

	f.mail.err = errors.New("smtp down")
	_, err = f.svc.RequestAccess(context.Background(), &domain.GuestAccessRequest{
		RoomNumber: "201", GuestName: "Ben", Email: "ben@example.com", Phone: "09012345678",
	})
	if !errors.Is(err, guest.ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
}

func TestVerifyAccessActivatesPendingRecord(t *testing.T) {
	token := "tok-123"
	f := newFixture(domain.GuestRecord{
		RoomNumber: "201", GuestID: "g1", BookingID: "B1",
		ApprovalStatus:         domain.StatusPendingVerification,
		SessionTokenHash:       guest.HashToken(token),
		PendingVerificationTTL: fixedNow.Unix() + 3600,
	})

	resp, err := f.svc.VerifyAccess(context.Background(), &domain.GuestAccessVerify{RoomNumber: "201", GuestID: "g1", Token: token})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Success || resp.Guest.BookingID != "B1" {
		t.Fatalf("unexpected response %+v", resp)
	}

	rec, _ := f.repo.Record("201", "g1")
	if rec.ApprovalStatus != domain.StatusWaitingForBasicInfo {
		t.Fatalf("status = %s", rec.ApprovalStatus)
	}
	if rec.PendingVerificationTTL != 0 {
		t.Fatal("pending ttl should be removed")
	}
	if want := fixedNow.Add(48 * time.Hour).Unix(); rec.SessionTokenExpiresAt != want {
		t.Fatalf("expiry = %d, want %d", rec.SessionTokenExpiresAt, want)
	}
}

func TestVerifyAccessRejections(t *testing.T) {
	token := "tok-123"
	f := newFixture(
		domain.GuestRecord{RoomNumber: "201", GuestID: "expired", ApprovalStatus: domain.StatusWaitingForBasicInfo,
			SessionTokenHash: guest.HashToken(token), SessionTokenExpiresAt: fixedNow.Unix() - 1},
		domain.GuestRecord{RoomNumber: "201", GuestID: "active", ApprovalStatus: domain.StatusPending,
			SessionTokenHash: guest.HashToken(token), SessionTokenExpiresAt: fixedNow.Unix() + 60},
	)

	tests := []struct {
		name    string
		req     domain.GuestAccessVerify
		wantErr error
	}{
		{"wrong token", domain.GuestAccessVerify{RoomNumber: "201", GuestID: "active", Token: "nope"}, guest.ErrInvalidToken},
		{"unknown guest", domain.GuestAccessVerify{RoomNumber: "201", GuestID: "ghost", Token: token}, guest.ErrInvalidToken},
		{"expired session", domain.GuestAccessVerify{RoomNumber: "201", GuestID: "expired", Token: token}, guest.ErrSessionExpired},
		{"missing fields", domain.GuestAccessVerify{RoomNumber: "201"}, guest.ErrInvalidInput},
		{"resumed session", domain.GuestAccessVerify{RoomNumber: "201", GuestID: "active", Token: token}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			_, err := f.svc.VerifyAccess(context.Background(), &req)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	rec, _ := f.repo.Record("201", "active")
	if rec.ApprovalStatus != domain.StatusPending {
		t.Fatal("resumed sessions must not change status")
	}
}

func TestApproveSetsCheckoutNoonAndPropagates(t *testing.T) {
	f := newFixture(
		domain.GuestRecord{RoomNumber: "201", GuestID: "rep", BookingID: "B1", CheckOutDate: "2025-04-03",
			ApprovalStatus: domain.StatusPending, SessionTokenHash: "h"},
		domain.GuestRecord{RoomNumber: "201", GuestID: "kid", BookingID: "B1", ApprovalStatus: domain.StatusPending},
		domain.GuestRecord{RoomNumber: "201", GuestID: "gone", BookingID: "B1", ApprovalStatus: domain.StatusRejected},
		domain.GuestRecord{RoomNumber: "202", GuestID: "other", BookingID: "B2", ApprovalStatus: domain.StatusPending},
	)

	res, err := f.svc.Approve(context.Background(), "201", "rep")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ApprovalStatus != domain.StatusApproved {
		t.Fatalf("result status = %s", res.ApprovalStatus)
	}

	noon, _ := domain.CheckoutNoonEpoch("2025-04-03")
	rep, _ := f.repo.Record("201", "rep")
	if rep.ApprovalStatus != domain.StatusApproved || rep.SessionTokenExpiresAt != noon {
		t.Fatalf("representative not approved correctly: %+v", rep)
	}
	kid, _ := f.repo.Record("201", "kid")
	if kid.SessionTokenExpiresAt != noon {
		t.Fatalf("booking mate expiry = %d, want %d", kid.SessionTokenExpiresAt, noon)
	}
	if kid.ApprovalStatus != domain.StatusPending {
		t.Fatal("booking mates keep their own status")
	}
	if gone, _ := f.repo.Record("201", "gone"); gone.SessionTokenExpiresAt != 0 {
		t.Fatal("rejected members must be skipped")
	}
	if other, _ := f.repo.Record("202", "other"); other.SessionTokenExpiresAt != 0 {
		t.Fatal("other bookings must be untouched")
	}
	if len(f.bus.subjects) != 1 || f.bus.subjects[0] != events.GuestApproved {
		t.Fatalf("expected approved event, got %v", f.bus.subjects)
	}
}

func TestApproveContinuesPastMemberFailure(t *testing.T) {
	f := newFixture(
		domain.GuestRecord{RoomNumber: "201", GuestID: "rep", BookingID: "B1", ApprovalStatus: domain.StatusPending},
		domain.GuestRecord{RoomNumber: "201", GuestID: "a", BookingID: "B1", ApprovalStatus: domain.StatusPending},
		domain.GuestRecord{RoomNumber: "201", GuestID: "b", BookingID: "B1", ApprovalStatus: domain.StatusPending},
	)
	f.repo.FailUpdate = map[domain.GuestKey]error{{RoomNumber: "201", GuestID: "a"}: errors.New("throttled")}

	if _, err := f.svc.Approve(context.Background(), "201", "rep"); err != nil {
		t.Fatalf("member failures must not fail the approval: %v", err)
	}
	b, _ := f.repo.Record("201", "b")
	if want := fixedNow.Add(48 * time.Hour).Unix(); b.SessionTokenExpiresAt != want {
		t.Fatalf("member b expiry = %d, want provisional %d", b.SessionTokenExpiresAt, want)
	}
}

func TestApproveMissing(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.Approve(context.Background(), "201", "nobody"); !errors.Is(err, guest.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReject(t *testing.T) {
	f := newFixture(
		domain.GuestRecord{RoomNumber: "201", GuestID: "p", ApprovalStatus: domain.StatusWaitingForBasicInfo},
		domain.GuestRecord{RoomNumber: "201", GuestID: "ok", ApprovalStatus: domain.StatusApproved},
	)
	if err := f.svc.Reject(context.Background(), "201", "p"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec, _ := f.repo.Record("201", "p"); rec.ApprovalStatus != domain.StatusRejected {
		t.Fatalf("status = %s", rec.ApprovalStatus)
	}
	if err := f.svc.Reject(context.Background(), "201", "ok"); !errors.Is(err, guest.ErrInvalidTransition) {
		t.Fatalf("approved guests cannot be rejected, got %v", err)
	}
}

func TestAdvanceStatus(t *testing.T) {
	token := "tok"
	f := newFixture(domain.GuestRecord{RoomNumber: "201", GuestID: "g", ApprovalStatus: domain.StatusWaitingForBasicInfo,
		SessionTokenHash: guest.HashToken(token), SessionTokenExpiresAt: fixedNow.Unix() + 600})

	skip := &domain.GuestStatusUpdate{
		GuestAccessVerify: domain.GuestAccessVerify{RoomNumber: "201", GuestID: "g", Token: token},
		Status:            domain.StatusPending,
	}
	if err := f.svc.AdvanceStatus(context.Background(), skip); !errors.Is(err, guest.ErrInvalidTransition) {
		t.Fatalf("skipping a step should fail, got %v", err)
	}

	next := &domain.GuestStatusUpdate{
		GuestAccessVerify: domain.GuestAccessVerify{RoomNumber: "201", GuestID: "g", Token: token},
		Status:            domain.StatusWaitingForPassportImage,
	}
	if err := f.svc.AdvanceStatus(context.Background(), next); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.svc.AdvanceStatus(context.Background(), skip); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec, _ := f.repo.Record("201", "g"); rec.ApprovalStatus != domain.StatusPending {
		t.Fatalf("status = %s", rec.ApprovalStatus)
	}

	approve := &domain.GuestStatusUpdate{
		GuestAccessVerify: domain.GuestAccessVerify{RoomNumber: "201", GuestID: "g", Token: token},
		Status:            domain.StatusApproved,
	}
	if err := f.svc.AdvanceStatus(context.Background(), approve); !errors.Is(err, guest.ErrInvalidTransition) {
		t.Fatalf("guests cannot approve themselves, got %v", err)
	}
}

func TestSyncFamilyExpiry(t *testing.T) {
	companion := domain.GuestRecord{RoomNumber: "201", GuestID: "kid", BookingID: "B1",
		ApprovalStatus: domain.StatusWaitingForPassportImage}
	f := newFixture(
		domain.GuestRecord{RoomNumber: "201", GuestID: "rep", BookingID: "B1", SessionTokenHash: "h",
			SessionTokenExpiresAt: 1700000000, ApprovalStatus: domain.StatusPending},
		companion,
	)

	if err := f.svc.SyncFamilyExpiry(context.Background(), &companion); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kid, _ := f.repo.Record("201", "kid"); kid.SessionTokenExpiresAt != 1700000000 {
		t.Fatalf("expiry = %d", kid.SessionTokenExpiresAt)
	}

	orphan := domain.GuestRecord{RoomNumber: "301", GuestID: "o", BookingID: "B9", ApprovalStatus: domain.StatusWaitingForPassportImage}
	if err := f.svc.SyncFamilyExpiry(context.Background(), &orphan); err == nil {
		t.Fatal("expected error when no representative exists")
	}

	other := domain.GuestRecord{RoomNumber: "301", GuestID: "x", BookingID: "B9", ApprovalStatus: domain.StatusPending}
	if err := f.svc.SyncFamilyExpiry(context.Background(), &other); err != nil {
		t.Fatalf("records in other statuses are ignored: %v", err)
	}
}

func TestApplyCheckoutChange(t *testing.T) {
	f := newFixture(
		domain.GuestRecord{RoomNumber: "201", GuestID: "rep", BookingID: "B1", ApprovalStatus: domain.StatusApproved},
		domain.GuestRecord{RoomNumber: "201", GuestID: "kid", BookingID: "B1", ApprovalStatus: domain.StatusApproved},
	)
	oldRec := &domain.GuestRecord{RoomNumber: "201", GuestID: "rep", BookingID: "B1", ApprovalStatus: domain.StatusApproved, CheckOutDate: "2025-04-03"}
	newRec := *oldRec
	newRec.CheckOutDate = "2025-04-05"

	if err := f.svc.ApplyCheckoutChange(context.Background(), oldRec, &newRec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	noon, _ := domain.CheckoutNoonEpoch("2025-04-05")
	for _, id := range []string{"rep", "kid"} {
		if rec, _ := f.repo.Record("201", id); rec.SessionTokenExpiresAt != noon {
			t.Fatalf("%s expiry = %d, want %d", id, rec.SessionTokenExpiresAt, noon)
		}
	}

	f.repo.Updates = nil
	same := newRec
	if err := f.svc.ApplyCheckoutChange(context.Background(), &newRec, &same); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.repo.Updates) != 0 {
		t.Fatal("unchanged checkout must not write")
	}
}

func TestTransferRoom(t *testing.T) {
	f := newFixture(
		domain.GuestRecord{RoomNumber: "201", GuestID: "rep", BookingID: "B1", GuestName: "Aiko", Email: "aiko@example.com",
			ContactChannel: domain.ChannelEmail, Nationality: "Japan", SessionTokenHash: "old", ApprovalStatus: domain.StatusApproved},
		domain.GuestRecord{RoomNumber: "201", GuestID: "kid", BookingID: "B1", ApprovalStatus: domain.StatusApproved},
		domain.GuestRecord{RoomNumber: "201", GuestID: "stranger", BookingID: "B2", SessionTokenHash: "x",
			Phone: "+819000000000", ContactChannel: domain.ChannelSMS, ApprovalStatus: domain.StatusPending},
	)

	res, err := f.svc.TransferRoom(context.Background(), &domain.RoomTransferRequest{
		OldRoomNumber: "201", NewRoomNumber: "302", BookingIDs: []string{"B1"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TransferredCount != 2 {
		t.Fatalf("transferred = %d", res.TransferredCount)
	}
	if _, ok := f.repo.Record("201", "rep"); ok {
		t.Fatal("old record should be removed")
	}
	if _, ok := f.repo.Record("201", "stranger"); !ok {
		t.Fatal("guests outside the selected bookings stay put")
	}

	rep, ok := f.repo.Record("302", "rep")
	if !ok {
		t.Fatal("representative not moved")
	}
	if rep.SessionTokenHash == "old" {
		t.Fatal("representative should get a fresh token")
	}
	if want := fixedNow.Add(7 * 24 * time.Hour).Unix(); rep.SessionTokenExpiresAt != want {
		t.Fatalf("expiry = %d, want %d", rep.SessionTokenExpiresAt, want)
	}
	if kid, _ := f.repo.Record("302", "kid"); kid.SessionTokenHash != "" {
		t.Fatal("companions never get a token")
	}

	if len(f.mail.sent) != 1 || f.mail.sent[0].subject != "部屋移動のお知らせ" {
		t.Fatalf("expected one Japanese notice, got %+v", f.mail.sent)
	}
	_, token := linkToken(t, strings.ReplaceAll(strings.Split(f.mail.sent[0].html, `href="`)[1], `"`, " "))
	if guest.HashToken(token) != rep.SessionTokenHash {
		t.Fatal("notice should carry the new token")
	}
}

func TestTransferRoomValidationAndEmpty(t *testing.T) {
	f := newFixture()
	_, err := f.svc.TransferRoom(context.Background(), &domain.RoomTransferRequest{OldRoomNumber: "201", NewRoomNumber: "201"})
	if !errors.Is(err, guest.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	res, err := f.svc.TransferRoom(context.Background(), &domain.RoomTransferRequest{OldRoomNumber: "201", NewRoomNumber: "202"})
	if err != nil || !res.Success || res.TransferredCount != 0 {
		t.Fatalf("empty room should succeed with zero moved: %+v, %v", res, err)
	}
}

func TestTransferRoomMoveFailure(t *testing.T) {
	f := newFixture(domain.GuestRecord{RoomNumber: "201", GuestID: "a", SessionTokenHash: "h", Email: "a@example.com"})
	f.repo.FailMove = errors.New("transaction cancelled")
	if _, err := f.svc.TransferRoom(context.Background(), &domain.RoomTransferRequest{OldRoomNumber: "201", NewRoomNumber: "202"}); err == nil {
		t.Fatal("expected error")
	}
	if len(f.mail.sent) != 0 {
		t.Fatal("no notices before the move commits")
	}
}

