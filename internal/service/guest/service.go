package guest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/diagnosis/baywheel-hotline/internal/domain"
	"github.com/diagnosis/baywheel-hotline/internal/platform/mailer"
	"github.com/diagnosis/baywheel-hotline/internal/platform/sms"
	"github.com/diagnosis/baywheel-hotline/internal/repo/dynamo"
	"github.com/diagnosis/baywheel-hotline/pkg/events"
	"github.com/diagnosis/baywheel-hotline/pkg/logger"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("guest not found")
	ErrInvalidToken      = errors.New("invalid or unknown access token")
	ErrSessionExpired    = errors.New("guest session expired")
	ErrInvalidTransition = errors.New("status change not allowed")
	ErrDeliveryFailed    = errors.New("access link delivery failed")
)

type Service interface {
	RequestAccess(ctx context.Context, req *domain.GuestAccessRequest) (*domain.GuestAccessResponse, error)
	VerifyAccess(ctx context.Context, req *domain.GuestAccessVerify) (*domain.GuestVerifyResponse, error)
	AdvanceStatus(ctx context.Context, req *domain.GuestStatusUpdate) error
	Approve(ctx context.Context, room, guestID string) (*domain.ApproveResult, error)
	Reject(ctx context.Context, room, guestID string) error
	TransferRoom(ctx context.Context, req *domain.RoomTransferRequest) (*domain.RoomTransferResult, error)
	SyncFamilyExpiry(ctx context.Context, rec *domain.GuestRecord) error
	ApplyCheckoutChange(ctx context.Context, oldRec, newRec *domain.GuestRecord) error
}

type Options struct {
	AppBaseURL string
	Now        func() time.Time
}

type guestService struct {
	repo     dynamo.GuestRepo
	mailer   mailer.Service
	sms      sms.Sender
	eventBus events.Publisher
	baseURL  string
	now      func() time.Time
}

// NewGuestService wires the verification workflow. eventBus may be nil.
func NewGuestService(
	repo dynamo.GuestRepo,
	mailer mailer.Service,
	smsSender sms.Sender,
	eventBus events.Publisher,
	opts Options,
) Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &guestService{
		repo:     repo,
		mailer:   mailer,
		sms:      smsSender,
		eventBus: eventBus,
		baseURL:  opts.AppBaseURL,
		now:      opts.Now,
	}
}

func (s *guestService) RequestAccess(ctx context.Context, req *domain.GuestAccessRequest) (*domain.GuestAccessResponse, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	token, err := generateToken()
	if err != nil {
		return nil, err
	}
	bookingID, err := generateBookingID()
	if err != nil {
		return nil, err
	}

	now := s.now()
	rec := &domain.GuestRecord{
		RoomNumber:             req.RoomNumber,
		GuestID:                uuid.NewString(),
		BookingID:              bookingID,
		GuestName:              req.GuestName,
		Email:                  req.Email,
		Phone:                  req.Phone,
		ContactChannel:         req.ContactChannel,
		ApprovalStatus:         domain.StatusPendingVerification,
		SessionTokenHash:       HashToken(token),
		PendingVerificationTTL: now.Add(domain.PendingVerificationTTL).Unix(),
		CreatedAt:              domain.FormatTimestamp(now),
		UpdatedAt:              domain.FormatTimestamp(now),
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to create guest record: %w", err)
	}

	ctx = context.WithValue(ctx, logger.GuestIDKey, rec.GuestID)
	link := accessLink(s.baseURL, rec.RoomNumber, rec.GuestID, token, rec.ContactChannel)

	// The record stays behind on failure and ages out with its pending TTL.
	switch rec.ContactChannel {
	case domain.ChannelSMS:
		if _, err := s.sms.Send(ctx, rec.Phone, accessSMS(req.Lang, link)); err != nil {
			logger.ErrorContext(ctx, "Failed to send access link by SMS", "error", err)
			return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
		}
	default:
		if _, err := s.mailer.Send(ctx, rec.Email, rec.GuestName, accessSubject(req.Lang), accessEmailBody(req.Lang, link), ""); err != nil {
			logger.ErrorContext(ctx, "Failed to send access link by email", "error", err)
			return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
		}
	}

	logger.InfoContext(ctx, "Guest access requested", "room", rec.RoomNumber, "channel", rec.ContactChannel)
	return &domain.GuestAccessResponse{Success: true, GuestID: rec.GuestID}, nil
}

func (s *guestService) VerifyAccess(ctx context.Context, req *domain.GuestAccessVerify) (*domain.GuestVerifyResponse, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	rec, err := s.repo.Get(ctx, req.RoomNumber, req.GuestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load guest: %w", err)
	}
	if rec == nil || !tokenMatches(rec.SessionTokenHash, req.Token) {
		return nil, ErrInvalidToken
	}

	now := s.now()
	if rec.ApprovalStatus == domain.StatusPendingVerification {
		next := domain.StatusWaitingForBasicInfo
		expires := domain.SessionExpiry(rec.CheckOutDate, now)
		err := s.repo.Update(ctx, rec.Key(), dynamo.GuestUpdate{
			Status:                &next,
			SessionTokenExpiresAt: &expires,
			RemovePendingTTL:      true,
			ExpectStatus:          domain.StatusPendingVerification,
		})
		switch {
		case err == nil:
			logger.InfoContext(ctx, "Guest link verified", "guest_id", rec.GuestID)
			return verified(rec), nil
		case errors.Is(err, dynamo.ErrConditionFailed):
			// a concurrent verify already moved it on; treat as a resumed session
			rec, err = s.repo.Get(ctx, req.RoomNumber, req.GuestID)
			if err != nil {
				return nil, fmt.Errorf("failed to reload guest: %w", err)
			}
			if rec == nil {
				return nil, ErrInvalidToken
			}
		default:
			return nil, fmt.Errorf("failed to activate session: %w", err)
		}
	}

	if rec.SessionExpired(now.Unix()) {
		return nil, ErrSessionExpired
	}
	return verified(rec), nil
}

func verified(rec *domain.GuestRecord) *domain.GuestVerifyResponse {
	return &domain.GuestVerifyResponse{
		Success: true,
		Guest:   domain.VerifiedGuest{GuestID: rec.GuestID, BookingID: rec.BookingID},
	}
}

func (s *guestService) AdvanceStatus(ctx context.Context, req *domain.GuestStatusUpdate) error {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if req.Status != domain.StatusWaitingForPassportImage && req.Status != domain.StatusPending {
		return fmt.Errorf("%w: guests may only submit basic info or ID", ErrInvalidTransition)
	}

	rec, err := s.repo.Get(ctx, req.RoomNumber, req.GuestID)
	if err != nil {
		return fmt.Errorf("failed to load guest: %w", err)
	}
	if rec == nil || !tokenMatches(rec.SessionTokenHash, req.Token) {
		return ErrInvalidToken
	}
	if rec.SessionExpired(s.now().Unix()) {
		return ErrSessionExpired
	}
	if !domain.CanTransition(rec.ApprovalStatus, req.Status, false) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.ApprovalStatus, req.Status)
	}

	next := req.Status
	err = s.repo.Update(ctx, rec.Key(), dynamo.GuestUpdate{Status: &next, ExpectStatus: rec.ApprovalStatus})
	if errors.Is(err, dynamo.ErrConditionFailed) {
		return fmt.Errorf("%w: record changed concurrently", ErrInvalidTransition)
	}
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	return nil
}

func (s *guestService) Approve(ctx context.Context, room, guestID string) (*domain.ApproveResult, error) {
	rec, err := s.repo.Get(ctx, room, guestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load guest: %w", err)
	}
	if rec == nil {
		return nil, ErrNotFound
	}

	approved := domain.StatusApproved
	expires := domain.SessionExpiry(rec.CheckOutDate, s.now())
	if err := s.repo.Update(ctx, rec.Key(), dynamo.GuestUpdate{Status: &approved, SessionTokenExpiresAt: &expires}); err != nil {
		return nil, fmt.Errorf("failed to approve guest: %w", err)
	}

	if rec.BookingID != "" {
		s.propagateExpiry(ctx, rec.BookingID, expires, func(m *domain.GuestRecord) bool {
			return m.GuestID != rec.GuestID && m.ApprovalStatus != domain.StatusRejected
		})
	}

	s.publish(ctx, events.GuestApproved, rec, approved)
	logger.InfoContext(ctx, "Guest approved", "room", room, "guest_id", guestID, "expires_at", expires)

	return &domain.ApproveResult{GuestID: rec.GuestID, RoomNumber: rec.RoomNumber, ApprovalStatus: approved}, nil
}

func (s *guestService) Reject(ctx context.Context, room, guestID string) error {
	rec, err := s.repo.Get(ctx, room, guestID)
	if err != nil {
		return fmt.Errorf("failed to load guest: %w", err)
	}
	if rec == nil {
		return ErrNotFound
	}
	if !domain.CanTransition(rec.ApprovalStatus, domain.StatusRejected, true) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.ApprovalStatus, domain.StatusRejected)
	}

	rejected := domain.StatusRejected
	err = s.repo.Update(ctx, rec.Key(), dynamo.GuestUpdate{Status: &rejected, ExpectStatus: rec.ApprovalStatus})
	if errors.Is(err, dynamo.ErrConditionFailed) {
		return fmt.Errorf("%w: record changed concurrently", ErrInvalidTransition)
	}
	if err != nil {
		return fmt.Errorf("failed to reject guest: %w", err)
	}

	s.publish(ctx, events.GuestRejected, rec, rejected)
	logger.InfoContext(ctx, "Guest rejected", "room", room, "guest_id", guestID)
	return nil
}

// propagateExpiry writes expires onto every booking member accepted by
// include. Failures are logged per member and do not stop the loop.
func (s *guestService) propagateExpiry(ctx context.Context, bookingID string, expires int64, include func(*domain.GuestRecord) bool) int {
	members, err := s.repo.QueryByBooking(ctx, bookingID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load booking members", "booking_id", bookingID, "error", err)
		return 0
	}

	updated := 0
	for i := range members {
		m := &members[i]
		if !include(m) {
			continue
		}
		exp := expires
		if err := s.repo.Update(ctx, m.Key(), dynamo.GuestUpdate{SessionTokenExpiresAt: &exp}); err != nil {
			logger.ErrorContext(ctx, "Failed to update booking member expiry",
				"booking_id", bookingID, "guest_id", m.GuestID, "error", err)
			continue
		}
		updated++
	}
	return updated
}

func (s *guestService) publish(ctx context.Context, subject string, rec *domain.GuestRecord, status domain.ApprovalStatus) {
	if s.eventBus == nil {
		return
	}
	evt := events.GuestStatusEvent{
		GuestID:    rec.GuestID,
		RoomNumber: rec.RoomNumber,
		BookingID:  rec.BookingID,
		Status:     string(status),
		OccurredAt: s.now().UTC(),
	}
	if err := s.eventBus.Publish(ctx, subject, evt); err != nil {
		logger.WarnContext(ctx, "Failed to publish guest event", "subject", subject, "error", err)
	}
}
