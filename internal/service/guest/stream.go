package guest

import (
	"context"
	"fmt"

	"github.com/diagnosis/baywheel-hotline/internal/domain"
	"github.com/diagnosis/baywheel-hotline/internal/repo/dynamo"
	"github.com/diagnosis/baywheel-hotline/pkg/logger"
)

// SyncFamilyExpiry gives a newly registered companion the same session expiry
// as the booking's representative.
func (s *guestService) SyncFamilyExpiry(ctx context.Context, rec *domain.GuestRecord) error {
	if rec.ApprovalStatus != domain.StatusWaitingForPassportImage || rec.BookingID == "" {
		return nil
	}
	if rec.IsRepresentative() {
		return nil
	}

	members, err := s.repo.QueryByBooking(ctx, rec.BookingID)
	if err != nil {
		return fmt.Errorf("failed to load booking %s: %w", rec.BookingID, err)
	}

	var expires int64
	for i := range members {
		if members[i].IsRepresentative() && members[i].SessionTokenExpiresAt > 0 {
			expires = members[i].SessionTokenExpiresAt
			break
		}
	}
	if expires == 0 {
		return fmt.Errorf("no representative with an active session for booking %s", rec.BookingID)
	}

	if err := s.repo.Update(ctx, rec.Key(), dynamo.GuestUpdate{SessionTokenExpiresAt: &expires}); err != nil {
		return fmt.Errorf("failed to sync companion expiry: %w", err)
	}
	logger.InfoContext(ctx, "Companion expiry synced", "booking_id", rec.BookingID, "guest_id", rec.GuestID, "expires_at", expires)
	return nil
}

// ApplyCheckoutChange moves the whole booking's expiry to the new
// checkout-noon when an approved guest's checkout date changes.
func (s *guestService) ApplyCheckoutChange(ctx context.Context, oldRec, newRec *domain.GuestRecord) error {
	if newRec.ApprovalStatus != domain.StatusApproved {
		return nil
	}
	if newRec.CheckOutDate == "" || (oldRec != nil && oldRec.CheckOutDate == newRec.CheckOutDate) {
		return nil
	}

	expires, err := domain.CheckoutNoonEpoch(newRec.CheckOutDate)
	if err != nil {
		return err
	}

	if newRec.BookingID == "" {
		return s.repo.Update(ctx, newRec.Key(), dynamo.GuestUpdate{SessionTokenExpiresAt: &expires})
	}

	n := s.propagateExpiry(ctx, newRec.BookingID, expires, func(*domain.GuestRecord) bool { return true })
	logger.InfoContext(ctx, "Checkout change applied to booking",
		"booking_id", newRec.BookingID, "checkout", newRec.CheckOutDate, "updated", n)
	return nil
}
