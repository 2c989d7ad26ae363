// Package alerts tells hotel staff when a guest has finished submitting their
// details and is waiting for review.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/diagnosis/baywheel-hotline/internal/domain"
	"github.com/diagnosis/baywheel-hotline/pkg/logger"
	"github.com/diagnosis/baywheel-hotline/pkg/metrics"
)

// Sender delivers a plain-text alert to one staff channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, text string) error
}

// Deduper remembers which stream events have already produced an alert.
// Claim returns false when id was claimed before.
type Deduper interface {
	Claim(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
}

type Notifier struct {
	primary      Sender
	mirrors      []Sender
	dedupe       Deduper
	adminBaseURL string
}

// NewNotifier builds a notifier. A failure of primary fails the record so the
// stream redelivers it; mirrors are best effort. dedupe may be nil.
func NewNotifier(primary Sender, dedupe Deduper, adminBaseURL string, mirrors ...Sender) *Notifier {
	return &Notifier{
		primary:      primary,
		mirrors:      mirrors,
		dedupe:       dedupe,
		adminBaseURL: strings.TrimRight(adminBaseURL, "/"),
	}
}

// ShouldAlert reports whether a change moved a representative into pending
// review. Inserts (no old image) never alert.
func ShouldAlert(oldRec, newRec *domain.GuestRecord) bool {
	if oldRec == nil || newRec == nil {
		return false
	}
	if oldRec.ApprovalStatus == "" || oldRec.ApprovalStatus == domain.StatusPending {
		return false
	}
	if newRec.ApprovalStatus != domain.StatusPending {
		return false
	}
	return newRec.IsRepresentative()
}

// PendingReviewMessage is the staff-facing text for a guest awaiting review.
func PendingReviewMessage(adminBaseURL string, rec *domain.GuestRecord) string {
	checkIn, checkOut := rec.CheckInDate, rec.CheckOutDate
	if checkIn == "" {
		checkIn = "-"
	}
	if checkOut == "" {
		checkOut = "-"
	}
	return fmt.Sprintf(
		"Room (%s) の %s さんが基本情報の登録と、IDの写真をアップロードしました。\n"+
			"Admin Pageより確認してください:\n"+
			"滞在日: %s ~ %s\n\n"+
			"%s/%s/%s",
		rec.RoomNumber, rec.GuestName, checkIn, checkOut,
		strings.TrimRight(adminBaseURL, "/"), rec.RoomNumber, rec.BookingID,
	)
}

// HandleRecord alerts staff for one stream change. eventID identifies the
// change for deduplication across redeliveries.
func (n *Notifier) HandleRecord(ctx context.Context, eventID string, oldRec, newRec *domain.GuestRecord) error {
	if !ShouldAlert(oldRec, newRec) {
		return nil
	}
	ctx = context.WithValue(ctx, logger.GuestIDKey, newRec.GuestID)

	if n.dedupe != nil && eventID != "" {
		fresh, err := n.dedupe.Claim(ctx, eventID)
		if err != nil {
			// alert anyway; a duplicate is better than a missed review
			logger.WarnContext(ctx, "Alert dedupe unavailable", "event_id", eventID, "error", err)
		} else if !fresh {
			logger.InfoContext(ctx, "Skipping already alerted event", "event_id", eventID)
			return nil
		}
	}

	text := PendingReviewMessage(n.adminBaseURL, newRec)

	if err := n.primary.Send(ctx, text); err != nil {
		metrics.AlertsSent.WithLabelValues(n.primary.Name(), "error").Inc()
		if n.dedupe != nil && eventID != "" {
			if rerr := n.dedupe.Release(ctx, eventID); rerr != nil {
				logger.WarnContext(ctx, "Failed to release alert claim", "event_id", eventID, "error", rerr)
			}
		}
		return fmt.Errorf("failed to send %s alert: %w", n.primary.Name(), err)
	}
	metrics.AlertsSent.WithLabelValues(n.primary.Name(), "ok").Inc()

	var mirrorErrs []error
	for _, m := range n.mirrors {
		if err := m.Send(ctx, text); err != nil {
			metrics.AlertsSent.WithLabelValues(m.Name(), "error").Inc()
			mirrorErrs = append(mirrorErrs, fmt.Errorf("%s: %w", m.Name(), err))
			continue
		}
		metrics.AlertsSent.WithLabelValues(m.Name(), "ok").Inc()
	}
	if len(mirrorErrs) > 0 {
		logger.WarnContext(ctx, "Alert mirror failed", "error", errors.Join(mirrorErrs...))
	}

	logger.InfoContext(ctx, "Pending review alert sent", "room", newRec.RoomNumber, "booking_id", newRec.BookingID)
	return nil
}
