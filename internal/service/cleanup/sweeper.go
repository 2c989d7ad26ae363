// Package cleanup removes rejected and abandoned guest records from the
// registry. Approved guests are never touched here; see package archive.
package cleanup

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/diagnosis/baywheel-hotline/internal/domain"
	"github.com/diagnosis/baywheel-hotline/internal/repo/dynamo"
	"github.com/diagnosis/baywheel-hotline/pkg/events"
	"github.com/diagnosis/baywheel-hotline/pkg/logger"
	"github.com/diagnosis/baywheel-hotline/pkg/metrics"
)

// expirableStatuses are swept once their session expiry has passed.
var expirableStatuses = []domain.ApprovalStatus{
	domain.StatusWaitingForBasicInfo,
	domain.StatusWaitingForPassportImage,
	domain.StatusPending,
}

type Report struct {
	RejectedRecords      int   `json:"rejectedRecords"`
	ExpiredNonApproved   int   `json:"expiredNonApproved"`
	BookingGroupsTouched int   `json:"bookingGroupsTouched"`
	DeletedRecords       int   `json:"deletedRecords"`
	Timestamp            int64 `json:"timestamp"`
}

type Sweeper struct {
	repo     dynamo.GuestRepo
	eventBus events.Publisher
	now      func() time.Time
}

// NewSweeper builds a sweeper. eventBus may be nil.
func NewSweeper(repo dynamo.GuestRepo, eventBus events.Publisher) *Sweeper {
	return &Sweeper{repo: repo, eventBus: eventBus, now: time.Now}
}

// WithClock overrides the time source.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Run deletes every rejected record and every expired unfinished record,
// together with the non-approved rest of their bookings. Running it twice in a row deletes nothing
// the second time.
func (s *Sweeper) Run(ctx context.Context) (*Report, error) {
	now := s.now()
	nowUnix := now.Unix()

	rejected, err := s.repo.QueryByStatus(ctx, domain.StatusRejected, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query rejected guests: %w", err)
	}

	var expired []domain.GuestRecord
	for _, status := range expirableStatuses {
		recs, err := s.repo.QueryByStatus(ctx, status, &nowUnix)
		if err != nil {
			return nil, fmt.Errorf("failed to query expired %s guests: %w", status, err)
		}
		expired = append(expired, recs...)
	}

	keys := make(map[domain.GuestKey]bool, len(rejected)+len(expired))
	bookings := make(map[string]bool)
	for i := range rejected {
		addKey(keys, &rejected[i])
		if rejected[i].BookingID != "" {
			bookings[rejected[i].BookingID] = true
		}
	}

	for i := range expired {
		rec := &expired[i]
		if rec.ApprovalStatus == domain.StatusApproved {
			continue
		}
		addKey(keys, rec)
		if rec.BookingID != "" {
			bookings[rec.BookingID] = true
		}
	}

	for bookingID := range bookings {
		members, err := s.repo.QueryByBooking(ctx, bookingID)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to expand booking group", "booking_id", bookingID, "error", err)
			continue
		}
		for i := range members {
			if members[i].ApprovalStatus == domain.StatusApproved {
				continue
			}
			addKey(keys, &members[i])
		}
	}

	report := &Report{
		RejectedRecords:      len(rejected),
		ExpiredNonApproved:   len(expired),
		BookingGroupsTouched: len(bookings),
		Timestamp:            nowUnix,
	}
	if len(keys) == 0 {
		logger.InfoContext(ctx, "Cleanup found nothing to delete")
		return report, nil
	}

	deleted, err := s.repo.BatchDelete(ctx, sortedKeys(keys))
	report.DeletedRecords = deleted
	metrics.GuestsDeleted.WithLabelValues("cleanup").Add(float64(deleted))
	if err != nil {
		return report, fmt.Errorf("failed to delete guests: %w", err)
	}

	logger.InfoContext(ctx, "Cleanup completed",
		"rejected", report.RejectedRecords,
		"expired", report.ExpiredNonApproved,
		"booking_groups", report.BookingGroupsTouched,
		"deleted", report.DeletedRecords,
	)

	if s.eventBus != nil && deleted > 0 {
		evt := events.GuestsDeletedEvent{Reason: "cleanup", Count: deleted, OccurredAt: now.UTC()}
		if err := s.eventBus.Publish(ctx, events.GuestsDeleted, evt); err != nil {
			logger.WarnContext(ctx, "Failed to publish cleanup event", "error", err)
		}
	}
	return report, nil
}

func addKey(keys map[domain.GuestKey]bool, rec *domain.GuestRecord) {
	if rec.RoomNumber == "" || rec.GuestID == "" {
		return
	}
	keys[rec.Key()] = true
}

func sortedKeys(keys map[domain.GuestKey]bool) []domain.GuestKey {
	out := make([]domain.GuestKey, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
