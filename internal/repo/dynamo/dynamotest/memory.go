// Package dynamotest provides an in-memory guest registry for tests.
package dynamotest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/diagnosis/baywheel-hotline/internal/domain"
	"github.com/diagnosis/baywheel-hotline/internal/repo/dynamo"
)

// Repo is a map-backed dynamo.GuestRepo. Fail* fields inject errors.
type Repo struct {
	mu      sync.Mutex
	records map[domain.GuestKey]domain.GuestRecord

	FailGet     error
	FailQuery   error
	FailCreate  error
	FailMove    error
	FailUpdate  map[domain.GuestKey]error
	FailDelete  map[domain.GuestKey]bool
	Updates     []domain.GuestKey
	DeleteCalls int
}

var _ dynamo.GuestRepo = (*Repo)(nil)

func New(recs ...domain.GuestRecord) *Repo {
	r := &Repo{records: make(map[domain.GuestKey]domain.GuestRecord)}
	for _, rec := range recs {
		r.records[rec.Key()] = rec
	}
	return r
}

func (r *Repo) Record(room, guestID string) (domain.GuestRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[domain.GuestKey{RoomNumber: room, GuestID: guestID}]
	return rec, ok
}

func (r *Repo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func (r *Repo) All() []domain.GuestRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filter(func(domain.GuestRecord) bool { return true })
}

func (r *Repo) Get(ctx context.Context, room, guestID string) (*domain.GuestRecord, error) {
	if r.FailGet != nil {
		return nil, r.FailGet
	}
	rec, ok := r.Record(room, guestID)
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (r *Repo) QueryByRoom(ctx context.Context, room string) ([]domain.GuestRecord, error) {
	if r.FailQuery != nil {
		return nil, r.FailQuery
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filter(func(g domain.GuestRecord) bool { return g.RoomNumber == room }), nil
}

func (r *Repo) QueryByBooking(ctx context.Context, bookingID string) ([]domain.GuestRecord, error) {
	if r.FailQuery != nil {
		return nil, r.FailQuery
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filter(func(g domain.GuestRecord) bool { return g.BookingID == bookingID }), nil
}

func (r *Repo) QueryByStatus(ctx context.Context, status domain.ApprovalStatus, maxExpiry *int64) ([]domain.GuestRecord, error) {
	if r.FailQuery != nil {
		return nil, r.FailQuery
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filter(func(g domain.GuestRecord) bool {
		if g.ApprovalStatus != status {
			return false
		}
		if maxExpiry == nil {
			return true
		}
		// sparse index: records without an expiry are not in it
		return g.SessionTokenExpiresAt != 0 && g.SessionTokenExpiresAt <= *maxExpiry
	}), nil
}

func (r *Repo) Create(ctx context.Context, rec *domain.GuestRecord) error {
	if r.FailCreate != nil {
		return r.FailCreate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.Key()]; ok {
		return dynamo.ErrAlreadyExists
	}
	r.records[rec.Key()] = *rec
	return nil
}

func (r *Repo) Update(ctx context.Context, key domain.GuestKey, upd dynamo.GuestUpdate) error {
	if err := r.FailUpdate[key]; err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[key]
	if !ok {
		return fmt.Errorf("update guest %s: %w", key, dynamo.ErrConditionFailed)
	}
	if upd.ExpectStatus != "" && rec.ApprovalStatus != upd.ExpectStatus {
		return fmt.Errorf("update guest %s: %w", key, dynamo.ErrConditionFailed)
	}
	if upd.Status != nil {
		rec.ApprovalStatus = *upd.Status
	}
	if upd.SessionTokenExpiresAt != nil {
		rec.SessionTokenExpiresAt = *upd.SessionTokenExpiresAt
	}
	if upd.RemovePendingTTL {
		rec.PendingVerificationTTL = 0
	}
	rec.UpdatedAt = "updated"
	r.records[key] = rec
	r.Updates = append(r.Updates, key)
	return nil
}

func (r *Repo) BatchDelete(ctx context.Context, keys []domain.GuestKey) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.DeleteCalls++
	deleted := 0
	for _, k := range keys {
		if r.FailDelete[k] {
			continue
		}
		if _, ok := r.records[k]; ok {
			delete(r.records, k)
			deleted++
		}
	}
	return deleted, nil
}

func (r *Repo) Move(ctx context.Context, moves []dynamo.Move) error {
	if r.FailMove != nil {
		return r.FailMove
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range moves {
		delete(r.records, m.From)
		r.records[m.To.Key()] = m.To
	}
	return nil
}

// filter returns matches in a stable order; callers hold mu.
func (r *Repo) filter(keep func(domain.GuestRecord) bool) []domain.GuestRecord {
	var out []domain.GuestRecord
	for _, rec := range r.records {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RoomNumber != out[j].RoomNumber {
			return out[i].RoomNumber < out[j].RoomNumber
		}
		return out[i].GuestID < out[j].GuestID
	})
	return out
}
