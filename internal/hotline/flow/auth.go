package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/diagnosis/baywheel-hotline/internal/domain"
	"github.com/diagnosis/baywheel-hotline/internal/repo/dynamo"
	"github.com/diagnosis/baywheel-hotline/internal/utils"
	"github.com/diagnosis/baywheel-hotline/pkg/logger"
)

// Authentication failures. The messages double as the codes written to logs.
var (
	ErrNoGuestsInRoom = errors.New("NO_GUESTS_IN_ROOM")
	ErrPhoneNotMatch  = errors.New("PHONE_NOT_MATCH")
	ErrDatabase       = errors.New("DATABASE_ERROR")
)

// GuestAuthenticator identifies a caller by room number and the last four
// digits of a registered phone number.
type GuestAuthenticator interface {
	Authenticate(ctx context.Context, room, phoneLast4 string) (*domain.GuestInfo, error)
}

type Authenticator struct {
	repo dynamo.GuestRepo
}

func NewAuthenticator(repo dynamo.GuestRepo) *Authenticator {
	return &Authenticator{repo: repo}
}

// Authenticate returns the first guest in room whose phone ends in
// phoneLast4. Registered numbers are compared digits-only, so "+81 90-1234-5678"
// matches "5678".
func (a *Authenticator) Authenticate(ctx context.Context, room, phoneLast4 string) (*domain.GuestInfo, error) {
	guests, err := a.repo.QueryByRoom(ctx, room)
	if err != nil {
		logger.ErrorContext(ctx, "Guest lookup failed", "room", room, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	if len(guests) == 0 {
		return nil, ErrNoGuestsInRoom
	}

	suffix := utils.DigitsOnly(phoneLast4)
	if suffix == "" {
		return nil, ErrPhoneNotMatch
	}
	for i := range guests {
		if strings.HasSuffix(utils.DigitsOnly(guests[i].Phone), suffix) {
			return guests[i].Info(), nil
		}
	}
	return nil, ErrPhoneNotMatch
}
