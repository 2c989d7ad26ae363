package guest

import (
	"context"
	"fmt"

	"github.com/diagnosis/baywheel-hotline/internal/domain"
	"github.com/diagnosis/baywheel-hotline/internal/repo/dynamo"
	"github.com/diagnosis/baywheel-hotline/pkg/logger"
)

type transferNotice struct {
	rec   domain.GuestRecord
	token string
}

// TransferRoom re-keys guests from one room to another. Representatives get a
// fresh link valid for seven days, delivered after the move commits.
func (s *guestService) TransferRoom(ctx context.Context, req *domain.RoomTransferRequest) (*domain.RoomTransferResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	all, err := s.repo.QueryByRoom(ctx, req.OldRoomNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to load guests in room %s: %w", req.OldRoomNumber, err)
	}

	guests := all
	if len(req.BookingIDs) > 0 {
		wanted := make(map[string]bool, len(req.BookingIDs))
		for _, id := range req.BookingIDs {
			wanted[id] = true
		}
		guests = guests[:0:0]
		for _, g := range all {
			if wanted[g.BookingID] {
				guests = append(guests, g)
			}
		}
	}

	if len(guests) == 0 {
		return &domain.RoomTransferResult{Success: true, Message: "no guests to transfer"}, nil
	}

	now := s.now()
	moves := make([]dynamo.Move, 0, len(guests))
	var notices []transferNotice
	for _, g := range guests {
		moved := g
		moved.RoomNumber = req.NewRoomNumber
		moved.UpdatedAt = domain.FormatTimestamp(now)

		if g.IsRepresentative() {
			token, err := generateToken()
			if err != nil {
				return nil, err
			}
			moved.SessionTokenHash = HashToken(token)
			moved.SessionTokenExpiresAt = now.Add(domain.TransferredSessionTTL).Unix()
			notices = append(notices, transferNotice{rec: moved, token: token})
		}
		moves = append(moves, dynamo.Move{From: g.Key(), To: moved})
	}

	if err := s.repo.Move(ctx, moves); err != nil {
		return nil, fmt.Errorf("failed to move guests: %w", err)
	}

	for _, n := range notices {
		if err := s.notifyTransfer(ctx, n); err != nil {
			logger.ErrorContext(ctx, "Failed to notify transferred guest", "guest_id", n.rec.GuestID, "error", err)
		}
	}

	logger.InfoContext(ctx, "Guests transferred",
		"from", req.OldRoomNumber, "to", req.NewRoomNumber, "count", len(moves))
	return &domain.RoomTransferResult{
		Success:          true,
		TransferredCount: len(moves),
		Message:          fmt.Sprintf("moved %d guests from room %s to room %s", len(moves), req.OldRoomNumber, req.NewRoomNumber),
	}, nil
}

func (s *guestService) notifyTransfer(ctx context.Context, n transferNotice) error {
	g := n.rec
	if g.ContactChannel == domain.ChannelSMS {
		if g.Phone == "" {
			return fmt.Errorf("no phone on record for sms notice")
		}
		link := accessLink(s.baseURL, g.RoomNumber, g.GuestID, n.token, domain.ChannelSMS)
		_, err := s.sms.Send(ctx, g.Phone, transferSMS(g.Nationality, g.GuestName, g.RoomNumber, link))
		return err
	}

	if g.Email == "" {
		return fmt.Errorf("no email or phone on record")
	}
	link := accessLink(s.baseURL, g.RoomNumber, g.GuestID, n.token, domain.ChannelEmail)
	subject, html := transferEmail(g.Nationality, g.GuestName, g.RoomNumber, link)
	_, err := s.mailer.Send(ctx, g.Email, g.GuestName, subject, "", html)
	return err
}
