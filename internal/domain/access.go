package domain

import (
	"fmt"
	"strings"

	"github.com/diagnosis/baywheel-hotline/internal/utils"
)

type GuestAccessRequest struct {
	RoomNumber     string         `json:"roomNumber"`
	GuestName      string         `json:"guestName"`
	Email          string         `json:"email"`
	Phone          string         `json:"phone"`
	ContactChannel ContactChannel `json:"contactChannel"`
	Lang           string         `json:"lang"`
}

type GuestAccessVerify struct {
	RoomNumber string `json:"roomNumber"`
	GuestID    string `json:"guestId"`
	Token      string `json:"token"`
}

type GuestAccessResponse struct {
	Success bool   `json:"success"`
	GuestID string `json:"guestId,omitempty"`
}

type VerifiedGuest struct {
	GuestID   string `json:"guestId"`
	BookingID string `json:"bookingId"`
}

type GuestVerifyResponse struct {
	Success bool          `json:"success"`
	Guest   VerifiedGuest `json:"guest"`
}

// GuestStatusUpdate is a guest-driven step through the submission flow,
// authenticated with the same link token.
type GuestStatusUpdate struct {
	GuestAccessVerify
	Status ApprovalStatus `json:"status"`
}

type RoomTransferRequest struct {
	OldRoomNumber string   `json:"oldRoomNumber"`
	NewRoomNumber string   `json:"newRoomNumber"`
	BookingIDs    []string `json:"bookingIds,omitempty"`
}

type RoomTransferResult struct {
	Success          bool   `json:"success"`
	TransferredCount int    `json:"transferredCount"`
	Message          string `json:"message,omitempty"`
}

type ApproveResult struct {
	GuestID        string         `json:"guestId"`
	RoomNumber     string         `json:"roomNumber"`
	ApprovalStatus ApprovalStatus `json:"approvalStatus"`
}

func (r *GuestAccessRequest) Normalize() {
	r.RoomNumber = strings.TrimSpace(r.RoomNumber)
	r.GuestName = utils.NormalizeString(r.GuestName)
	r.Email = utils.NormalizeEmail(r.Email)
	r.Phone = utils.NormalizePhone(r.Phone)
	r.ContactChannel = ContactChannel(strings.ToLower(strings.TrimSpace(string(r.ContactChannel))))
	if r.ContactChannel == "" {
		r.ContactChannel = ChannelEmail
	}
	r.Lang = strings.ToLower(strings.TrimSpace(r.Lang))
	if r.Lang != "ja" {
		r.Lang = "en"
	}
}

func (r *GuestAccessRequest) Validate() error {
	if r.RoomNumber == "" || r.GuestName == "" || r.Email == "" || r.Phone == "" {
		return fmt.Errorf("missing required fields")
	}
	if !ValidRoom(r.RoomNumber) {
		return fmt.Errorf("invalid room number")
	}
	if !utils.IsValidEmail(r.Email) {
		return fmt.Errorf("invalid email format")
	}
	if !utils.IsValidPhone(r.Phone) {
		return fmt.Errorf("invalid phone number")
	}
	switch r.ContactChannel {
	case ChannelEmail, ChannelSMS:
	default:
		return fmt.Errorf("contactChannel must be email or sms")
	}
	return nil
}

func (r *GuestAccessVerify) Normalize() {
	r.RoomNumber = strings.TrimSpace(r.RoomNumber)
	r.GuestID = strings.TrimSpace(r.GuestID)
	r.Token = strings.TrimSpace(r.Token)
}

func (r *GuestAccessVerify) Validate() error {
	if r.RoomNumber == "" || r.GuestID == "" || r.Token == "" {
		return fmt.Errorf("roomNumber, guestId and token are required")
	}
	return nil
}

func (r *RoomTransferRequest) Normalize() {
	r.OldRoomNumber = strings.TrimSpace(r.OldRoomNumber)
	r.NewRoomNumber = strings.TrimSpace(r.NewRoomNumber)
	ids := r.BookingIDs[:0]
	for _, id := range r.BookingIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	r.BookingIDs = ids
}

func (r *RoomTransferRequest) Validate() error {
	if r.OldRoomNumber == "" || r.NewRoomNumber == "" {
		return fmt.Errorf("oldRoomNumber and newRoomNumber are required")
	}
	if r.OldRoomNumber == r.NewRoomNumber {
		return fmt.Errorf("oldRoomNumber and newRoomNumber must be different")
	}
	if !ValidRoom(r.OldRoomNumber) || !ValidRoom(r.NewRoomNumber) {
		return fmt.Errorf("invalid room number")
	}
	return nil
}
