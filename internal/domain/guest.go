package domain

import "fmt"

type ApprovalStatus string

const (
	StatusPendingVerification     ApprovalStatus = "pendingVerification"
	StatusWaitingForBasicInfo     ApprovalStatus = "waitingForBasicInfo"
	StatusWaitingForPassportImage ApprovalStatus = "waitingForPassportImage"
	StatusPending                 ApprovalStatus = "pending"
	StatusApproved                ApprovalStatus = "approved"
	StatusRejected                ApprovalStatus = "rejected"
)

func ParseApprovalStatus(s string) (ApprovalStatus, bool) {
	switch ApprovalStatus(s) {
	case StatusPendingVerification, StatusWaitingForBasicInfo, StatusWaitingForPassportImage,
		StatusPending, StatusApproved, StatusRejected:
		return ApprovalStatus(s), true
	default:
		return "", false
	}
}

func (s ApprovalStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// forward edges of the verification workflow
var transitions = map[ApprovalStatus][]ApprovalStatus{
	StatusPendingVerification:     {StatusWaitingForBasicInfo},
	StatusWaitingForBasicInfo:     {StatusWaitingForPassportImage},
	StatusWaitingForPassportImage: {StatusPending},
	StatusPending:                 {StatusApproved, StatusRejected},
}

// CanTransition reports whether a record may move from one status to another.
// Admins may approve or reject any record that is not yet terminal.
func CanTransition(from, to ApprovalStatus, admin bool) bool {
	if admin && !from.Terminal() && to.Terminal() {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type ContactChannel string

const (
	ChannelEmail ContactChannel = "email"
	ChannelSMS   ContactChannel = "sms"
)

// GuestRecord is one guest row in the registry, keyed by (roomNumber, guestId).
// Companions registered under the same booking share bookingId; only the
// representative holds a session token hash.
type GuestRecord struct {
	RoomNumber             string         `dynamodbav:"roomNumber" json:"roomNumber"`
	GuestID                string         `dynamodbav:"guestId" json:"guestId"`
	BookingID              string         `dynamodbav:"bookingId,omitempty" json:"bookingId,omitempty"`
	GuestName              string         `dynamodbav:"guestName" json:"guestName"`
	Email                  string         `dynamodbav:"email,omitempty" json:"email,omitempty"`
	Phone                  string         `dynamodbav:"phone,omitempty" json:"phone,omitempty"`
	ContactChannel         ContactChannel `dynamodbav:"contactChannel,omitempty" json:"contactChannel,omitempty"`
	Address                string         `dynamodbav:"address,omitempty" json:"address,omitempty"`
	Occupation             string         `dynamodbav:"occupation,omitempty" json:"occupation,omitempty"`
	Nationality            string         `dynamodbav:"nationality,omitempty" json:"nationality,omitempty"`
	CurrentLocation        string         `dynamodbav:"currentLocation,omitempty" json:"currentLocation,omitempty"`
	PassportImageURL       string         `dynamodbav:"passportImageUrl,omitempty" json:"passportImageUrl,omitempty"`
	PromoConsent           *bool          `dynamodbav:"promoConsent,omitempty" json:"promoConsent,omitempty"`
	IsFamilyMember         *bool          `dynamodbav:"isFamilyMember,omitempty" json:"isFamilyMember,omitempty"`
	CheckInDate            string         `dynamodbav:"checkInDate,omitempty" json:"checkInDate,omitempty"`
	CheckOutDate           string         `dynamodbav:"checkOutDate,omitempty" json:"checkOutDate,omitempty"`
	ApprovalStatus         ApprovalStatus `dynamodbav:"approvalStatus" json:"approvalStatus"`
	SessionTokenHash       string         `dynamodbav:"sessionTokenHash,omitempty" json:"-"`
	SessionTokenExpiresAt  int64          `dynamodbav:"sessionTokenExpiresAt,omitempty" json:"sessionTokenExpiresAt,omitempty"`
	PendingVerificationTTL int64          `dynamodbav:"pendingVerificationTtl,omitempty" json:"pendingVerificationTtl,omitempty"`
	CreatedAt              string         `dynamodbav:"createdAt,omitempty" json:"createdAt,omitempty"`
	UpdatedAt              string         `dynamodbav:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

type GuestKey struct {
	RoomNumber string
	GuestID    string
}

func (k GuestKey) String() string {
	return fmt.Sprintf("%s/%s", k.RoomNumber, k.GuestID)
}

func (g *GuestRecord) Key() GuestKey {
	return GuestKey{RoomNumber: g.RoomNumber, GuestID: g.GuestID}
}

// IsRepresentative reports whether the record owns the booking's access link.
func (g *GuestRecord) IsRepresentative() bool {
	return g.SessionTokenHash != ""
}

// SessionExpired is false for records without an expiry.
func (g *GuestRecord) SessionExpired(nowUnix int64) bool {
	return g.SessionTokenExpiresAt > 0 && nowUnix > g.SessionTokenExpiresAt
}

func (g *GuestRecord) Info() *GuestInfo {
	return &GuestInfo{
		GuestName:      g.GuestName,
		RoomNumber:     g.RoomNumber,
		Phone:          g.Phone,
		CheckInDate:    g.CheckInDate,
		CheckOutDate:   g.CheckOutDate,
		ApprovalStatus: g.ApprovalStatus,
	}
}

// GuestInfo is the subset of a record exposed to the voice pipeline.
type GuestInfo struct {
	GuestName      string         `json:"guestName"`
	RoomNumber     string         `json:"roomNumber"`
	Phone          string         `json:"phone"`
	CheckInDate    string         `json:"checkInDate,omitempty"`
	CheckOutDate   string         `json:"checkOutDate,omitempty"`
	ApprovalStatus ApprovalStatus `json:"approvalStatus"`
}
