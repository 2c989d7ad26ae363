package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	DateLayout      = "2006-01-02"
	TimestampLayout = "2006-01-02T15:04:05.000Z"

	// PropertyUTCOffset is the hotel's fixed offset from UTC (Japan, no DST).
	PropertyUTCOffset = 9 * 60 * 60
	CheckoutHour      = 12

	ProvisionalSessionTTL  = 48 * time.Hour
	PendingVerificationTTL = 24 * time.Hour
	TransferredSessionTTL  = 7 * 24 * time.Hour
)

const (
	MinFloor    = 2
	MaxFloor    = 8
	MinRoomSlot = 1
	MaxRoomSlot = 4
)

var PropertyZone = time.FixedZone("JST", PropertyUTCOffset)

// CheckoutNoonEpoch returns 12:00 property-local time on the checkout date as
// Unix seconds. Every session expiry derived from a checkout date goes
// through here.
func CheckoutNoonEpoch(checkOutDate string) (int64, error) {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(checkOutDate), PropertyZone)
	if err != nil {
		return 0, fmt.Errorf("invalid checkout date %q: %w", checkOutDate, err)
	}
	noon := time.Date(d.Year(), d.Month(), d.Day(), CheckoutHour, 0, 0, 0, PropertyZone)
	return noon.Unix(), nil
}

// SessionExpiry is checkout-noon when the checkout date parses, otherwise
// now plus the provisional window.
func SessionExpiry(checkOutDate string, now time.Time) int64 {
	if checkOutDate != "" {
		if ts, err := CheckoutNoonEpoch(checkOutDate); err == nil {
			return ts
		}
	}
	return now.Add(ProvisionalSessionTTL).Unix()
}

// WithinStay reports whether now falls between check-in day 00:00 and
// checkout day 12:00, property-local.
func WithinStay(checkInDate, checkOutDate string, now time.Time) bool {
	in, err := time.ParseInLocation(DateLayout, strings.TrimSpace(checkInDate), PropertyZone)
	if err != nil {
		return false
	}
	out, err := CheckoutNoonEpoch(checkOutDate)
	if err != nil {
		return false
	}
	ts := now.Unix()
	return ts >= in.Unix() && ts <= out
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ValidRoom reports whether room is one of the hotel's rooms (floors 2-8,
// rooms 01-04 on each floor).
func ValidRoom(room string) bool {
	if len(room) != 3 {
		return false
	}
	for _, r := range room {
		if r < '0' || r > '9' {
			return false
		}
	}
	floor := int(room[0] - '0')
	slot := int(room[1]-'0')*10 + int(room[2]-'0')
	return floor >= MinFloor && floor <= MaxFloor && slot >= MinRoomSlot && slot <= MaxRoomSlot
}

func Rooms() []string {
	var rooms []string
	for f := MinFloor; f <= MaxFloor; f++ {
		for s := MinRoomSlot; s <= MaxRoomSlot; s++ {
			rooms = append(rooms, fmt.Sprintf("%d%02d", f, s))
		}
	}
	return rooms
}
