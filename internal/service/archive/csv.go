package archive

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"

	"github.com/diagnosis/baywheel-hotline/internal/domain"
	"github.com/diagnosis/baywheel-hotline/pkg/logger"
)

var header = []string{
	"roomNumber", "bookingId", "guestName", "isFamilyMember", "promoConsent",
	"contactChannel", "email", "phone", "checkInDate", "checkOutDate",
	"guestId", "address", "approvalStatus", "createdAt", "currentLocation",
	"nationality", "occupation", "passportImageUrl", "sessionTokenExpiresAt",
	"sessionTokenHash", "updatedAt",
}

const (
	colRoom    = 0
	colCheckIn = 8
	colGuestID = 10
)

func boolCell(b *bool) string {
	if b == nil {
		return ""
	}
	return strconv.FormatBool(*b)
}

func toRow(g *domain.GuestRecord) []string {
	expires := ""
	if g.SessionTokenExpiresAt != 0 {
		expires = strconv.FormatInt(g.SessionTokenExpiresAt, 10)
	}
	return []string{
		g.RoomNumber,
		g.BookingID,
		g.GuestName,
		boolCell(g.IsFamilyMember),
		boolCell(g.PromoConsent),
		string(g.ContactChannel),
		g.Email,
		g.Phone,
		g.CheckInDate,
		g.CheckOutDate,
		g.GuestID,
		g.Address,
		string(g.ApprovalStatus),
		g.CreatedAt,
		g.CurrentLocation,
		g.Nationality,
		g.Occupation,
		g.PassportImageURL,
		expires,
		g.SessionTokenHash,
		g.UpdatedAt,
	}
}

// parseRows reads an existing month file. The header and short rows are
// dropped.
func parseRows(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	out := make([][]string, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) < len(header) {
			logger.Warn("Skipping archive row with missing columns", "row", i+2, "columns", len(row))
			continue
		}
		out = append(out, row[:len(header)])
	}
	return out, nil
}

// mergeRows combines archived and new rows. A guest already in the file is
// replaced by the newer copy.
func mergeRows(existing, fresh [][]string) [][]string {
	index := make(map[string]int, len(existing)+len(fresh))
	merged := make([][]string, 0, len(existing)+len(fresh))
	for _, rows := range [][][]string{existing, fresh} {
		for _, row := range rows {
			key := row[colRoom] + "/" + row[colGuestID]
			if i, ok := index[key]; ok {
				merged[i] = row
				continue
			}
			index[key] = len(merged)
			merged = append(merged, row)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i][colCheckIn] != merged[j][colCheckIn] {
			return merged[i][colCheckIn] < merged[j][colCheckIn]
		}
		return merged[i][colRoom] < merged[j][colRoom]
	})
	return merged
}

func encodeRows(rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}
