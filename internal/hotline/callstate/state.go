// Package callstate carries a call's progress between webhook turns. The
// telephony provider keeps no session for us, so everything we need on the
// next turn rides in the callback URL's query string.
package callstate

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/google/go-querystring/query"

	"github.com/diagnosis/baywheel-hotline/internal/hotline/lingual"
	"github.com/diagnosis/baywheel-hotline/internal/utils"
)

// Sources name the prompt whose digits are arriving.
const (
	SourceRoomNumber     = "room_number_input"
	SourcePhoneLast4     = "phone_last4_input"
	SourceOperatorChoice = "operator_choice_dtmf"
)

type State struct {
	Language           string `url:"language,omitempty"`
	Source             string `url:"source,omitempty"`
	Attempt            int    `url:"attempt,omitempty"`
	RoomNumber         string `url:"room_number,omitempty"`
	PhoneLast4         string `url:"phone_last4,omitempty"`
	PreviousResponseID string `url:"previous_openai_response_id,omitempty"`
}

// Decode reads a State from callback query parameters. It never fails:
// unknown languages become English, bad attempts become 1 and non-numeric
// room or phone values are dropped.
func Decode(q url.Values) State {
	s := State{
		Language:           strings.TrimSpace(q.Get("language")),
		Source:             strings.TrimSpace(q.Get("source")),
		Attempt:            1,
		PreviousResponseID: strings.TrimSpace(q.Get("previous_openai_response_id")),
	}
	if !lingual.Supported(s.Language) {
		s.Language = lingual.DefaultLanguage
	}
	if n, err := strconv.Atoi(strings.TrimSpace(q.Get("attempt"))); err == nil && n >= 1 {
		s.Attempt = n
	}
	if room := strings.TrimSpace(q.Get("room_number")); utils.IsDigits(room) {
		s.RoomNumber = room
	}
	if phone := strings.TrimSpace(q.Get("phone_last4")); utils.IsDigits(phone) {
		s.PhoneLast4 = phone
	}
	switch strings.ToLower(s.PreviousResponseID) {
	case "none", "null", "undefined":
		s.PreviousResponseID = ""
	}
	return s
}

// Encode renders s as a query string.
func (s State) Encode() string {
	v, err := query.Values(s)
	if err != nil {
		// only reachable for non-struct input
		return ""
	}
	return v.Encode()
}

// URL appends s to base as the callback for the next turn.
func (s State) URL(base string) string {
	q := s.Encode()
	if q == "" {
		return base
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + q
}

// Next returns a copy of s for the prompt named source.
func (s State) Next(source string, attempt int) State {
	n := s
	n.Source = source
	n.Attempt = attempt
	return n
}

// Continuation returns the state carried into a free-speech turn: language,
// identity and the conversation handle, without any DTMF bookkeeping.
func (s State) Continuation(responseID string) State {
	return State{
		Language:           s.Language,
		RoomNumber:         s.RoomNumber,
		PhoneLast4:         s.PhoneLast4,
		PreviousResponseID: responseID,
	}
}
