// Package flow answers voice webhook turns: language selection, room and
// phone authentication, and the handoff of free speech to the AI worker.
package flow

import (
	"context"
	"errors"
	"strings"

	"github.com/diagnosis/baywheel-hotline/internal/domain"
	"github.com/diagnosis/baywheel-hotline/internal/hotline/callstate"
	"github.com/diagnosis/baywheel-hotline/internal/hotline/lingual"
	"github.com/diagnosis/baywheel-hotline/internal/platform/telephony"
	"github.com/diagnosis/baywheel-hotline/internal/utils"
	"github.com/diagnosis/baywheel-hotline/pkg/events"
	"github.com/diagnosis/baywheel-hotline/pkg/logger"
	"github.com/diagnosis/baywheel-hotline/pkg/metrics"
)

const (
	roomDigits  = 3
	phoneDigits = 4
	maxAttempts = 2

	// Gather and pause timings, in seconds.
	inquiryTimeout   = 7
	hangupPause      = 3
	analysisHoldTime = 30
)

// Inbound is one webhook turn.
type Inbound struct {
	State        callstate.State
	SpeechResult string
	Digits       string
	CallSID      string
}

type Controller struct {
	auth       GuestAuthenticator
	bus        events.Publisher
	webhookURL string
	operator   string
}

// NewController builds a controller whose gathers post back to webhookURL.
func NewController(auth GuestAuthenticator, bus events.Publisher, webhookURL, operatorNumber string) *Controller {
	return &Controller{
		auth:       auth,
		bus:        bus,
		webhookURL: webhookURL,
		operator:   operatorNumber,
	}
}

// Handle renders the TwiML for one turn. It never fails: every error path
// ends in a spoken apology.
func (c *Controller) Handle(ctx context.Context, in Inbound) string {
	in.Digits = strings.TrimSpace(in.Digits)
	in.SpeechResult = strings.TrimSpace(in.SpeechResult)
	s := in.State

	var (
		route string
		resp  *telephony.Response
	)
	switch {
	case s.Source == callstate.SourceOperatorChoice:
		route, resp = "operator_choice", c.operatorChoice(s, in.Digits)
	case s.Source == callstate.SourceRoomNumber && in.Digits != "":
		route, resp = "room_number", c.roomNumber(s, in.Digits)
	case s.Source == callstate.SourcePhoneLast4 && in.Digits != "":
		route, resp = "phone_last4", c.phoneLast4(ctx, s, in.Digits)
	case in.Digits != "":
		route, resp = "language", c.languageSelection(in.Digits)
	case in.SpeechResult != "" && in.CallSID != "":
		route, resp = "speech", c.speech(ctx, in)
	default:
		route, resp = "initial", c.initial()
	}

	metrics.CallTurns.WithLabelValues(route).Inc()
	logger.DebugContext(ctx, "Voice turn routed",
		"route", route,
		"call_sid", in.CallSID,
		"language", s.Language,
		"attempt", s.Attempt,
	)
	return resp.String()
}

func (c *Controller) operatorChoice(s callstate.State, digits string) *telephony.Response {
	r := telephony.NewResponse()
	switch digits {
	case "1":
		return Transfer(r, s.Language, c.operator)
	case "2":
		next := s.Continuation(s.PreviousResponseID)
		r.Gather(telephony.SpeechGather(next.URL(c.webhookURL), s.Language, inquiryTimeout).
			SayKey(s.Language, lingual.FollowUpQuestion))
	}
	return TimeoutHangup(r, s.Language)
}

func (c *Controller) roomNumber(s callstate.State, digits string) *telephony.Response {
	r := telephony.NewResponse()
	if domain.ValidRoom(digits) {
		next := callstate.State{Language: s.Language, RoomNumber: digits}.Next(callstate.SourcePhoneLast4, 1)
		r.Gather(telephony.DigitsGather(next.URL(c.webhookURL), phoneDigits, 0).
			SayKey(s.Language, lingual.PromptPhoneLast4))
		return TimeoutHangup(r, s.Language)
	}

	r.SayKey(s.Language, lingual.InvalidRoomNumber)
	if s.Attempt < maxAttempts {
		c.roomGather(r, s.Language, s.Attempt+1)
	}
	return TimeoutHangup(r, s.Language)
}

func (c *Controller) phoneLast4(ctx context.Context, s callstate.State, digits string) *telephony.Response {
	r := telephony.NewResponse()
	if len(digits) != phoneDigits || !utils.IsDigits(digits) {
		r.SayKey(s.Language, lingual.InvalidPhoneLast4)
		if s.Attempt < maxAttempts {
			next := s.Next(callstate.SourcePhoneLast4, s.Attempt+1)
			r.Gather(telephony.DigitsGather(next.URL(c.webhookURL), phoneDigits, 0).
				SayKey(s.Language, lingual.PromptPhoneLast4))
		}
		return TimeoutHangup(r, s.Language)
	}

	guest, err := c.auth.Authenticate(ctx, s.RoomNumber, digits)
	if err != nil {
		logger.WarnContext(ctx, "Caller authentication failed", "room", s.RoomNumber, "code", authCode(err))
		r.SayKey(s.Language, lingual.AuthenticationFailed).Pause(hangupPause).Hangup()
		return r
	}

	logger.InfoContext(ctx, "Caller authenticated", "room", guest.RoomNumber, "status", guest.ApprovalStatus)
	next := callstate.State{Language: s.Language, RoomNumber: s.RoomNumber, PhoneLast4: digits, Attempt: 1}
	r.Gather(telephony.SpeechGather(next.URL(c.webhookURL), s.Language, inquiryTimeout).
		SayKey(s.Language, lingual.Welcome).
		SayKey(s.Language, lingual.PromptForInquiry))
	return TimeoutHangup(r, s.Language)
}

func (c *Controller) languageSelection(digits string) *telephony.Response {
	var lang string
	switch digits {
	case "1":
		lang = lingual.English
	case "2":
		lang = lingual.Japanese
	default:
		r := telephony.NewResponse()
		r.Gather(c.languageMenu())
		return r.Pause(hangupPause).Hangup()
	}

	r := telephony.NewResponse()
	c.roomGather(r, lang, 1)
	return TimeoutHangup(r, lang)
}

func (c *Controller) speech(ctx context.Context, in Inbound) *telephony.Response {
	s := in.State
	var guest *domain.GuestInfo
	if s.RoomNumber != "" && s.PhoneLast4 != "" {
		g, err := c.auth.Authenticate(ctx, s.RoomNumber, s.PhoneLast4)
		if err != nil {
			logger.WarnContext(ctx, "Re-authentication failed, continuing without guest", "room", s.RoomNumber, "code", authCode(err))
		} else {
			guest = g
		}
	}

	job := events.AIProcessRequest{
		SpeechResult:             in.SpeechResult,
		CallSID:                  in.CallSID,
		Language:                 s.Language,
		RoomNumber:               s.RoomNumber,
		PhoneLast4:               s.PhoneLast4,
		GuestInfo:                guest,
		PreviousOpenAIResponseID: s.PreviousResponseID,
	}

	r := telephony.NewResponse()
	if err := c.bus.Publish(ctx, events.AIProcessRequested, job); err != nil {
		logger.ErrorContext(ctx, "Failed to hand off speech", "call_sid", in.CallSID, "error", err)
		return r.SayKey(s.Language, lingual.ProcessingError).Pause(hangupPause).Hangup()
	}
	return r.SayKey(s.Language, lingual.ReceivedAndAnalyzing).Pause(analysisHoldTime)
}

func (c *Controller) initial() *telephony.Response {
	r := telephony.NewResponse()
	r.Gather(c.languageMenu())
	return r.
		Say(lingual.English, lingual.NoInputEnglish).
		Say(lingual.Japanese, lingual.NoInputJapanese).
		Pause(hangupPause).
		Hangup()
}

// languageMenu posts back with no state, so the digit lands in language
// selection.
func (c *Controller) languageMenu() *telephony.Gather {
	return telephony.DigitsGather(c.webhookURL, 1, 0).
		Pause(1).
		Say(lingual.English, lingual.LanguageMenuEnglish).
		Say(lingual.Japanese, lingual.LanguageMenuJapanese)
}

func (c *Controller) roomGather(r *telephony.Response, lang string, attempt int) {
	next := callstate.State{Language: lang}.Next(callstate.SourceRoomNumber, attempt)
	r.Gather(telephony.DigitsGather(next.URL(c.webhookURL), roomDigits, 0).
		SayKey(lang, lingual.PromptRoomNumber))
}

// TimeoutHangup appends the closing sequence played when a gather gets no
// input.
func TimeoutHangup(r *telephony.Response, lang string) *telephony.Response {
	return r.SayKey(lang, lingual.TimeoutMessage).Pause(hangupPause).Hangup()
}

// Transfer connects the caller to the operator line, or apologizes and hangs
// up when none is configured.
func Transfer(r *telephony.Response, lang, operator string) *telephony.Response {
	if operator == "" {
		return r.SayKey(lang, lingual.ProcessingError).Hangup()
	}
	return r.SayKey(lang, lingual.TransferringToOperator).Dial(operator)
}

func authCode(err error) string {
	for _, code := range []error{ErrNoGuestsInRoom, ErrPhoneNotMatch, ErrDatabase} {
		if errors.Is(err, code) {
			return code.Error()
		}
	}
	return "UNKNOWN"
}
