// Package processor is the AI worker: it classifies a caller's speech,
// answers or escalates it, and pushes the result into the live call.
package processor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/diagnosis/baywheel-hotline/internal/hotline/callstate"
	"github.com/diagnosis/baywheel-hotline/internal/hotline/classifier"
	"github.com/diagnosis/baywheel-hotline/internal/hotline/flow"
	"github.com/diagnosis/baywheel-hotline/internal/hotline/lingual"
	"github.com/diagnosis/baywheel-hotline/internal/hotline/retrieval"
	"github.com/diagnosis/baywheel-hotline/internal/platform/telephony"
	"github.com/diagnosis/baywheel-hotline/pkg/events"
	"github.com/diagnosis/baywheel-hotline/pkg/logger"
)

// defaultAnnounceHold covers the default retrieval timeout plus one call
// update round trip.
const defaultAnnounceHold = 30 * time.Second

const (
	operatorTimeout  = 7
	followUpTimeout  = 5
	reInquiryTimeout = 7
)

// Route names what the worker did with a request.
type Route string

const (
	RouteMissingSpeech Route = "missing_speech"
	RouteTransfer      Route = "transfer"
	RouteUnknown       Route = "unknown"
	RouteError         Route = "error"
	RouteAnswered      Route = "answered"
	RouteOperatorOffer Route = "operator_offer"
	RouteEnded         Route = "ended"
	RouteFailed        Route = "failed"
)

type Classifier interface {
	Classify(ctx context.Context, utterance string) classifier.Result
}

type Retriever interface {
	Answer(ctx context.Context, q retrieval.Query) (retrieval.Answer, error)
}

// Outcome reports one processed request. UpdateErr collects call update
// failures, which never abort processing.
type Outcome struct {
	Route     Route
	Category  classifier.Category
	Answer    *retrieval.Answer
	Err       error
	UpdateErr error
}

type Processor struct {
	classifier Classifier
	retriever  Retriever
	calls      telephony.CallUpdater
	webhookURL string
	operator   string
	hold       time.Duration
}

func New(c Classifier, r Retriever, calls telephony.CallUpdater, webhookURL, operatorNumber string) *Processor {
	return &Processor{
		classifier: c,
		retriever:  r,
		calls:      calls,
		webhookURL: webhookURL,
		operator:   operatorNumber,
		hold:       defaultAnnounceHold,
	}
}

// WithLatencyBudget sizes the pause after the lookup announcement so the
// call stays on hold until a retrieval that uses its whole timeout has been
// pushed back into the call.
func (p *Processor) WithLatencyBudget(retrieval, update time.Duration) *Processor {
	if d := retrieval + update; d > 0 {
		p.hold = d
	}
	return p
}

func (p *Processor) holdSeconds() int {
	return int(math.Ceil(p.hold.Seconds()))
}

func (p *Processor) Handle(ctx context.Context, req events.AIProcessRequest) Outcome {
	lang := req.Language
	if !lingual.Supported(lang) {
		lang = lingual.DefaultLanguage
	}
	speech := strings.TrimSpace(req.SpeechResult)
	base := callstate.State{Language: lang, RoomNumber: req.RoomNumber, PhoneLast4: req.PhoneLast4}
	u := &updater{calls: p.calls, callSID: req.CallSID}

	if speech == "" {
		u.push(ctx, telephony.NewResponse().
			SayKey(lang, lingual.CouldNotUnderstand).
			SayKey(lang, lingual.Hangup).
			Hangup())
		return u.outcome(Outcome{Route: RouteMissingSpeech})
	}

	category := classifier.General
	if req.PreviousOpenAIResponseID == "" {
		category = p.classifier.Classify(ctx, speech).Category
	}
	logger.InfoContext(ctx, "Routing inquiry", "call_sid", req.CallSID, "category", category, "continuation", req.PreviousOpenAIResponseID != "")

	switch category {
	case classifier.Urgent, classifier.OperatorRequest:
		u.push(ctx, flow.Transfer(telephony.NewResponse(), lang, p.operator))
		return u.outcome(Outcome{Route: RouteTransfer, Category: category})

	case classifier.Unknown:
		r := telephony.NewResponse().SayKey(lang, lingual.InquiryNotUnderstood)
		r.Gather(telephony.SpeechGather(base.URL(p.webhookURL), lang, reInquiryTimeout).
			SayKey(lang, lingual.RePromptInquiry))
		u.push(ctx, flow.TimeoutHangup(r, lang))
		return u.outcome(Outcome{Route: RouteUnknown, Category: category})

	case classifier.General:
		return p.general(ctx, u, req, base, speech)

	default:
		u.push(ctx, telephony.NewResponse().SayKey(lang, lingual.SystemError).Hangup())
		return u.outcome(Outcome{Route: RouteError, Category: category})
	}
}

// general announces the lookup while the knowledge base is queried. Both
// must succeed before the answer is played.
func (p *Processor) general(ctx context.Context, u *updater, req events.AIProcessRequest, base callstate.State, speech string) Outcome {
	lang := base.Language
	var ans retrieval.Answer

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		announce := telephony.NewResponse().SayKey(lang, lingual.GeneralInquiry).Pause(p.holdSeconds())
		if err := p.calls.UpdateCall(gctx, req.CallSID, announce.String()); err != nil {
			return fmt.Errorf("announce: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		ans, err = p.retriever.Answer(gctx, retrieval.Query{
			Utterance:    speech,
			Language:     lang,
			Continuation: req.PreviousOpenAIResponseID,
			Guest:        req.GuestInfo,
		})
		if err != nil {
			return fmt.Errorf("retrieve: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.ErrorContext(ctx, "General inquiry failed", "call_sid", req.CallSID, "error", err)
		u.push(ctx, telephony.NewResponse().SayKey(lang, lingual.ProcessingError).Hangup())
		return u.outcome(Outcome{Route: RouteFailed, Category: classifier.General, Err: err})
	}

	next := base.Continuation(ans.ContinuationHandle)
	r := telephony.NewResponse().Say(lang, ans.AssistantResponseText)
	route := RouteAnswered
	switch {
	case ans.NeedsOperator:
		route = RouteOperatorOffer
		r.Gather(telephony.DigitsGather(next.Next(callstate.SourceOperatorChoice, 1).URL(p.webhookURL), 1, operatorTimeout).
			SayKey(lang, lingual.PromptForOperatorDTMF))
		flow.TimeoutHangup(r, lang)
	case ans.EndConversation:
		route = RouteEnded
		r.SayKey(lang, lingual.EndingMessage).Hangup()
	default:
		r.Gather(telephony.SpeechGather(next.URL(p.webhookURL), lang, followUpTimeout).
			SayKey(lang, lingual.FollowUpQuestion))
		flow.TimeoutHangup(r, lang)
	}
	u.push(ctx, r)
	return u.outcome(Outcome{Route: route, Category: classifier.General, Answer: &ans})
}

// updater pushes markup into one call and remembers what failed.
type updater struct {
	calls   telephony.CallUpdater
	callSID string
	errs    []error
}

func (u *updater) push(ctx context.Context, r *telephony.Response) {
	if err := u.calls.UpdateCall(ctx, u.callSID, r.String()); err != nil {
		logger.ErrorContext(ctx, "Call update failed", "call_sid", u.callSID, "error", err)
		u.errs = append(u.errs, err)
	}
}

func (u *updater) outcome(o Outcome) Outcome {
	o.UpdateErr = errors.Join(u.errs...)
	return o
}
