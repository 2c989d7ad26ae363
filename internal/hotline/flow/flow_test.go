package flow_test

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/diagnosis/baywheel-hotline/internal/domain"
	"github.com/diagnosis/baywheel-hotline/internal/hotline/callstate"
	"github.com/diagnosis/baywheel-hotline/internal/hotline/flow"
	"github.com/diagnosis/baywheel-hotline/internal/hotline/lingual"
	"github.com/diagnosis/baywheel-hotline/internal/repo/dynamo/dynamotest"
	"github.com/diagnosis/baywheel-hotline/pkg/events"
)

const (
	webhook  = "https://hotline.example.com/voice"
	operator = "+81612345678"
)

type mockBus struct {
	subject string
	job     events.AIProcessRequest
	err     error
}

func (b *mockBus) Publish(ctx context.Context, subject string, data interface{}) error {
	if b.err != nil {
		return b.err
	}
	b.subject = subject
	b.job = data.(events.AIProcessRequest)
	return nil
}

func (b *mockBus) Close() error { return nil }

func guests() *dynamotest.Repo {
	return dynamotest.New(
		domain.GuestRecord{RoomNumber: "304", GuestID: "g1", GuestName: "Hanako", Phone: "+81 90-1111-2222", ApprovalStatus: domain.StatusApproved,
			CheckInDate: "2025-04-01", CheckOutDate: "2025-04-03"},
		domain.GuestRecord{RoomNumber: "304", GuestID: "g2", GuestName: "Taro", Phone: "080-3333-4444", ApprovalStatus: domain.StatusPending},
	)
}

func newController(bus *mockBus) *flow.Controller {
	return flow.NewController(flow.NewAuthenticator(guests()), bus, webhook, operator)
}

func state(query string) callstate.State {
	q, _ := url.ParseQuery(query)
	return callstate.Decode(q)
}

func assertContains(t *testing.T, doc string, wants ...string) {
	t.Helper()
	for _, w := range wants {
		if !strings.Contains(doc, w) {
			t.Errorf("missing %q in\n%s", w, doc)
		}
	}
}

func assertNotContains(t *testing.T, doc string, unwanted ...string) {
	t.Helper()
	for _, w := range unwanted {
		if strings.Contains(doc, w) {
			t.Errorf("unexpected %q in\n%s", w, doc)
		}
	}
}

func TestAuthenticate(t *testing.T) {
	auth := flow.NewAuthenticator(guests())
	ctx := context.Background()

	info, err := auth.Authenticate(ctx, "304", "4444")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.GuestName != "Taro" || info.ApprovalStatus != domain.StatusPending {
		t.Fatalf("unexpected guest %+v", info)
	}

	// full-width digits typed into the registration form still match
	fw := flow.NewAuthenticator(dynamotest.New(domain.GuestRecord{RoomNumber: "201", GuestID: "g", Phone: "０９０１２３４５６７８"}))
	if _, err := fw.Authenticate(ctx, "201", "5678"); err != nil {
		t.Fatalf("full-width phone should match: %v", err)
	}

	tests := []struct {
		name  string
		repo  *dynamotest.Repo
		room  string
		last4 string
		want  error
	}{
		{"empty room", guests(), "401", "2222", flow.ErrNoGuestsInRoom},
		{"wrong digits", guests(), "304", "9999", flow.ErrPhoneNotMatch},
		{"store down", &dynamotest.Repo{FailQuery: errors.New("throttled")}, "304", "2222", flow.ErrDatabase},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := flow.NewAuthenticator(tt.repo).Authenticate(ctx, tt.room, tt.last4)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestInitialCall(t *testing.T) {
	doc := newController(&mockBus{}).Handle(context.Background(), flow.Inbound{State: state("")})
	assertContains(t, doc,
		`<Gather input="dtmf" action="`+webhook+`" method="POST" numDigits="1"><Pause length="1"></Pause>`,
		lingual.LanguageMenuEnglish,
		lingual.LanguageMenuJapanese,
		`</Gather>`,
		lingual.NoInputEnglish,
		`<Pause length="3"></Pause><Hangup></Hangup></Response>`,
	)
}

func TestLanguageSelection(t *testing.T) {
	c := newController(&mockBus{})
	ctx := context.Background()

	doc := c.Handle(ctx, flow.Inbound{State: state(""), Digits: "2"})
	assertContains(t, doc,
		`action="`+webhook+`?attempt=1&amp;language=ja-JP&amp;source=room_number_input"`,
		`numDigits="3"`,
		lingual.Message(lingual.Japanese, lingual.PromptRoomNumber),
		lingual.Message(lingual.Japanese, lingual.TimeoutMessage),
	)

	doc = c.Handle(ctx, flow.Inbound{State: state(""), Digits: "7"})
	assertContains(t, doc, lingual.LanguageMenuEnglish, `<Hangup></Hangup>`)
	assertNotContains(t, doc, "room_number_input")
}

func TestRoomNumberInput(t *testing.T) {
	c := newController(&mockBus{})
	ctx := context.Background()

	doc := c.Handle(ctx, flow.Inbound{State: state("language=en-US&source=room_number_input"), Digits: "304"})
	assertContains(t, doc,
		`attempt=1&amp;language=en-US&amp;room_number=304&amp;source=phone_last4_input`,
		`numDigits="4"`,
		lingual.Message(lingual.English, lingual.PromptPhoneLast4),
	)

	doc = c.Handle(ctx, flow.Inbound{State: state("language=en-US&source=room_number_input"), Digits: "30"})
	assertContains(t, doc,
		lingual.Message(lingual.English, lingual.InvalidRoomNumber),
		`attempt=2&amp;language=en-US&amp;source=room_number_input`,
	)

	// the second invalid entry ends the call
	doc = c.Handle(ctx, flow.Inbound{State: state("language=en-US&source=room_number_input&attempt=2"), Digits: "9"})
	assertContains(t, doc, lingual.Message(lingual.English, lingual.InvalidRoomNumber), `<Hangup></Hangup>`)
	assertNotContains(t, doc, "<Gather")
}

func TestRoomNumberOutsideHotelIsRejected(t *testing.T) {
	c := newController(&mockBus{})

	for _, room := range []string{"105", "205", "901", "999", "000", "300"} {
		t.Run(room, func(t *testing.T) {
			doc := c.Handle(context.Background(), flow.Inbound{State: state("language=en-US&source=room_number_input"), Digits: room})
			assertContains(t, doc,
				lingual.Message(lingual.English, lingual.InvalidRoomNumber),
				`attempt=2&amp;language=en-US&amp;source=room_number_input`,
			)
			assertNotContains(t, doc, "phone_last4_input")
		})
	}

	for _, room := range []string{"201", "204", "801", "804"} {
		t.Run(room, func(t *testing.T) {
			doc := c.Handle(context.Background(), flow.Inbound{State: state("language=en-US&source=room_number_input"), Digits: room})
			assertContains(t, doc, "source=phone_last4_input")
		})
	}
}

func TestPhoneInput(t *testing.T) {
	c := newController(&mockBus{})
	ctx := context.Background()
	base := "language=ja-JP&source=phone_last4_input&room_number=304"

	doc := c.Handle(ctx, flow.Inbound{State: state(base), Digits: "2222"})
	assertContains(t, doc,
		`<Gather input="speech" action="`+webhook+`?attempt=1&amp;language=ja-JP&amp;phone_last4=2222&amp;room_number=304"`,
		`timeout="7"`,
		lingual.Message(lingual.Japanese, lingual.Welcome),
		lingual.Message(lingual.Japanese, lingual.TimeoutMessage),
	)

	doc = c.Handle(ctx, flow.Inbound{State: state(base), Digits: "0000"})
	assertContains(t, doc, lingual.Message(lingual.Japanese, lingual.AuthenticationFailed), `<Hangup></Hangup>`)
	assertNotContains(t, doc, "<Gather")

	doc = c.Handle(ctx, flow.Inbound{State: state(base), Digits: "12"})
	assertContains(t, doc,
		lingual.Message(lingual.Japanese, lingual.InvalidPhoneLast4),
		`attempt=2&amp;language=ja-JP&amp;room_number=304&amp;source=phone_last4_input`,
	)

	doc = c.Handle(ctx, flow.Inbound{State: state(base + "&attempt=2"), Digits: "12"})
	assertNotContains(t, doc, "<Gather")
}

func TestSpeechHandsOffToWorker(t *testing.T) {
	bus := &mockBus{}
	c := newController(bus)

	doc := c.Handle(context.Background(), flow.Inbound{
		State:        state("language=en-US&room_number=304&phone_last4=2222&previous_openai_response_id=thread_9"),
		SpeechResult: " Where is the laundry? ",
		CallSID:      "CA42",
	})

	assertContains(t, doc,
		lingual.Message(lingual.English, lingual.ReceivedAndAnalyzing),
		`<Pause length="30"></Pause></Response>`,
	)
	if bus.subject != events.AIProcessRequested {
		t.Fatalf("published to %q", bus.subject)
	}
	job := bus.job
	if job.SpeechResult != "Where is the laundry?" || job.CallSID != "CA42" || job.PreviousOpenAIResponseID != "thread_9" {
		t.Fatalf("unexpected job %+v", job)
	}
	if job.GuestInfo == nil || job.GuestInfo.GuestName != "Hanako" {
		t.Fatalf("expected re-authenticated guest, got %+v", job.GuestInfo)
	}
}

func TestSpeechWithoutIdentityStillHandsOff(t *testing.T) {
	bus := &mockBus{}
	newController(bus).Handle(context.Background(), flow.Inbound{
		State:        state("language=en-US&room_number=304&phone_last4=0000"),
		SpeechResult: "hello",
		CallSID:      "CA1",
	})
	if bus.subject == "" || bus.job.GuestInfo != nil {
		t.Fatalf("expected hand-off without guest, got %+v", bus.job)
	}
}

func TestSpeechPublishFailure(t *testing.T) {
	doc := newController(&mockBus{err: errors.New("nats: connection closed")}).Handle(context.Background(), flow.Inbound{
		State:        state("language=en-US"),
		SpeechResult: "hello",
		CallSID:      "CA1",
	})
	assertContains(t, doc, lingual.Message(lingual.English, lingual.ProcessingError), `<Hangup></Hangup>`)
}

func TestOperatorChoice(t *testing.T) {
	c := newController(&mockBus{})
	ctx := context.Background()
	base := "language=en-US&source=operator_choice_dtmf&room_number=304&phone_last4=2222&previous_openai_response_id=thread_7"

	doc := c.Handle(ctx, flow.Inbound{State: state(base), Digits: "1"})
	assertContains(t, doc,
		lingual.Message(lingual.English, lingual.TransferringToOperator),
		`<Dial>`+operator+`</Dial>`,
	)

	doc = c.Handle(ctx, flow.Inbound{State: state(base), Digits: "2"})
	assertContains(t, doc,
		`input="speech"`,
		`phone_last4=2222&amp;previous_openai_response_id=thread_7&amp;room_number=304`,
		lingual.Message(lingual.English, lingual.FollowUpQuestion),
	)
	assertNotContains(t, doc, "operator_choice_dtmf")

	doc = c.Handle(ctx, flow.Inbound{State: state(base), Digits: "5"})
	assertContains(t, doc, lingual.Message(lingual.English, lingual.TimeoutMessage), `<Hangup></Hangup>`)
	assertNotContains(t, doc, "<Gather", "<Dial>")
}
