package telephony

import (
	"context"
	"fmt"
	"time"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/diagnosis/baywheel-hotline/pkg/logger"
	"github.com/diagnosis/baywheel-hotline/pkg/metrics"
)

// CallUpdater replaces the markup a live call is executing.
type CallUpdater interface {
	UpdateCall(ctx context.Context, callSID, twiml string) error
}

// CallsAPI is the part of the Twilio REST client used here.
type CallsAPI interface {
	UpdateCall(sid string, params *openapi.UpdateCallParams) (*openapi.ApiV2010Call, error)
}

type TwilioUpdater struct {
	api     CallsAPI
	timeout time.Duration
}

// NewTwilioClient builds a REST client authenticated with the account
// credentials.
func NewTwilioClient(accountSID, authToken string) *twilio.RestClient {
	return twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
}

// NewTwilioUpdater wraps api. Each update is bounded by timeout.
func NewTwilioUpdater(api CallsAPI, timeout time.Duration) *TwilioUpdater {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TwilioUpdater{api: api, timeout: timeout}
}

func (u *TwilioUpdater) UpdateCall(ctx context.Context, callSID, twiml string) error {
	if callSID == "" {
		return fmt.Errorf("update call: empty call sid")
	}
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	params := &openapi.UpdateCallParams{}
	params.SetTwiml(twiml)

	// the REST client takes no context, so the deadline is enforced here
	done := make(chan error, 1)
	go func() {
		_, err := u.api.UpdateCall(callSID, params)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			metrics.CallUpdates.WithLabelValues("error").Inc()
			return fmt.Errorf("update call %s: %w", callSID, err)
		}
		metrics.CallUpdates.WithLabelValues("ok").Inc()
		logger.DebugContext(ctx, "Call updated", "call_sid", callSID, "bytes", len(twiml))
		return nil
	case <-ctx.Done():
		metrics.CallUpdates.WithLabelValues("timeout").Inc()
		return fmt.Errorf("update call %s: %w", callSID, ctx.Err())
	}
}
