package alerts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/diagnosis/baywheel-hotline/pkg/events"
	"github.com/diagnosis/baywheel-hotline/pkg/logger"
	"github.com/diagnosis/baywheel-hotline/pkg/metrics"
)

// Relay mirrors guest lifecycle events from the bus into a staff channel.
// Pending reviews are left to the Notifier, which already alerts on them.
type Relay struct {
	sender Sender
}

func NewRelay(sender Sender) *Relay {
	return &Relay{sender: sender}
}

// Handle is a bus subscription callback.
func (r *Relay) Handle(msg *events.Message) {
	text, ok, err := RelayText(msg)
	if err != nil {
		logger.Error("Undecodable guest event", "subject", msg.Subject, "error", err)
		return
	}
	if !ok {
		return
	}
	if err := r.sender.Send(context.Background(), text); err != nil {
		metrics.AlertsSent.WithLabelValues(r.sender.Name(), "error").Inc()
		logger.Error("Failed to relay guest event", "subject", msg.Subject, "channel", r.sender.Name(), "error", err)
		return
	}
	metrics.AlertsSent.WithLabelValues(r.sender.Name(), "ok").Inc()
}

// RelayText renders a bus event for staff. ok is false for subjects that are
// not relayed.
func RelayText(msg *events.Message) (text string, ok bool, err error) {
	switch msg.Subject {
	case events.GuestApproved, events.GuestRejected:
		var evt events.GuestStatusEvent
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			return "", false, err
		}
		verb := "approved"
		if msg.Subject == events.GuestRejected {
			verb = "rejected"
		}
		return fmt.Sprintf("Guest %s: room %s, guest %s, booking %s", verb, evt.RoomNumber, evt.GuestID, dash(evt.BookingID)), true, nil
	case events.GuestsDeleted:
		var evt events.GuestsDeletedEvent
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			return "", false, err
		}
		return fmt.Sprintf("Registry %s removed %d guest records", evt.Reason, evt.Count), true, nil
	default:
		return "", false, nil
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
