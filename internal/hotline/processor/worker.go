package processor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/diagnosis/baywheel-hotline/pkg/events"
	"github.com/diagnosis/baywheel-hotline/pkg/logger"
)

// Worker feeds bus messages to a Processor, one bounded context per job.
type Worker struct {
	proc    *Processor
	timeout time.Duration
}

func NewWorker(p *Processor, timeout time.Duration) *Worker {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Worker{proc: p, timeout: timeout}
}

// Handle is a bus subscription callback. Undecodable payloads are dropped:
// there is no call to answer.
func (w *Worker) Handle(msg *events.Message) {
	var req events.AIProcessRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		logger.Error("Dropping malformed AI job", "subject", msg.Subject, "id", msg.ID, "error", err)
		return
	}
	if req.CallSID == "" {
		logger.Error("Dropping AI job without call sid", "id", msg.ID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	ctx = logger.WithCallSID(ctx, req.CallSID)

	out := w.proc.Handle(ctx, req)
	args := []any{"route", out.Route, "category", out.Category, "queued_ms", time.Since(msg.Timestamp).Milliseconds()}
	if out.Err != nil {
		args = append(args, "error", out.Err)
	}
	if out.UpdateErr != nil {
		args = append(args, "update_error", out.UpdateErr)
	}
	logger.InfoContext(ctx, "AI job processed", args...)
}
