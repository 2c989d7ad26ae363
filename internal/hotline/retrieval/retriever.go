// Package retrieval answers guest questions from the hotel knowledge base
// through an assistant with file search over a vector store.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/diagnosis/baywheel-hotline/internal/domain"
	"github.com/diagnosis/baywheel-hotline/pkg/logger"
	"github.com/diagnosis/baywheel-hotline/pkg/metrics"
)

const assistantName = "Osaka Bay Wheel hotline"

var ErrRunNotCompleted = errors.New("assistant run did not complete")

// AssistantsAPI is the part of the OpenAI client used for retrieval.
type AssistantsAPI interface {
	CreateAssistant(ctx context.Context, req openai.AssistantRequest) (openai.Assistant, error)
	CreateThreadAndRun(ctx context.Context, req openai.CreateThreadAndRunRequest) (openai.Run, error)
	CreateMessage(ctx context.Context, threadID string, req openai.MessageRequest) (openai.Message, error)
	CreateRun(ctx context.Context, threadID string, req openai.RunRequest) (openai.Run, error)
	RetrieveRun(ctx context.Context, threadID, runID string) (openai.Run, error)
	ListMessage(ctx context.Context, threadID string, limit *int, order, after, before, runID *string) (openai.MessagesList, error)
}

type Query struct {
	Utterance string
	Language  string
	// Continuation is the thread of an earlier turn in the same call.
	Continuation string
	Guest        *domain.GuestInfo
}

type Answer struct {
	AssistantResponseText string
	NeedsOperator         bool
	EndConversation       bool
	// ContinuationHandle resumes this conversation on the next turn.
	ContinuationHandle string
}

type Config struct {
	Model         string
	AssistantID   string
	VectorStoreID string
	Timeout       time.Duration
	PollInterval  time.Duration
}

type Retriever struct {
	api AssistantsAPI
	cfg Config
	now func() time.Time

	mu          sync.Mutex
	assistantID string
}

func New(api AssistantsAPI, cfg Config) *Retriever {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 25 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	return &Retriever{api: api, cfg: cfg, now: time.Now, assistantID: cfg.AssistantID}
}

func (r *Retriever) WithClock(now func() time.Time) *Retriever {
	r.now = now
	return r
}

// Answer runs q against the knowledge base. Provider failures return an
// error; a reply that cannot be parsed still yields an Answer carrying the
// system error message.
func (r *Retriever) Answer(ctx context.Context, q Query) (Answer, error) {
	start := time.Now()
	ans, err := r.answer(ctx, q)

	outcome := "answered"
	switch {
	case err != nil:
		outcome = "error"
	case ans.NeedsOperator:
		outcome = "operator"
	case ans.EndConversation:
		outcome = "ended"
	}
	metrics.RetrievalDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	return ans, err
}

func (r *Retriever) answer(ctx context.Context, q Query) (Answer, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	assistantID, err := r.assistant(ctx)
	if err != nil {
		return Answer{}, err
	}

	run := openai.RunRequest{
		AssistantID:  assistantID,
		Instructions: Instructions(q.Guest, q.Language, r.now()),
		Tools:        []openai.Tool{{Type: openai.ToolType(openai.AssistantToolTypeFileSearch)}},
	}

	var started openai.Run
	if q.Continuation == "" {
		started, err = r.api.CreateThreadAndRun(ctx, openai.CreateThreadAndRunRequest{
			RunRequest: run,
			Thread: openai.ThreadRequest{
				Messages: []openai.ThreadMessage{{Role: openai.ThreadMessageRoleUser, Content: q.Utterance}},
				ToolResources: &openai.ToolResourcesRequest{
					FileSearch: &openai.FileSearchToolResourcesRequest{VectorStoreIDs: []string{r.cfg.VectorStoreID}},
				},
			},
		})
		if err != nil {
			return Answer{}, fmt.Errorf("start thread: %w", err)
		}
	} else {
		if _, err := r.api.CreateMessage(ctx, q.Continuation, openai.MessageRequest{
			Role:    string(openai.ThreadMessageRoleUser),
			Content: q.Utterance,
		}); err != nil {
			return Answer{}, fmt.Errorf("append to thread %s: %w", q.Continuation, err)
		}
		started, err = r.api.CreateRun(ctx, q.Continuation, run)
		if err != nil {
			return Answer{}, fmt.Errorf("start run on thread %s: %w", q.Continuation, err)
		}
	}

	done, err := r.wait(ctx, started)
	if err != nil {
		return Answer{}, err
	}

	text, err := r.reply(ctx, done)
	if err != nil {
		return Answer{}, err
	}

	ans, ok := ParseAnswer(text, q.Language)
	if !ok {
		logger.WarnContext(ctx, "Assistant reply is not the expected JSON", "thread_id", done.ThreadID, "reply", text)
	}
	ans.ContinuationHandle = done.ThreadID
	return ans, nil
}

// assistant returns the configured assistant, creating one on first use.
func (r *Retriever) assistant(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.assistantID != "" {
		return r.assistantID, nil
	}

	name := assistantName
	base := Instructions(nil, "ja-JP", r.now())
	a, err := r.api.CreateAssistant(ctx, openai.AssistantRequest{
		Model:        r.cfg.Model,
		Name:         &name,
		Instructions: &base,
		Tools:        []openai.AssistantTool{{Type: openai.AssistantToolTypeFileSearch}},
		ToolResources: &openai.AssistantToolResource{
			FileSearch: &openai.AssistantToolFileSearch{VectorStoreIDs: []string{r.cfg.VectorStoreID}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("create assistant: %w", err)
	}
	logger.InfoContext(ctx, "Assistant created", "assistant_id", a.ID)
	r.assistantID = a.ID
	return a.ID, nil
}

func (r *Retriever) wait(ctx context.Context, run openai.Run) (openai.Run, error) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		switch run.Status {
		case openai.RunStatusCompleted:
			return run, nil
		case openai.RunStatusFailed, openai.RunStatusCancelled, openai.RunStatusExpired,
			openai.RunStatusIncomplete, openai.RunStatusRequiresAction:
			if run.LastError != nil {
				return run, fmt.Errorf("%w: %s (%s)", ErrRunNotCompleted, run.Status, run.LastError.Message)
			}
			return run, fmt.Errorf("%w: %s", ErrRunNotCompleted, run.Status)
		}

		select {
		case <-ctx.Done():
			return run, fmt.Errorf("wait for run %s: %w", run.ID, ctx.Err())
		case <-ticker.C:
		}

		next, err := r.api.RetrieveRun(ctx, run.ThreadID, run.ID)
		if err != nil {
			return run, fmt.Errorf("poll run %s: %w", run.ID, err)
		}
		run = next
	}
}

// reply reads the newest assistant message produced by run.
func (r *Retriever) reply(ctx context.Context, run openai.Run) (string, error) {
	limit := 1
	order := "desc"
	list, err := r.api.ListMessage(ctx, run.ThreadID, &limit, &order, nil, nil, &run.ID)
	if err != nil {
		return "", fmt.Errorf("list messages: %w", err)
	}
	for _, msg := range list.Messages {
		if msg.Role != "assistant" {
			continue
		}
		var parts []string
		for _, c := range msg.Content {
			if c.Text != nil {
				parts = append(parts, c.Text.Value)
			}
		}
		return strings.Join(parts, "\n"), nil
	}
	return "", nil
}
