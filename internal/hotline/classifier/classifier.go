// Package classifier sorts a caller's utterance into an urgency category
// with a structured-output chat completion.
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/diagnosis/baywheel-hotline/pkg/logger"
	"github.com/diagnosis/baywheel-hotline/pkg/metrics"
)

type Category string

const (
	Urgent          Category = "urgent"
	General         Category = "general"
	OperatorRequest Category = "operator_request"
	Unknown         Category = "unknown"
	// Error means the provider could not be reached or answered nonsense.
	Error Category = "error"
)

// Result is a classification with the model's stated reason.
type Result struct {
	Category  Category
	Reasoning string
}

// ChatClient is the part of the OpenAI client the classifier calls.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Classifier struct {
	client  ChatClient
	model   string
	timeout time.Duration
}

func New(client ChatClient, model string, timeout time.Duration) *Classifier {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Classifier{client: client, model: model, timeout: timeout}
}

const instructions = `あなたはOsaka Bay Wheelというホテルのユーザーからの問い合わせを分類するアシスタントです。
ユーザーのメッセージが緊急かどうかを判断してください。

判断基準として、以下のケースが挙げられますが、これに限らず人命に関わるものや、
ゲストの安全・セキュリティに関わるものは必ず「緊急（urgent）」としてください。

想定される緊急ケース：
- 不審者の侵入や目撃
- 火事・煙・焦げ臭い
- 地震・台風などの災害
- 盗難・紛失（特に鍵やセキュリティに関わるもの）
- 事故・怪我
- 水漏れ・ガス漏れ
- 器物損壊
- 救急を要する体調不良
- その他犯罪行為

スタッフやオペレーターと直接話したいと明確に求めている場合は「オペレーター希望（operator_request）」としてください。
不明なテキストや意味が分からない質問と判断した場合は「不明（unknown）」としてください。
それ以外の一般的な問い合わせ（施設案内、チェックイン方法など）は「一般（general）」としてください。

回答は指定のJSON形式で返し、reasoningには判断理由を日本語で簡潔に書いてください。`

var schema = &jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"urgency": {
			Type:        jsonschema.String,
			Enum:        []string{string(Urgent), string(General), string(OperatorRequest), string(Unknown)},
			Description: "問い合わせの緊急度。",
		},
		"reasoning": {
			Type:        jsonschema.String,
			Description: "なぜその緊急度と判断したかの簡単な理由。",
		},
	},
	Required:             []string{"urgency", "reasoning"},
	AdditionalProperties: false,
}

type output struct {
	Urgency   string `json:"urgency"`
	Reasoning string `json:"reasoning"`
}

// Classify never returns an error; provider and decoding failures come back
// as the Error category.
func (c *Classifier) Classify(ctx context.Context, utterance string) Result {
	res := c.classify(ctx, utterance)
	metrics.Classifications.WithLabelValues(string(res.Category)).Inc()
	return res
}

func (c *Classifier) classify(ctx context.Context, utterance string) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: instructions},
			{Role: openai.ChatMessageRoleUser, Content: utterance},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "urgency_classification",
				Schema: schema,
				Strict: true,
			},
		},
	})
	if err != nil {
		logClientError(ctx, err)
		return Result{Category: Error}
	}
	if len(resp.Choices) == 0 {
		logger.WarnContext(ctx, "Classifier returned no choices")
		return Result{Category: Error}
	}

	var out output
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &out); err != nil {
		logger.WarnContext(ctx, "Classifier output is not JSON", "error", err)
		return Result{Category: Error}
	}

	cat := Category(strings.TrimSpace(out.Urgency))
	switch cat {
	case Urgent, General, OperatorRequest, Unknown:
	default:
		logger.WarnContext(ctx, "Unexpected urgency value", "urgency", out.Urgency)
		cat = Unknown
	}
	logger.InfoContext(ctx, "Utterance classified", "category", cat, "reasoning", out.Reasoning)
	return Result{Category: cat, Reasoning: out.Reasoning}
}

func logClientError(ctx context.Context, err error) {
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		logger.ErrorContext(ctx, "Classifier API error", "status", apiErr.HTTPStatusCode, "type", apiErr.Type, "error", apiErr.Message)
	case errors.As(err, &reqErr):
		logger.ErrorContext(ctx, "Classifier request failed", "status", reqErr.HTTPStatusCode, "error", reqErr.Err)
	default:
		logger.ErrorContext(ctx, "Classifier unreachable", "error", err)
	}
}
