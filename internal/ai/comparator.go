package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// CompareResult is the comparator's judgement of a before/after image pair.
type CompareResult struct {
	Confidence     float64 `json:"confidence"`
	IsClean        bool    `json:"is_clean"`
	LandmarksMatch bool    `json:"landmarks_match"`
	DrainClear     bool    `json:"drain_clear"`
	Verdict        string  `json:"verdict"`
	Reasoning      string  `json:"reasoning"`
}

// Comparator verdicts.
const (
	VerdictClosed   = "CLOSED"
	VerdictRejected = "REJECTED"
)

const comparePrompt = `You are auditing a waste cleanup. The first image was taken before the cleanup, the second after.
Answer with a single JSON object and nothing else:
{"confidence": 0.0-1.0, "is_clean": bool, "landmarks_match": bool, "drain_clear": bool, "verdict": "CLOSED" or "REJECTED", "reasoning": "one sentence"}
Verdict CLOSED only if the site is clean and the two images clearly show the same location.`

// Comparator performs LLM-based visual comparison of before/after images.
type Comparator struct {
	client openai.Client
	model  openai.ChatModel
}

// NewComparator constructs a comparator using the OpenAI chat API.
func NewComparator(apiKey, model string) *Comparator {
	m := openai.ChatModel(model)
	if model == "" {
		m = openai.ChatModelGPT4o
	}
	return &Comparator{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  m,
	}
}

// Compare asks the model for a verdict on the image pair.
func (c *Comparator) Compare(ctx context.Context, beforeURL, afterURL string) (CompareResult, error) {
	var result CompareResult
	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(comparePrompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: beforeURL}),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: afterURL}),
			}),
		},
	})
	if err != nil {
		return result, err
	}
	if len(completion.Choices) == 0 {
		return result, fmt.Errorf("comparator returned no choices")
	}
	result, err = ParseCompareResult(completion.Choices[0].Message.Content)
	if err != nil {
		return result, err
	}
	return result, nil
}

// ParseCompareResult extracts the JSON verdict from a model reply, tolerating
// surrounding prose or code fences. Any verdict other than CLOSED is
// normalized to REJECTED.
func ParseCompareResult(content string) (CompareResult, error) {
	var result CompareResult
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return result, fmt.Errorf("no JSON object in comparator reply")
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &result); err != nil {
		return result, fmt.Errorf("decode comparator reply: %w", err)
	}
	result.Verdict = strings.ToUpper(strings.TrimSpace(result.Verdict))
	if result.Verdict != VerdictClosed {
		result.Verdict = VerdictRejected
	}
	return result, nil
}
