package llm

import (
	"encoding/json"
	"fmt"

	"github.com/hitoshi/feeddigest/internal/model"
)

// anthropicCodec はAnthropicファミリーのリクエスト/レスポンス形式を実装する。
// システムプロンプトはトップレベルのsystem文字列、パラメータ名は
// snake_case、テキスト断片はtype判別のイベントとして届く。
type anthropicCodec struct{}

// anthropicRequest はAnthropicファミリーのリクエストボディ。
type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	System           string             `json:"system"`
	Messages         []anthropicMessage `json:"messages"`
	MaxTokens        int                `json:"max_tokens"`
	Temperature      float64            `json:"temperature"`
	TopP             float64            `json:"top_p"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// BuildRequest はAnthropic形式のリクエストボディを構築する。
func (c *anthropicCodec) BuildRequest(systemPrompt, userQuery string, temperature float64, maxTokens int) ([]byte, error) {
	req := anthropicRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		System:           systemPrompt,
		Messages: []anthropicMessage{
			{Role: "user", Content: userQuery},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        0.9,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("Anthropicリクエストの構築に失敗しました: %w", err)
	}
	return body, nil
}

// anthropicChunk はAnthropicファミリーのストリームチャンク。
// typeフィールドでイベント種別を判別する。
type anthropicChunk struct {
	Type  string `json:"type"`
	Delta struct {
		Text string `json:"text"`
	} `json:"delta"`
	InvocationMetrics *invocationMetrics `json:"amazon-bedrock-invocationMetrics"`
}

// ParseChunk はAnthropic形式のチャンクを解析する。
// テキスト断片はcontent_block_delta、終端メトリクスはmessage_stopイベントで届く。
func (c *anthropicCodec) ParseChunk(chunk []byte) (string, *model.Usage, error) {
	var parsed anthropicChunk
	if err := json.Unmarshal(chunk, &parsed); err != nil {
		return "", nil, fmt.Errorf("%w: %s", ErrMalformedChunk, err)
	}

	switch parsed.Type {
	case "content_block_delta":
		return parsed.Delta.Text, nil, nil
	case "message_stop":
		if parsed.InvocationMetrics == nil {
			return "", nil, nil
		}
		return "", &model.Usage{
			InputTokens:  parsed.InvocationMetrics.InputTokenCount,
			OutputTokens: parsed.InvocationMetrics.OutputTokenCount,
		}, nil
	default:
		// message_start、content_block_start等の対象外イベントは無視する
		return "", nil, nil
	}
}
