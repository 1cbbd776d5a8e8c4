package llm

import (
	"encoding/json"
	"fmt"

	"github.com/hitoshi/feeddigest/internal/model"
)

// novaCodec はAmazon Novaファミリーのリクエスト/レスポンス形式を実装する。
// システムプロンプトはトップレベルのsystem配列、ユーザークエリは
// content配列のネストしたテキストブロックとして送信される。
type novaCodec struct{}

// novaRequest はNovaファミリーのリクエストボディ。
type novaRequest struct {
	System          []novaText    `json:"system"`
	Messages        []novaMessage `json:"messages"`
	InferenceConfig novaConfig    `json:"inferenceConfig"`
}

type novaText struct {
	Text string `json:"text"`
}

type novaMessage struct {
	Role    string     `json:"role"`
	Content []novaText `json:"content"`
}

type novaConfig struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
}

// BuildRequest はNova形式のリクエストボディを構築する。
func (c *novaCodec) BuildRequest(systemPrompt, userQuery string, temperature float64, maxTokens int) ([]byte, error) {
	req := novaRequest{
		System: []novaText{{Text: systemPrompt}},
		Messages: []novaMessage{
			{Role: "user", Content: []novaText{{Text: userQuery}}},
		},
		InferenceConfig: novaConfig{Temperature: temperature, MaxTokens: maxTokens},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("Novaリクエストの構築に失敗しました: %w", err)
	}
	return body, nil
}

// novaChunk はNovaファミリーのストリームチャンク。
// テキスト断片はcontentBlockDelta、終端メトリクスは
// amazon-bedrock-invocationMetricsキーで届く。
type novaChunk struct {
	ContentBlockDelta *struct {
		Delta struct {
			Text string `json:"text"`
		} `json:"delta"`
	} `json:"contentBlockDelta"`
	InvocationMetrics *invocationMetrics `json:"amazon-bedrock-invocationMetrics"`
}

// invocationMetrics はストリーム終端で届くトークン使用量メトリクス。
// 両ベンダーファミリーで共通の形式。
type invocationMetrics struct {
	InputTokenCount  int `json:"inputTokenCount"`
	OutputTokenCount int `json:"outputTokenCount"`
}

// ParseChunk はNova形式のチャンクを解析する。
func (c *novaCodec) ParseChunk(chunk []byte) (string, *model.Usage, error) {
	var parsed novaChunk
	if err := json.Unmarshal(chunk, &parsed); err != nil {
		return "", nil, fmt.Errorf("%w: %s", ErrMalformedChunk, err)
	}

	if parsed.ContentBlockDelta != nil {
		return parsed.ContentBlockDelta.Delta.Text, nil, nil
	}
	if parsed.InvocationMetrics != nil {
		return "", &model.Usage{
			InputTokens:  parsed.InvocationMetrics.InputTokenCount,
			OutputTokens: parsed.InvocationMetrics.OutputTokenCount,
		}, nil
	}

	// contentBlockStart等の対象外イベントは無視する
	return "", nil, nil
}
