// Package llm はホスト型LLM APIへのストリーミング呼び出しと
// トークン使用量・コストの記録を提供する。
package llm

import (
	"fmt"

	"github.com/hitoshi/feeddigest/internal/model"
)

// Price は1モデルの1000トークンあたりの価格（USD）。
type Price struct {
	InputPer1K  float64
	OutputPer1K float64
}

// PriceTable はモデルIDから価格への静的な対応表。
// ハードコードではなく注入可能な設定データとして扱い、
// モデル追加時にステージロジックの変更を不要にする。
type PriceTable map[string]Price

// DefaultPriceTable は既知モデルのデフォルト価格表を返す。
func DefaultPriceTable() PriceTable {
	return PriceTable{
		"anthropic.claude-3-5-sonnet-20240620-v1:0": {InputPer1K: 0.003, OutputPer1K: 0.015},
		"us.amazon.nova-pro-v1:0":                   {InputPer1K: 0.0008, OutputPer1K: 0.0032},
		"us.amazon.nova-micro-v1:0":                 {InputPer1K: 0.000035, OutputPer1K: 0.00014},
	}
}

// Cost は指定モデルのトークン使用量から金額（USD）を算出する。
// 未知のモデルIDに対してはErrUnknownModelを返す。暗黙にゼロを返すことはない。
func (t PriceTable) Cost(modelID string, inputTokens, outputTokens int) (float64, error) {
	price, ok := t[modelID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", model.ErrUnknownModel, modelID)
	}

	inputCost := float64(inputTokens) / 1000 * price.InputPer1K
	outputCost := float64(outputTokens) / 1000 * price.OutputPer1K
	return inputCost + outputCost, nil
}
