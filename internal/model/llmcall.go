// Package model はドメインモデルを定義する。
package model

import "time"

// LlmCall は1回のモデル呼び出しのトークン使用量を記録する台帳エントリ。
// 呼び出し完了時に1行作成され、以降は不変。通常のパイプライン運用では
// 削除されない（全削除パージのみが対象）。コストは価格表から都度算出し、
// 行には保存しない。
type LlmCall struct {
	ID           string
	CreateDate   time.Time
	ModelID      string
	InputTokens  int
	OutputTokens int
}

// Usage はストリーム終端で得られるトークン使用量メトリクス。
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Add は別のUsageを加算する。
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}
