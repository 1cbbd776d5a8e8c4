// Package model はドメインモデルを定義する。
package model

import (
	"regexp"
	"time"
)

// Post はフィードから取り込んだ1件のエントリを表す。
// IDはフィードエントリのGUIDを正規化したスラグで、取り込みの冪等キーとなる。
// UUIDは外部公開用の不透明な識別子で、内部のスラグ形式をリンクから切り離す。
type Post struct {
	ID          string
	UUID        string
	Title       string
	URL         string
	Source      string // 取得元フィードURL
	PostDate    time.Time
	CreateDate  time.Time
	Status      PostStatus
	RawLocation string // 未処理ペイロードの保存先への参照
}

// PostStatus はPostがパイプラインのどの段階まで処理されたかを表す。
type PostStatus string

const (
	// PostStatusScraped は取り込み済み（要約前）の状態。
	PostStatusScraped PostStatus = "scraped"
	// PostStatusSummarized は要約アーティファクト生成済みの状態。
	PostStatusSummarized PostStatus = "summarized"
	// PostStatusTagged はタグ抽出済みの状態。
	PostStatusTagged PostStatus = "tagged"
)

// nonAlphanumeric は英数字以外の連続文字列にマッチする。
var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// NormalizeID はフィードエントリのGUIDをPost IDスラグへ正規化する。
// 英数字以外の連続はアンダースコア1文字に置換される。
// 同一入力に対して常に同一出力を返す（決定的）。
func NormalizeID(guid string) string {
	return nonAlphanumeric.ReplaceAllString(guid, "_")
}
