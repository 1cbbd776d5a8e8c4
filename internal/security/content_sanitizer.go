// Package security はフィード取得まわりのセキュリティ機能を提供する。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はフィードエントリHTMLのサニタイズ機能のインターフェースを定義する。
// rawペイロードの保存前と、モデルへ渡すテキストの抽出に使用される。
type ContentSanitizerService interface {
	// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
	// 基本的な文章タグのみを通過させ、script/iframe/styleタグと
	// on*イベント属性を除去する。同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(rawHTML string) string

	// PlainText はHTMLから全タグを除去したプレーンテキストを返す。
	// モデルへのユーザークエリ構築に使用する。
	PlainText(rawHTML string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	policy *bluemonday.Policy
	strict *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// ポリシーの内容:
//   - 許可タグ: p, br, a, ul, ol, li, blockquote, pre, code, strong, em
//   - aタグ: href属性のみ許可、target="_blank" と rel="noopener noreferrer" を自動付与
//   - その他のタグ・属性（script, iframe, style, on*イベント等）は除去
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowStandardURLs()
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &contentSanitizer{
		policy: p,
		strict: bluemonday.StrictPolicy(),
	}
}

// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}

// PlainText はHTMLから全タグを除去したプレーンテキストを返す。
func (s *contentSanitizer) PlainText(rawHTML string) string {
	return strings.TrimSpace(s.strict.Sanitize(rawHTML))
}
