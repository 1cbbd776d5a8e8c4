// Package model はドメインモデルを定義する。
package model

import "time"

// FeedEntry はフィードパーサーから取得した未保存のエントリデータを表す。
// Scrapeステージがフィードをパースした後、ペイロード保存とPost作成に渡される。
// GUIDまたはPublishedAtを欠くエントリはScrapeステージで拒否される。
type FeedEntry struct {
	GUID        string
	Title       string
	Link        string
	Content     string // 未サニタイズのHTML
	PublishedAt *time.Time
}
