// Package feed はフィードの取得とエントリ変換を提供する。
package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/feeddigest/internal/model"
)

// Source はフィードソースのインターフェース。
// 指定されたフィードURLからエントリ列をフィード記載順で返す。
type Source interface {
	Fetch(ctx context.Context, feedURL string) ([]model.FeedEntry, error)
}

// SSRFValidator はSSRF検証のインターフェース。
// security.SSRFGuardServiceを抽象化してテスタビリティを向上させる。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration) *http.Client
}

// Fetcher は個別フィードのHTTPフェッチとパースを行う。
// SSRF検証、サイズ制限付きのボディ読み込み、gofeedによるパース、
// HTMLページが指定された場合のフィード自動検出を実行する。
type Fetcher struct {
	ssrfGuard   SSRFValidator
	detector    *Detector
	timeout     time.Duration
	maxBodySize int64
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
func NewFetcher(ssrfGuard SSRFValidator, timeout time.Duration, maxBodySize int64) *Fetcher {
	return &Fetcher{
		ssrfGuard:   ssrfGuard,
		detector:    NewDetector(),
		timeout:     timeout,
		maxBodySize: maxBodySize,
	}
}

// Fetch はフィードURLからエントリ列を取得する。
// URLがHTMLページを返す場合は、head内のrel=alternateリンクから
// フィードURLを1回だけ自動検出して再取得する。
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) ([]model.FeedEntry, error) {
	body, contentType, err := f.get(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	// HTMLページの場合はフィードリンクの自動検出を試みる
	if !f.detector.IsDirectFeed(contentType, body) {
		discovered := f.detector.DiscoverFeedURL(body, feedURL)
		if discovered == "" {
			return nil, fmt.Errorf("フィードを検出できませんでした: %s", feedURL)
		}
		body, _, err = f.get(ctx, discovered)
		if err != nil {
			return nil, err
		}
	}

	parser := gofeed.NewParser()
	parsedFeed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("フィードのパースに失敗しました: %w", err)
	}

	return convertItems(parsedFeed.Items), nil
}

// get はSSRF検証付きでURLをGETし、サイズ制限まで読み込んだボディと
// Content-Typeを返す。
func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, string, error) {
	if err := f.ssrfGuard.ValidateURL(rawURL); err != nil {
		return nil, "", fmt.Errorf("SSRF検証に失敗しました: %w", err)
	}

	client := f.ssrfGuard.NewSafeClient(f.timeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("リクエスト作成に失敗しました: %w", err)
	}

	req.Header.Set("User-Agent", "feeddigest/1.0 RSS Digest")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, text/html, */*")

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("HTTPリクエストに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("フィード取得が失敗しました: HTTPステータス %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		return nil, "", fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	return body, resp.Header.Get("Content-Type"), nil
}

// convertItems はgofeedのエントリをmodel.FeedEntryに変換する。
// フィード記載順を保持する。GUIDや公開日時の欠落はここでは拒否せず、
// Scrapeステージ側の検証に委ねる。
func convertItems(items []*gofeed.Item) []model.FeedEntry {
	entries := make([]model.FeedEntry, 0, len(items))

	for _, item := range items {
		if item == nil {
			continue
		}

		entry := model.FeedEntry{
			GUID:    item.GUID,
			Title:   item.Title,
			Link:    item.Link,
			Content: item.Content,
		}

		// Contentが空の場合はDescriptionを使用
		if entry.Content == "" && item.Description != "" {
			entry.Content = item.Description
		}

		// 公開日時: PublishedParsedを優先し、なければUpdatedParsedを使用
		if item.PublishedParsed != nil {
			t := *item.PublishedParsed
			entry.PublishedAt = &t
		} else if item.UpdatedParsed != nil {
			t := *item.UpdatedParsed
			entry.PublishedAt = &t
		}

		entries = append(entries, entry)
	}

	return entries
}
