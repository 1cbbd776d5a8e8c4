// Package stage はフィード取り込みから要約・タグ付け・パージまでの
// パイプライン各ステージを実装する。各ステージは独立に起動可能で、
// Postのstatus列とアーティファクトの存在を手がかりに前回の続きから
// 安全に再開できる。
package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/hitoshi/feeddigest/internal/artifact"
	"github.com/hitoshi/feeddigest/internal/feed"
	"github.com/hitoshi/feeddigest/internal/metrics"
	"github.com/hitoshi/feeddigest/internal/model"
	"github.com/hitoshi/feeddigest/internal/repository"
	"github.com/hitoshi/feeddigest/internal/security"
)

// rawPayload はrawストアに保存される未処理ペイロードの形式。
// Contentはサニタイズ済みHTML。要約ステージがここから本文を取り出す。
type rawPayload struct {
	Title    string    `json:"title"`
	URL      string    `json:"url"`
	Source   string    `json:"source"`
	PostDate time.Time `json:"post_date"`
	Content  string    `json:"content"`
}

// Scraper は設定されたフィード群からエントリを取り込むステージ。
// エントリごとにrawペイロードを保存しPost行を作成する。
// GUIDを冪等キーとするため、同じフィードを何度実行しても重複は生じない。
type Scraper struct {
	source    feed.Source
	sanitizer security.ContentSanitizerService
	posts     repository.PostRepository
	rawStore  *artifact.Store
	limiter   *rate.Limiter
	collector metrics.PipelineCollector
	logger    *slog.Logger
}

// NewScraper はScraperの新しいインスタンスを生成する。
// limiterはフィード取得間のスロットリングを行う。
func NewScraper(
	source feed.Source,
	sanitizer security.ContentSanitizerService,
	posts repository.PostRepository,
	rawStore *artifact.Store,
	limiter *rate.Limiter,
	collector metrics.PipelineCollector,
	logger *slog.Logger,
) *Scraper {
	return &Scraper{
		source:    source,
		sanitizer: sanitizer,
		posts:     posts,
		rawStore:  rawStore,
		limiter:   limiter,
		collector: collector,
		logger:    logger,
	}
}

// Run は全フィードを順に取り込み、新規に作成したPost数を返す。
// 1つのフィードの失敗は他のフィードの処理を止めない。
// フィード内でも1エントリの失敗は残りのエントリの処理を止めない。
func (s *Scraper) Run(ctx context.Context, feedURLs []string) (int, error) {
	start := time.Now()
	created := 0

	for _, feedURL := range feedURLs {
		if err := s.limiter.Wait(ctx); err != nil {
			return created, fmt.Errorf("スロットリング待機が中断されました: %w", err)
		}

		entries, err := s.source.Fetch(ctx, feedURL)
		if err != nil {
			s.collector.RecordFeedFetchFailure(feedURL)
			s.logger.Error("フィードの取得に失敗しました",
				slog.String("feed_url", feedURL),
				slog.String("error", err.Error()),
			)
			continue
		}
		s.collector.RecordFeedFetchSuccess(feedURL)

		for _, entry := range entries {
			ok, err := s.scrapeEntry(ctx, feedURL, entry)
			if err != nil {
				s.logger.Error("エントリの取り込みに失敗しました",
					slog.String("feed_url", feedURL),
					slog.String("guid", entry.GUID),
					slog.String("error", err.Error()),
				)
				continue
			}
			if ok {
				created++
			}
		}

		s.logger.Info("フィードの取り込みが完了しました",
			slog.String("feed_url", feedURL),
			slog.Int("entries", len(entries)),
		)
	}

	s.collector.RecordStageDuration("scrape", time.Since(start))
	return created, nil
}

// scrapeEntry は1エントリを取り込む。新規Postを作成した場合はtrueを返す。
// 必須フィールドを欠くエントリは拒否し、既存IDのエントリはスキップする。
func (s *Scraper) scrapeEntry(ctx context.Context, feedURL string, entry model.FeedEntry) (bool, error) {
	if entry.GUID == "" {
		s.collector.RecordEntryRejected("missing_guid")
		s.logger.Warn("GUIDを欠くエントリを拒否しました",
			slog.String("feed_url", feedURL),
			slog.String("title", entry.Title),
		)
		return false, nil
	}
	if entry.PublishedAt == nil {
		s.collector.RecordEntryRejected("missing_published_at")
		s.logger.Warn("公開日時を欠くエントリを拒否しました",
			slog.String("feed_url", feedURL),
			slog.String("guid", entry.GUID),
		)
		return false, nil
	}

	id := model.NormalizeID(entry.GUID)

	existing, err := s.posts.FindByID(ctx, id)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	payload := rawPayload{
		Title:    entry.Title,
		URL:      entry.Link,
		Source:   feedURL,
		PostDate: entry.PublishedAt.UTC(),
		Content:  s.sanitizer.Sanitize(entry.Content),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("rawペイロードのエンコードに失敗しました: %w", err)
	}

	// ペイロード保存が先、Post行の作成が後。Post作成に失敗しても
	// 残ったペイロードは次回実行時の上書きで回収される。
	if err := s.rawStore.Write(id, data); err != nil {
		return false, err
	}

	post := &model.Post{
		ID:          id,
		UUID:        uuid.New().String(),
		Title:       entry.Title,
		URL:         entry.Link,
		Source:      feedURL,
		PostDate:    entry.PublishedAt.UTC(),
		CreateDate:  time.Now().UTC(),
		Status:      model.PostStatusScraped,
		RawLocation: s.rawStore.Path(id),
	}
	if err := s.posts.Create(ctx, post); err != nil {
		return false, err
	}

	s.collector.RecordPostScraped()
	s.logger.Info("Postを取り込みました",
		slog.String("post_id", id),
		slog.String("title", entry.Title),
	)
	return true, nil
}
