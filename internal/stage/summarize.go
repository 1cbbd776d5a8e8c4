package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/feeddigest/internal/artifact"
	"github.com/hitoshi/feeddigest/internal/llm"
	"github.com/hitoshi/feeddigest/internal/metrics"
	"github.com/hitoshi/feeddigest/internal/model"
	"github.com/hitoshi/feeddigest/internal/repository"
	"github.com/hitoshi/feeddigest/internal/security"
)

// summarySystemPrompt は要約生成のシステムプロンプト。
const summarySystemPrompt = "You are a helpful assistant that summarizes AWS blog posts and RSS feeds."

// Summarizer はrawペイロードをモデルで要約するステージ。
// 要約アーティファクトの存在をチェックポイントとし、既に要約済みの
// Postに対して二度モデル呼び出しを行うことはない。
type Summarizer struct {
	invoker      llm.Invoker
	posts        repository.PostRepository
	rawStore     *artifact.Store
	summaryStore *artifact.Store
	sanitizer    security.ContentSanitizerService
	limiter      *rate.Limiter
	temperature  float64
	maxTokens    int
	collector    metrics.PipelineCollector
	logger       *slog.Logger
}

// NewSummarizer はSummarizerの新しいインスタンスを生成する。
// limiterはモデル呼び出し間のスロットリングを行う。
func NewSummarizer(
	invoker llm.Invoker,
	posts repository.PostRepository,
	rawStore *artifact.Store,
	summaryStore *artifact.Store,
	sanitizer security.ContentSanitizerService,
	limiter *rate.Limiter,
	temperature float64,
	maxTokens int,
	collector metrics.PipelineCollector,
	logger *slog.Logger,
) *Summarizer {
	return &Summarizer{
		invoker:      invoker,
		posts:        posts,
		rawStore:     rawStore,
		summaryStore: summaryStore,
		sanitizer:    sanitizer,
		limiter:      limiter,
		temperature:  temperature,
		maxTokens:    maxTokens,
		collector:    collector,
		logger:       logger,
	}
}

// Run はディスク上の全rawペイロードを走査して要約し、要約した数を返す。
// 1件の失敗は残りの処理を止めない。失敗したPostのrawペイロードは
// 削除されず、次回実行時に再試行される。
func (s *Summarizer) Run(ctx context.Context) (int, error) {
	start := time.Now()

	ids, err := s.rawStore.List()
	if err != nil {
		return 0, err
	}

	summarized := 0
	for _, id := range ids {
		ok, err := s.summarizeOne(ctx, id)
		if err != nil {
			s.collector.RecordLlmCallFailure(s.invoker.ModelID())
			s.logger.Error("要約に失敗しました",
				slog.String("post_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		if ok {
			summarized++
		}
	}

	s.collector.RecordStageDuration("summarize", time.Since(start))
	return summarized, nil
}

// summarizeOne は1件のrawペイロードを要約する。Postを要約済みへ進めた
// 場合はtrueを返す。要約アーティファクトが既に存在する場合はモデルを
// 呼び出さず、状態の更新とrawペイロードの削除のみを行う。
func (s *Summarizer) summarizeOne(ctx context.Context, id string) (bool, error) {
	post, err := s.posts.FindByID(ctx, id)
	if err != nil {
		return false, err
	}
	if post == nil {
		// Post行を持たないrawペイロード。取り込みが中断された残骸であり、
		// 次回のScrape実行で上書きされるまで放置する。
		s.logger.Warn("Post行を持たないrawペイロードをスキップしました",
			slog.String("post_id", id),
		)
		return false, nil
	}

	// 要約済みチェックポイント。モデル呼び出しの重複支出を防ぐ。
	if s.summaryStore.Exists(id) {
		s.logger.Info("要約が既に存在するためスキップします",
			slog.String("post_id", id),
		)
		if post.Status == model.PostStatusScraped {
			if err := s.posts.UpdateStatus(ctx, id, model.PostStatusSummarized); err != nil {
				return false, err
			}
		}
		if err := s.rawStore.Delete(id); err != nil {
			return false, err
		}
		return true, nil
	}

	data, err := s.rawStore.Read(id)
	if err != nil {
		return false, err
	}
	var payload rawPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return false, fmt.Errorf("rawペイロードのデコードに失敗しました: %w", err)
	}

	query := fmt.Sprintf("Title: %s\n\n%s",
		payload.Title, s.sanitizer.PlainText(payload.Content))

	if err := s.limiter.Wait(ctx); err != nil {
		return false, fmt.Errorf("スロットリング待機が中断されました: %w", err)
	}

	summary, usage, err := s.invoker.Invoke(ctx, summarySystemPrompt, query, s.temperature, s.maxTokens)
	if err != nil {
		return false, err
	}
	s.collector.RecordLlmCall(s.invoker.ModelID(), usage.InputTokens, usage.OutputTokens)

	// 要約の書き込みが成功した後でのみrawペイロードを削除する。
	// この順序により、クラッシュしても要約の取りこぼしは発生しない。
	if err := s.summaryStore.Write(id, []byte(summary)); err != nil {
		return false, err
	}
	if err := s.posts.UpdateStatus(ctx, id, model.PostStatusSummarized); err != nil {
		return false, err
	}
	if err := s.rawStore.Delete(id); err != nil {
		return false, err
	}

	s.logger.Info("要約が完了しました",
		slog.String("post_id", id),
		slog.Int("input_tokens", usage.InputTokens),
		slog.Int("output_tokens", usage.OutputTokens),
	)
	return true, nil
}
