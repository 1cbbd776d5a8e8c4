package stage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/hitoshi/feeddigest/internal/artifact"
	"github.com/hitoshi/feeddigest/internal/llm"
	"github.com/hitoshi/feeddigest/internal/metrics"
	"github.com/hitoshi/feeddigest/internal/model"
	"github.com/hitoshi/feeddigest/internal/repository"
)

// tagSystemPrompt はタグ抽出のシステムプロンプト。
// 出力形式をカンマ区切りの用語列に固定する。
const tagSystemPrompt = "You are a helpful assistant that extracts topics from summaries of AWS blog posts. " +
	"Respond with 3 to 8 comma-separated topic terms and nothing else."

// Tagger は要約済みのPostからトピックタグを抽出するステージ。
// 要約アーティファクトを入力とし、抽出したタグの保存とstatusの更新を
// 同一トランザクションで行う。部分的なタグ集合がPostに残ることはない。
type Tagger struct {
	invoker      llm.Invoker
	posts        repository.PostRepository
	tags         repository.TagRepository
	summaryStore *artifact.Store
	limiter      *rate.Limiter
	stopTerms    []string
	temperature  float64
	maxTokens    int
	collector    metrics.PipelineCollector
	logger       *slog.Logger
}

// NewTagger はTaggerの新しいインスタンスを生成する。
// stopTermsに含まれる用語は抽出結果から除外される（大文字小文字無視）。
func NewTagger(
	invoker llm.Invoker,
	posts repository.PostRepository,
	tags repository.TagRepository,
	summaryStore *artifact.Store,
	limiter *rate.Limiter,
	stopTerms []string,
	temperature float64,
	maxTokens int,
	collector metrics.PipelineCollector,
	logger *slog.Logger,
) *Tagger {
	return &Tagger{
		invoker:      invoker,
		posts:        posts,
		tags:         tags,
		summaryStore: summaryStore,
		limiter:      limiter,
		stopTerms:    stopTerms,
		temperature:  temperature,
		maxTokens:    maxTokens,
		collector:    collector,
		logger:       logger,
	}
}

// Run は要約済み状態の全Postを新しい順にタグ付けし、タグ付けした数を返す。
// 1件の失敗は残りの処理を止めない。
func (t *Tagger) Run(ctx context.Context) (int, error) {
	start := time.Now()

	posts, err := t.posts.ListByStatus(ctx, model.PostStatusSummarized)
	if err != nil {
		return 0, err
	}

	tagged := 0
	for _, post := range posts {
		ok, err := t.tagOne(ctx, post)
		if err != nil {
			t.collector.RecordLlmCallFailure(t.invoker.ModelID())
			t.logger.Error("タグ付けに失敗しました",
				slog.String("post_id", post.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if ok {
			tagged++
		}
	}

	t.collector.RecordStageDuration("tag", time.Since(start))
	return tagged, nil
}

// tagOne は1件のPostをタグ付けする。タグ付けを実行した場合はtrueを返す。
// 要約アーティファクトを欠くPostと既にタグを持つPostはスキップする。
func (t *Tagger) tagOne(ctx context.Context, post *model.Post) (bool, error) {
	if !t.summaryStore.Exists(post.ID) {
		t.logger.Warn("要約アーティファクトを欠くPostをスキップしました",
			slog.String("post_id", post.ID),
		)
		return false, nil
	}

	// タグが既に存在するPostはモデルを呼び出さない
	count, err := t.tags.CountByPostID(ctx, post.ID)
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	summary, err := t.summaryStore.Read(post.ID)
	if err != nil {
		return false, err
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return false, fmt.Errorf("スロットリング待機が中断されました: %w", err)
	}

	response, usage, err := t.invoker.Invoke(ctx, tagSystemPrompt, string(summary), t.temperature, t.maxTokens)
	if err != nil {
		return false, err
	}
	t.collector.RecordLlmCall(t.invoker.ModelID(), usage.InputTokens, usage.OutputTokens)

	names, filtered := parseTagNames(response, t.stopTerms)
	if filtered > 0 {
		t.collector.RecordStopTermsFiltered(filtered)
	}

	now := time.Now().UTC()
	tags := make([]model.Tag, 0, len(names))
	for _, name := range names {
		tags = append(tags, model.Tag{
			ID:         uuid.New().String(),
			PostID:     post.ID,
			Name:       name,
			CreateDate: now,
		})
	}

	// 全タグの保存とstatus更新は同一トランザクション。
	// 全候補がストップタームで除外された場合もstatusはtaggedへ進める。
	if err := t.tags.CreateAllForPost(ctx, post.ID, tags); err != nil {
		return false, err
	}

	t.collector.RecordPostsTagged()
	t.logger.Info("タグ付けが完了しました",
		slog.String("post_id", post.ID),
		slog.Int("tags", len(tags)),
	)
	return true, nil
}

// parseTagNames はモデルのレスポンスからタグ名を取り出す。
// カンマで分割し、前後の空白と引用符を除去し、空文字列と
// ストップタームを除外する。除外されたストップターム数も返す。
func parseTagNames(response string, stopTerms []string) ([]string, int) {
	var names []string
	filtered := 0
	seen := map[string]bool{}

	for _, part := range strings.Split(response, ",") {
		name := strings.Trim(strings.TrimSpace(part), `"'`)
		if name == "" {
			continue
		}

		lower := strings.ToLower(name)
		if seen[lower] {
			continue
		}
		if containsTerm(stopTerms, lower) {
			filtered++
			continue
		}

		seen[lower] = true
		names = append(names, name)
	}
	return names, filtered
}

// containsTerm は小文字化済みの用語がストップタームに含まれるかを返す。
func containsTerm(stopTerms []string, lower string) bool {
	for _, term := range stopTerms {
		if strings.ToLower(term) == lower {
			return true
		}
	}
	return false
}
