// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PipelineCollector はパイプラインメトリクス収集のインターフェース。
// 各ステージから利用する。
type PipelineCollector interface {
	RecordFeedFetchSuccess(feedURL string)
	RecordFeedFetchFailure(feedURL string)
	RecordPostScraped()
	RecordEntryRejected(reason string)
	RecordLlmCall(modelID string, inputTokens, outputTokens int)
	RecordLlmCallFailure(modelID string)
	RecordStageDuration(stage string, duration time.Duration)
	RecordPostsTagged()
	RecordStopTermsFiltered(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	feedFetchSuccess  prometheus.Counter
	feedFetchFail     prometheus.Counter
	postsScraped      prometheus.Counter
	entriesRejected   *prometheus.CounterVec
	llmCalls          *prometheus.CounterVec
	llmInputTokens    *prometheus.CounterVec
	llmOutputTokens   *prometheus.CounterVec
	llmCallFailures   *prometheus.CounterVec
	stageDuration     *prometheus.HistogramVec
	postsTagged       prometheus.Counter
	stopTermsFiltered prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		feedFetchSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feeddigest_feed_fetch_success_total",
			Help: "フィードフェッチ成功の合計数",
		}),
		feedFetchFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feeddigest_feed_fetch_fail_total",
			Help: "フィードフェッチ失敗の合計数",
		}),
		postsScraped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feeddigest_posts_scraped_total",
			Help: "取り込まれたPostの合計数",
		}),
		entriesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feeddigest_entries_rejected_total",
			Help: "拒否されたフィードエントリの理由別合計数",
		}, []string{"reason"}),
		llmCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feeddigest_llm_calls_total",
			Help: "モデル呼び出し成功のモデル別合計数",
		}, []string{"model_id"}),
		llmInputTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feeddigest_llm_input_tokens_total",
			Help: "モデル呼び出しの入力トークンのモデル別合計数",
		}, []string{"model_id"}),
		llmOutputTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feeddigest_llm_output_tokens_total",
			Help: "モデル呼び出しの出力トークンのモデル別合計数",
		}, []string{"model_id"}),
		llmCallFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feeddigest_llm_call_failures_total",
			Help: "モデル呼び出し失敗のモデル別合計数",
		}, []string{"model_id"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "feeddigest_stage_duration_seconds",
			Help:    "各ステージ実行の所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		postsTagged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feeddigest_posts_tagged_total",
			Help: "タグ付けが完了したPostの合計数",
		}),
		stopTermsFiltered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feeddigest_stop_terms_filtered_total",
			Help: "ストップタームとして除外されたタグ候補の合計数",
		}),
	}

	reg.MustRegister(
		c.feedFetchSuccess,
		c.feedFetchFail,
		c.postsScraped,
		c.entriesRejected,
		c.llmCalls,
		c.llmInputTokens,
		c.llmOutputTokens,
		c.llmCallFailures,
		c.stageDuration,
		c.postsTagged,
		c.stopTermsFiltered,
	)

	return c
}

// RecordFeedFetchSuccess はフィードフェッチ成功を記録する。
func (c *Collector) RecordFeedFetchSuccess(feedURL string) {
	c.feedFetchSuccess.Inc()
}

// RecordFeedFetchFailure はフィードフェッチ失敗を記録する。
func (c *Collector) RecordFeedFetchFailure(feedURL string) {
	c.feedFetchFail.Inc()
}

// RecordPostScraped はPostの取り込みを記録する。
func (c *Collector) RecordPostScraped() {
	c.postsScraped.Inc()
}

// RecordEntryRejected はフィードエントリの拒否を理由付きで記録する。
func (c *Collector) RecordEntryRejected(reason string) {
	c.entriesRejected.WithLabelValues(reason).Inc()
}

// RecordLlmCall はモデル呼び出し成功とトークン使用量を記録する。
func (c *Collector) RecordLlmCall(modelID string, inputTokens, outputTokens int) {
	c.llmCalls.WithLabelValues(modelID).Inc()
	c.llmInputTokens.WithLabelValues(modelID).Add(float64(inputTokens))
	c.llmOutputTokens.WithLabelValues(modelID).Add(float64(outputTokens))
}

// RecordLlmCallFailure はモデル呼び出し失敗を記録する。
func (c *Collector) RecordLlmCallFailure(modelID string) {
	c.llmCallFailures.WithLabelValues(modelID).Inc()
}

// RecordStageDuration はステージ実行の所要時間を記録する。
func (c *Collector) RecordStageDuration(stage string, duration time.Duration) {
	c.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordPostsTagged はタグ付け完了を記録する。
func (c *Collector) RecordPostsTagged() {
	c.postsTagged.Inc()
}

// RecordStopTermsFiltered はストップタームによる除外数を記録する。
func (c *Collector) RecordStopTermsFiltered(count int) {
	c.stopTermsFiltered.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
