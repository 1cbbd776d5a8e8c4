// Package report はLLM呼び出し台帳からのコスト集計と全体統計を提供する。
package report

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/feeddigest/internal/llm"
	"github.com/hitoshi/feeddigest/internal/model"
	"github.com/hitoshi/feeddigest/internal/repository"
)

// CallCost は1件のLLM呼び出しとその算出コスト。
type CallCost struct {
	CallID       string
	CreateDate   time.Time
	ModelID      string
	InputTokens  int
	OutputTokens int
	CostUSD      float64

	// Unpriced は価格表に載っていないモデルの呼び出しでtrueになる。
	// その場合CostUSDはゼロで、合計には含まれない。
	Unpriced bool
}

// CostReport は全LLM呼び出しのコスト内訳と総額。
type CostReport struct {
	Calls    []CallCost
	TotalUSD float64
}

// Stats はシステム全体の統計。
type Stats struct {
	Posts        int     `json:"posts"`
	Tags         int     `json:"tags"`
	LlmCalls     int     `json:"llm_calls"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}

// Service は台帳と各リポジトリを横断する読み取り専用の集計サービス。
type Service struct {
	posts    repository.PostRepository
	tags     repository.TagRepository
	llmCalls repository.LlmCallRepository
	prices   llm.PriceTable
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	posts repository.PostRepository,
	tags repository.TagRepository,
	llmCalls repository.LlmCallRepository,
	prices llm.PriceTable,
) *Service {
	return &Service{
		posts:    posts,
		tags:     tags,
		llmCalls: llmCalls,
		prices:   prices,
	}
}

// Costs は台帳の全呼び出しを発生順に並べたコスト内訳を返す。
// 価格表に載っていないモデルの呼び出しはUnpricedとして報告され、
// 総額の計算からは除外される。
func (s *Service) Costs(ctx context.Context) (*CostReport, error) {
	calls, err := s.llmCalls.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	report := &CostReport{Calls: make([]CallCost, 0, len(calls))}
	for _, call := range calls {
		entry := CallCost{
			CallID:       call.ID,
			CreateDate:   call.CreateDate,
			ModelID:      call.ModelID,
			InputTokens:  call.InputTokens,
			OutputTokens: call.OutputTokens,
		}

		cost, err := s.prices.Cost(call.ModelID, call.InputTokens, call.OutputTokens)
		switch {
		case err == nil:
			entry.CostUSD = cost
			report.TotalUSD += cost
		case errors.Is(err, model.ErrUnknownModel):
			entry.Unpriced = true
		default:
			return nil, err
		}

		report.Calls = append(report.Calls, entry)
	}
	return report, nil
}

// Stats はPost数、Tag数、LLM呼び出し数、総コストを返す。
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	postCount, err := s.posts.Count(ctx)
	if err != nil {
		return nil, err
	}
	tagCount, err := s.tags.Count(ctx)
	if err != nil {
		return nil, err
	}

	costs, err := s.Costs(ctx)
	if err != nil {
		return nil, err
	}

	return &Stats{
		Posts:        postCount,
		Tags:         tagCount,
		LlmCalls:     len(costs.Calls),
		TotalCostUSD: costs.TotalUSD,
	}, nil
}
