package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/feeddigest/internal/model"
)

// PostgresLlmCallRepo はPostgreSQLを使用したLLM呼び出し台帳リポジトリ。
type PostgresLlmCallRepo struct {
	db *sql.DB
}

// NewPostgresLlmCallRepo はPostgresLlmCallRepoを生成する。
func NewPostgresLlmCallRepo(db *sql.DB) *PostgresLlmCallRepo {
	return &PostgresLlmCallRepo{db: db}
}

// Create は台帳エントリを追記する。
func (r *PostgresLlmCallRepo) Create(ctx context.Context, call *model.LlmCall) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO llm_calls (id, create_date, model_id, input_tokens, output_tokens)
		 VALUES ($1, $2, $3, $4, $5)`,
		call.ID, call.CreateDate, call.ModelID, call.InputTokens, call.OutputTokens,
	)
	if err != nil {
		return fmt.Errorf("LLM呼び出し記録の作成に失敗しました: %w", err)
	}
	return nil
}

// ListAll は全台帳エントリをcreate_date昇順で返す。
func (r *PostgresLlmCallRepo) ListAll(ctx context.Context) ([]model.LlmCall, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, create_date, model_id, input_tokens, output_tokens
		 FROM llm_calls ORDER BY create_date ASC`)
	if err != nil {
		return nil, fmt.Errorf("LLM呼び出し記録一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var calls []model.LlmCall
	for rows.Next() {
		var call model.LlmCall
		if err := rows.Scan(&call.ID, &call.CreateDate, &call.ModelID,
			&call.InputTokens, &call.OutputTokens); err != nil {
			return nil, fmt.Errorf("LLM呼び出し記録行のスキャンに失敗しました: %w", err)
		}
		calls = append(calls, call)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("LLM呼び出し記録行の読み取りに失敗しました: %w", err)
	}
	return calls, nil
}

// Count は台帳エントリ数を返す。
func (r *PostgresLlmCallRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM llm_calls`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("LLM呼び出し記録数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// DeleteAll は台帳を全削除する。全件パージ時のみ使用される。
func (r *PostgresLlmCallRepo) DeleteAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM llm_calls`)
	if err != nil {
		return fmt.Errorf("LLM呼び出し記録の全削除に失敗しました: %w", err)
	}
	return nil
}
