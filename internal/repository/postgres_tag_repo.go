package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/feeddigest/internal/model"
)

// PostgresTagRepo はPostgreSQLを使用したTagリポジトリ。
type PostgresTagRepo struct {
	db *sql.DB
}

// NewPostgresTagRepo はPostgresTagRepoを生成する。
func NewPostgresTagRepo(db *sql.DB) *PostgresTagRepo {
	return &PostgresTagRepo{db: db}
}

// CreateAllForPost はPostの全Tagを作成し、Postの状態をtaggedへ更新する。
// 両者は同一トランザクションで実行される。途中で失敗した場合は全体が
// ロールバックされ、Postは次回実行で再度タグ付け対象となる。
func (r *PostgresTagRepo) CreateAllForPost(ctx context.Context, postID string, tags []model.Tag) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	for _, tag := range tags {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO tags (id, post_id, name, create_date) VALUES ($1, $2, $3, $4)`,
			tag.ID, postID, tag.Name, tag.CreateDate,
		)
		if err != nil {
			return fmt.Errorf("Tagの作成に失敗しました: %w", err)
		}
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE posts SET status = $1 WHERE id = $2`,
		string(model.PostStatusTagged), postID)
	if err != nil {
		return fmt.Errorf("Post状態の更新に失敗しました: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新行数の取得に失敗しました: %w", err)
	}
	if rows == 0 {
		return model.ErrPostNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// CountByPostID は指定Postに紐づくTag数を返す。
func (r *PostgresTagRepo) CountByPostID(ctx context.Context, postID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tags WHERE post_id = $1`, postID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("PostのTag数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// ListByPostID は指定PostのTag一覧をcreate_date昇順で返す。
func (r *PostgresTagRepo) ListByPostID(ctx context.Context, postID string) ([]model.Tag, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, post_id, name, create_date FROM tags
		 WHERE post_id = $1 ORDER BY create_date ASC, name ASC`, postID)
	if err != nil {
		return nil, fmt.Errorf("PostのTag一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var tags []model.Tag
	for rows.Next() {
		var tag model.Tag
		if err := rows.Scan(&tag.ID, &tag.PostID, &tag.Name, &tag.CreateDate); err != nil {
			return nil, fmt.Errorf("Tag行のスキャンに失敗しました: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Tag行の読み取りに失敗しました: %w", err)
	}
	return tags, nil
}

// Count は全Tag数を返す。
func (r *PostgresTagRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tags`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("Tag数の取得に失敗しました: %w", err)
	}
	return count, nil
}
