package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/feeddigest/internal/model"
)

// postColumns はpostsテーブルのSELECT対象カラム。
const postColumns = `id, uuid, title, url, source, post_date, create_date, status, raw_location`

// PostgresPostRepo はPostgreSQLを使用したPostリポジトリ。
type PostgresPostRepo struct {
	db *sql.DB
}

// NewPostgresPostRepo はPostgresPostRepoを生成する。
func NewPostgresPostRepo(db *sql.DB) *PostgresPostRepo {
	return &PostgresPostRepo{db: db}
}

// scanPost は1行をmodel.Postへスキャンする。
func scanPost(row interface{ Scan(...any) error }) (*model.Post, error) {
	post := &model.Post{}
	var status string
	err := row.Scan(
		&post.ID, &post.UUID, &post.Title, &post.URL, &post.Source,
		&post.PostDate, &post.CreateDate, &status, &post.RawLocation,
	)
	if err != nil {
		return nil, err
	}
	post.Status = model.PostStatus(status)
	return post, nil
}

// FindByID は指定IDのPostを取得する。見つからない場合はnilを返す。
func (r *PostgresPostRepo) FindByID(ctx context.Context, id string) (*model.Post, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE id = $1`, id)

	post, err := scanPost(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Postの取得に失敗しました: %w", err)
	}
	return post, nil
}

// FindByUUID は外部公開用UUIDでPostを検索する。見つからない場合はnilを返す。
func (r *PostgresPostRepo) FindByUUID(ctx context.Context, uuid string) (*model.Post, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE uuid = $1`, uuid)

	post, err := scanPost(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("UUIDによるPostの検索に失敗しました: %w", err)
	}
	return post, nil
}

// Create はPostを作成する。
func (r *PostgresPostRepo) Create(ctx context.Context, post *model.Post) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO posts (id, uuid, title, url, source, post_date, create_date, status, raw_location)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		post.ID, post.UUID, post.Title, post.URL, post.Source,
		post.PostDate, post.CreateDate, string(post.Status), post.RawLocation,
	)
	if err != nil {
		return fmt.Errorf("Postの作成に失敗しました: %w", err)
	}
	return nil
}

// UpdateStatus はPostのパイプライン状態を更新する。
func (r *PostgresPostRepo) UpdateStatus(ctx context.Context, id string, status model.PostStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE posts SET status = $1 WHERE id = $2`, string(status), id)
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
	return nil
}

// ListByStatus は指定状態のPostをpost_date降順で取得する。
func (r *PostgresPostRepo) ListByStatus(ctx context.Context, status model.PostStatus) ([]*model.Post, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE status = $1 ORDER BY post_date DESC`,
		string(status))
	if err != nil {
		return nil, fmt.Errorf("状態によるPost一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectPosts(rows)
}

// List はPost一覧をpost_date降順でカーソルベースページネーションを使用して取得する。
func (r *PostgresPostRepo) List(ctx context.Context, cursor time.Time, limit int) ([]*model.Post, error) {
	var rows *sql.Rows
	var err error

	if cursor.IsZero() {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+postColumns+` FROM posts ORDER BY post_date DESC LIMIT $1`, limit)
	} else {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+postColumns+` FROM posts WHERE post_date < $1 ORDER BY post_date DESC LIMIT $2`,
			cursor, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("Post一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectPosts(rows)
}

// ListAll は全Postをpost_date降順で取得する。
func (r *PostgresPostRepo) ListAll(ctx context.Context) ([]*model.Post, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+postColumns+` FROM posts ORDER BY post_date DESC`)
	if err != nil {
		return nil, fmt.Errorf("全Post一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectPosts(rows)
}

// SearchByTagName はタグ名の部分一致（大文字小文字無視）でPostを検索する。
func (r *PostgresPostRepo) SearchByTagName(ctx context.Context, substr string, limit int) ([]*model.Post, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT p.id, p.uuid, p.title, p.url, p.source, p.post_date, p.create_date, p.status, p.raw_location
		 FROM posts p
		 JOIN tags t ON t.post_id = p.id
		 WHERE t.name ILIKE '%' || $1 || '%'
		 ORDER BY p.post_date DESC
		 LIMIT $2`,
		substr, limit)
	if err != nil {
		return nil, fmt.Errorf("タグによるPost検索に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectPosts(rows)
}

// DeleteByID は指定IDのPostを削除する。関連するTagはCASCADE削除される。
func (r *PostgresPostRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("Postの削除に失敗しました: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("削除行数の取得に失敗しました: %w", err)
	}
	if rows == 0 {
		return model.ErrPostNotFound
	}
	return nil
}

// Count は全Post数を返す。
func (r *PostgresPostRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("Post数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// collectPosts はrowsから全Postを読み出す。
func collectPosts(rows *sql.Rows) ([]*model.Post, error) {
	var posts []*model.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("Post行のスキャンに失敗しました: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Post行の読み取りに失敗しました: %w", err)
	}
	return posts, nil
}
