// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/feeddigest/internal/model"
)

// PostRepository はPostデータの永続化インターフェース。
type PostRepository interface {
	// FindByID は指定ID（正規化スラグ）のPostを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Post, error)

	// FindByUUID は外部公開用UUIDでPostを検索する。見つからない場合はnilを返す。
	FindByUUID(ctx context.Context, uuid string) (*model.Post, error)

	// Create はPostを作成する。同一IDのPostが既に存在する場合はエラーを返す。
	Create(ctx context.Context, post *model.Post) error

	// UpdateStatus はPostのパイプライン状態を更新する。
	UpdateStatus(ctx context.Context, id string, status model.PostStatus) error

	// ListByStatus は指定状態のPostをpost_date降順で取得する。
	ListByStatus(ctx context.Context, status model.PostStatus) ([]*model.Post, error)

	// List はPost一覧をpost_date降順でカーソルベースページネーションを使用して取得する。
	// cursorがゼロ値の場合は先頭から取得する。
	List(ctx context.Context, cursor time.Time, limit int) ([]*model.Post, error)

	// ListAll は全Postをpost_date降順で取得する。一括パージで使用する。
	ListAll(ctx context.Context) ([]*model.Post, error)

	// SearchByTagName はタグ名の部分一致（大文字小文字無視）でPostを検索する。
	// 結果はpost_date降順で返す。
	SearchByTagName(ctx context.Context, substr string, limit int) ([]*model.Post, error)

	// DeleteByID は指定IDのPostを削除する。関連するTagはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error

	// Count は全Post数を返す。
	Count(ctx context.Context) (int, error)
}

// TagRepository はTagデータの永続化インターフェース。
type TagRepository interface {
	// CreateAllForPost はPostの全Tagを作成し、Postの状態をtaggedへ更新する。
	// 両者は同一トランザクションで実行され、部分的なタグ集合は残らない。
	CreateAllForPost(ctx context.Context, postID string, tags []model.Tag) error

	// CountByPostID は指定Postに紐づくTag数を返す。
	CountByPostID(ctx context.Context, postID string) (int, error)

	// ListByPostID は指定PostのTag一覧をcreate_date昇順で返す。
	ListByPostID(ctx context.Context, postID string) ([]model.Tag, error)

	// Count は全Tag数を返す。
	Count(ctx context.Context) (int, error)
}

// LlmCallRepository はLLM呼び出し台帳の永続化インターフェース。
type LlmCallRepository interface {
	// Create は台帳エントリを追記する。
	Create(ctx context.Context, call *model.LlmCall) error

	// ListAll は全台帳エントリをcreate_date昇順で返す。
	ListAll(ctx context.Context) ([]model.LlmCall, error)

	// Count は台帳エントリ数を返す。
	Count(ctx context.Context) (int, error)

	// DeleteAll は台帳を全削除する。全件パージ時のみ使用される。
	DeleteAll(ctx context.Context) error
}
