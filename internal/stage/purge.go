package stage

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/hitoshi/feeddigest/internal/artifact"
	"github.com/hitoshi/feeddigest/internal/model"
	"github.com/hitoshi/feeddigest/internal/repository"
)

// Purger はPostとその関連データの削除を行う。
// アーティファクトを先に削除し、Post行の削除を最後に行う。
// この順序により、途中でクラッシュしても孤児アーティファクトは残らない。
type Purger struct {
	posts        repository.PostRepository
	llmCalls     repository.LlmCallRepository
	rawStore     *artifact.Store
	summaryStore *artifact.Store
	logger       *slog.Logger
}

// NewPurger はPurgerの新しいインスタンスを生成する。
func NewPurger(
	posts repository.PostRepository,
	llmCalls repository.LlmCallRepository,
	rawStore *artifact.Store,
	summaryStore *artifact.Store,
	logger *slog.Logger,
) *Purger {
	return &Purger{
		posts:        posts,
		llmCalls:     llmCalls,
		rawStore:     rawStore,
		summaryStore: summaryStore,
		logger:       logger,
	}
}

// PurgeOne は外部公開用UUIDで指定された1件のPostを削除する。
// 関連するTagはCASCADE削除される。指定UUIDのPostが存在しない場合は
// model.ErrPostNotFoundを返す。LLM呼び出し台帳には手を付けない。
func (p *Purger) PurgeOne(ctx context.Context, postUUID string) error {
	post, err := p.posts.FindByUUID(ctx, postUUID)
	if err != nil {
		return err
	}
	if post == nil {
		return model.ErrPostNotFound
	}
	return p.purgePost(ctx, post)
}

// PurgeAll は全PostとLLM呼び出し台帳を削除する。
// Postは新しい順に削除され、削除した数を返す。
// 1件の失敗は残りの削除を止めない。
func (p *Purger) PurgeAll(ctx context.Context) (int, error) {
	posts, err := p.posts.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, post := range posts {
		if err := p.purgePost(ctx, post); err != nil {
			p.logger.Error("Postの削除に失敗しました",
				slog.String("post_id", post.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		deleted++
	}

	if err := p.llmCalls.DeleteAll(ctx); err != nil {
		return deleted, err
	}

	return deleted, nil
}

// purgePost は1件のPostのアーティファクトと行を削除する。
// パイプラインの進行段階によってはどちらのアーティファクトも
// 存在しないため、存在しないアーティファクトの削除は正常として扱う。
func (p *Purger) purgePost(ctx context.Context, post *model.Post) error {
	if err := p.summaryStore.Delete(post.ID); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := p.rawStore.Delete(post.ID); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	// Post行の削除は最後。ここまでに失敗した場合、Post行は残り
	// 再実行で同じ削除を安全にやり直せる。
	if err := p.posts.DeleteByID(ctx, post.ID); err != nil {
		return err
	}

	p.logger.Info("Postを削除しました",
		slog.String("post_id", post.ID),
		slog.String("uuid", post.UUID),
	)
	return nil
}
