package repository

import (
	"testing"

	"github.com/hitoshi/feeddigest/internal/model"
)

// TestPostgresPostRepo_ImplementsInterface はPostgresPostRepoがPostRepositoryを実装することを検証する。
func TestPostgresPostRepo_ImplementsInterface(t *testing.T) {
	// コンパイル時チェック：PostgresPostRepoがPostRepositoryを満たすことを検証
	var _ PostRepository = (*PostgresPostRepo)(nil)
}

// TestPostgresTagRepo_ImplementsInterface はPostgresTagRepoがTagRepositoryを実装することを検証する。
func TestPostgresTagRepo_ImplementsInterface(t *testing.T) {
	var _ TagRepository = (*PostgresTagRepo)(nil)
}

// TestPostgresLlmCallRepo_ImplementsInterface はPostgresLlmCallRepoがLlmCallRepositoryを実装することを検証する。
func TestPostgresLlmCallRepo_ImplementsInterface(t *testing.T) {
	var _ LlmCallRepository = (*PostgresLlmCallRepo)(nil)
}

// TestScanPost_StatusConversion はscanPostが文字列statusをPostStatusへ変換することを
// 間接的に担保するための定数値チェック。
func TestPostStatusRoundTrip(t *testing.T) {
	statuses := []model.PostStatus{
		model.PostStatusScraped,
		model.PostStatusSummarized,
		model.PostStatusTagged,
	}
	for _, s := range statuses {
		if model.PostStatus(string(s)) != s {
			t.Errorf("PostStatus %q が文字列変換で往復しない", s)
		}
	}
}
