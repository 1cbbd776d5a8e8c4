package stage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/feeddigest/internal/model"
)

func TestPurger_PurgeOne(t *testing.T) {
	rawStore := newTestStore(t, ".json")
	summaryStore := newTestStore(t, ".md")
	posts := newMockPostRepo()
	llmCalls := &mockLlmCallRepo{}

	err := posts.Create(context.Background(), &model.Post{
		ID:       "entry_1",
		UUID:     "uuid-1",
		Title:    "Entry 1",
		PostDate: time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
		Status:   model.PostStatusSummarized,
	})
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	if err := summaryStore.Write("entry_1", []byte("要約")); err != nil {
		t.Fatalf("write summary: %v", err)
	}

	llmCalls.calls = append(llmCalls.calls, model.LlmCall{ID: "call-1"})

	purger := NewPurger(posts, llmCalls, rawStore, summaryStore, testLogger())
	if err := purger.PurgeOne(context.Background(), "uuid-1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if post, _ := posts.FindByUUID(context.Background(), "uuid-1"); post != nil {
		t.Error("post should be deleted")
	}
	if summaryStore.Exists("entry_1") {
		t.Error("summary artifact should be deleted")
	}
	// 個別パージでは台帳に手を付けない
	if count, _ := llmCalls.Count(context.Background()); count != 1 {
		t.Errorf("llm call count = %d, want 1", count)
	}
}

func TestPurger_PurgeOne_NotFound(t *testing.T) {
	purger := NewPurger(newMockPostRepo(), &mockLlmCallRepo{},
		newTestStore(t, ".json"), newTestStore(t, ".md"), testLogger())

	err := purger.PurgeOne(context.Background(), "missing-uuid")
	if !errors.Is(err, model.ErrPostNotFound) {
		t.Errorf("expected ErrPostNotFound, got %v", err)
	}
}

// アーティファクトを持たないPostのパージが成功することを確認する。
func TestPurger_PurgeOne_MissingArtifacts(t *testing.T) {
	posts := newMockPostRepo()
	err := posts.Create(context.Background(), &model.Post{
		ID:       "entry_1",
		UUID:     "uuid-1",
		PostDate: time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
		Status:   model.PostStatusScraped,
	})
	if err != nil {
		t.Fatalf("create post: %v", err)
	}

	purger := NewPurger(posts, &mockLlmCallRepo{},
		newTestStore(t, ".json"), newTestStore(t, ".md"), testLogger())

	if err := purger.PurgeOne(context.Background(), "uuid-1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if post, _ := posts.FindByUUID(context.Background(), "uuid-1"); post != nil {
		t.Error("post should be deleted")
	}
}

func TestPurger_PurgeAll(t *testing.T) {
	rawStore := newTestStore(t, ".json")
	summaryStore := newTestStore(t, ".md")
	posts := newMockPostRepo()
	llmCalls := &mockLlmCallRepo{}
	llmCalls.calls = append(llmCalls.calls,
		model.LlmCall{ID: "call-1"}, model.LlmCall{ID: "call-2"})

	for i, id := range []string{"entry_1", "entry_2", "entry_3"} {
		err := posts.Create(context.Background(), &model.Post{
			ID:       id,
			UUID:     id + "-uuid",
			PostDate: time.Date(2026, 8, 20+i, 10, 0, 0, 0, time.UTC),
			Status:   model.PostStatusSummarized,
		})
		if err != nil {
			t.Fatalf("create post: %v", err)
		}
		if err := summaryStore.Write(id, []byte("要約")); err != nil {
			t.Fatalf("write summary: %v", err)
		}
	}

	purger := NewPurger(posts, llmCalls, rawStore, summaryStore, testLogger())
	deleted, err := purger.PurgeAll(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if deleted != 3 {
		t.Errorf("deleted = %d, want 3", deleted)
	}

	if count, _ := posts.Count(context.Background()); count != 0 {
		t.Errorf("post count = %d, want 0", count)
	}
	if count, _ := llmCalls.Count(context.Background()); count != 0 {
		t.Errorf("llm call count = %d, want 0", count)
	}
	ids, _ := summaryStore.List()
	if len(ids) != 0 {
		t.Errorf("summary artifacts remaining: %v", ids)
	}
}

func TestPurger_PurgeAll_Empty(t *testing.T) {
	purger := NewPurger(newMockPostRepo(), &mockLlmCallRepo{},
		newTestStore(t, ".json"), newTestStore(t, ".md"), testLogger())

	deleted, err := purger.PurgeAll(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d, want 0", deleted)
	}
}
