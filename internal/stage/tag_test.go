package stage

import (
	"context"
	"testing"
	"time"

	"github.com/hitoshi/feeddigest/internal/model"
)

func addSummarizedPost(t *testing.T, posts *mockPostRepo, id string, postDate time.Time) {
	t.Helper()
	err := posts.Create(context.Background(), &model.Post{
		ID:       id,
		UUID:     id + "-uuid",
		Title:    id,
		URL:      "https://example.com/" + id,
		Source:   "https://example.com/feed",
		PostDate: postDate,
		Status:   model.PostStatusSummarized,
	})
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
}

func TestTagger_Run_CreatesTags(t *testing.T) {
	summaryStore := newTestStore(t, ".md")
	posts := newMockPostRepo()
	tags := newMockTagRepo(posts)

	addSummarizedPost(t, posts, "entry_1", time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC))
	if err := summaryStore.Write("entry_1", []byte("Lambdaの新機能の要約")); err != nil {
		t.Fatalf("write summary: %v", err)
	}

	invoker := &mockInvoker{
		response: "Lambda, Serverless, Observability",
		usage:    model.Usage{InputTokens: 500, OutputTokens: 20},
	}
	tagger := NewTagger(invoker, posts, tags, summaryStore, testLimiter(),
		[]string{"aws"}, 0.7, 5000, testCollector(), testLogger())

	count, err := tagger.Run(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}

	created, _ := tags.ListByPostID(context.Background(), "entry_1")
	if len(created) != 3 {
		t.Fatalf("len(tags) = %d, want 3", len(created))
	}
	names := []string{created[0].Name, created[1].Name, created[2].Name}
	want := []string{"Lambda", "Serverless", "Observability"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("tags[%d] = %q, want %q", i, names[i], want[i])
		}
	}

	post, _ := posts.FindByID(context.Background(), "entry_1")
	if post.Status != model.PostStatusTagged {
		t.Errorf("Status = %q, want %q", post.Status, model.PostStatusTagged)
	}
}

// ストップタームが大文字小文字を無視して除外されることを確認する。
func TestTagger_Run_FiltersStopTerms(t *testing.T) {
	summaryStore := newTestStore(t, ".md")
	posts := newMockPostRepo()
	tags := newMockTagRepo(posts)

	addSummarizedPost(t, posts, "entry_1", time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC))
	if err := summaryStore.Write("entry_1", []byte("要約")); err != nil {
		t.Fatalf("write summary: %v", err)
	}

	invoker := &mockInvoker{response: "Lambda, Serverless, AWS, Observability"}
	tagger := NewTagger(invoker, posts, tags, summaryStore, testLimiter(),
		[]string{"aws"}, 0.7, 5000, testCollector(), testLogger())

	if _, err := tagger.Run(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	created, _ := tags.ListByPostID(context.Background(), "entry_1")
	if len(created) != 3 {
		t.Fatalf("len(tags) = %d, want 3", len(created))
	}
	for _, tag := range created {
		if tag.Name == "AWS" || tag.Name == "aws" {
			t.Errorf("stop term %q should be filtered", tag.Name)
		}
	}
}

// 既にタグを持つPostに対してモデルを呼び出さないことを確認する。
func TestTagger_Run_SkipsAlreadyTaggedPost(t *testing.T) {
	summaryStore := newTestStore(t, ".md")
	posts := newMockPostRepo()
	tags := newMockTagRepo(posts)

	addSummarizedPost(t, posts, "entry_1", time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC))
	if err := summaryStore.Write("entry_1", []byte("要約")); err != nil {
		t.Fatalf("write summary: %v", err)
	}
	tags.tags["entry_1"] = []model.Tag{{ID: "t1", PostID: "entry_1", Name: "Lambda"}}

	invoker := &mockInvoker{response: "Serverless"}
	tagger := NewTagger(invoker, posts, tags, summaryStore, testLimiter(),
		nil, 0.7, 5000, testCollector(), testLogger())

	count, err := tagger.Run(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
	if invoker.callCount != 0 {
		t.Errorf("invoker called %d times, want 0", invoker.callCount)
	}
}

// 要約アーティファクトを欠くPostがスキップされることを確認する。
func TestTagger_Run_SkipsPostWithoutSummary(t *testing.T) {
	summaryStore := newTestStore(t, ".md")
	posts := newMockPostRepo()
	tags := newMockTagRepo(posts)

	addSummarizedPost(t, posts, "entry_1", time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC))

	invoker := &mockInvoker{response: "Lambda"}
	tagger := NewTagger(invoker, posts, tags, summaryStore, testLimiter(),
		nil, 0.7, 5000, testCollector(), testLogger())

	count, err := tagger.Run(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
	if invoker.callCount != 0 {
		t.Errorf("invoker called %d times, want 0", invoker.callCount)
	}
	// statusは変更されない
	post, _ := posts.FindByID(context.Background(), "entry_1")
	if post.Status != model.PostStatusSummarized {
		t.Errorf("Status = %q, want %q", post.Status, model.PostStatusSummarized)
	}
}

// タグ保存の失敗時にstatusが進まないことを確認する。
func TestTagger_Run_TagCreationFailure(t *testing.T) {
	summaryStore := newTestStore(t, ".md")
	posts := newMockPostRepo()
	tags := newMockTagRepo(posts)
	tags.createErr = errBackend

	addSummarizedPost(t, posts, "entry_1", time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC))
	if err := summaryStore.Write("entry_1", []byte("要約")); err != nil {
		t.Fatalf("write summary: %v", err)
	}

	invoker := &mockInvoker{response: "Lambda, Serverless"}
	tagger := NewTagger(invoker, posts, tags, summaryStore, testLimiter(),
		nil, 0.7, 5000, testCollector(), testLogger())

	count, err := tagger.Run(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
	post, _ := posts.FindByID(context.Background(), "entry_1")
	if post.Status != model.PostStatusSummarized {
		t.Errorf("Status = %q, want %q", post.Status, model.PostStatusSummarized)
	}
}

func TestParseTagNames(t *testing.T) {
	tests := []struct {
		name         string
		response     string
		stopTerms    []string
		want         []string
		wantFiltered int
	}{
		{
			name:      "基本的なカンマ区切り",
			response:  "Lambda, Serverless, Observability",
			stopTerms: nil,
			want:      []string{"Lambda", "Serverless", "Observability"},
		},
		{
			name:         "ストップタームの除外",
			response:     "Lambda, Serverless, aws, Observability",
			stopTerms:    []string{"aws"},
			want:         []string{"Lambda", "Serverless", "Observability"},
			wantFiltered: 1,
		},
		{
			name:         "ストップタームは大文字小文字を無視",
			response:     "AWS, Lambda",
			stopTerms:    []string{"aws"},
			want:         []string{"Lambda"},
			wantFiltered: 1,
		},
		{
			name:     "引用符と余分な空白の除去",
			response: `"Lambda" ,  'Serverless'`,
			want:     []string{"Lambda", "Serverless"},
		},
		{
			name:     "空要素の除外",
			response: "Lambda,, ,Serverless,",
			want:     []string{"Lambda", "Serverless"},
		},
		{
			name:     "重複の除外",
			response: "Lambda, lambda, LAMBDA, Serverless",
			want:     []string{"Lambda", "Serverless"},
		},
		{
			name:         "全候補がストップターム",
			response:     "aws, AWS",
			stopTerms:    []string{"aws"},
			want:         nil,
			wantFiltered: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, filtered := parseTagNames(tt.response, tt.stopTerms)
			if len(got) != len(tt.want) {
				t.Fatalf("names = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("names[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
			if filtered != tt.wantFiltered {
				t.Errorf("filtered = %d, want %d", filtered, tt.wantFiltered)
			}
		})
	}
}
