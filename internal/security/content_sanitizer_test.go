package security

import (
	"strings"
	"testing"
)

func TestSanitize_RemovesDangerousTags(t *testing.T) {
	s := NewContentSanitizer()

	tests := []struct {
		name           string
		input          string
		wantContains   []string
		wantNotContain []string
	}{
		{
			name:           "scriptタグ除去",
			input:          `<p>hello</p><script>alert("xss")</script>`,
			wantContains:   []string{"<p>hello</p>"},
			wantNotContain: []string{"<script>", "alert"},
		},
		{
			name:           "iframeタグ除去",
			input:          `<p>text</p><iframe src="https://evil.example"></iframe>`,
			wantContains:   []string{"<p>text</p>"},
			wantNotContain: []string{"<iframe"},
		},
		{
			name:           "onclickイベント属性除去",
			input:          `<p onclick="steal()">click me</p>`,
			wantContains:   []string{"<p>click me</p>"},
			wantNotContain: []string{"onclick"},
		},
		{
			name:         "preとcodeは保持",
			input:        "<pre><code>func main() {}</code></pre>",
			wantContains: []string{"<pre>", "<code>", "func main() {}"},
		},
		{
			name:           "リンクにtarget=_blankとrelを付与",
			input:          `<a href="https://example.com/post">post</a>`,
			wantContains:   []string{`href="https://example.com/post"`, `target="_blank"`, "noopener"},
			wantNotContain: []string{"javascript:"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Sanitize(tt.input)
			for _, want := range tt.wantContains {
				if !strings.Contains(got, want) {
					t.Errorf("Sanitize(%q) = %q, %q を含まない", tt.input, got, want)
				}
			}
			for _, notWant := range tt.wantNotContain {
				if strings.Contains(got, notWant) {
					t.Errorf("Sanitize(%q) = %q, %q を含んでいる", tt.input, got, notWant)
				}
			}
		})
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	s := NewContentSanitizer()
	input := `<p>hello <strong>world</strong></p><script>x()</script>`

	once := s.Sanitize(input)
	twice := s.Sanitize(once)
	if once != twice {
		t.Errorf("Sanitizeが冪等でない: %q != %q", once, twice)
	}
}

func TestPlainText_StripsAllTags(t *testing.T) {
	s := NewContentSanitizer()

	got := s.PlainText(`<p>Lambda is <strong>serverless</strong> compute.</p>`)
	if strings.Contains(got, "<") {
		t.Errorf("PlainText = %q, タグが残っている", got)
	}
	if !strings.Contains(got, "Lambda is") || !strings.Contains(got, "serverless") {
		t.Errorf("PlainText = %q, テキスト内容が失われている", got)
	}
}

func TestPlainText_EmptyInput(t *testing.T) {
	s := NewContentSanitizer()
	if got := s.PlainText(""); got != "" {
		t.Errorf("PlainText(\"\") = %q, want \"\"", got)
	}
}
