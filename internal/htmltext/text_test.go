package htmltext

import (
	"strings"
	"testing"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "paragraphs",
			in:   `<html><body><p>First</p><p>Second</p></body></html>`,
			want: "First\nSecond",
		},
		{
			name: "head and scripts skipped",
			in:   `<html><head><title>T</title><style>p{}</style></head><body><script>x()</script><p>Body</p></body></html>`,
			want: "Body",
		},
		{
			name: "inline whitespace collapsed",
			in:   "<p>a   <em>b</em>\n  c</p>",
			want: "a b c",
		},
		{
			name: "preformatted div keeps newlines",
			in:   "<body><div style=\"white-space: pre-wrap\">Hello\nWorld\n</div></body>",
			want: "Hello\nWorld",
		},
		{
			name: "pre keeps spacing",
			in:   "<pre>  x\n  y</pre>",
			want: "x\n  y",
		},
		{
			name: "page break",
			in:   "<p>one</p><mbp:pagebreak/><p>two</p>",
			want: "one\n\n---\n\ntwo",
		},
		{
			name: "entities",
			in:   "<p>Tom &amp; Jerry</p>",
			want: "Tom & Jerry",
		},
		{
			name: "self closing br",
			in:   "<p>a<br/>b</p>",
			want: "a\nb",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract([]byte(tt.in))
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Extract() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStripTags(t *testing.T) {
	got := StripTags(`<b>bold</b> &amp; <i>plain</i> "q"`)
	if got != `bold & plain "q"` {
		t.Errorf("StripTags() = %q", got)
	}
}

func TestToMarkdown(t *testing.T) {
	got, err := ToMarkdown(`<h1>Title</h1><p>Some <strong>bold</strong> text.</p>`)
	if err != nil {
		t.Fatalf("ToMarkdown() error = %v", err)
	}
	if !strings.Contains(got, "# Title") || !strings.Contains(got, "**bold**") {
		t.Errorf("ToMarkdown() = %q", got)
	}
}
