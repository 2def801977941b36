package pdf

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/yuanying/ebookkit/internal/ebook"
)

func TestScanText(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "single show",
			content: "BT /F1 12 Tf 50 750 Td (Hello) Tj ET",
			want:    "Hello ",
		},
		{
			name:    "two operators",
			content: "BT (One) Tj 0 -14 Td (Two) Tj ET",
			want:    "One Two ",
		},
		{
			name:    "array takes last element",
			content: "BT [(Ke) -20 (rn)] TJ ET",
			want:    "rn ",
		},
		{
			name:    "escaped parentheses",
			content: `BT (a \(b\) c) Tj ET`,
			want:    "a (b) c ",
		},
		{
			name:    "nested parentheses",
			content: "BT (x (y) z) Tj ET",
			want:    "x (y) z ",
		},
		{
			name:    "no text",
			content: "0 0 m 10 10 l S",
			want:    "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scanText([]byte(tt.content)); got != tt.want {
				t.Errorf("scanText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUnescape(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`plain`, "plain"},
		{`a\nb`, "a\nb"},
		{`\\`, `\`},
		{`\101\102`, "AB"},
		{`\7`, "\a"},
		{"split\\\nline", "splitline"},
	}
	for _, tt := range tests {
		if got := string(unescape([]byte(tt.in))); got != tt.want {
			t.Errorf("unescape(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEscape_RoundTrip(t *testing.T) {
	in := []byte(`f(x) = \y` + "\r")
	if got := unescape(escape(in)); string(got) != string(in) {
		t.Errorf("unescape(escape()) = %q, want %q", got, in)
	}
}

func TestDecodeBytes(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"utf16 with bom", []byte{0xFE, 0xFF, 0x00, 'H', 0x00, 'i'}, "Hi"},
		{"utf8", []byte("caf\xc3\xa9"), "café"},
		{"windows-1252", []byte("caf\xe9"), "café"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := decodeBytes(tt.in); got != tt.want {
				t.Errorf("decodeBytes() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCleanText(t *testing.T) {
	in := "Hello \\(x\\) \n\n--- Page 1 ---\nSecond   \n\n--- Page 2 ---\n"
	if got, want := cleanText(in), "Hello (x)\nSecond"; got != want {
		t.Errorf("cleanText() = %q, want %q", got, want)
	}
}

func TestEncodeInfoString(t *testing.T) {
	if b, ascii := encodeInfoString("Plain"); !ascii || string(b) != "Plain" {
		t.Errorf("encodeInfoString(ascii) = %q, %v", b, ascii)
	}
	b, ascii := encodeInfoString("日本")
	if ascii {
		t.Fatalf("encodeInfoString() reported non-ASCII text as ASCII")
	}
	if got := decodeBytes(b); got != "日本" {
		t.Errorf("decodeBytes(encodeInfoString()) = %q", got)
	}
}

func TestHandler_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		meta ebook.Metadata
	}{
		{
			name: "ascii",
			meta: ebook.Metadata{Title: "Test Book", Author: "Jane Doe", Publisher: "Press"},
		},
		{
			name: "unicode title",
			meta: ebook.Metadata{Title: "吾輩は猫である", Author: "夏目漱石"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out", "book.pdf")

			w := New()
			w.SetMetadata(tt.meta)
			w.SetContent("Hello (world)")
			if err := w.WriteFile(path); err != nil {
				t.Fatalf("WriteFile() error = %v", err)
			}

			r := New()
			if err := r.ReadFile(path); err != nil {
				t.Fatalf("ReadFile() error = %v", err)
			}
			meta := r.Metadata()
			if meta.Title != tt.meta.Title || meta.Author != tt.meta.Author || meta.Publisher != tt.meta.Publisher {
				t.Errorf("Metadata() = %+v, want %+v", meta, tt.meta)
			}
			if meta.Format != "PDF" {
				t.Errorf("Format = %q, want PDF", meta.Format)
			}
			if got := r.Content(); got != "Hello (world)" {
				t.Errorf("Content() = %q", got)
			}
			if r.PageCount() != 1 {
				t.Errorf("PageCount() = %d, want 1", r.PageCount())
			}
			if !r.Validate() {
				t.Errorf("Validate() = false after read")
			}
			if len(r.TOC()) != 0 || len(r.Images()) != 0 {
				t.Errorf("PDF documents carry no TOC or images")
			}
		})
	}
}

func TestWriteDocument_PageTree(t *testing.T) {
	var buf bytes.Buffer
	meta := ebook.Metadata{Title: "Tree", Author: "A"}
	if err := writeDocument(&buf, meta, "text"); err != nil {
		t.Fatalf("writeDocument() error = %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatalf("writeDocument() output lacks a PDF header")
	}

	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(buf.Bytes()), newConfiguration())
	if err != nil {
		t.Fatalf("ReadValidateAndOptimize() error = %v", err)
	}
	if ctx.PageCount != 1 {
		t.Errorf("PageCount = %d, want 1", ctx.PageCount)
	}
	if ctx.Info == nil {
		t.Fatalf("trailer has no Info dictionary")
	}
	info, err := ctx.DereferenceDict(*ctx.Info)
	if err != nil {
		t.Fatalf("DereferenceDict(Info) error = %v", err)
	}
	if got := infoString(ctx, info, "Title"); got != "Tree" {
		t.Errorf("Info Title = %q, want Tree", got)
	}
}

func TestHandler_WriteWithoutMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bare.pdf")
	w := New()
	w.SetContent("Body")
	if err := w.WriteFile(path); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	r := New()
	if err := r.ReadFile(path); err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if r.Metadata().Title != "" {
		t.Errorf("Title = %q, want empty", r.Metadata().Title)
	}
	r.Repair()
	if r.Metadata().Title != ebook.DefaultTitle {
		t.Errorf("Repair() title = %q", r.Metadata().Title)
	}
}

func TestHandler_AddChapter(t *testing.T) {
	h := New()
	h.SetContent("one")
	h.AddChapter("ignored", "two")
	h.AddImage("a.png", []byte{1})
	if got := h.Content(); got != "one\n\ntwo" {
		t.Errorf("Content() = %q", got)
	}
	if len(h.Images()) != 0 {
		t.Errorf("AddImage() should be ignored")
	}
}

func TestHandler_ReadErrors(t *testing.T) {
	dir := t.TempDir()

	h := New()
	if err := h.ReadFile(filepath.Join(dir, "missing.pdf")); !errors.Is(err, ebook.ErrIO) {
		t.Errorf("ReadFile(missing) error = %v, want ErrIO", err)
	}

	garbage := filepath.Join(dir, "garbage.pdf")
	if err := ebook.WriteAll(garbage, []byte(strings.Repeat("not a pdf ", 20))); err != nil {
		t.Fatal(err)
	}
	if err := h.ReadFile(garbage); !errors.Is(err, ebook.ErrPDF) {
		t.Errorf("ReadFile(garbage) error = %v, want ErrPDF", err)
	}
	if h.Validate() {
		t.Errorf("Validate() = true without a document")
	}
}

func TestHandler_ConvertToNotSupported(t *testing.T) {
	err := New().ConvertTo(ebook.FormatTXT, filepath.Join(t.TempDir(), "x.txt"))
	if !errors.Is(err, ebook.ErrNotSupported) {
		t.Errorf("ConvertTo() error = %v, want ErrNotSupported", err)
	}
}
