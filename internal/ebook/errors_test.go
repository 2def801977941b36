package ebook

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestError_Is(t *testing.T) {
	err := Errorf(KindNotSupported, "conversion from %s to %s", "epub", "mobi")
	wrapped := fmt.Errorf("convert: %w", err)

	if !errors.Is(wrapped, ErrNotSupported) {
		t.Errorf("errors.Is(wrapped, ErrNotSupported) = false")
	}
	if errors.Is(wrapped, ErrParse) {
		t.Errorf("errors.Is(wrapped, ErrParse) = true")
	}
	if k, ok := KindOf(wrapped); !ok || k != KindNotSupported {
		t.Errorf("KindOf() = %v, %v", k, ok)
	}
}

func TestWrap(t *testing.T) {
	if Wrap(KindIO, nil, "noop") != nil {
		t.Fatal("Wrap(nil) should be nil")
	}
	err := Wrap(KindZip, io.ErrUnexpectedEOF, "open %s", "a.epub")
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("wrapped cause lost")
	}
	if !errors.Is(err, ErrZip) {
		t.Errorf("kind lost")
	}
	want := "ZIP error: open a.epub: unexpected EOF"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestDescribe(t *testing.T) {
	err := Errorf(KindInvalidStructure, "file too small")
	got := Describe(err)
	if !strings.Contains(got, "\nHint: ") || !strings.Contains(got, "'repair' command") {
		t.Errorf("Describe() = %q", got)
	}
	if got := Describe(errors.New("plain")); got != "plain" {
		t.Errorf("Describe(plain) = %q", got)
	}
}

func TestKind_HintCoverage(t *testing.T) {
	for k := KindIO; k <= KindValidation; k++ {
		if k.Hint() == "" {
			t.Errorf("kind %v has no hint", k)
		}
		if strings.HasPrefix(k.String(), "Kind(") {
			t.Errorf("kind %d has no label", int(k))
		}
	}
}
