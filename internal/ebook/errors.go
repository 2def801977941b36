package ebook

import (
	"errors"
	"fmt"
)

// Kind classifies errors crossing a handler boundary.
type Kind int

const (
	KindIO Kind = iota + 1
	KindZip
	KindXML
	KindPDF
	KindUnsupportedFormat
	KindInvalidMetadata
	KindParse
	KindEncoding
	KindNotFound
	KindInvalidStructure
	KindNotSupported
	KindImage
	KindConversion
	KindValidation
)

var kindLabels = map[Kind]string{
	KindIO:                "IO error",
	KindZip:               "ZIP error",
	KindXML:               "XML error",
	KindPDF:               "PDF error",
	KindUnsupportedFormat: "Unsupported format",
	KindInvalidMetadata:   "Invalid metadata",
	KindParse:             "Parse error",
	KindEncoding:          "Encoding error",
	KindNotFound:          "Not found",
	KindInvalidStructure:  "Invalid structure",
	KindNotSupported:      "Not supported",
	KindImage:             "Image error",
	KindConversion:        "Conversion error",
	KindValidation:        "Validation error",
}

var kindHints = map[Kind]string{
	KindIO:                "Check if the file exists and you have read permissions",
	KindZip:               "The archive may be corrupted or not a valid ZIP file",
	KindXML:               "The file may be corrupted or have invalid XML structure",
	KindPDF:               "Try repairing the PDF with a dedicated PDF repair tool",
	KindUnsupportedFormat: "Supported formats are EPUB, MOBI, AZW, PDF, FB2, CBZ, and TXT",
	KindInvalidMetadata:   "Ensure all required metadata fields (title, author) are provided",
	KindParse:             "The file structure may be corrupted or in an unexpected format",
	KindEncoding:          "The file may use a text encoding that is not UTF-8 compatible",
	KindNotFound:          "Verify the required file or component exists in the ebook",
	KindInvalidStructure:  "The file may not be a valid ebook or is corrupted. Try using the 'repair' command",
	KindNotSupported:      "This feature is not yet implemented for this format",
	KindImage:             "Ensure the image is in a supported format (JPEG, PNG, GIF, WebP)",
	KindConversion:        "Not all format conversions are supported. Check documentation for supported conversions",
	KindValidation:        "Use the 'repair' command to fix common issues",
}

func (k Kind) String() string {
	if s, ok := kindLabels[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Hint returns a suggestion for resolving errors of this kind.
func (k Kind) Hint() string {
	return kindHints[k]
}

// Error is the error type returned by format handlers.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

// Sentinels for errors.Is matching by kind.
var (
	ErrIO                = &Error{Kind: KindIO}
	ErrZip               = &Error{Kind: KindZip}
	ErrXML               = &Error{Kind: KindXML}
	ErrPDF               = &Error{Kind: KindPDF}
	ErrUnsupportedFormat = &Error{Kind: KindUnsupportedFormat}
	ErrInvalidMetadata   = &Error{Kind: KindInvalidMetadata}
	ErrParse             = &Error{Kind: KindParse}
	ErrEncoding          = &Error{Kind: KindEncoding}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInvalidStructure  = &Error{Kind: KindInvalidStructure}
	ErrNotSupported      = &Error{Kind: KindNotSupported}
	ErrImage             = &Error{Kind: KindImage}
	ErrConversion        = &Error{Kind: KindConversion}
	ErrValidation        = &Error{Kind: KindValidation}
)

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a kind sentinel matching e.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Hint returns the corrective-action hint for e's kind.
func (e *Error) Hint() string {
	return e.Kind.Hint()
}

// Errorf creates an Error of the given kind.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a kind and message. A nil err yields nil.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// HintOf returns the hint of the first Error in err's chain, or "".
func HintOf(err error) string {
	if k, ok := KindOf(err); ok {
		return k.Hint()
	}
	return ""
}

// Describe renders err with its hint on a second line, as shown to users.
func Describe(err error) string {
	if hint := HintOf(err); hint != "" {
		return err.Error() + "\nHint: " + hint
	}
	return err.Error()
}
