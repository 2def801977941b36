package epub

import (
	"errors"
	"testing"

	"github.com/yuanying/ebookkit/internal/ebook"
)

func TestParseOPF(t *testing.T) {
	opf, err := ParseOPF([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<package version="3.0" xmlns="http://www.idpf.org/2007/opf" unique-identifier="uid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Sample</dc:title>
    <dc:creator id="c1">Editor Name</dc:creator>
    <dc:creator id="c2">Author Name</dc:creator>
    <meta refines="#c1" property="role">edt</meta>
    <meta refines="#c2" property="role">aut</meta>
    <dc:language>ja</dc:language>
    <dc:identifier id="uid">urn:uuid:abcd</dc:identifier>
    <dc:publisher>Pub</dc:publisher>
    <dc:date>2024-01-01</dc:date>
    <dc:subject>One</dc:subject>
    <dc:subject>Two</dc:subject>
    <dc:rights>CC-BY</dc:rights>
  </metadata>
  <manifest>
    <item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>
    <item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>
    <item id="ch1" href="text/ch1.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine toc="ncx" page-progression-direction="rtl">
    <itemref idref="ch1"/>
    <itemref idref="nav" linear="no"/>
  </spine>
  <guide>
    <reference type="toc" title="Contents" href="nav.xhtml#toc"/>
  </guide>
</package>`), "OEBPS")
	if err != nil {
		t.Fatalf("ParseOPF() error = %v", err)
	}

	if opf.Version != "3.0" || opf.PageProgressionDirection != "rtl" {
		t.Errorf("Version/direction = %q/%q", opf.Version, opf.PageProgressionDirection)
	}
	if got := opf.Metadata.Author(); got != "Author Name" {
		t.Errorf("Author() = %q, want refined aut creator", got)
	}
	if opf.NCXPath != "OEBPS/toc.ncx" {
		t.Errorf("NCXPath = %q", opf.NCXPath)
	}
	if got := opf.ManifestOrder; len(got) != 3 || got[0] != "nav" || got[2] != "ch1" {
		t.Errorf("ManifestOrder = %v", got)
	}
	if len(opf.Spine) != 2 || !opf.Spine[0].Linear || opf.Spine[1].Linear {
		t.Errorf("Spine = %+v", opf.Spine)
	}
	if len(opf.Guide) != 1 || opf.Guide[0].Href != "OEBPS/nav.xhtml#toc" {
		t.Errorf("Guide = %+v", opf.Guide)
	}

	meta := opf.Metadata.Common()
	if meta.Title != "Sample" || meta.Language != "ja" || meta.Publisher != "Pub" {
		t.Errorf("Common() = %+v", meta)
	}
	if meta.Format != "EPUB" || meta.ISBN != "urn:uuid:abcd" || len(meta.Tags) != 2 {
		t.Errorf("Common() = %+v", meta)
	}
	if meta.Custom["rights"] != "CC-BY" {
		t.Errorf("rights = %q", meta.Custom["rights"])
	}
}

func TestParseOPF_Identifier(t *testing.T) {
	tests := []struct {
		name string
		ids  string
		want string
	}{
		{
			name: "first identifier wins",
			ids: `<dc:identifier>urn:uuid:1111</dc:identifier>
<dc:identifier id="uid">calibre:42</dc:identifier>
<dc:identifier opf:scheme="ISBN">9780306406157</dc:identifier>`,
			want: "urn:uuid:1111",
		},
		{
			name: "blank identifiers skipped",
			ids: `<dc:identifier> </dc:identifier>
<dc:identifier id="uid"> urn:isbn:9784000000000 </dc:identifier>`,
			want: "urn:isbn:9784000000000",
		},
		{
			name: "no identifier",
			ids:  `<dc:title>T</dc:title>`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := `<package version="2.0" unique-identifier="uid" xmlns="http://www.idpf.org/2007/opf">
<metadata xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:opf="http://www.idpf.org/2007/opf">` +
				tt.ids + `</metadata><manifest/><spine/></package>`
			opf, err := ParseOPF([]byte(doc), "")
			if err != nil {
				t.Fatalf("ParseOPF() error = %v", err)
			}
			if opf.Metadata.Identifier != tt.want {
				t.Errorf("Identifier = %q, want %q", opf.Metadata.Identifier, tt.want)
			}
		})
	}
}

func TestParseOPF_Malformed(t *testing.T) {
	_, err := ParseOPF([]byte("<package><metadata>"), "")
	if !errors.Is(err, ebook.ErrXML) {
		t.Errorf("ParseOPF() error = %v, want XML kind", err)
	}
}

func TestJoinPath(t *testing.T) {
	tests := []struct {
		base, rel, want string
	}{
		{"OEBPS/", "text/ch1.xhtml", "OEBPS/text/ch1.xhtml"},
		{"", "ch.xhtml", "ch.xhtml"},
		{".", "ch.xhtml", "ch.xhtml"},
		{"OEBPS/text", "../images/a.png", "OEBPS/images/a.png"},
		{"OEBPS", "ch.xhtml#sec", "OEBPS/ch.xhtml#sec"},
	}
	for _, tt := range tests {
		if got := joinPath(tt.base, tt.rel); got != tt.want {
			t.Errorf("joinPath(%q, %q) = %q, want %q", tt.base, tt.rel, got, tt.want)
		}
	}
}

func TestDetectCover(t *testing.T) {
	img := func(id, href string, props ...string) ManifestItem {
		return ManifestItem{ID: id, Href: href, MediaType: "image/jpeg", Properties: props}
	}
	page := ManifestItem{ID: "page", Href: "cover.xhtml", MediaType: "application/xhtml+xml"}

	tests := []struct {
		name       string
		opf        *OPF
		wantID     string
		wantMethod string
	}{
		{
			name: "properties beat meta",
			opf: &OPF{
				Metadata: Metadata{CoverID: "m"},
				Manifest: map[string]ManifestItem{"p": img("p", "p.jpg", "cover-image"), "m": img("m", "m.jpg")},
			},
			wantID: "p", wantMethod: "properties",
		},
		{
			name: "meta",
			opf: &OPF{
				Metadata: Metadata{CoverID: "m"},
				Manifest: map[string]ManifestItem{"m": img("m", "m.jpg")},
			},
			wantID: "m", wantMethod: "meta",
		},
		{
			name: "guide with fragment",
			opf: &OPF{
				Manifest: map[string]ManifestItem{"g": img("g", "images/front.jpg")},
				Guide:    []GuideReference{{Type: "cover", Href: "images/front.jpg#x"}},
			},
			wantID: "g", wantMethod: "guide",
		},
		{
			name: "guide to XHTML falls through to filename",
			opf: &OPF{
				Manifest:      map[string]ManifestItem{"page": page, "c": img("c", "images/Cover.jpg")},
				ManifestOrder: []string{"page", "c"},
				Guide:         []GuideReference{{Type: "cover", Href: "cover.xhtml"}},
			},
			wantID: "c", wantMethod: "filename",
		},
		{
			name: "SVG ignored",
			opf: &OPF{
				Manifest: map[string]ManifestItem{"s": {ID: "s", Href: "cover.svg", MediaType: "image/svg+xml"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := tt.opf.DetectCover()
			if tt.wantID == "" {
				if info != nil {
					t.Fatalf("DetectCover() = %+v, want nil", info)
				}
				if _, ok := tt.opf.FindCoverImage(); ok {
					t.Errorf("FindCoverImage() ok = true")
				}
				return
			}
			if info == nil {
				t.Fatal("DetectCover() = nil")
			}
			if info.ManifestID != tt.wantID || info.DetectionMethod != tt.wantMethod {
				t.Errorf("DetectCover() = %+v, want %s via %s", info, tt.wantID, tt.wantMethod)
			}
			if href, ok := tt.opf.FindCoverImage(); !ok || href != info.Href {
				t.Errorf("FindCoverImage() = %q, %v", href, ok)
			}
		})
	}
}
