package kindle

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func mustDocument(t *testing.T, markup string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		t.Fatalf("NewDocumentFromReader() error = %v", err)
	}
	return doc
}

func TestDowngradeMarkup(t *testing.T) {
	doc := mustDocument(t, `<html><body>
<section class="intro"><p>Intro</p></section>
<figure><img src="a.png"/><figcaption>Caption</figcaption></figure>
<aside hidden="hidden" data-note="1"><p contenteditable="true" id="keep">Aside</p></aside>
</body></html>`)

	downgradeMarkup(doc)

	for _, tag := range []string{"section", "figure", "figcaption", "aside"} {
		if doc.Find(tag).Length() != 0 {
			t.Errorf("<%s> survived", tag)
		}
	}
	if doc.Find("div.intro.section").Length() != 1 {
		t.Errorf("section should become div with both classes")
	}
	if doc.Find("div.figure").Length() != 1 || doc.Find("p.figcaption").Length() != 1 {
		t.Errorf("figure markup not rewritten")
	}

	aside := doc.Find("div.aside")
	if _, ok := aside.Attr("hidden"); ok {
		t.Errorf("hidden attribute kept")
	}
	if _, ok := aside.Attr("data-note"); ok {
		t.Errorf("data-* attribute kept")
	}
	p := doc.Find("#keep")
	if p.Length() != 1 {
		t.Fatalf("id attribute should be kept")
	}
	if _, ok := p.Attr("contenteditable"); ok {
		t.Errorf("contenteditable attribute kept")
	}
}
