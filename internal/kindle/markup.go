package kindle

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// html5Blocks maps sectioning elements to the tags KF8 renders reliably.
// The original tag name is kept as a class.
var html5Blocks = map[string]string{
	"article":    "div",
	"section":    "div",
	"aside":      "div",
	"nav":        "div",
	"header":     "div",
	"footer":     "div",
	"figure":     "div",
	"figcaption": "p",
}

var droppedAttrs = map[string]bool{
	"contenteditable": true,
	"draggable":       true,
	"hidden":          true,
	"spellcheck":      true,
	"translate":       true,
}

// downgradeMarkup rewrites HTML5 sectioning elements and strips
// interactive and data-* attributes.
func downgradeMarkup(doc *goquery.Document) {
	for tag, repl := range html5Blocks {
		doc.Find(tag).Each(func(_ int, s *goquery.Selection) {
			if class, _ := s.Attr("class"); class != "" {
				s.SetAttr("class", class+" "+tag)
			} else {
				s.SetAttr("class", tag)
			}
			s.Get(0).Data = repl
		})
	}

	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		var drop []string
		for _, a := range s.Get(0).Attr {
			if droppedAttrs[a.Key] || strings.HasPrefix(a.Key, "data-") {
				drop = append(drop, a.Key)
			}
		}
		for _, key := range drop {
			s.RemoveAttr(key)
		}
	})
}
