package epub

import "testing"

func TestLoadSection(t *testing.T) {
	tests := []struct {
		name      string
		doc       string
		wantTitle string
		wantText  string
		wantRefs  []string
	}{
		{
			name: "h1 wins over title",
			doc: `<html><head><title>Head</title></head>
<body><h1>Heading</h1><p>Body text.</p><img src="../images/a.png"/></body></html>`,
			wantTitle: "Heading",
			wantText:  "Heading\nBody text.",
			wantRefs:  []string{"OEBPS/images/a.png"},
		},
		{
			name:      "h2 when no h1",
			doc:       `<html><body><h2>Second  level</h2><p>x</p></body></html>`,
			wantTitle: "Second level",
			wantText:  "Second level\nx",
		},
		{
			name:      "title fallback",
			doc:       `<html><head><title>Only Title</title></head><body><p>x</p></body></html>`,
			wantTitle: "Only Title",
			wantText:  "x",
		},
		{
			name:     "no title",
			doc:      `<html><body><p>plain</p><img src="pic.jpg"/></body></html>`,
			wantText: "plain",
			wantRefs: []string{"OEBPS/text/pic.jpg"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := LoadSection("id", "OEBPS/text/ch.xhtml", []byte(tt.doc))
			if err != nil {
				t.Fatalf("LoadSection() error = %v", err)
			}
			if s.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", s.Title, tt.wantTitle)
			}
			if s.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", s.Text, tt.wantText)
			}
			if len(s.ImageRefs) != len(tt.wantRefs) {
				t.Fatalf("ImageRefs = %v, want %v", s.ImageRefs, tt.wantRefs)
			}
			for i := range tt.wantRefs {
				if s.ImageRefs[i] != tt.wantRefs[i] {
					t.Errorf("ImageRefs[%d] = %q, want %q", i, s.ImageRefs[i], tt.wantRefs[i])
				}
			}
		})
	}
}

func TestLoadSection_HTML(t *testing.T) {
	s, err := LoadSection("id", "ch.xhtml", []byte(`<html><body> <p>kept</p> </body></html>`))
	if err != nil {
		t.Fatalf("LoadSection() error = %v", err)
	}
	if got := s.HTML(); got != "<p>kept</p>" {
		t.Errorf("HTML() = %q", got)
	}
}
