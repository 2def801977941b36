package kindle

import (
	"strings"
	"testing"
)

func TestSanitizeCSS(t *testing.T) {
	tests := []struct {
		name string
		css  string
		drop []string
		keep []string
	}{
		{
			name: "position fixed",
			css:  `div { position: fixed; color: red; }`,
			drop: []string{"position"},
			keep: []string{"color: red"},
		},
		{
			name: "position absolute",
			css:  `div { position: absolute; }`,
			drop: []string{"position"},
		},
		{
			name: "position relative kept",
			css:  `div { position: relative; }`,
			keep: []string{"position: relative"},
		},
		{
			name: "transform and transition",
			css:  `div { transform: rotate(45deg); transition: all 0.3s; transition-delay: 1s; color: blue; }`,
			drop: []string{"transform", "transition"},
			keep: []string{"color: blue"},
		},
		{
			name: "animation family",
			css:  `div { animation: fade 1s; animation-name: fade; }`,
			drop: []string{"animation"},
		},
		{
			name: "negative margin",
			css:  `div { margin-left: -10px; margin-right: 32px; }`,
			drop: []string{"margin-left"},
			keep: []string{"margin-right: 2em"},
		},
		{
			name: "negative margin shorthand",
			css:  `div { margin: -5px 10px; }`,
			drop: []string{"margin"},
		},
		{
			name: "writing mode kept",
			css:  `html { -epub-writing-mode: vertical-rl; writing-mode: vertical-rl; }`,
			keep: []string{"-epub-writing-mode: vertical-rl", "writing-mode: vertical-rl"},
		},
		{
			name: "units",
			css:  `p { font-size: 24px; line-height: 18pt; text-indent: 1.5em; }`,
			keep: []string{"font-size: 1.5em", "line-height: 1.5em", "text-indent: 1.5em"},
		},
		{
			name: "comment untouched",
			css:  `/* position: fixed; 16px */ p { color: red; }`,
			keep: []string{"/* position: fixed; 16px */", "color: red"},
		},
		{
			name: "string literal with semicolon",
			css:  `p::before { content: "a;b"; }`,
			keep: []string{`content: "a;b"`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizeCSS(tt.css)
			for _, d := range tt.drop {
				if strings.Contains(got, d) {
					t.Errorf("sanitizeCSS() kept %q: %s", d, got)
				}
			}
			for _, k := range tt.keep {
				if !strings.Contains(got, k) {
					t.Errorf("sanitizeCSS() lost %q: %s", k, got)
				}
			}
		})
	}
	if got := sanitizeCSS(""); got != "" {
		t.Errorf("sanitizeCSS(\"\") = %q", got)
	}
}

func TestScopeIDSelectors(t *testing.T) {
	tests := []struct {
		name string
		css  string
		want string
	}{
		{
			name: "id selector",
			css:  `#cover { color: red; }`,
			want: `#ch01-cover { color: red; }`,
		},
		{
			name: "color values untouched",
			css:  `p { color: #fff; background: #000000; }`,
			want: `p { color: #fff; background: #000000; }`,
		},
		{
			name: "compound selector",
			css:  `div#main > p.note, #side{margin:0}`,
			want: `div#ch01-main > p.note, #ch01-side{margin:0}`,
		},
		{
			name: "inside media block",
			css:  `@media screen { #a { color: #abc; } }`,
			want: `@media screen { #ch01-a { color: #abc; } }`,
		},
		{
			name: "comments and strings untouched",
			css:  `/* #x */ p::after { content: "#y"; }`,
			want: `/* #x */ p::after { content: "#y"; }`,
		},
		{
			name: "numeric start is not an id",
			css:  `#1abc { }`,
			want: `#1abc { }`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scopeIDSelectors("ch01", tt.css); got != tt.want {
				t.Errorf("scopeIDSelectors() = %q, want %q", got, tt.want)
			}
		})
	}
}
