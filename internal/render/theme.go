package render

import (
	"bytes"
	"fmt"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/styles"
)

// DefaultTheme is used when the configured syntax theme is unknown.
const DefaultTheme = "monokai"

// ThemeCSS returns the stylesheet for highlighted code blocks in the named
// chroma style. ok is false if the style is unknown and DefaultTheme was
// used instead.
func ThemeCSS(theme string) (css string, ok bool, err error) {
	style, ok := styles.Registry[theme]
	if !ok {
		style = styles.Get(DefaultTheme)
	}
	var buf bytes.Buffer
	if err := chromahtml.New(chromahtml.WithClasses(true)).WriteCSS(&buf, style); err != nil {
		return "", ok, fmt.Errorf("render: theme css: %w", err)
	}
	return buf.String(), ok, nil
}
