package render

import (
	"bytes"
	"regexp"
	"strings"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/starford/weaving/internal/document"
)

// Markdown converts markdown to HTML with GFM tables, strikethrough,
// autolinks and task lists, footnotes, alerts, highlighted code fences and
// heading anchors. Safe for concurrent use.
type Markdown struct {
	md goldmark.Markdown
}

// NewMarkdown returns a converter that highlights code with the named
// chroma style. Highlighting emits CSS classes; see ThemeCSS.
func NewMarkdown(theme string) *Markdown {
	return &Markdown{md: goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Footnote,
			highlighting.NewHighlighting(
				highlighting.WithStyle(theme),
				highlighting.WithFormatOptions(chromahtml.WithClasses(true)),
			),
		),
		goldmark.WithParserOptions(
			parser.WithASTTransformers(
				util.Prioritized(document.HeadingAnchors{}, 100),
				util.Prioritized(alerts{}, 200),
			),
		),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)}
}

// Convert renders source to HTML.
func (m *Markdown) Convert(source string) (string, error) {
	var buf bytes.Buffer
	if err := m.md.Convert([]byte(source), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var alertMarker = regexp.MustCompile(`^\[!(NOTE|TIP|IMPORTANT|WARNING|CAUTION)\]\s*$`)

// alerts turns GitHub-style "> [!NOTE]" blockquotes into classed alerts with
// a title paragraph.
type alerts struct{}

func (alerts) Transform(doc *ast.Document, reader text.Reader, _ parser.Context) {
	source := reader.Source()

	var quotes []*ast.Blockquote
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if bq, ok := n.(*ast.Blockquote); ok && entering {
			quotes = append(quotes, bq)
		}
		return ast.WalkContinue, nil
	})

	for _, bq := range quotes {
		para, ok := bq.FirstChild().(*ast.Paragraph)
		if !ok || para.Lines().Len() == 0 {
			continue
		}
		first := para.Lines().At(0)
		m := alertMarker.FindSubmatch(bytes.TrimSpace(first.Value(source)))
		if m == nil {
			continue
		}
		kind := strings.ToLower(string(m[1]))

		var marker []ast.Node
		for c := para.FirstChild(); c != nil; c = c.NextSibling() {
			t, ok := c.(*ast.Text)
			if !ok || t.Segment.Stop > first.Stop {
				break
			}
			marker = append(marker, c)
		}
		for _, c := range marker {
			para.RemoveChild(para, c)
		}
		if para.ChildCount() == 0 {
			bq.RemoveChild(bq, para)
		}

		title := ast.NewParagraph()
		title.SetAttributeString("class", []byte("markdown-alert-title"))
		title.AppendChild(title, ast.NewString([]byte(strings.ToUpper(kind[:1])+kind[1:])))
		if bq.FirstChild() != nil {
			bq.InsertBefore(bq, bq.FirstChild(), title)
		} else {
			bq.AppendChild(bq, title)
		}
		bq.SetAttributeString("class", []byte("markdown-alert markdown-alert-"+kind))
	}
}
