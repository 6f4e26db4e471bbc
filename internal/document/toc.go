package document

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// Heading is one table of contents entry.
type Heading struct {
	Depth int    `json:"depth"`
	Text  string `json:"text"`
	Slug  string `json:"slug"`
}

var tocParser = goldmark.New(goldmark.WithExtensions(extension.GFM)).Parser()

// TableOfContents lists the headings of a markdown body in document order.
func TableOfContents(body string) []Heading {
	source := []byte(body)
	return anchorHeadings(tocParser.Parse(text.NewReader(source)), source)
}

// HeadingAnchors is a goldmark AST transformer that sets each heading's id
// attribute to the slug TableOfContents reports for it.
type HeadingAnchors struct{}

// Transform implements parser.ASTTransformer.
func (HeadingAnchors) Transform(doc *ast.Document, reader text.Reader, _ parser.Context) {
	anchorHeadings(doc, reader.Source())
}

func anchorHeadings(doc ast.Node, source []byte) []Heading {
	ids := NewHeadingIDs()
	var out []Heading
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		h, ok := n.(*ast.Heading)
		if !ok || !entering {
			return ast.WalkContinue, nil
		}
		if id, ok := h.AttributeString("id"); ok {
			if b, ok := id.([]byte); ok {
				ids.Put(b)
			}
			return ast.WalkSkipChildren, nil
		}
		label := inlineText(h, source)
		slug := ids.Generate([]byte(label), ast.KindHeading)
		h.SetAttributeString("id", slug)
		if Slugify(label) != "" {
			out = append(out, Heading{Depth: h.Level, Text: label, Slug: string(slug)})
		}
		return ast.WalkSkipChildren, nil
	})
	return out
}

// inlineText concatenates the text content under n.
func inlineText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	var walk func(ast.Node)
	walk = func(n ast.Node) {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch v := c.(type) {
			case *ast.Text:
				buf.Write(v.Segment.Value(source))
				if v.SoftLineBreak() {
					buf.WriteByte(' ')
				}
			case *ast.String:
				buf.Write(v.Value)
			default:
				walk(c)
			}
		}
	}
	walk(n)
	return buf.String()
}
