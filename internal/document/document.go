// Package document loads content files: frontmatter metadata, markdown body
// and table of contents.
package document

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/adrg/frontmatter"
	"github.com/spf13/cast"

	"github.com/starford/weaving/internal/apperr"
	"github.com/starford/weaving/internal/route"
)

// DefaultTemplate is used when a document names no template.
const DefaultTemplate = "default"

// Metadata is the frontmatter of a document. Unrecognised keys are kept in
// Extra and exposed to templates alongside the known ones.
type Metadata struct {
	Title       string
	Description string
	Tags        []string
	Keywords    []string
	Template    string
	Emit        bool
	Published   *time.Time
	LastUpdated *time.Time
	Excerpt     string
	Extra       map[string]any
}

// DefaultMetadata returns metadata with the default template and emit set.
func DefaultMetadata() Metadata {
	return Metadata{
		Template: DefaultTemplate,
		Emit:     true,
		Tags:     []string{},
		Keywords: []string{},
		Extra:    map[string]any{},
	}
}

// Map returns the metadata as template data. Timestamps are RFC 3339 strings.
func (m Metadata) Map() map[string]any {
	out := make(map[string]any, len(m.Extra)+9)
	for k, v := range m.Extra {
		out[k] = v
	}
	out["title"] = m.Title
	out["description"] = m.Description
	out["tags"] = m.Tags
	out["keywords"] = m.Keywords
	out["template"] = m.Template
	out["emit"] = m.Emit
	out["published"] = formatTime(m.Published)
	out["last_updated"] = formatTime(m.LastUpdated)
	out["excerpt"] = m.Excerpt
	return out
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

// Document is one content file, immutable once loaded.
type Document struct {
	Path        string
	ContentRoot string
	Route       string
	Meta        Metadata
	Body        string
	TOC         []Heading
	Emit        bool
}

// Load reads and parses the content file at path. A frontmatter block that
// fails to parse is logged and replaced by default metadata; the whole file
// then becomes the body.
func Load(contentRoot, path string, logger *slog.Logger) (*Document, error) {
	r, err := route.FromPath(contentRoot, path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.New(apperr.KindIO, "read document", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, apperr.New(apperr.KindIO, "stat document", path, err)
	}

	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))

	meta, body, dated, err := parse(data)
	if err != nil {
		logger.Warn("document: metadata parse failed, using defaults",
			slog.String("path", path),
			slog.String("error", err.Error()))
		meta, body, dated = DefaultMetadata(), string(data), &timestamps{}
	}
	for _, bad := range dated.invalid {
		logger.Warn("document: unparseable timestamp",
			slog.String("path", path),
			slog.String("field", bad.field),
			slog.String("error", bad.err.Error()))
	}

	if meta.Published == nil && !dated.published {
		mod := info.ModTime()
		meta.Published = &mod
		meta.LastUpdated = &mod
	}

	return &Document{
		Path:        path,
		ContentRoot: contentRoot,
		Route:       r,
		Meta:        meta,
		Body:        body,
		TOC:         TableOfContents(body),
		Emit:        meta.Emit,
	}, nil
}

// timestamps records which date fields were present and which failed to parse.
type timestamps struct {
	published bool
	invalid   []fieldError
}

type fieldError struct {
	field string
	err   error
}

func parse(data []byte) (Metadata, string, *timestamps, error) {
	var raw map[string]any
	body, err := frontmatter.Parse(bytes.NewReader(data), &raw)
	if err != nil {
		return Metadata{}, "", nil, apperr.New(apperr.KindDocument, "parse frontmatter", "", err)
	}
	meta, dated, err := fromRaw(raw)
	if err != nil {
		return Metadata{}, "", nil, apperr.New(apperr.KindDocument, "decode metadata", "", err)
	}
	return meta, string(body), dated, nil
}

func fromRaw(raw map[string]any) (Metadata, *timestamps, error) {
	m := DefaultMetadata()
	dated := &timestamps{}
	for key, value := range raw {
		var err error
		switch key {
		case "title":
			m.Title, err = cast.ToStringE(value)
		case "description":
			m.Description, err = cast.ToStringE(value)
		case "tags":
			m.Tags, err = cast.ToStringSliceE(value)
		case "keywords":
			m.Keywords, err = cast.ToStringSliceE(value)
		case "template":
			m.Template, err = cast.ToStringE(value)
		case "emit":
			m.Emit, err = cast.ToBoolE(value)
		case "excerpt":
			m.Excerpt, err = cast.ToStringE(value)
		case "published", "last_updated":
			t, terr := toTime(value)
			if terr != nil {
				dated.invalid = append(dated.invalid, fieldError{field: key, err: terr})
			}
			if key == "published" {
				dated.published = value != nil
				m.Published = t
			} else {
				m.LastUpdated = t
			}
		default:
			m.Extra[key] = normalize(value)
		}
		if err != nil {
			return Metadata{}, nil, fmt.Errorf("field %q: %w", key, err)
		}
	}
	if m.Template == "" {
		m.Template = DefaultTemplate
	}
	if m.Published != nil && m.LastUpdated == nil {
		m.LastUpdated = m.Published
	}
	return m, dated, nil
}

func toTime(v any) (*time.Time, error) {
	if v == nil {
		return nil, nil
	}
	t, err := cast.ToTimeE(v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// normalize turns YAML's map[interface{}]interface{} into map[string]any so
// extension values render and serialise like every other map.
func normalize(v any) any {
	switch val := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[cast.ToString(k)] = normalize(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	default:
		return v
	}
}
