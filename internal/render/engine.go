package render

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/osteele/liquid"

	"github.com/starford/weaving/internal/apperr"
)

// Extension is the file extension of page templates and partials.
const Extension = ".liquid"

// Engine is a Liquid engine with the site's filters and partials registered.
type Engine struct {
	liquid *liquid.Engine
}

// NewEngine returns an engine whose {% include %} tag resolves names
// against partials, keyed by file name (e.g. "header.liquid").
func NewEngine(partials map[string]string) *Engine {
	e := liquid.NewEngine()
	e.RegisterFilter("raw", func(v any) any { return v })
	e.RegisterFilter("json", jsonFilter)
	e.RegisterFilter("hasKey", hasKey)
	e.RegisterTemplateStore(partialStore(partials))
	return &Engine{liquid: e}
}

// Parse compiles a template. name is used in error positions.
func (e *Engine) Parse(name, source string) (*liquid.Template, error) {
	tpl, err := e.liquid.ParseTemplateLocation([]byte(source), name, 1)
	if err != nil {
		return nil, err
	}
	return tpl, nil
}

// RenderString parses and renders source in one step.
func (e *Engine) RenderString(source string, bindings map[string]any) (string, error) {
	out, err := e.liquid.ParseAndRenderString(source, bindings)
	if err != nil {
		return "", err
	}
	return out, nil
}

type partialStore map[string]string

// ReadTemplate implements the engine's template store. Include paths are
// joined to the including file's directory, so the base name is tried too.
func (p partialStore) ReadTemplate(name string) ([]byte, error) {
	if src, ok := p[name]; ok {
		return []byte(src), nil
	}
	if src, ok := p[filepath.Base(name)]; ok {
		return []byte(src), nil
	}
	return nil, apperr.New(apperr.KindTemplate, "include partial", name, apperr.ErrNotFound)
}

func jsonFilter(v any) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("json filter: %w", err)
	}
	return string(b), nil
}

// hasKey reports whether v is a map containing key, whatever its value.
func hasKey(v any, key string) bool {
	if m, ok := v.(map[string]any); ok {
		_, found := m[key]
		return found
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return false
	}
	return rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key())).IsValid()
}

// TemplateName maps a document's template field to its file name.
func TemplateName(name string) string {
	return strings.TrimSuffix(name, Extension) + Extension
}
