package render

import (
	"strings"
	"testing"
)

func TestEngineFilters(t *testing.T) {
	e := NewEngine(nil)
	bindings := map[string]any{
		"meta": map[string]any{"series": "intro", "empty": nil},
		"html": "<b>bold</b>",
		"list": []string{"a", "b"},
	}

	tests := []struct {
		src  string
		want string
	}{
		{`{{ meta | hasKey: "series" }}`, "true"},
		{`{{ meta | hasKey: "empty" }}`, "true"},
		{`{{ meta | hasKey: "missing" }}`, "false"},
		{`{{ html | raw }}`, "<b>bold</b>"},
		{`{{ list | json }}`, "[\n  \"a\",\n  \"b\"\n]"},
		{`{{ "2024-03-01T10:00:00Z" | date: "%Y-%m-%d" }}`, "2024-03-01"},
	}
	for _, tt := range tests {
		got, err := e.RenderString(tt.src, bindings)
		if err != nil {
			t.Fatalf("%s: %v", tt.src, err)
		}
		if got != tt.want {
			t.Errorf("%s = %q, want %q", tt.src, got, tt.want)
		}
	}
}

func TestEngineIncludesPartialsByFileName(t *testing.T) {
	e := NewEngine(map[string]string{"nav.liquid": `<nav>{{ page.title }}</nav>`})

	tpl, err := e.Parse("templates/default.liquid", `{% include "nav.liquid" %}<main></main>`)
	if err != nil {
		t.Fatal(err)
	}
	got, err := tpl.RenderString(map[string]any{"page": map[string]any{"title": "Home"}})
	if err != nil {
		t.Fatal(err)
	}
	if got != "<nav>Home</nav><main></main>" {
		t.Errorf("got %q", got)
	}

	if _, err := e.RenderString(`{% include "missing.liquid" %}`, nil); err == nil {
		t.Error("expected error for a missing partial")
	}
}

func TestHasKeyOnNonMaps(t *testing.T) {
	if hasKey("string", "a") || hasKey(nil, "a") || hasKey([]any{"a"}, "a") {
		t.Fatal("hasKey must be false for non-maps")
	}
	if !hasKey(map[string]int{"a": 1}, "a") {
		t.Fatal("typed maps should work too")
	}
}

func TestThemeCSS(t *testing.T) {
	css, ok, err := ThemeCSS(DefaultTheme)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if !strings.Contains(css, ".chroma") {
		t.Errorf("unexpected css: %.80s", css)
	}

	fallback, ok, err := ThemeCSS("no-such-theme")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("unknown theme should report ok=false")
	}
	if fallback != css {
		t.Error("unknown theme should fall back to the default stylesheet")
	}
}
