package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name  string `yaml:"name" toml:"name"`
	Count int    `yaml:"count" toml:"count"`
}

func (s *sample) Validate() error {
	if s.Count < 0 {
		return errors.New("count must not be negative")
	}
	return nil
}

func write(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadByExtension(t *testing.T) {
	t.Setenv("SAMPLE_NAME", "expanded")

	var y sample
	if err := Load(write(t, "c.yml", "name: ${SAMPLE_NAME}\ncount: 2\n"), &y); err != nil {
		t.Fatal(err)
	}
	if y.Name != "expanded" || y.Count != 2 {
		t.Errorf("yaml = %+v", y)
	}

	var tm sample
	if err := Load(write(t, "c.toml", "name = \"${SAMPLE_NAME}\"\ncount = 3\n"), &tm); err != nil {
		t.Fatal(err)
	}
	if tm.Name != "expanded" || tm.Count != 3 {
		t.Errorf("toml = %+v", tm)
	}
}

func TestLoadErrors(t *testing.T) {
	var s sample
	if err := Load(write(t, "c.json", "{}"), &s); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Errorf("json err = %v", err)
	}
	if err := Load(write(t, "c.toml", "count = -1\n"), &s); err == nil || !strings.Contains(err.Error(), "validation") {
		t.Errorf("validation err = %v", err)
	}
	if err := Load(write(t, "c.toml", "count = \n"), &s); err == nil || !strings.Contains(err.Error(), "parse") {
		t.Errorf("parse err = %v", err)
	}
	if err := Load(filepath.Join(t.TempDir(), "missing.toml"), &s); err == nil {
		t.Error("missing file should fail")
	}
}

func TestWriteTOML(t *testing.T) {
	p := filepath.Join(t.TempDir(), "nested", "out.toml")
	if err := WriteTOML(p, &sample{Name: "w", Count: 1}, false); err != nil {
		t.Fatal(err)
	}
	if err := WriteTOML(p, &sample{}, false); err == nil {
		t.Error("existing file should not be replaced")
	}

	var s sample
	if err := Load(p, &s); err != nil {
		t.Fatal(err)
	}
	if s.Name != "w" || s.Count != 1 {
		t.Errorf("round trip = %+v", s)
	}
}
