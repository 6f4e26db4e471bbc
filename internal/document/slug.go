package document

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/yuin/goldmark/ast"
	"golang.org/x/text/unicode/norm"
)

// Slugify converts heading text into a GFM-compatible anchor slug.
// Runs of separators are kept as-is: "Intro - description" becomes
// "intro---description".
func Slugify(s string) string {
	normalized := strings.ToLower(norm.NFKD.String(s))

	var b strings.Builder
	b.Grow(len(normalized))
	for _, r := range normalized {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || isGFMPunctuation(r):
			b.WriteByte('-')
		}
	}
	return b.String()
}

func isGFMPunctuation(r rune) bool {
	return strings.ContainsRune("!\"#$%&()*+,./:;<=>@[\\]^_`{|}~-", r)
}

// HeadingIDs hands out unique heading anchors. It satisfies goldmark's
// parser.IDs so rendered heading ids and the table of contents agree.
type HeadingIDs struct {
	used map[string]int
}

// NewHeadingIDs returns an empty id set.
func NewHeadingIDs() *HeadingIDs {
	return &HeadingIDs{used: make(map[string]int)}
}

// Generate returns the slug for value, suffixed with -1, -2, ... on repeats.
func (h *HeadingIDs) Generate(value []byte, _ ast.NodeKind) []byte {
	slug := Slugify(string(value))
	if slug == "" {
		slug = "heading"
	}
	n, seen := h.used[slug]
	if !seen {
		h.used[slug] = 0
		return []byte(slug)
	}
	for {
		n++
		candidate := slug + "-" + strconv.Itoa(n)
		if _, taken := h.used[candidate]; !taken {
			h.used[slug] = n
			h.used[candidate] = 0
			return []byte(candidate)
		}
	}
}

// Put reserves an id that was set explicitly.
func (h *HeadingIDs) Put(value []byte) {
	h.used[string(value)] = 0
}
