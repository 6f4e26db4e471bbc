// Package apperr defines the error kinds shared by the build engine.
package apperr

import (
	"errors"
	"fmt"
)

// ErrNotFound reports a missing page, template or output.
var ErrNotFound = errors.New("not found")

// Kind classifies a build failure.
type Kind int

const (
	KindGeneric Kind = iota
	KindIO
	KindGlob
	KindDocument
	KindTemplate
	KindRoute
	KindRender
	KindJoin
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindGlob:
		return "glob"
	case KindDocument:
		return "document"
	case KindTemplate:
		return "template"
	case KindRoute:
		return "route"
	case KindRender:
		return "render"
	case KindJoin:
		return "join"
	default:
		return "generic"
	}
}

// Error is a classified build error. Op names the failing step and Path the
// file involved, if any.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

// New returns an *Error of the given kind.
func New(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

func (e *Error) Error() string {
	msg := e.Kind.String() + " error"
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Path != "" {
		msg += fmt.Sprintf(" %q", e.Path)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain, or KindGeneric.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindGeneric
}
