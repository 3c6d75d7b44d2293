// Package simerr provides the typed errors of the simulation pipeline and a
// report that accumulates every violation found by a stage.
package simerr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// Kind classifies an error.
type Kind int

const (
	KindConfiguration Kind = iota
	KindStructural
	KindReference
	KindSolver
	KindPostCondition
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "ConfigurationError"
	case KindStructural:
		return "StructuralError"
	case KindReference:
		return "ReferenceError"
	case KindSolver:
		return "SolverError"
	case KindPostCondition:
		return "PostConditionError"
	default:
		return "UnknownError"
	}
}

var kindNames = map[string]Kind{
	"ConfigurationError": KindConfiguration,
	"StructuralError":    KindStructural,
	"ReferenceError":     KindReference,
	"SolverError":        KindSolver,
	"PostConditionError": KindPostCondition,
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	v, ok := kindNames[string(b)]
	if !ok {
		return fmt.Errorf("unknown error kind %q", b)
	}
	*k = v
	return nil
}

// Error is a classified error carrying the path to the offending field.
type Error struct {
	Kind    Kind   `json:"kind"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
	// Fatal errors abort the pipeline. Non-fatal errors are logged and reported.
	Fatal bool `json:"fatal"`
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s at %s: %s", e.Kind, e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New returns a fatal error.
func New(kind Kind, path, format string, args ...any) *Error {
	return &Error{Kind: kind, Path: path, Message: fmt.Sprintf(format, args...), Fatal: true}
}

// Newf returns a non-fatal error.
func Newf(kind Kind, path, format string, args ...any) *Error {
	return &Error{Kind: kind, Path: path, Message: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err wraps an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	var r *Report
	if errors.As(err, &r) {
		return r.Count(kind) > 0
	}
	return false
}

// Warning is a logged, never fatal, finding.
type Warning struct {
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// Report accumulates errors and warnings. Stages keep going after an error
// so that a single run lists every violation.
type Report struct {
	Errors   []*Error  `json:"errors,omitempty"`
	Warnings []Warning `json:"warnings,omitempty"`
}

func NewReport() *Report { return &Report{} }

// Add records err and logs it at error level.
func (r *Report) Add(err *Error) {
	if err == nil {
		return
	}
	r.Errors = append(r.Errors, err)
	log.Error().Str("kind", err.Kind.String()).Str("path", err.Path).Bool("fatal", err.Fatal).Msg(err.Message)
}

// Fail records a fatal error.
func (r *Report) Fail(kind Kind, path, format string, args ...any) {
	r.Add(New(kind, path, format, args...))
}

// Flag records a non-fatal error.
func (r *Report) Flag(kind Kind, path, format string, args ...any) {
	r.Add(Newf(kind, path, format, args...))
}

// Warn records a warning and logs it.
func (r *Report) Warn(path, format string, args ...any) {
	w := Warning{Path: path, Message: fmt.Sprintf(format, args...)}
	r.Warnings = append(r.Warnings, w)
	log.Warn().Str("path", path).Msg(w.Message)
}

// Merge appends the findings of o without logging them again.
func (r *Report) Merge(o *Report) {
	if o == nil {
		return
	}
	r.Errors = append(r.Errors, o.Errors...)
	r.Warnings = append(r.Warnings, o.Warnings...)
}

func (r *Report) HasFatal() bool {
	for _, e := range r.Errors {
		if e.Fatal {
			return true
		}
	}
	return false
}

// Count returns the number of errors of a kind.
func (r *Report) Count(kind Kind) int {
	n := 0
	for _, e := range r.Errors {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Err returns the report as an error when it holds a fatal error, else nil.
func (r *Report) Err() error {
	if r == nil || !r.HasFatal() {
		return nil
	}
	return r
}

func (r *Report) Error() string {
	var b strings.Builder
	fatal := 0
	for _, e := range r.Errors {
		if e.Fatal {
			fatal++
		}
	}
	fmt.Fprintf(&b, "%d error(s), %d fatal", len(r.Errors), fatal)
	for _, e := range r.Errors {
		b.WriteString("\n  - ")
		b.WriteString(e.Error())
	}
	return b.String()
}
