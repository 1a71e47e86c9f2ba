// Package tilecmd builds canonical launch invocations for the Last Oasis
// dedicated-server binary.
//
// This layer is pure command construction: no execution, no I/O. It owns the
// CLI shape (flag spelling, ordering, quoting) and nothing else; process
// lifecycle belongs to the supervisor.
//
// The game binary takes single-token flags in "-Key=value" form plus bare
// switches ("-log"). Emission policy:
//
//   - Numeric fields are always emitted (including 0).
//   - String-valued flags are emitted only when non-empty.
//   - argv[0] is always the executable path.
package tilecmd

import (
	"strconv"
	"strings"
)

// Builder constructs argv and shell-safe command strings for a tile launch.
//
// Builders implement a fluent API and are not concurrency-safe; treat them as
// single-use, short-lived values.
type Builder struct {
	args []string // argv including executable at index 0
}

// NewBuilder returns a Builder pre-seeded with the executable path.
func NewBuilder(executable string) *Builder {
	return &Builder{args: []string{executable}}
}

// WithValue appends "-flag=value" when value is non-empty.
func (b *Builder) WithValue(flag, value string) *Builder {
	if value != "" {
		b.args = append(b.args, "-"+flag+"="+value)
	}
	return b
}

// WithInt appends "-flag=n" (always emitted, including 0).
func (b *Builder) WithInt(flag string, n int) *Builder {
	b.args = append(b.args, "-"+flag+"="+strconv.Itoa(n))
	return b
}

// WithSwitch appends a bare "-flag" token.
func (b *Builder) WithSwitch(flag string) *Builder {
	b.args = append(b.args, "-"+flag)
	return b
}

// BuildArgv returns a defensive copy of the constructed argument vector.
func (b *Builder) BuildArgv() []string {
	out := make([]string, len(b.args))
	copy(out, b.args)
	return out
}

// BuildString returns a single shell-quoted command string, safe for POSIX
// shells and log lines.
func (b *Builder) BuildString() string {
	quoted := make([]string, len(b.args))
	for i, a := range b.args {
		quoted[i] = shQuote(a)
	}
	return strings.Join(quoted, " ")
}

// shQuote returns a POSIX-safe single-quoted token. Empty strings become a
// pair of single quotes to preserve round-trippability.
func shQuote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
