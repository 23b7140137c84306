// Package timeexp parses user-entered marker timestamps: plain millisecond
// counts, [hh:]mm:ss[.mmm] clock strings, and "="-prefixed expressions that
// reference other markers by type and index (e.g. "=I2+500" is 500ms past the
// start of the second intro marker).
package timeexp

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"markeredit/models"
)

// Reason classifies why an input failed to parse or resolve.
type Reason string

const (
	ReasonBadTimestamp     Reason = "unparsable timestamp"
	ReasonDoubleOperator   Reason = "consecutive operators"
	ReasonMultipleTypeTags Reason = "multiple marker type tags"
	ReasonMultipleRefs     Reason = "multiple marker references"
	ReasonSubtractedRef    Reason = "marker reference cannot be subtracted"
	ReasonZeroIndex        Reason = "marker index 0 is invalid, indexes are 1-based"
	ReasonIndexOutOfRange  Reason = "marker index out of range"
	ReasonTagOnEndField    Reason = "marker type tag is only valid for start timestamps"
	ReasonNegativeInput    Reason = "negative timestamps are not allowed here"
	ReasonEmptyExpression  Reason = "empty expression"
)

// ParseError is the non-fatal failure all bad inputs surface as.
type ParseError struct {
	Reason Reason
	Input  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid timestamp %q: %s", e.Input, e.Reason)
}

// ErrUnresolved is returned by MS when the expression references a marker but
// no marker list has been supplied yet.
var ErrUnresolved = errors.New("marker reference not yet resolvable")

// Options control field-specific grammar restrictions.
type Options struct {
	// IsEnd marks the input as an end-position field. Marker references
	// default to the referenced marker's end bound, and type tags are
	// rejected.
	IsEnd bool
	// AllowNegative permits a leading '-' on plain inputs (bulk shift
	// deltas).
	AllowNegative bool
}

// Side selects which bound of a referenced marker an expression resolves to.
type Side int

const (
	SideDefault Side = iota
	SideStart
	SideEnd
)

// markerRef is a reference token like "I2", "C-1" or "M3E".
type markerRef struct {
	typeChar byte // 'I', 'C', 'A' or 'M' (any)
	index    int  // 1-based, negative counts from the end, never 0
	side     Side
}

// Expression is a parsed timestamp. Plain inputs are fully resolved; inputs
// with a marker reference stay symbolic until MS is given a marker list.
type Expression struct {
	raw     string
	opts    Options
	typeTag models.MarkerType // marker type to create, "" when untagged
	ref     *markerRef
	offset  int64
	// explicitOffset distinguishes "=C-1" from "=C-1+0"; implicit
	// final-credits references are nudged off the referenced bound.
	explicitOffset bool
}

// Parse tokenizes and parses text. The returned expression may still need a
// marker list to resolve (HasReference).
func Parse(text string, opts Options) (*Expression, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, &ParseError{Reason: ReasonEmptyExpression, Input: text}
	}

	if !strings.HasPrefix(trimmed, "=") {
		ms, err := parsePlain(trimmed, opts)
		if err != nil {
			return nil, err
		}
		return &Expression{raw: text, opts: opts, offset: ms, explicitOffset: true}, nil
	}

	tokens, err := scan(trimmed[1:], text)
	if err != nil {
		return nil, err
	}
	return parseTokens(tokens, text, opts)
}

// HasReference reports whether the expression depends on a marker list.
func (e *Expression) HasReference() bool { return e.ref != nil }

// TypeTag returns the marker type named by a leading I@/C@/A@ tag, or "".
func (e *Expression) TypeTag() models.MarkerType { return e.typeTag }

// PlainMs returns the resolved value for reference-free expressions.
func (e *Expression) PlainMs() (int64, bool) {
	if e.ref != nil {
		return 0, false
	}
	return e.offset, true
}

// MS resolves the expression against markers. For plain expressions markers
// may be nil. Reference resolution is lazy: parsing an expression whose index
// exceeds the list only fails here, once a list exists.
func (e *Expression) MS(markers []models.Marker) (int64, error) {
	if e.ref == nil {
		return e.offset, nil
	}
	if markers == nil {
		return 0, ErrUnresolved
	}

	target, err := e.resolveRef(markers)
	if err != nil {
		return 0, err
	}

	side := e.ref.side
	if side == SideDefault {
		if e.opts.IsEnd {
			side = SideEnd
		} else {
			side = SideStart
		}
	}

	base := target.Start
	if side == SideEnd {
		base = target.End
	}

	if e.explicitOffset {
		return base + e.offset, nil
	}

	// Implicit reference to a final credits marker: nudge 1ms off the
	// referenced bound so the new marker does not sit exactly on it.
	if target.IsFinal && target.Type == models.MarkerTypeCredits {
		if e.opts.IsEnd {
			base--
		} else {
			base++
		}
		if base < 0 {
			base = 0
		}
	}
	return base, nil
}

func (e *Expression) resolveRef(markers []models.Marker) (models.Marker, error) {
	filtered := make([]models.Marker, 0, len(markers))
	for _, m := range markers {
		if e.ref.typeChar == 'M' || typeChar(m.Type) == e.ref.typeChar {
			filtered = append(filtered, m)
		}
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Start < filtered[j].Start })

	idx := e.ref.index
	if idx < 0 {
		idx = len(filtered) + idx
	} else {
		idx--
	}
	if idx < 0 || idx >= len(filtered) {
		return models.Marker{}, &ParseError{Reason: ReasonIndexOutOfRange, Input: e.raw}
	}
	return filtered[idx], nil
}

func typeChar(t models.MarkerType) byte {
	switch t {
	case models.MarkerTypeIntro:
		return 'I'
	case models.MarkerTypeCredits:
		return 'C'
	case models.MarkerTypeAd:
		return 'A'
	}
	return '?'
}

func tagType(c byte) models.MarkerType {
	switch c {
	case 'I':
		return models.MarkerTypeIntro
	case 'C':
		return models.MarkerTypeCredits
	case 'A':
		return models.MarkerTypeAd
	}
	return ""
}

// parsePlain handles non-"=" inputs: raw millisecond counts and clock strings.
func parsePlain(s string, opts Options) (int64, error) {
	neg := false
	body := s
	if strings.HasPrefix(body, "-") {
		if !opts.AllowNegative {
			return 0, &ParseError{Reason: ReasonNegativeInput, Input: s}
		}
		neg = true
		body = body[1:]
	}

	var ms int64
	var err error
	if strings.ContainsAny(body, ":.") {
		ms, err = parseClock(body, s)
	} else {
		ms, err = parseRawMs(body, s)
	}
	if err != nil {
		return 0, err
	}
	if neg {
		ms = -ms
	}
	return ms, nil
}

func parseRawMs(body, input string) (int64, error) {
	if body == "" {
		return 0, &ParseError{Reason: ReasonBadTimestamp, Input: input}
	}
	v, err := strconv.ParseInt(body, 10, 64)
	if err != nil {
		return 0, &ParseError{Reason: ReasonBadTimestamp, Input: input}
	}
	return v, nil
}

// parseClock parses [hh:]mm:ss[.mmm].
func parseClock(body, input string) (int64, error) {
	frac := int64(0)
	if dot := strings.IndexByte(body, '.'); dot >= 0 {
		fracStr := body[dot+1:]
		body = body[:dot]
		if len(fracStr) == 0 || len(fracStr) > 3 || !allDigits(fracStr) {
			return 0, &ParseError{Reason: ReasonBadTimestamp, Input: input}
		}
		// ".5" is 500ms, ".05" is 50ms.
		for len(fracStr) < 3 {
			fracStr += "0"
		}
		frac, _ = strconv.ParseInt(fracStr, 10, 64)
	}

	parts := strings.Split(body, ":")
	if len(parts) < 1 || len(parts) > 3 {
		return 0, &ParseError{Reason: ReasonBadTimestamp, Input: input}
	}

	var units []int64
	for _, p := range parts {
		if p == "" || !allDigits(p) {
			return 0, &ParseError{Reason: ReasonBadTimestamp, Input: input}
		}
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return 0, &ParseError{Reason: ReasonBadTimestamp, Input: input}
		}
		units = append(units, v)
	}

	var ms int64
	switch len(units) {
	case 1: // bare seconds with a fraction, e.g. "90.5"
		ms = units[0] * 1000
	case 2: // mm:ss
		ms = units[0]*60000 + units[1]*1000
	case 3: // hh:mm:ss
		ms = units[0]*3600000 + units[1]*60000 + units[2]*1000
	}
	return ms + frac, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}
