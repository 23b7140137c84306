package timeexp

import "strings"

type tokenKind int

const (
	tokLiteral tokenKind = iota // clock string or raw ms, resolved to literalMs
	tokRef
	tokTypeTag
	tokPlus
	tokMinus
)

type token struct {
	kind      tokenKind
	literalMs int64
	ref       markerRef
	tagChar   byte
}

func isRefChar(c byte) bool {
	return c == 'I' || c == 'C' || c == 'A' || c == 'M'
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// scan splits the body of an "="-expression into tokens. The input string is
// only used for error reporting.
func scan(body, input string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(body) {
		c := body[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '+':
			tokens = append(tokens, token{kind: tokPlus})
			i++
		case c == '-':
			tokens = append(tokens, token{kind: tokMinus})
			i++
		case isRefChar(c):
			tok, n, err := scanRef(body[i:], input)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			i += n
		case isDigit(c):
			j := i
			for j < len(body) && (isDigit(body[j]) || body[j] == ':' || body[j] == '.') {
				j++
			}
			lit := body[i:j]
			var ms int64
			var err error
			if strings.ContainsAny(lit, ":.") {
				ms, err = parseClock(lit, input)
			} else {
				ms, err = parseRawMs(lit, input)
			}
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokLiteral, literalMs: ms})
			i = j
		default:
			return nil, &ParseError{Reason: ReasonBadTimestamp, Input: input}
		}
	}
	if len(tokens) == 0 {
		return nil, &ParseError{Reason: ReasonEmptyExpression, Input: input}
	}
	return tokens, nil
}

// scanRef consumes a type tag ("I@") or a marker reference ("I2", "C-1E").
func scanRef(s, input string) (token, int, error) {
	c := s[0]
	if len(s) > 1 && s[1] == '@' {
		if c == 'M' {
			// "M@" would tag the created marker as "any type".
			return token{}, 0, &ParseError{Reason: ReasonBadTimestamp, Input: input}
		}
		return token{kind: tokTypeTag, tagChar: c}, 2, nil
	}

	i := 1
	neg := false
	if i < len(s) && s[i] == '-' {
		neg = true
		i++
	}
	start := i
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	if i == start {
		return token{}, 0, &ParseError{Reason: ReasonBadTimestamp, Input: input}
	}

	idx := 0
	for _, d := range s[start:i] {
		idx = idx*10 + int(d-'0')
	}
	if idx == 0 {
		return token{}, 0, &ParseError{Reason: ReasonZeroIndex, Input: input}
	}
	if neg {
		idx = -idx
	}

	side := SideDefault
	if i < len(s) {
		switch s[i] {
		case 'S':
			side = SideStart
			i++
		case 'E':
			side = SideEnd
			i++
		}
	}

	return token{kind: tokRef, ref: markerRef{typeChar: c, index: idx, side: side}}, i, nil
}

// parseTokens assembles an Expression from a scanned token stream:
//
//	expr := [typeTag] term { ("+" | "-") term }
//
// with at most one marker reference, which may not follow a "-".
func parseTokens(tokens []token, input string, opts Options) (*Expression, error) {
	expr := &Expression{raw: input, opts: opts}

	pos := 0
	if tokens[pos].kind == tokTypeTag {
		if opts.IsEnd {
			return nil, &ParseError{Reason: ReasonTagOnEndField, Input: input}
		}
		expr.typeTag = tagType(tokens[pos].tagChar)
		pos++
	}

	sign := int64(1)
	expectTerm := true
	for ; pos < len(tokens); pos++ {
		tok := tokens[pos]
		switch tok.kind {
		case tokTypeTag:
			if expr.typeTag != "" {
				return nil, &ParseError{Reason: ReasonMultipleTypeTags, Input: input}
			}
			// A tag after the first term is always misplaced.
			return nil, &ParseError{Reason: ReasonBadTimestamp, Input: input}
		case tokPlus, tokMinus:
			if expectTerm {
				return nil, &ParseError{Reason: ReasonDoubleOperator, Input: input}
			}
			sign = 1
			if tok.kind == tokMinus {
				sign = -1
			}
			expectTerm = true
		case tokLiteral:
			if !expectTerm {
				return nil, &ParseError{Reason: ReasonBadTimestamp, Input: input}
			}
			expr.offset += sign * tok.literalMs
			expr.explicitOffset = true
			expectTerm = false
		case tokRef:
			if !expectTerm {
				return nil, &ParseError{Reason: ReasonBadTimestamp, Input: input}
			}
			if expr.ref != nil {
				return nil, &ParseError{Reason: ReasonMultipleRefs, Input: input}
			}
			if sign < 0 {
				return nil, &ParseError{Reason: ReasonSubtractedRef, Input: input}
			}
			ref := tok.ref
			expr.ref = &ref
			expectTerm = false
		}
	}
	if expectTerm {
		return nil, &ParseError{Reason: ReasonDoubleOperator, Input: input}
	}

	return expr, nil
}
