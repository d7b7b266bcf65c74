/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package uritemplate

import (
	"strings"
)

// Encoding selects how percent triplets in captured values are treated by Match.
type Encoding int

const (
	// EncodingOpaque keeps the raw bytes of each captured value, so that expanding
	// the captured values reproduces a canonical URL byte-for-byte.
	EncodingOpaque Encoding = iota
	// EncodingCooked decodes each valid percent triplet exactly once.
	EncodingCooked
	// EncodingLossless captures both the raw and the decoded form of each value.
	EncodingLossless
)

type matchOptions struct {
	encoding Encoding
	strict   bool
}

// MatchOpt sets a match option.
type MatchOpt func(*matchOptions)

// WithEncoding sets the encoding policy applied to captured values. The default
// is EncodingOpaque.
func WithEncoding(encoding Encoding) MatchOpt {
	return func(opts *matchOptions) {
		opts.encoding = encoding
	}
}

// WithStrict causes a match to fail when a captured value contains a bare '%' or
// an invalid percent triplet. Non-strict matching accepts them verbatim.
func WithStrict(strict bool) MatchOpt {
	return func(opts *matchOptions) {
		opts.strict = strict
	}
}

// Match matches the given URI reference against the template and returns the
// captured variable values. It reports false if the URI does not match.
func (t *Template) Match(u string, opts ...MatchOpt) (Values, bool) {
	options := &matchOptions{}

	for _, opt := range opts {
		opt(options)
	}

	m := &matcher{template: t, options: options, values: make(Values)}

	if !m.run(u) {
		return nil, false
	}

	return m.values, true
}

type matcher struct {
	template *Template
	options  *matchOptions
	values   Values
}

func (m *matcher) run(u string) bool {
	pos := 0

	for i, seg := range m.template.segments {
		if seg.expr == nil {
			if !strings.HasPrefix(u[pos:], seg.literal) {
				return false
			}

			pos += len(seg.literal)

			continue
		}

		end := m.regionEnd(u, pos, i)
		if end < 0 {
			return false
		}

		if !m.matchExpression(seg.expr, u[pos:end]) {
			return false
		}

		pos = end
	}

	return pos == len(u)
}

// regionEnd returns the position where the capture region of the expression at
// segment index i ends. Capture is greedy but stops at the next literal or at
// the first character introduced by a following expression. Expressions after
// i may legitimately be absent from the URI, so the scan continues past their
// anchors until a literal (which must be present) is reached.
func (m *matcher) regionEnd(u string, pos, i int) int {
	end := len(u)

	for j := i + 1; j < len(m.template.segments); j++ {
		seg := m.template.segments[j]

		if seg.expr == nil {
			idx := strings.Index(u[pos:], seg.literal)
			if idx < 0 {
				return -1
			}

			if pos+idx < end {
				end = pos + idx
			}

			return end
		}

		first := opProfiles[seg.expr.op].first
		if first == "" {
			// A simple expression gives us nothing to scan for.
			return end
		}

		if idx := strings.Index(u[pos:], first); idx >= 0 && pos+idx < end {
			end = pos + idx
		}
	}

	return end
}

func (m *matcher) matchExpression(expr *expression, region string) bool {
	p := opProfiles[expr.op]

	if region == "" {
		// Nothing captured; all variables in the expression are undefined.
		return true
	}

	if p.first != "" {
		if !strings.HasPrefix(region, p.first) {
			return false
		}

		region = region[len(p.first):]
	}

	parts := strings.Split(region, p.sep)

	if p.named {
		return m.matchNamed(expr, parts)
	}

	return m.matchPositional(expr, parts, p.sep)
}

// matchNamed assigns name=value parts to the expression's variables. Parts not
// claimed by a simple variable are attributed to the exploded variable: a list
// when every such part starts with the variable's own name, an associative
// array otherwise.
func (m *matcher) matchNamed(expr *expression, parts []string) bool {
	type namedPart struct {
		name  string
		value string
	}

	unclaimed := make([]namedPart, 0, len(parts))

	for _, part := range parts {
		if part == "" {
			continue
		}

		// A part with no '=' is a name with an empty value, as produced by the ';' operator.
		idx := strings.IndexByte(part, '=')
		if idx < 0 {
			unclaimed = append(unclaimed, namedPart{name: part})
		} else {
			unclaimed = append(unclaimed, namedPart{name: part[:idx], value: part[idx+1:]})
		}
	}

	for _, spec := range expr.vars {
		if spec.explode {
			continue
		}

		for i, part := range unclaimed {
			if part.name != spec.name {
				continue
			}

			if !m.capture(spec.name, part.value) {
				return false
			}

			unclaimed = append(unclaimed[:i], unclaimed[i+1:]...)

			break
		}
	}

	for _, spec := range expr.vars {
		if !spec.explode {
			continue
		}

		if len(unclaimed) == 0 {
			break
		}

		isList := true

		for _, part := range unclaimed {
			if part.name != spec.name {
				isList = false

				break
			}
		}

		if isList {
			items := make([]string, 0, len(unclaimed))

			for _, part := range unclaimed {
				decoded, ok := m.decode(part.value)
				if !ok {
					return false
				}

				items = append(items, decoded)
			}

			m.values[spec.name] = ListValue(items...)
		} else {
			pairs := make([]Pair, 0, len(unclaimed))

			for _, part := range unclaimed {
				name, ok := m.decode(part.name)
				if !ok {
					return false
				}

				value, ok := m.decode(part.value)
				if !ok {
					return false
				}

				pairs = append(pairs, Pair{Name: name, Value: value})
			}

			m.values[spec.name] = AssocValue(pairs...)
		}

		unclaimed = nil
	}

	return len(unclaimed) == 0
}

// matchPositional assigns parts to variables in order. An exploded variable
// absorbs all remaining parts as a list; otherwise the final variable absorbs
// any surplus parts, re-joined with the operator's separator.
func (m *matcher) matchPositional(expr *expression, parts []string, sep string) bool {
	for i, spec := range expr.vars {
		if len(parts) == 0 {
			return true
		}

		if spec.explode {
			items := make([]string, 0, len(parts))

			for _, part := range parts {
				decoded, ok := m.decode(part)
				if !ok {
					return false
				}

				items = append(items, decoded)
			}

			m.values[spec.name] = ListValue(items...)

			return true
		}

		raw := parts[0]
		parts = parts[1:]

		if i == len(expr.vars)-1 && len(parts) > 0 {
			raw += sep + strings.Join(parts, sep)
			parts = nil
		}

		if !m.capture(spec.name, raw) {
			return false
		}
	}

	return len(parts) == 0
}

func (m *matcher) capture(name, raw string) bool {
	if m.options.strict && !validPercentTriplets(raw) {
		return false
	}

	switch m.options.encoding {
	case EncodingOpaque:
		m.values[name] = Value{kind: KindString, str: raw, raw: raw}
	case EncodingCooked:
		decoded := decodeOnce(raw)
		m.values[name] = Value{kind: KindString, str: decoded, raw: decoded}
	case EncodingLossless:
		m.values[name] = Value{kind: KindString, str: decodeOnce(raw), raw: raw}
	}

	return true
}

// decode applies the encoding policy to a component of a composite value.
func (m *matcher) decode(raw string) (string, bool) {
	if m.options.strict && !validPercentTriplets(raw) {
		return "", false
	}

	if m.options.encoding == EncodingOpaque {
		return raw, true
	}

	return decodeOnce(raw), true
}

// decodeOnce decodes each valid percent triplet exactly once. Invalid triplets
// are copied verbatim.
func decodeOnce(s string) string {
	var b strings.Builder

	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) && isHexDigit(s[i+1]) && isHexDigit(s[i+2]) {
			b.WriteByte(hexValue(s[i+1])<<4 | hexValue(s[i+2]))

			i += 2

			continue
		}

		b.WriteByte(s[i])
	}

	return b.String()
}

func validPercentTriplets(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			continue
		}

		if i+2 >= len(s) || !isHexDigit(s[i+1]) || !isHexDigit(s[i+2]) {
			return false
		}

		i += 2
	}

	return true
}

func hexValue(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
