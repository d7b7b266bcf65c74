/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package uritemplate implements RFC 6570 URI templates, levels 1 through 4,
// including reverse matching of a URI against a template.
package uritemplate

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

const maxPrefixLength = 9999

// Template is a parsed URI template.
type Template struct {
	raw      string
	segments []segment
	names    []string
}

type segment struct {
	literal string
	expr    *expression
}

type expression struct {
	op   operator
	vars []varspec
}

type varspec struct {
	name    string
	maxLen  int
	explode bool
}

type operator byte

type opProfile struct {
	first         string
	sep           string
	named         bool
	ifemp         string
	allowReserved bool
}

//nolint:gochecknoglobals
var opProfiles = map[operator]opProfile{
	0:   {first: "", sep: ",", named: false, ifemp: "", allowReserved: false},
	'+': {first: "", sep: ",", named: false, ifemp: "", allowReserved: true},
	'#': {first: "#", sep: ",", named: false, ifemp: "", allowReserved: true},
	'.': {first: ".", sep: ".", named: false, ifemp: "", allowReserved: false},
	'/': {first: "/", sep: "/", named: false, ifemp: "", allowReserved: false},
	';': {first: ";", sep: ";", named: true, ifemp: "", allowReserved: false},
	'?': {first: "?", sep: "&", named: true, ifemp: "=", allowReserved: false},
	'&': {first: "&", sep: "&", named: true, ifemp: "=", allowReserved: false},
}

// Parse parses the given URI template.
func Parse(tmpl string) (*Template, error) {
	t := &Template{raw: tmpl}

	for i := 0; i < len(tmpl); {
		if tmpl[i] == '{' {
			end := strings.IndexByte(tmpl[i:], '}')
			if end < 0 {
				return nil, fmt.Errorf("unterminated expression at position %d", i)
			}

			expr, err := parseExpression(tmpl[i+1 : i+end])
			if err != nil {
				return nil, fmt.Errorf("invalid expression at position %d: %w", i, err)
			}

			t.segments = append(t.segments, segment{expr: expr})

			i += end + 1

			continue
		}

		next := strings.IndexByte(tmpl[i:], '{')
		if next < 0 {
			next = len(tmpl) - i
		}

		lit := tmpl[i : i+next]

		if strings.ContainsRune(lit, '}') {
			return nil, fmt.Errorf("unexpected '}' at position %d", i+strings.IndexByte(lit, '}'))
		}

		t.segments = append(t.segments, segment{literal: lit})

		i += next
	}

	t.names = collectNames(t.segments)

	return t, nil
}

// MustParse parses the given URI template and panics if it is invalid.
func MustParse(tmpl string) *Template {
	t, err := Parse(tmpl)
	if err != nil {
		panic(err)
	}

	return t
}

// String returns the raw template string.
func (t *Template) String() string {
	return t.raw
}

// Names returns the variable names referenced by the template, in order of first
// appearance.
func (t *Template) Names() []string {
	return t.names
}

// Skeleton returns the template with every expression erased. Templates whose
// skeletons are equal capture the same URL shapes.
func (t *Template) Skeleton() string {
	var b strings.Builder

	for _, seg := range t.segments {
		if seg.expr != nil {
			b.WriteString("{}")

			continue
		}

		b.WriteString(seg.literal)
	}

	return b.String()
}

// Expand expands the template using the given variable values. Undefined
// variables are skipped per RFC 6570. Percent triplets already present in a
// value are passed through unchanged, making expansion idempotent with respect
// to percent-encoding.
func (t *Template) Expand(vars Values) (string, error) {
	var b strings.Builder

	for _, seg := range t.segments {
		if seg.expr == nil {
			b.WriteString(seg.literal)

			continue
		}

		if err := seg.expr.expand(&b, vars); err != nil {
			return "", err
		}
	}

	return b.String(), nil
}

func parseExpression(s string) (*expression, error) {
	if s == "" {
		return nil, errors.New("empty expression")
	}

	var op operator

	switch s[0] {
	case '+', '#', '.', '/', ';', '?', '&':
		op = operator(s[0])
		s = s[1:]
	case '=', ',', '!', '@', '|':
		return nil, fmt.Errorf("operator %q is reserved for future use", s[0])
	}

	if s == "" {
		return nil, errors.New("expression has no variables")
	}

	expr := &expression{op: op}

	for _, v := range strings.Split(s, ",") {
		spec, err := parseVarspec(v)
		if err != nil {
			return nil, err
		}

		expr.vars = append(expr.vars, spec)
	}

	return expr, nil
}

func parseVarspec(s string) (varspec, error) {
	spec := varspec{}

	if strings.HasSuffix(s, "*") {
		spec.explode = true
		s = strings.TrimSuffix(s, "*")
	}

	if idx := strings.IndexByte(s, ':'); idx >= 0 {
		if spec.explode {
			return varspec{}, fmt.Errorf("variable [%s] combines prefix and explode modifiers", s)
		}

		n, err := strconv.Atoi(s[idx+1:])
		if err != nil || n < 1 || n > maxPrefixLength {
			return varspec{}, fmt.Errorf("invalid prefix length in variable [%s]", s)
		}

		spec.maxLen = n
		s = s[:idx]
	}

	if s == "" {
		return varspec{}, errors.New("empty variable name")
	}

	for i := 0; i < len(s); i++ {
		c := s[i]

		if isAlphaNum(c) || c == '_' || c == '.' {
			continue
		}

		if c == '%' && i+2 < len(s) && isHexDigit(s[i+1]) && isHexDigit(s[i+2]) {
			i += 2

			continue
		}

		return varspec{}, fmt.Errorf("invalid character %q in variable name [%s]", c, s)
	}

	spec.name = s

	return spec, nil
}

func collectNames(segments []segment) []string {
	var names []string

	seen := make(map[string]struct{})

	for _, seg := range segments {
		if seg.expr == nil {
			continue
		}

		for _, spec := range seg.expr.vars {
			if _, ok := seen[spec.name]; ok {
				continue
			}

			seen[spec.name] = struct{}{}

			names = append(names, spec.name)
		}
	}

	return names
}

func (e *expression) expand(b *strings.Builder, vars Values) error {
	p := opProfiles[e.op]

	first := true

	for _, spec := range e.vars {
		val, ok := vars[spec.name]
		if !ok || !val.defined() {
			continue
		}

		if first {
			b.WriteString(p.first)

			first = false
		} else {
			b.WriteString(p.sep)
		}

		if err := expandValue(b, p, spec, val); err != nil {
			return err
		}
	}

	return nil
}

func expandValue(b *strings.Builder, p opProfile, spec varspec, val Value) error {
	switch val.Kind() {
	case KindString:
		expandString(b, p, spec, val.String())

		return nil
	case KindList:
		if spec.maxLen > 0 {
			return fmt.Errorf("prefix modifier is not applicable to list variable [%s]", spec.name)
		}

		expandList(b, p, spec, val.List())

		return nil
	case KindAssoc:
		if spec.maxLen > 0 {
			return fmt.Errorf("prefix modifier is not applicable to associative variable [%s]", spec.name)
		}

		expandAssoc(b, p, spec, val.Assoc())

		return nil
	default:
		return fmt.Errorf("unsupported value kind for variable [%s]", spec.name)
	}
}

func expandString(b *strings.Builder, p opProfile, spec varspec, s string) {
	if spec.maxLen > 0 {
		s = valuePrefix(s, spec.maxLen)
	}

	if p.named {
		b.WriteString(spec.name)

		if s == "" {
			b.WriteString(p.ifemp)

			return
		}

		b.WriteByte('=')
	}

	b.WriteString(escape(s, p.allowReserved))
}

func expandList(b *strings.Builder, p opProfile, spec varspec, items []string) {
	if spec.explode {
		for i, item := range items {
			if i > 0 {
				b.WriteString(p.sep)
			}

			if p.named {
				b.WriteString(spec.name)

				if item == "" {
					b.WriteString(p.ifemp)

					continue
				}

				b.WriteByte('=')
			}

			b.WriteString(escape(item, p.allowReserved))
		}

		return
	}

	if p.named {
		b.WriteString(spec.name)
		b.WriteByte('=')
	}

	for i, item := range items {
		if i > 0 {
			b.WriteByte(',')
		}

		b.WriteString(escape(item, p.allowReserved))
	}
}

func expandAssoc(b *strings.Builder, p opProfile, spec varspec, pairs []Pair) {
	if spec.explode {
		for i, pair := range pairs {
			if i > 0 {
				b.WriteString(p.sep)
			}

			b.WriteString(escape(pair.Name, p.allowReserved))

			if p.named && pair.Value == "" {
				b.WriteString(p.ifemp)

				continue
			}

			b.WriteByte('=')
			b.WriteString(escape(pair.Value, p.allowReserved))
		}

		return
	}

	if p.named {
		b.WriteString(spec.name)
		b.WriteByte('=')
	}

	for i, pair := range pairs {
		if i > 0 {
			b.WriteByte(',')
		}

		b.WriteString(escape(pair.Name, p.allowReserved))
		b.WriteByte(',')
		b.WriteString(escape(pair.Value, p.allowReserved))
	}
}

// escape percent-encodes s. Unreserved characters are copied verbatim, as are
// reserved characters when allowReserved is true. An existing percent triplet is
// copied byte-for-byte rather than double-encoded.
func escape(s string, allowReserved bool) string {
	var b strings.Builder

	for i := 0; i < len(s); i++ {
		c := s[i]

		switch {
		case isUnreserved(c):
			b.WriteByte(c)
		case allowReserved && isReserved(c):
			b.WriteByte(c)
		case c == '%' && i+2 < len(s) && isHexDigit(s[i+1]) && isHexDigit(s[i+2]):
			b.WriteString(s[i : i+3])

			i += 2
		default:
			b.WriteString(pctEncode(c))
		}
	}

	return b.String()
}

// valuePrefix returns the first maxLen characters of s, counting an embedded
// percent triplet as a single character.
func valuePrefix(s string, maxLen int) string {
	count := 0

	for i := 0; i < len(s); {
		if count == maxLen {
			return s[:i]
		}

		if s[i] == '%' && i+2 < len(s) && isHexDigit(s[i+1]) && isHexDigit(s[i+2]) {
			i += 3
		} else {
			_, size := utf8.DecodeRuneInString(s[i:])

			i += size
		}

		count++
	}

	return s
}

func pctEncode(c byte) string {
	const hexDigits = "0123456789ABCDEF"

	return string([]byte{'%', hexDigits[c>>4], hexDigits[c&0xf]})
}

func isAlphaNum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isUnreserved(c byte) bool {
	return isAlphaNum(c) || c == '-' || c == '.' || c == '_' || c == '~'
}

func isReserved(c byte) bool {
	switch c {
	case ':', '/', '?', '#', '[', ']', '@', '!', '$', '&', '\'', '(', ')', '*', '+', ',', ';', '=':
		return true
	default:
		return false
	}
}
