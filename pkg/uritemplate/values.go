/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package uritemplate

// ValueKind specifies the shape of a variable value.
type ValueKind int

const (
	// KindString is a single string value.
	KindString ValueKind = iota
	// KindList is an ordered list of strings.
	KindList
	// KindAssoc is an ordered sequence of name-value pairs.
	KindAssoc
)

// Pair is a name-value pair within an associative value.
type Pair struct {
	Name  string
	Value string
}

// Value is the value of a template variable. Use StringValue, ListValue or
// AssocValue to construct one.
type Value struct {
	kind  ValueKind
	str   string
	raw   string
	list  []string
	assoc []Pair
}

// Values maps variable names to their values.
type Values map[string]Value

// StringValue returns a simple string value.
func StringValue(s string) Value {
	return Value{kind: KindString, str: s, raw: s}
}

// ListValue returns a list value.
func ListValue(items ...string) Value {
	return Value{kind: KindList, list: items}
}

// AssocValue returns an associative value composed of the given pairs. Order is preserved.
func AssocValue(pairs ...Pair) Value {
	return Value{kind: KindAssoc, assoc: pairs}
}

// Kind returns the shape of the value.
func (v Value) Kind() ValueKind {
	return v.kind
}

// String returns the string form of the value. For values captured by Match this is
// the form selected by the encoding policy: the raw bytes under EncodingOpaque,
// the decoded form otherwise. Composite values return an empty string.
func (v Value) String() string {
	return v.str
}

// Raw returns the un-decoded form of a value captured by Match. For a value captured
// under EncodingCooked, and for constructed values, Raw equals String.
func (v Value) Raw() string {
	return v.raw
}

// List returns the items of a list value.
func (v Value) List() []string {
	return v.list
}

// Assoc returns the pairs of an associative value.
func (v Value) Assoc() []Pair {
	return v.assoc
}

// defined returns false for values which RFC 6570 treats as undefined: an empty
// list or an empty associative array. An empty string is defined.
func (v Value) defined() bool {
	switch v.kind {
	case KindList:
		return len(v.list) > 0
	case KindAssoc:
		return len(v.assoc) > 0
	default:
		return true
	}
}
