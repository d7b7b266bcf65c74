/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"encoding/json"
)

// ContextProperty holds one or more contexts. A context is usually an IRI but
// may also be an embedded term definition, which is preserved as-is.
type ContextProperty struct {
	contexts []Context
	entries  []interface{}
}

// NewContextProperty returns a new 'context' property. Nil is returned if no context was provided.
func NewContextProperty(context ...Context) *ContextProperty {
	if len(context) == 0 {
		return nil
	}

	p := &ContextProperty{contexts: context}

	for _, ctx := range context {
		p.entries = append(p.entries, string(ctx))
	}

	return p
}

// Contexts returns the IRI contexts defined in the property. Embedded term
// definitions are not included.
func (p *ContextProperty) Contexts() []Context {
	if p == nil {
		return nil
	}

	return p.contexts
}

// Contains returns true if the property contains all of the given contexts.
func (p *ContextProperty) Contains(contexts ...Context) bool {
	if p == nil || len(contexts) == 0 {
		return false
	}

	for _, t := range contexts {
		if !p.contains(t) {
			return false
		}
	}

	return true
}

// ContainsAny returns true if the property contains any of the given contexts.
func (p *ContextProperty) ContainsAny(contexts ...Context) bool {
	if p == nil || len(contexts) == 0 {
		return false
	}

	for _, t := range contexts {
		if p.contains(t) {
			return true
		}
	}

	return false
}

// String returns the string representation of the context property.
func (p *ContextProperty) String() string {
	if p == nil || len(p.contexts) == 0 {
		return ""
	}

	if len(p.contexts) == 1 {
		return string(p.contexts[0])
	}

	b, err := json.Marshal(p.contexts)
	if err != nil {
		return ""
	}

	return string(b)
}

// MarshalJSON marshals the context property.
func (p *ContextProperty) MarshalJSON() ([]byte, error) {
	if len(p.entries) == 1 {
		return json.Marshal(p.entries[0])
	}

	return json.Marshal(p.entries)
}

// UnmarshalJSON unmarshals the context property.
func (p *ContextProperty) UnmarshalJSON(bytes []byte) error {
	var entry interface{}

	if err := json.Unmarshal(bytes, &entry); err != nil {
		return err
	}

	entries, ok := entry.([]interface{})
	if !ok {
		entries = []interface{}{entry}
	}

	p.entries = entries

	for _, e := range entries {
		if ctx, ok := e.(string); ok {
			p.contexts = append(p.contexts, Context(ctx))
		}
	}

	return nil
}

func (p *ContextProperty) contains(t Context) bool {
	for _, pt := range p.contexts {
		if pt == t {
			return true
		}
	}

	return false
}
