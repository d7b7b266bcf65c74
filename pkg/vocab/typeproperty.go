/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"encoding/json"
	"fmt"
)

// TypeProperty holds the 'type' property of an object, which may be either a
// single type or an array of types.
type TypeProperty struct {
	types []Type
}

// NewTypeProperty returns a new 'type' property. Nil is returned if no types were provided.
func NewTypeProperty(t ...Type) *TypeProperty {
	if len(t) == 0 {
		return nil
	}

	return &TypeProperty{types: t}
}

// Types returns all types.
func (p *TypeProperty) Types() []Type {
	if p == nil {
		return nil
	}

	return p.types
}

// Is returns true if the property has all of the given types.
func (p *TypeProperty) Is(types ...Type) bool {
	if p == nil || len(types) == 0 {
		return false
	}

	for _, t := range types {
		if !p.contains(t) {
			return false
		}
	}

	return true
}

// IsAny returns true if the property has any of the given types.
func (p *TypeProperty) IsAny(types ...Type) bool {
	if p == nil {
		return false
	}

	for _, t := range types {
		if p.contains(t) {
			return true
		}
	}

	return false
}

func (p *TypeProperty) contains(t Type) bool {
	for _, pt := range p.types {
		if pt == t {
			return true
		}
	}

	return false
}

// String returns the string representation of the type property.
func (p *TypeProperty) String() string {
	switch {
	case p == nil || len(p.types) == 0:
		return ""
	case len(p.types) == 1:
		return string(p.types[0])
	default:
		return fmt.Sprintf("%s", p.types)
	}
}

// MarshalJSON marshals a single type as a string and multiple types as an array.
func (p *TypeProperty) MarshalJSON() ([]byte, error) {
	if len(p.types) == 1 {
		return json.Marshal(p.types[0])
	}

	return json.Marshal(p.types)
}

// UnmarshalJSON unmarshals the type property from either a string or an array.
func (p *TypeProperty) UnmarshalJSON(bytes []byte) error {
	var single Type

	if err := json.Unmarshal(bytes, &single); err == nil {
		p.types = []Type{single}

		return nil
	}

	var types []Type

	if err := json.Unmarshal(bytes, &types); err != nil {
		return err
	}

	p.types = types

	return nil
}
