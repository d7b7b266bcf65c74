/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"fmt"

	"github.com/piprate/json-gold/ld"
)

// MarshalRaw marshals the object to its original wire form if the document
// from which it was unmarshalled is still memoised, otherwise marshals the
// object in the usual way.
func MarshalRaw(obj interface{}) ([]byte, error) {
	if provider, ok := obj.(interface{ Raw() Document }); ok {
		if raw := provider.Raw(); raw != nil {
			return Marshal(raw)
		}
	}

	return Marshal(obj)
}

// MarshalCompact marshals the object as a JSON-LD document compacted against
// the given contexts. If no context is given then the ActivityStreams context
// is used. Remote contexts are resolved with the given loader.
func MarshalCompact(obj interface{}, loader ld.DocumentLoader, contexts ...Context) ([]byte, error) {
	doc, err := toDocument(obj)
	if err != nil {
		return nil, err
	}

	compacted, err := ld.NewJsonLdProcessor().Compact(
		map[string]interface{}(doc), contextDoc(contexts), newJSONLdOptions(loader),
	)
	if err != nil {
		return nil, fmt.Errorf("compact document: %w", err)
	}

	return Marshal(compacted)
}

// MarshalExpanded marshals the object as an expanded JSON-LD document. Remote
// contexts are resolved with the given loader.
func MarshalExpanded(obj interface{}, loader ld.DocumentLoader) ([]byte, error) {
	doc, err := toDocument(obj)
	if err != nil {
		return nil, err
	}

	expanded, err := ld.NewJsonLdProcessor().Expand(
		map[string]interface{}(doc), newJSONLdOptions(loader),
	)
	if err != nil {
		return nil, fmt.Errorf("expand document: %w", err)
	}

	return Marshal(expanded)
}

func newJSONLdOptions(loader ld.DocumentLoader) *ld.JsonLdOptions {
	options := ld.NewJsonLdOptions("")
	options.DocumentLoader = loader
	options.ProcessingMode = ld.JsonLd_1_1

	return options
}

func contextDoc(contexts []Context) map[string]interface{} {
	if len(contexts) == 0 {
		contexts = []Context{ContextActivityStreams}
	}

	if len(contexts) == 1 {
		return map[string]interface{}{propertyContext: string(contexts[0])}
	}

	entries := make([]interface{}, len(contexts))

	for i, c := range contexts {
		entries[i] = string(c)
	}

	return map[string]interface{}{propertyContext: entries}
}

func toDocument(obj interface{}) (Document, error) {
	if provider, ok := obj.(interface{ Raw() Document }); ok {
		if raw := provider.Raw(); raw != nil {
			return raw, nil
		}
	}

	return MarshalToDoc(obj)
}
