/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package client

import (
	"errors"
	"net/url"

	"github.com/meridianfed/meridian/pkg/vocab"
)

// ReadReferences reads the references from the given iterator up to a maximum number
// specified by maxItems. If maxItems <= 0 then all references are read.
func ReadReferences(it ReferenceIterator, maxItems int) ([]*url.URL, error) {
	var refs []*url.URL

	for maxItems <= 0 || len(refs) < maxItems {
		ref, err := it.Next()
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				break
			}

			return nil, err
		}

		refs = append(refs, ref)
	}

	return refs, nil
}

// ReadItems reads the items from the given iterator up to a maximum number specified
// by maxItems. If maxItems <= 0 then all items are read.
func ReadItems(it ItemIterator, maxItems int) ([]*vocab.ObjectProperty, error) {
	var items []*vocab.ObjectProperty

	for maxItems <= 0 || len(items) < maxItems {
		item, err := it.Next()
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				break
			}

			return nil, err
		}

		items = append(items, item)
	}

	return items, nil
}
