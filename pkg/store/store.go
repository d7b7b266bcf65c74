/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package store contains helpers for opening the namespaced stores used by the
// federation framework.
package store

import (
	"fmt"

	"github.com/hyperledger/aries-framework-go/spi/storage"
	"github.com/trustbloc/logutil-go/pkg/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	logfields "github.com/meridianfed/meridian/internal/pkg/log"
)

var logger = log.New("store")

// TagGroup defines a group of tags that may be used to create a compound index.
type TagGroup []string

// NewTagGroup is a convenience function that returns a TagGroup from the given set of tags.
func NewTagGroup(tags ...string) TagGroup {
	return tags
}

// Open opens the store for the given namespace and creates the necessary indexes.
// When the provider supports vendor-specific index creation (currently MongoDB)
// the indexes are created natively, otherwise the tags are registered through the
// generic store configuration.
func Open(provider storage.Provider, namespace string, tagGroups ...TagGroup) (storage.Store, error) {
	s, err := provider.OpenStore(namespace)
	if err != nil {
		return nil, fmt.Errorf("open store [%s]: %w", namespace, err)
	}

	ok, err := createVendorIndexes(provider, namespace, tagGroups)
	if err != nil {
		return nil, fmt.Errorf("create vendor indexes: %w", err)
	}

	if !ok {
		err = provider.SetStoreConfig(namespace, storage.StoreConfiguration{TagNames: uniqueTags(tagGroups)})
		if err != nil {
			return nil, fmt.Errorf("set store configuration for [%s]: %w", namespace, err)
		}
	}

	return s, nil
}

type mongoDBProvider interface {
	CreateCustomIndexes(storeName string, model ...mongo.IndexModel) error
}

func createVendorIndexes(provider storage.Provider, namespace string, tagGroups []TagGroup) (bool, error) {
	mongoDBProvider, ok := provider.(mongoDBProvider)
	if !ok {
		return false, nil
	}

	logger.Info("Creating MongoDB indexes", logfields.WithStoreName(namespace))

	for _, tagGroup := range tagGroups {
		logger.Debug("Creating MongoDB index", logfields.WithStoreName(namespace),
			logfields.WithTags(tagGroup...))

		keys := make(bson.D, len(tagGroup))

		for i, tag := range tagGroup {
			keys[i] = bson.E{Key: tag, Value: 1}
		}

		err := mongoDBProvider.CreateCustomIndexes(namespace, mongo.IndexModel{Keys: keys})
		if err != nil {
			return true, fmt.Errorf("create index for [%s]: %w", namespace, err)
		}
	}

	return true, nil
}

func uniqueTags(tagGroups []TagGroup) []string {
	var tags []string

	seen := make(map[string]struct{})

	for _, group := range tagGroups {
		for _, tag := range group {
			if _, ok := seen[tag]; ok {
				continue
			}

			seen[tag] = struct{}{}

			tags = append(tags, tag)
		}
	}

	return tags
}
