/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package ldcontext embeds the JSON-LD contexts that are preloaded into the
// document loader. Preloaded contexts are served from memory and are never
// fetched from the network.
package ldcontext

import (
	"embed"
	"encoding/json"
	"os"
	"sync"
)

const payloadDir = "payload"

// Document is an embedded JSON-LD context document.
type Document struct {
	URL     string          `json:"url"`
	Content json.RawMessage `json:"content"`
}

// nolint: gochecknoglobals
var (
	//go:embed payload/*.json
	fs embed.FS

	contexts []Document
	once     sync.Once
	errOnce  error
)

// GetAll returns all embedded contexts.
func GetAll() ([]Document, error) {
	once.Do(func() {
		var entries []os.DirEntry

		entries, errOnce = fs.ReadDir(payloadDir)
		if errOnce != nil {
			return
		}

		for _, entry := range entries {
			var file os.FileInfo

			file, errOnce = entry.Info()
			if errOnce != nil {
				return
			}

			var content []byte

			// Do not use os.PathSeparator here, we are using go:embed to load files.
			// The path separator is a forward slash, even on Windows systems.
			content, errOnce = fs.ReadFile(payloadDir + "/" + file.Name())
			if errOnce != nil {
				return
			}

			var doc Document

			errOnce = json.Unmarshal(content, &doc)
			if errOnce != nil {
				return
			}

			contexts = append(contexts, doc)
		}
	})

	return append(contexts[:0:0], contexts...), errOnce
}

// MustGetAll returns all embedded contexts.
func MustGetAll() []Document {
	docs, err := GetAll()
	if err != nil {
		panic(err)
	}

	return docs
}
