/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package model contains the WebFinger data model.
package model

import "errors"

// ErrResourceNotFound indicates that the queried host does not know the requested resource.
var ErrResourceNotFound = errors.New("resource not found")

// Resp is a JSON Resource Descriptor (JRD) as defined in
// https://datatracker.ietf.org/doc/html/rfc6415#appendix-A
// and https://datatracker.ietf.org/doc/html/rfc7033#section-4.4.
type Resp struct {
	Subject    string                 `json:"subject,omitempty"`
	Aliases    []string               `json:"aliases,omitempty"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	Links      []Link                 `json:"links,omitempty"`
}

// Link is a link in a JRD.
// Note that while the WebFinger and host-meta endpoints both use this, only host-meta supports the Template field.
type Link struct {
	Rel      string `json:"rel,omitempty"`
	Type     string `json:"type,omitempty"`
	Href     string `json:"href,omitempty"`
	Template string `json:"template,omitempty"`
}
