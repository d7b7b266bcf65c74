/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package common defines the contract between REST endpoints and the HTTP server.
package common

import "net/http"

// HTTPRequestHandler handles an HTTP request.
type HTTPRequestHandler func(w http.ResponseWriter, req *http.Request)

// HTTPHandler is an endpoint that may be registered with an HTTP server.
type HTTPHandler interface {
	// Path returns the path of the endpoint.
	Path() string
	// Method returns the HTTP method of the endpoint.
	Method() string
	// Handler returns the function that is invoked for requests to the endpoint.
	Handler() HTTPRequestHandler
}
