/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/trustbloc/logutil-go/pkg/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	logfields "github.com/meridianfed/meridian/internal/pkg/log"
	"github.com/meridianfed/meridian/pkg/restapi/common"
)

var (
	logger = log.New("httpserver")

	// BuildVersion contains the version of the Meridian build. It is intended
	// to be overridden at build time.
	BuildVersion string
)

const defaultTracingServiceName = "meridian"

// Fallback is consulted for requests that match none of the registered
// endpoints, before the server responds with 404. Handle returns false
// if the request was not handled.
type Fallback interface {
	Handle(w http.ResponseWriter, req *http.Request) bool
}

// Config holds the HTTP server configuration.
type Config struct {
	// Address is the TCP address for the server to listen on.
	Address string
	// CertFile and KeyFile enable TLS when both are set.
	CertFile string
	KeyFile  string
	// IdleTimeout is the maximum amount of time to wait for the next request.
	IdleTimeout time.Duration
	// ReadHeaderTimeout is the maximum amount of time to read request headers.
	ReadHeaderTimeout time.Duration
	// TracingServiceName names this server in request trace spans.
	TracingServiceName string
	// Fallback, if set, is offered requests that match no registered endpoint.
	Fallback Fallback
}

// Server implements an HTTP server.
type Server struct {
	httpServer *http.Server
	started    uint32
	certFile   string
	keyFile    string
}

// New returns a new HTTP server.
func New(cfg *Config, handlers ...common.HTTPHandler) *Server {
	s := &Server{
		certFile: cfg.CertFile,
		keyFile:  cfg.KeyFile,
	}

	serviceName := cfg.TracingServiceName
	if serviceName == "" {
		serviceName = defaultTracingServiceName
	}

	tracing := otelmux.Middleware(serviceName)

	router := mux.NewRouter()

	router.Use(tracing)

	for _, handler := range handlers {
		logger.Info("Registering handler", logfields.WithServiceEndpoint(handler.Path()))

		router.HandleFunc(handler.Path(), handler.Handler()).
			Methods(handler.Method()).
			Queries(params(handler)...)
	}

	// Requests that match none of the registered endpoints are offered to the
	// fallback. The middleware chain above only applies to matched routes, so
	// the tracing middleware is applied here explicitly.
	router.NotFoundHandler = tracing(newFallbackHandler(cfg.Fallback))

	handler := cors.New(
		cors.Options{
			AllowedMethods: []string{
				http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
			},
			AllowedHeaders: []string{"*"},
		},
	).Handler(router)

	http2Server := &http2.Server{
		IdleTimeout: cfg.IdleTimeout,
		CountError: func(errType string) {
			logger.Error("HTTP2 server error", logfields.WithError(errors.New(errType)))
		},
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Address,
		Handler:           h2c.NewHandler(handler, http2Server),
		IdleTimeout:       cfg.IdleTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	return s
}

// Start starts the HTTP server in a separate Go routine.
func (s *Server) Start() error {
	if !atomic.CompareAndSwapUint32(&s.started, 0, 1) {
		return fmt.Errorf("server already started")
	}

	go func() {
		logger.Info("Listening for requests", logfields.WithAddress(s.httpServer.Addr))

		var err error
		if s.keyFile != "" && s.certFile != "" {
			err = s.httpServer.ListenAndServeTLS(s.certFile, s.keyFile)
		} else {
			err = s.httpServer.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			panic(fmt.Sprintf("Failed to start server on [%s]: %s", s.httpServer.Addr, err))
		}

		atomic.StoreUint32(&s.started, 0)

		logger.Info("Server has stopped")
	}()

	return nil
}

// Stop stops the REST service.
func (s *Server) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapUint32(&s.started, 1, 0) {
		return fmt.Errorf("cannot stop HTTP server since it hasn't been started")
	}

	return s.httpServer.Shutdown(ctx)
}

func newFallbackHandler(fallback Fallback) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if fallback != nil && fallback.Handle(w, req) {
			return
		}

		http.NotFound(w, req)
	})
}

type paramHolder interface {
	Params() map[string]string
}

func params(handler common.HTTPHandler) []string {
	var queries []string

	if p, ok := handler.(paramHolder); ok {
		for name, value := range p.Params() {
			queries = append(queries, name, value)
		}
	}

	return queries
}
