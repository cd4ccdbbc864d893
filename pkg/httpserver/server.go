/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package httpserver implements the HTTP server that exposes the federation
// endpoints along with operational REST handlers.
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

	logfields "github.com/fedway/fedway/internal/pkg/log"
)

var logger = log.New("httpserver")

// BuildVersion contains the version of the Fedway build. It is set at build time.
var BuildVersion string //nolint:gochecknoglobals

// Handler is a REST handler served at a fixed path.
type Handler interface {
	// Path returns the path at which the handler is registered.
	Path() string
	// Method returns the HTTP method of the handler.
	Method() string
	// Handler returns the HTTP handler function.
	Handler() http.HandlerFunc
}

// Server implements an HTTP server.
type Server struct {
	httpServer *http.Server
	started    uint32
	certFile   string
	keyFile    string
}

type options struct {
	fallback    http.Handler
	serviceName string
}

// Opt sets a server option.
type Opt func(opts *options)

// WithFallbackHandler sets the handler to which requests not matched by any of
// the registered REST handlers are dispatched.
func WithFallbackHandler(handler http.Handler) Opt {
	return func(opts *options) {
		opts.fallback = handler
	}
}

// WithTracing enables OpenTelemetry tracing of inbound requests under the given
// service name.
func WithTracing(serviceName string) Opt {
	return func(opts *options) {
		opts.serviceName = serviceName
	}
}

// New returns a new HTTP server that serves the given handlers.
func New(addr, certFile, keyFile string, serverIdleTimeout, serverReadHeaderTimeout time.Duration,
	handlers []Handler, opts ...Opt) *Server {
	s := &Server{
		certFile: certFile,
		keyFile:  keyFile,
	}

	o := &options{}

	for _, opt := range opts {
		opt(o)
	}

	router := mux.NewRouter()

	if o.serviceName != "" {
		router.Use(otelmux.Middleware(o.serviceName))
	}

	for _, handler := range handlers {
		logger.Info("Registering handler", logfields.WithServiceEndpoint(handler.Path()))

		router.HandleFunc(handler.Path(), handler.Handler()).Methods(handler.Method())
	}

	if o.fallback != nil {
		router.PathPrefix("/").Handler(o.fallback)
	}

	handler := cors.New(
		cors.Options{
			AllowedMethods: []string{
				http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
			},
			AllowedHeaders: []string{"*"},
		},
	).Handler(router)

	http2Server := &http2.Server{
		IdleTimeout: serverIdleTimeout,
		CountError: func(errType string) {
			logger.Error("HTTP2 server error", log.WithError(errors.New(errType)))
		},
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           h2c.NewHandler(handler, http2Server),
		IdleTimeout:       serverIdleTimeout,
		ReadHeaderTimeout: serverReadHeaderTimeout,
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

// Stop shuts the server down, waiting for active requests to complete until the
// context is cancelled.
func (s *Server) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapUint32(&s.started, 1, 0) {
		return fmt.Errorf("cannot stop HTTP server since it hasn't been started")
	}

	return s.httpServer.Shutdown(ctx)
}
