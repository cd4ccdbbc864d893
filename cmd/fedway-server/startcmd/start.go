/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package startcmd implements the 'start' command of fedway-server.
package startcmd

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	ariesmongodbstorage "github.com/hyperledger/aries-framework-go-ext/component/storage/mongodb"
	ariesmemstorage "github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	ariesstorage "github.com/hyperledger/aries-framework-go/spi/storage"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/fedway/fedway/internal/pkg/log"
	"github.com/fedway/fedway/internal/pkg/tlsutil"
	"github.com/fedway/fedway/pkg/cache"
	federrors "github.com/fedway/fedway/pkg/errors"
	"github.com/fedway/fedway/pkg/federation"
	"github.com/fedway/fedway/pkg/healthcheck"
	"github.com/fedway/fedway/pkg/httpserver"
	"github.com/fedway/fedway/pkg/keyutil"
	"github.com/fedway/fedway/pkg/observability/loglevels"
	prommetrics "github.com/fedway/fedway/pkg/observability/metrics/prometheus"
	"github.com/fedway/fedway/pkg/observability/tracing"
	"github.com/fedway/fedway/pkg/queue/amqpqueue"
	"github.com/fedway/fedway/pkg/queue/memqueue"
	queuespi "github.com/fedway/fedway/pkg/queue/spi"
	"github.com/fedway/fedway/pkg/store/ariesstore"
	storespi "github.com/fedway/fedway/pkg/store/spi"
	"github.com/fedway/fedway/pkg/vocab"
)

var logger = log.New("fedway-server")

const (
	defaultServerIdleTimeout       = 20 * time.Second
	defaultServerReadHeaderTimeout = 20 * time.Second
	defaultShutdownTimeout         = 10 * time.Second

	storeNamespace = "federation"

	metricsEndpoint = "/metrics"
)

// GetStartCmd returns the Cobra start command.
func GetStartCmd() *cobra.Command {
	startCmd := createStartCmd()

	createFlags(startCmd)

	return startCmd
}

func createStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start fedway-server",
		Long:  "Start the Fedway federation server",
		RunE: func(cmd *cobra.Command, args []string) error {
			parameters, err := getParameters(cmd)
			if err != nil {
				return err
			}

			return startServer(parameters)
		},
	}
}

//nolint:funlen
func startServer(parameters *serverParameters) error {
	setLogLevels(parameters.logLevel)

	tracer, err := tracing.Initialize(parameters.tracing.provider, parameters.tracing.serviceName,
		parameters.tracing.collectorURL)
	if err != nil {
		return fmt.Errorf("initialize tracing: %w", err)
	}

	tracer.Start()
	defer tracer.Stop()

	httpClient, err := newHTTPClient(parameters.tls)
	if err != nil {
		return err
	}

	storeProvider, pinger, err := createStoreProvider(parameters.db)
	if err != nil {
		return err
	}

	kvStore, err := ariesstore.Open(storeProvider, storeNamespace)
	if err != nil {
		return fmt.Errorf("open key-value store: %w", err)
	}

	queue, err := createQueue(parameters.mqURL)
	if err != nil {
		return err
	}

	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("Error closing outbox queue", log.WithError(err))
		}
	}()

	metrics := prommetrics.New(promclient.DefaultRegisterer)

	fed, err := federation.New(&federation.Config{
		KVStore:         kvStore,
		Queue:           queue,
		HTTPClient:      httpClient,
		TreatHTTPS:      parameters.tls.certificate != "",
		BackoffSchedule: federation.ExponentialBackoffSchedule(parameters.maxDeliveryRetries),
		Metrics:         metrics,
		OnOutboxError: func(err error, activity *vocab.ActivityType) {
			if activity != nil && activity.ID() != nil {
				logger.Warn("Failed to deliver activity", logfields.WithActivityID(activity.ID().String()),
					log.WithError(err))
			} else {
				logger.Warn("Failed to deliver activity", log.WithError(err))
			}
		},
	})
	if err != nil {
		return fmt.Errorf("create federation registry: %w", err)
	}

	privateKey, err := loadOrCreateKeyPair(kvStore)
	if err != nil {
		return err
	}

	svc := newService(parameters.serviceHandle, privateKey, kvStore)

	usage := cache.New(svc.loadUsage,
		cache.WithName("nodeinfo-usage"),
		cache.WithRefreshInterval(parameters.nodeInfoRefreshInterval),
	)

	usage.Start()
	defer usage.Stop()

	if err := svc.register(fed, usage); err != nil {
		return fmt.Errorf("register service [%s]: %w", parameters.serviceHandle, err)
	}

	handlers := []httpserver.Handler{
		healthcheck.NewHandler(queue, pinger),
		loglevels.NewReadHandler(),
		loglevels.NewWriteHandler(),
		newMetricsHandler(),
	}

	opts := []httpserver.Opt{
		httpserver.WithFallbackHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fed.Fetch(w, r, nil)
		})),
	}

	if parameters.tracing.provider != tracing.ProviderNone {
		opts = append(opts, httpserver.WithTracing(parameters.tracing.serviceName))
	}

	server := httpserver.New(parameters.hostURL, parameters.tls.certificate, parameters.tls.key,
		defaultServerIdleTimeout, defaultServerReadHeaderTimeout, handlers, opts...)

	if err := server.Start(); err != nil {
		return fmt.Errorf("start HTTP server: %w", err)
	}

	logger.Info("Started fedway-server", logfields.WithAddress(parameters.hostURL),
		logfields.WithServiceEndpoint(parameters.externalEndpoint))

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	<-interrupt

	logger.Info("Shutting down ...")

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		logger.Warn("Error stopping HTTP server", log.WithError(err))
	}

	return nil
}

func setLogLevels(logSpec string) {
	if logSpec == "" {
		return
	}

	if err := log.SetSpec(logSpec); err != nil {
		logger.Warn("Invalid log spec", logfields.WithLogSpec(logSpec), log.WithError(err))
	}
}

// newHTTPClient returns the client used for outbound deliveries and document
// fetches. A custom root CA pool is configured when CA certificates are given.
func newHTTPClient(params *tlsParameters) (*http.Client, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if params.systemCertPool || len(params.caCerts) > 0 {
		rootCAs, err := tlsutil.GetCertPool(params.systemCertPool, params.caCerts)
		if err != nil {
			return nil, fmt.Errorf("get root CA certificate pool: %w", err)
		}

		tlsConfig.RootCAs = rootCAs
	}

	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: tlsConfig,
		},
	}, nil
}

type dbPinger interface {
	Ping() error
}

type serverQueue interface {
	queuespi.Queue

	IsConnected() bool
}

// createQueue returns the outbox queue. With an AMQP URL the queue is durable on
// the broker, otherwise an in-memory queue is used.
func createQueue(mqURL string) (serverQueue, error) {
	if mqURL == "" {
		logger.Warn("No message broker URL was specified. Using an in-memory outbox queue, " +
			"which does not survive a server restart.")

		return memqueue.New("outbox"), nil
	}

	queue, err := amqpqueue.New("outbox", amqpqueue.Config{URI: mqURL})
	if err != nil {
		return nil, fmt.Errorf("create AMQP outbox queue: %w", err)
	}

	return queue, nil
}

// createStoreProvider returns the Aries storage provider for the configured
// database type, along with an optional pinger used by the health check.
func createStoreProvider(params *dbParameters) (ariesstorage.Provider, dbPinger, error) {
	switch {
	case strings.EqualFold(params.databaseType, databaseTypeMemOption):
		return ariesmemstorage.NewProvider(), nil, nil
	case strings.EqualFold(params.databaseType, databaseTypeMongoDBOption):
		provider, err := ariesmongodbstorage.NewProvider(params.databaseURL,
			ariesmongodbstorage.WithDBPrefix(params.databasePrefix))
		if err != nil {
			return nil, nil, fmt.Errorf("create MongoDB storage provider: %w", err)
		}

		return provider, provider, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", params.databaseType)
	}
}

// loadOrCreateKeyPair returns the service key pair from the store, generating
// and storing a new one on first start.
func loadOrCreateKeyPair(store storespi.Store) (*rsa.PrivateKey, error) {
	keyBytes, err := store.Get(serviceKeyPairKey())
	if err == nil {
		jwk := &keyutil.JWK{}
		if err := json.Unmarshal(keyBytes, jwk); err != nil {
			return nil, fmt.Errorf("unmarshal service key pair: %w", err)
		}

		return keyutil.ImportRSAPrivateKey(jwk)
	}

	if !errors.Is(err, federrors.ErrNotFound) {
		return nil, fmt.Errorf("get service key pair: %w", err)
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate service key pair: %w", err)
	}

	keyBytes, err = json.Marshal(keyutil.ExportRSAPrivateKey(privateKey))
	if err != nil {
		return nil, fmt.Errorf("marshal service key pair: %w", err)
	}

	if err := store.Put(serviceKeyPairKey(), keyBytes); err != nil {
		return nil, fmt.Errorf("store service key pair: %w", err)
	}

	logger.Info("Generated a new service key pair")

	return privateKey, nil
}

func serviceKeyPairKey() storespi.Key {
	return storespi.NewKey("service", "keypair")
}

// metricsHandler serves the Prometheus metrics endpoint.
type metricsHandler struct {
	handler http.Handler
}

func newMetricsHandler() *metricsHandler {
	return &metricsHandler{handler: promhttp.Handler()}
}

func (h *metricsHandler) Method() string {
	return http.MethodGet
}

func (h *metricsHandler) Path() string {
	return metricsEndpoint
}

func (h *metricsHandler) Handler() http.HandlerFunc {
	return h.handler.ServeHTTP
}
