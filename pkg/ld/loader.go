/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ld

import (
	"context"
	"crypto"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bluele/gcache"
	"github.com/piprate/json-gold/ld"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/fedway/fedway/internal/pkg/log"
	federrors "github.com/fedway/fedway/pkg/errors"
	"github.com/fedway/fedway/pkg/httpsig"
	"github.com/fedway/fedway/pkg/store/spi"
	"github.com/fedway/fedway/pkg/transport"
)

var logger = log.New("ld")

const (
	defaultCacheSize       = 100
	defaultCacheExpiration = time.Minute
	defaultDocumentTTL     = time.Hour
)

// Config holds the configuration for a document loader.
type Config struct {
	// Store is the key-value store in which remote documents are cached.
	Store spi.Store

	// Prefix is the key prefix under which remote documents are stored.
	Prefix spi.Key

	// DocumentTTL is how long a cached remote document remains valid.
	DocumentTTL time.Duration

	// CacheSize is the size of the in-memory admission cache.
	CacheSize int

	// CacheExpiration is the expiry of the in-memory admission cache.
	CacheExpiration time.Duration
}

type cachedDocument struct {
	Document    json.RawMessage `json:"document"`
	ContextURL  string          `json:"contextUrl,omitempty"`
	DocumentURL string          `json:"documentUrl"`
	ExpiresAt   int64           `json:"expiresAt"`
}

// Loader loads JSON-LD documents over HTTP and caches them in a key-value store.
// It implements the json-gold DocumentLoader interface.
type Loader struct {
	*Config

	transport *transport.Transport
	cache     gcache.Cache
}

// NewLoader returns a new document loader that fetches documents with the given transport.
func NewLoader(t *transport.Transport, cnfg *Config) *Loader {
	cfg := *cnfg

	if cfg.DocumentTTL == 0 {
		cfg.DocumentTTL = defaultDocumentTTL
	}

	if cfg.CacheSize == 0 {
		cfg.CacheSize = defaultCacheSize
	}

	if cfg.CacheExpiration == 0 {
		cfg.CacheExpiration = defaultCacheExpiration
	}

	l := &Loader{
		Config:    &cfg,
		transport: t,
	}

	l.cache = gcache.New(cfg.CacheSize).ARC().
		Expiration(cfg.CacheExpiration).
		LoaderFunc(func(u interface{}) (interface{}, error) {
			return l.load(u.(string)) //nolint:forcetypeassert
		}).Build()

	return l
}

// LoadDocument returns the remote document at the given URL.
func (l *Loader) LoadDocument(u string) (*ld.RemoteDocument, error) {
	doc, err := l.cache.Get(u)
	if err != nil {
		return nil, err
	}

	return doc.(*ld.RemoteDocument), nil //nolint:forcetypeassert
}

func (l *Loader) load(u string) (*ld.RemoteDocument, error) {
	key := l.Prefix.Append(u)

	cached, err := l.fromStore(key)
	if err == nil {
		logger.Debug("Returning cached remote document", logfields.WithRequestURLString(u))

		return cached, nil
	}

	if !errors.Is(err, federrors.ErrNotFound) {
		logger.Warn("Error loading remote document from cache store", log.WithError(err))
	}

	doc, err := l.fetch(u)
	if err != nil {
		return nil, err
	}

	if err := l.toStore(key, doc); err != nil {
		logger.Warn("Error caching remote document", logfields.WithRequestURLString(u), log.WithError(err))
	}

	return doc, nil
}

func (l *Loader) fromStore(key spi.Key) (*ld.RemoteDocument, error) {
	valueBytes, err := l.Store.Get(key)
	if err != nil {
		return nil, err
	}

	cached := &cachedDocument{}
	if err := json.Unmarshal(valueBytes, cached); err != nil {
		return nil, fmt.Errorf("unmarshal cached document: %w", err)
	}

	if time.Now().UnixNano() >= cached.ExpiresAt {
		return nil, federrors.ErrNotFound
	}

	var document interface{}
	if err := json.Unmarshal(cached.Document, &document); err != nil {
		return nil, fmt.Errorf("unmarshal cached document body: %w", err)
	}

	return &ld.RemoteDocument{
		DocumentURL: cached.DocumentURL,
		ContextURL:  cached.ContextURL,
		Document:    document,
	}, nil
}

func (l *Loader) toStore(key spi.Key, doc *ld.RemoteDocument) error {
	docBytes, err := json.Marshal(doc.Document)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	valueBytes, err := json.Marshal(&cachedDocument{
		Document:    docBytes,
		ContextURL:  doc.ContextURL,
		DocumentURL: doc.DocumentURL,
		ExpiresAt:   time.Now().Add(l.DocumentTTL).UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("marshal cached document: %w", err)
	}

	return l.Store.Put(key, valueBytes, spi.WithTTL(l.DocumentTTL))
}

func (l *Loader) fetch(u string) (*ld.RemoteDocument, error) {
	docURL, err := url.Parse(u)
	if err != nil {
		return nil, fmt.Errorf("parse document URL [%s]: %w", u, err)
	}

	logger.Debug("Fetching remote document", logfields.WithRequestURLString(u))

	resp, err := l.transport.Get(context.Background(), transport.NewRequest(docURL,
		transport.WithHeader(transport.AcceptHeader, transport.LDJSONContentType)))
	if err != nil {
		return nil, federrors.NewTransientf("get remote document [%s]: %w", u, err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Warn("Error closing response body", log.WithError(err))
		}
	}()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, federrors.NewTransientf("get remote document [%s]: status code %d", u, resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get remote document [%s]: status code %d", u, resp.StatusCode)
	}

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, federrors.NewTransientf("read remote document [%s]: %w", u, err)
	}

	var document interface{}
	if err := json.Unmarshal(respBytes, &document); err != nil {
		return nil, fmt.Errorf("unmarshal remote document [%s]: %w", u, err)
	}

	return &ld.RemoteDocument{
		DocumentURL: u,
		Document:    document,
	}, nil
}

// LoaderFactory creates document loaders that share a KV-backed document cache.
type LoaderFactory struct {
	client *http.Client
	cfg    *Config
}

// NewLoaderFactory returns a new loader factory.
func NewLoaderFactory(client *http.Client, cfg *Config) *LoaderFactory {
	if client == nil {
		client = http.DefaultClient
	}

	return &LoaderFactory{
		client: client,
		cfg:    cfg,
	}
}

// Default returns a loader that fetches documents without HTTP signatures.
func (f *LoaderFactory) Default() *Loader {
	return NewLoader(transport.New(f.client, nil, &url.URL{},
		&transport.NoOpSigner{}, &transport.NoOpSigner{}), f.cfg)
}

// Authenticated returns a loader whose requests are signed with the given key.
func (f *LoaderFactory) Authenticated(keyID *url.URL, privateKey crypto.PrivateKey) *Loader {
	return NewLoader(transport.New(f.client, privateKey, keyID,
		httpsig.NewSigner(httpsig.DefaultGetSignerConfig()),
		httpsig.NewSigner(httpsig.DefaultPostSignerConfig())), f.cfg)
}
