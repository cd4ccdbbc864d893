/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package client implements a WebFinger client that discovers the actors of
// remote servers.
package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bluele/gcache"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/fedway/fedway/internal/pkg/log"
	federrors "github.com/fedway/fedway/pkg/errors"
	"github.com/fedway/fedway/pkg/transport"
	"github.com/fedway/fedway/pkg/webfinger/model"
)

var logger = log.New("webfinger-client")

const (
	defaultCacheLifetime = 5 * time.Minute
	defaultCacheSize     = 100
)

type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client resolves WebFinger resources (RFC 7033). Resolved JRDs are cached with
// a configurable lifetime.
type Client struct {
	httpClient httpClient

	cacheLifetime time.Duration
	cacheSize     int

	resourceCache gcache.Cache
}

type cacheKey struct {
	domainWithScheme string
	resource         string
}

// Option sets an option on the client.
type Option func(c *Client)

// WithHTTPClient sets the HTTP client used to invoke the WebFinger endpoints.
func WithHTTPClient(client httpClient) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithCacheLifetime sets the lifetime of cached JRDs.
func WithCacheLifetime(lifetime time.Duration) Option {
	return func(c *Client) {
		c.cacheLifetime = lifetime
	}
}

// WithCacheSize sets the maximum number of cached JRDs.
func WithCacheSize(size int) Option {
	return func(c *Client) {
		c.cacheSize = size
	}
}

// New returns a new WebFinger client.
func New(opts ...Option) *Client {
	client := &Client{
		httpClient:    &http.Client{},
		cacheLifetime: defaultCacheLifetime,
		cacheSize:     defaultCacheSize,
	}

	for _, opt := range opts {
		opt(client)
	}

	client.resourceCache = gcache.New(client.cacheSize).
		Expiration(client.cacheLifetime).
		LoaderFunc(func(key interface{}) (interface{}, error) {
			k := key.(cacheKey) //nolint:errcheck,forcetypeassert

			r, err := client.resolveResource(k.domainWithScheme, k.resource)
			if err != nil {
				return nil, err
			}

			logger.Debug("Loaded WebFinger resource into cache",
				logfields.WithDomain(k.domainWithScheme), logfields.WithResource(k.resource))

			return r, nil
		}).Build()

	return client
}

// ResolveResource resolves the given resource from the WebFinger endpoint of
// domainWithScheme.
func (c *Client) ResolveResource(domainWithScheme, resource string) (*model.JRD, error) {
	r, err := c.resourceCache.Get(cacheKey{
		domainWithScheme: domainWithScheme,
		resource:         resource,
	})
	if err != nil {
		return nil, fmt.Errorf("get WebFinger resource for domain [%s] and resource [%s]: %w",
			domainWithScheme, resource, err)
	}

	return r.(*model.JRD), nil //nolint:forcetypeassert
}

// ResolveActorIRI resolves the acct:handle@host resource for the given handle
// from the WebFinger endpoint of domainWithScheme and returns the IRI of the
// actor's ActivityStreams document, taken from the 'self' link.
func (c *Client) ResolveActorIRI(domainWithScheme, handle string) (*url.URL, error) {
	domainURL, err := url.Parse(domainWithScheme)
	if err != nil {
		return nil, fmt.Errorf("parse domain [%s]: %w", domainWithScheme, err)
	}

	jrd, err := c.ResolveResource(domainWithScheme, fmt.Sprintf("acct:%s@%s", handle, domainURL.Host))
	if err != nil {
		return nil, err
	}

	for _, link := range jrd.Links {
		if link.Rel != model.RelSelf {
			continue
		}

		if link.Type != "" && link.Type != transport.ActivityJSONContentType &&
			link.Type != transport.LDJSONContentType {
			continue
		}

		actorIRI, err := url.Parse(link.Href)
		if err != nil {
			return nil, fmt.Errorf("parse actor IRI [%s]: %w", link.Href, err)
		}

		return actorIRI, nil
	}

	return nil, fmt.Errorf("no 'self' link for actor [%s] at domain [%s]: %w",
		handle, domainWithScheme, model.ErrResourceNotFound)
}

func (c *Client) resolveResource(domainWithScheme, resource string) (*model.JRD, error) {
	webFingerURL := fmt.Sprintf("%s/.well-known/webfinger?resource=%s",
		domainWithScheme, url.QueryEscape(resource))

	req, err := http.NewRequest(http.MethodGet, webFingerURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request for WebFinger URL [%s]: %w", webFingerURL, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, federrors.NewTransientf("get WebFinger response from [%s]: %w", webFingerURL, err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Warn("Error closing WebFinger response body", log.WithError(err))
		}
	}()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, federrors.NewTransientf("read WebFinger response from [%s]: %w", webFingerURL, err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusNotFound {
			return nil, model.ErrResourceNotFound
		}

		e := fmt.Errorf("unexpected WebFinger response from [%s]: status code %d, response body [%s]",
			webFingerURL, resp.StatusCode, respBytes)

		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, federrors.NewTransient(e)
		}

		return nil, e
	}

	jrd := &model.JRD{}

	if err := json.Unmarshal(respBytes, jrd); err != nil {
		return nil, fmt.Errorf("unmarshal WebFinger response from [%s]: %w", webFingerURL, err)
	}

	return jrd, nil
}
