/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package log

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log fields.
const (
	FieldActivityID           = "activity-id"
	FieldActivityType         = "activity-type"
	FieldActorIRI             = "actor-iri"
	FieldAddress              = "address"
	FieldBackoff              = "backoff"
	FieldCacheRefreshAttempts = "cache-refresh-attempts"
	FieldCacheRefreshInterval = "cache-refresh-interval"
	FieldDomain               = "domain"
	FieldHandle               = "handle"
	FieldHTTPStatus           = "http-status"
	FieldInboxIRI             = "inbox-iri"
	FieldKey                  = "key"
	FieldKeyID                = "key-id"
	FieldLogSpec              = "log-spec"
	FieldMessageID            = "message-id"
	FieldPath                 = "path"
	FieldPayload              = "payload"
	FieldRequestHeaders       = "request-headers"
	FieldRequestURL           = "request-url"
	FieldResource             = "resource"
	FieldResponse             = "response"
	FieldRouteName            = "route-name"
	FieldServiceEndpoint      = "service-endpoint"
	FieldServiceName          = "service-name"
	FieldTracingProvider      = "tracing-provider"
	FieldTrial                = "trial"
	FieldURL                  = "url"
)

// WithError sets the error field.
func WithError(err error) zap.Field {
	return zap.Error(err)
}

// WithActivityID sets the activity-id field.
func WithActivityID(value string) zap.Field {
	return zap.String(FieldActivityID, value)
}

// WithActivityType sets the activity-type field.
func WithActivityType(value string) zap.Field {
	return zap.String(FieldActivityType, value)
}

// WithActorIRI sets the actor-iri field.
func WithActorIRI(value fmt.Stringer) zap.Field {
	return zap.Stringer(FieldActorIRI, value)
}

// WithAddress sets the address field.
func WithAddress(value string) zap.Field {
	return zap.String(FieldAddress, value)
}

// WithBackoff sets the backoff field.
func WithBackoff(value time.Duration) zap.Field {
	return zap.Duration(FieldBackoff, value)
}

// WithCacheRefreshAttempts sets the cache-refresh-attempts field.
func WithCacheRefreshAttempts(value int) zap.Field {
	return zap.Int(FieldCacheRefreshAttempts, value)
}

// WithCacheRefreshInterval sets the cache-refresh-interval field.
func WithCacheRefreshInterval(value time.Duration) zap.Field {
	return zap.Duration(FieldCacheRefreshInterval, value)
}

// WithDomain sets the domain field.
func WithDomain(value string) zap.Field {
	return zap.String(FieldDomain, value)
}

// WithHandle sets the handle field.
func WithHandle(value string) zap.Field {
	return zap.String(FieldHandle, value)
}

// WithHTTPStatus sets the http-status field.
func WithHTTPStatus(value int) zap.Field {
	return zap.Int(FieldHTTPStatus, value)
}

// WithInboxIRI sets the inbox-iri field.
func WithInboxIRI(value string) zap.Field {
	return zap.String(FieldInboxIRI, value)
}

// WithKey sets the key field.
func WithKey(value string) zap.Field {
	return zap.String(FieldKey, value)
}

// WithKeyID sets the key-id field.
func WithKeyID(value string) zap.Field {
	return zap.String(FieldKeyID, value)
}

// WithLogSpec sets the log-spec field.
func WithLogSpec(value string) zap.Field {
	return zap.String(FieldLogSpec, value)
}

// WithMessageID sets the message-id field.
func WithMessageID(value string) zap.Field {
	return zap.String(FieldMessageID, value)
}

// WithPath sets the path field.
func WithPath(value string) zap.Field {
	return zap.String(FieldPath, value)
}

// WithPayload sets the payload field.
func WithPayload(value []byte) zap.Field {
	return zap.String(FieldPayload, string(value))
}

// WithRequestHeaders sets the request-headers field.
func WithRequestHeaders(value http.Header) zap.Field {
	return zap.Object(FieldRequestHeaders, newHTTPHeaderMarshaller(value))
}

// WithRequestURL sets the request-url field.
func WithRequestURL(value fmt.Stringer) zap.Field {
	return zap.Stringer(FieldRequestURL, value)
}

// WithRequestURLString sets the request-url field.
func WithRequestURLString(value string) zap.Field {
	return zap.String(FieldRequestURL, value)
}

// WithResource sets the resource field.
func WithResource(value string) zap.Field {
	return zap.String(FieldResource, value)
}

// WithResponse sets the response field.
func WithResponse(value []byte) zap.Field {
	return zap.String(FieldResponse, string(value))
}

// WithRouteName sets the route-name field.
func WithRouteName(value string) zap.Field {
	return zap.String(FieldRouteName, value)
}

// WithServiceEndpoint sets the service-endpoint field.
func WithServiceEndpoint(value string) zap.Field {
	return zap.String(FieldServiceEndpoint, value)
}

// WithServiceName sets the service-name field.
func WithServiceName(value string) zap.Field {
	return zap.String(FieldServiceName, value)
}

// WithTracingProvider sets the tracing-provider field.
func WithTracingProvider(value string) zap.Field {
	return zap.String(FieldTracingProvider, value)
}

// WithTrial sets the trial field.
func WithTrial(value int) zap.Field {
	return zap.Int(FieldTrial, value)
}

// WithURLString sets the url field.
func WithURLString(value string) zap.Field {
	return zap.String(FieldURL, value)
}

type httpHeaderMarshaller struct {
	headers http.Header
}

func newHTTPHeaderMarshaller(headers http.Header) *httpHeaderMarshaller {
	return &httpHeaderMarshaller{headers: headers}
}

func (m *httpHeaderMarshaller) MarshalLogObject(e zapcore.ObjectEncoder) error {
	for k, values := range m.headers {
		if err := e.AddArray(k, zapcore.ArrayMarshalerFunc(func(ae zapcore.ArrayEncoder) error {
			for _, v := range values {
				ae.AppendString(v)
			}

			return nil
		})); err != nil {
			return fmt.Errorf("marshal header %s: %w", k, err)
		}
	}

	return nil
}
