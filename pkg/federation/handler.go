/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package federation

import (
	"encoding/json"
	"mime"
	"net/http"
	"strings"

	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/fedway/fedway/internal/pkg/log"
)

// acceptsActivityStreams returns true if the request's Accept header includes an
// ActivityStreams-compatible media type. An absent Accept header accepts everything.
func acceptsActivityStreams(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	if accept == "" {
		return true
	}

	for _, part := range strings.Split(accept, ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}

		switch mediaType {
		case "application/activity+json", "application/ld+json", "application/json", "application/*", "*/*":
			return true
		}
	}

	return false
}

// isActivityStreamsContentType returns true if the given Content-Type header
// value denotes an ActivityStreams JSON-LD body.
func isActivityStreamsContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}

	return mediaType == "application/activity+json" || mediaType == "application/ld+json"
}

// respondWithJSON marshals the value and writes it with the given content type.
func respondWithJSON(w http.ResponseWriter, status int, contentType string, value interface{}) {
	body, err := json.Marshal(value)
	if err != nil {
		logger.Error("Error marshalling response", log.WithError(err))

		respondWithError(w, http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)

	if _, err := w.Write(body); err != nil {
		logger.Warn("Error writing response", log.WithError(err))
	}
}

// respondWithError writes a plain-text response for the given status code.
func respondWithError(w http.ResponseWriter, status int) {
	http.Error(w, http.StatusText(status), status)
}

// serverError logs the error and responds with a 500.
func serverError(w http.ResponseWriter, r *http.Request, err error) {
	logger.Error("Error handling request", logfields.WithPath(r.URL.Path), log.WithError(err))

	respondWithError(w, http.StatusInternalServerError)
}
