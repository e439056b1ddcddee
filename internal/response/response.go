// Package response formats the HTTP responses the proxy sends to clients:
// crate downloads, index entries (200/304), and error envelopes.
package response

import (
	"encoding/json"
	"fmt"
	"net/http"
	"unicode/utf8"

	"github.com/ravenexp/crates-io-proxy/internal/cargo"
	"github.com/ravenexp/crates-io-proxy/internal/upstream"
)

const (
	crateContentType = "application/x-tar"
	indexContentType = "text/plain"
	jsonContentType  = "application/json; charset=utf-8"
)

// Crate writes a successful crate download response.
func Crate(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", crateContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// setIndexValidators echoes an index entry's known validators as response
// headers.
func setIndexValidators(w http.ResponseWriter, entry cargo.IndexKey) {
	if etag, ok := entry.ETag(); ok {
		w.Header().Set("ETag", etag)
	}
	if mtime, ok := entry.LastModified(); ok {
		w.Header().Set("Last-Modified", cargo.FormatHTTPTime(mtime))
	}
}

// IndexEntry writes a 200 index entry response with its body and
// validators.
func IndexEntry(w http.ResponseWriter, entry cargo.IndexKey, data []byte) {
	setIndexValidators(w, entry)
	w.Header().Set("Content-Type", indexContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// IndexNotModified writes a 304 response: headers only, empty body.
func IndexNotModified(w http.ResponseWriter, entry cargo.IndexKey) {
	setIndexValidators(w, entry)
	w.WriteHeader(http.StatusNotModified)
}

// ConfigJSON writes the synthesized registry config.json document.
func ConfigJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", jsonContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// jsonErrorEnvelope formats `{"errors":[{"detail":"<escaped>"}]}`.
func jsonErrorEnvelope(detail string) []byte {
	envelope := struct {
		Errors []struct {
			Detail string `json:"detail"`
		} `json:"errors"`
	}{}
	envelope.Errors = append(envelope.Errors, struct {
		Detail string `json:"detail"`
	}{Detail: detail})

	data, err := json.Marshal(envelope)
	if err != nil {
		// json.Marshal on a plain string field cannot fail; this is
		// unreachable in practice.
		return []byte(`{"errors":[{"detail":"internal error"}]}`)
	}
	return data
}

// UpstreamError forwards an upstream HTTP error to the client: the upstream
// body verbatim if it is non-empty valid UTF-8, else a synthesized JSON
// envelope naming the upstream status.
func UpstreamError(w http.ResponseWriter, fetchErr *upstream.FetchError) {
	w.Header().Set("Content-Type", jsonContentType)
	w.WriteHeader(fetchErr.Status)

	if utf8.Valid(fetchErr.Body) && len(fetchErr.Body) > 0 {
		_, _ = w.Write(fetchErr.Body)
		return
	}
	_, _ = w.Write(jsonErrorEnvelope(fmt.Sprintf("upstream returned HTTP %d", fetchErr.Status)))
}

// TransportError writes a 502 response for an upstream transport failure.
func TransportError(w http.ResponseWriter, fetchErr *upstream.FetchError) {
	w.Header().Set("Content-Type", jsonContentType)
	w.WriteHeader(http.StatusBadGateway)
	_, _ = w.Write(jsonErrorEnvelope(fetchErr.Err.Error()))
}

// Reject writes an empty-body error response for a dispatcher-level
// rejection (wrong method -> 403, unrecognized path -> 404).
func Reject(w http.ResponseWriter, status int) {
	w.WriteHeader(status)
}

// CacheLoss writes the 503 response for the "metadata survived but the
// cached body was lost" condition: the client is expected to retry.
func CacheLoss(w http.ResponseWriter) {
	w.WriteHeader(http.StatusServiceUnavailable)
}
