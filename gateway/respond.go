package gateway

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/c360/natsgate/errors"
)

// protoMarshaler is satisfied by every wire type in the message package
type protoMarshaler interface {
	Marshal() []byte
}

// writeJSON writes a JSON response with the given status
func (g *Gateway) writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("Failed to encode response", "error", err)
	}
}

// writeProto writes a protobuf response with the given status
func (g *Gateway) writeProto(w http.ResponseWriter, statusCode int, m protoMarshaler) {
	w.Header().Set("Content-Type", "application/x-protobuf")
	w.WriteHeader(statusCode)
	if _, err := w.Write(m.Marshal()); err != nil {
		g.logger.Error("Failed to write response", "error", err)
	}
}

// writeError writes an error response as {"error": ..., "status": ...}
func (g *Gateway) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := map[string]any{
		"error":  message,
		"status": statusCode,
	}

	data, _ := json.Marshal(response)
	if _, err := w.Write(data); err != nil {
		g.logger.Error("Failed to write error response", "error", err)
	}
}

// respondError maps a broker or handler error onto an HTTP status with a
// sanitized message. The full error is logged, never sent to the client.
func (g *Gateway) respondError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode := g.mapErrorToHTTPStatus(err)

	if statusCode >= http.StatusInternalServerError {
		g.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path,
			"status", statusCode, "error", err)
	} else {
		g.logger.Warn("Request rejected", "method", r.Method, "path", r.URL.Path,
			"status", statusCode, "error", err)
	}

	g.writeError(w, statusCode, g.sanitizeError(err))
}

// mapErrorToHTTPStatus maps classified errors to HTTP status codes
func (g *Gateway) mapErrorToHTTPStatus(err error) int {
	if err == nil {
		return http.StatusInternalServerError
	}

	// Sentinel errors carry precise statuses and take precedence over
	// classification.
	switch {
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case stderrors.Is(err, errors.ErrConsumerExists):
		return http.StatusConflict
	case stderrors.Is(err, errors.ErrPayloadTooBig):
		return http.StatusRequestEntityTooLarge
	case stderrors.Is(err, errors.ErrRateLimited):
		return http.StatusTooManyRequests
	case stderrors.Is(err, errors.ErrUnauthorized):
		return http.StatusUnauthorized
	case stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}

	if errors.IsInvalid(err) {
		return http.StatusBadRequest
	}
	if errors.IsTransient(err) {
		// Could be timeout, service unavailable, etc.
		if strings.Contains(err.Error(), "timeout") {
			return http.StatusGatewayTimeout
		}
		return http.StatusServiceUnavailable
	}
	if errors.IsFatal(err) {
		return http.StatusInternalServerError
	}

	errStr := err.Error()
	if strings.Contains(errStr, "unauthorized") || strings.Contains(errStr, "permission") {
		return http.StatusForbidden
	}

	return http.StatusInternalServerError
}

// sanitizeError returns a safe error message for external clients.
// Internal details stay in the logs to prevent information disclosure.
func (g *Gateway) sanitizeError(err error) string {
	if err == nil {
		return "internal server error"
	}

	switch {
	case stderrors.Is(err, errors.ErrStreamNotFound):
		return "stream not found"
	case stderrors.Is(err, errors.ErrConsumerNotFound):
		return "consumer not found"
	case errors.IsNotFound(err):
		return "resource not found"
	case stderrors.Is(err, errors.ErrConsumerExists):
		return "consumer already exists with a different configuration"
	case stderrors.Is(err, errors.ErrPayloadTooBig):
		return "request body too large"
	case stderrors.Is(err, errors.ErrRateLimited):
		return "rate limit exceeded"
	case stderrors.Is(err, errors.ErrUnauthorized):
		return "missing or invalid bearer token"
	case stderrors.Is(err, context.DeadlineExceeded):
		return "request timeout"
	}

	// Never expose NATS subjects, internal service names, or detailed errors
	if errors.IsInvalid(err) {
		return "invalid request"
	}
	if errors.IsTransient(err) {
		if strings.Contains(err.Error(), "timeout") {
			return "request timeout"
		}
		return "service temporarily unavailable"
	}
	if errors.IsFatal(err) {
		return "internal server error"
	}

	errStr := err.Error()
	if strings.Contains(errStr, "unauthorized") || strings.Contains(errStr, "permission") {
		return "access denied"
	}

	return "internal server error"
}

// readLimitedBody reads the request body up to the configured size limit.
// The extra byte distinguishes exactly-at-limit from over-limit.
func (g *Gateway) readLimitedBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	defer func() { _ = r.Body.Close() }()

	bodyReader := io.LimitReader(r.Body, g.config.MaxRequestSize+1)
	body, err := io.ReadAll(bodyReader)
	if err != nil {
		g.writeError(w, http.StatusBadRequest, "failed to read request body")
		return nil, false
	}

	if int64(len(body)) > g.config.MaxRequestSize {
		g.writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("request body exceeds maximum size of %d bytes", g.config.MaxRequestSize))
		return nil, false
	}

	return body, true
}

// fetchParams extracts limit and timeout from the query string, clamped to
// the configured bounds. The timeout arrives in whole seconds.
func (g *Gateway) fetchParams(r *http.Request) (int, time.Duration, error) {
	q := r.URL.Query()

	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, 0, errors.WrapInvalid(err, "Gateway", "fetchParams", "parse limit")
		}
		limit = n
	}
	limit = g.config.Fetch.ClampLimit(limit)

	timeout := g.config.Fetch.DefaultTimeout()
	if v := q.Get("timeout"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return 0, 0, errors.WrapInvalid(err, "Gateway", "fetchParams", "parse timeout")
		}
		timeout = time.Duration(secs) * time.Second
	}
	timeout = g.config.Fetch.ClampTimeout(timeout)

	return limit, timeout, nil
}

// intQuery returns a positive integer query parameter or the fallback when
// absent. Malformed or non-positive values report an error.
func intQuery(r *http.Request, name string, fallback int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, errors.WrapInvalid(errors.ErrInvalidData, "Gateway", "intQuery",
			fmt.Sprintf("parse %s", name))
	}
	return n, nil
}
