package services

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrRunInProgress is returned when another monitor run holds the run lock.
var ErrRunInProgress = errors.New("request monitor run already in progress")

// UpstreamError is a non-2xx reply from a third-party API.
type UpstreamError struct {
	Service    string
	Op         string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s returned %d", e.Service, e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s %s returned %d: %s", e.Service, e.Op, e.StatusCode, e.Body)
}

const maxErrorBody = 512

func newUpstreamError(service, op string, resp *http.Response) *UpstreamError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &UpstreamError{
		Service:    service,
		Op:         op,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

// ModerationError is safe to return to clients: it carries only the upstream status.
type ModerationError struct {
	StatusCode int
}

func (e *ModerationError) Error() string {
	return fmt.Sprintf("moderation api error: %d", e.StatusCode)
}
