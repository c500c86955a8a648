package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrNoSession is returned by calls that need a signed-in user when the
// browser has no stored session.
var ErrNoSession = errors.New("provider: no active session")

// Error is a non-2xx response from the provider.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider: %s (status %d, %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("provider: %s (status %d)", e.Message, e.Status)
}

// IsNotFound reports whether err is a provider 404.
func IsNotFound(err error) bool {
	var perr *Error
	return errors.As(err, &perr) && perr.Status == http.StatusNotFound
}

// IsClientError reports whether err is a 4xx rejection, as opposed to a
// transport failure or server-side error that may succeed on retry.
func IsClientError(err error) bool {
	var perr *Error
	return errors.As(err, &perr) && perr.Status >= 400 && perr.Status < 500
}

// UserMessage returns the provider's human readable message for err, or a
// generic fallback for non-provider errors.
func UserMessage(err error) string {
	var perr *Error
	if errors.As(err, &perr) && perr.Message != "" {
		return perr.Message
	}
	if errors.Is(err, ErrNoSession) {
		return "You are not signed in."
	}
	return "The request could not be completed. Please try again."
}

// errorBody covers the GoTrue, PostgREST and storage error shapes.
type errorBody struct {
	Code             json.RawMessage `json:"code"`
	ErrorCode        string          `json:"error_code"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
	Msg              string          `json:"msg"`
	Message          string          `json:"message"`
}

func decodeError(resp *http.Response) error {
	perr := &Error{Status: resp.StatusCode}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	var body errorBody
	if len(data) > 0 && json.Unmarshal(data, &body) == nil {
		perr.Code = firstNonEmpty(body.ErrorCode, rawCode(body.Code), body.Error)
		perr.Message = firstNonEmpty(body.Msg, body.Message, body.ErrorDescription, body.Error)
	}
	if perr.Message == "" {
		perr.Message = strings.TrimSpace(string(data))
	}
	if perr.Message == "" {
		perr.Message = http.StatusText(resp.StatusCode)
	}
	return perr
}

func rawCode(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
