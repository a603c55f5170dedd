package zabbix

import (
	"fmt"
	"strings"
)

// ValidationError reports input that was rejected before any request was sent.
type ValidationError struct {
	Field   string
	Problem string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Problem)
}

// NotFoundError lists the names that could not be resolved in Zabbix.
type NotFoundError struct {
	Kind  string
	Names []string
}

func (e *NotFoundError) Error() string {
	quoted := make([]string, len(e.Names))
	for i, n := range e.Names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return fmt.Sprintf("%s not found: %s", e.Kind, strings.Join(quoted, ", "))
}

// TransportError is an HTTP-level failure talking to the API.
// Status is zero when no response was received.
type TransportError struct {
	Err    error
	Method string
	Body   string
	Status int
}

func (e *TransportError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "http error in %s", e.Method)
	if e.Status != 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Body != "" {
		fmt.Fprintf(&b, " | body=%s", e.Body)
	}
	return b.String()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// APIError is an error object returned by the JSON-RPC endpoint.
type APIError struct {
	Method  string `json:"-"`
	Message string `json:"message"`
	Data    string `json:"data"`
	Code    int    `json:"code"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("zabbix api error in %s: %s %s (code %d)", e.Method, e.Message, e.Data, e.Code)
}
