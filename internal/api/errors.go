package api

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BodyKind tells which shape a non-2xx response body had.
type BodyKind int

const (
	// PlainText is a body that was not a JSON object with a usable detail.
	PlainText BodyKind = iota
	// Detail is {"detail": "..."}.
	Detail
	// NestedDetail is {"detail": {"detail": "..."}}.
	NestedDetail
)

func (k BodyKind) String() string {
	switch k {
	case Detail:
		return "detail"
	case NestedDetail:
		return "nested_detail"
	default:
		return "plain_text"
	}
}

// ErrorBody is a decoded error response body.
type ErrorBody struct {
	Kind   BodyKind
	Raw    string
	Detail string
}

// ParseErrorBody decodes raw as JSON first, falling back to plain text.
func ParseErrorBody(raw []byte) ErrorBody {
	body := ErrorBody{Kind: PlainText, Raw: strings.TrimSpace(string(raw))}

	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || len(envelope.Detail) == 0 {
		return body
	}

	var s string
	if err := json.Unmarshal(envelope.Detail, &s); err == nil {
		if s != "" {
			body.Kind = Detail
			body.Detail = s
		}
		return body
	}

	var nested struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(envelope.Detail, &nested); err == nil && nested.Detail != "" {
		body.Kind = NestedDetail
		body.Detail = nested.Detail
	}
	return body
}

// Message is the human-readable text of the body.
func (b ErrorBody) Message() string {
	if b.Kind == Detail || b.Kind == NestedDetail {
		return b.Detail
	}
	return b.Raw
}

// Error is a non-2xx response from the backend.
type Error struct {
	Method string
	Path   string
	Status int
	Body   ErrorBody
}

func (e *Error) Error() string {
	if msg := e.Body.Message(); msg != "" {
		return msg
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
}
