// Package assistant talks to the remote assistant service and normalizes
// its loosely typed responses.
package assistant

import (
	"context"
	"encoding/json"
	"strings"
)

// NoResponseText replaces a reply that could not be extracted.
const NoResponseText = "No response available"

// Client sends one user message and returns the raw response.
type Client interface {
	SendMessage(ctx context.Context, text string) (Response, error)
}

// Shape identifies which payload form a response used.
type Shape int

const (
	ShapeUnknown Shape = iota
	// ShapeBare is {"response": <any>}.
	ShapeBare
	// ShapeStructured is {"data": {"reply": <string>}}.
	ShapeStructured
)

func (s Shape) String() string {
	switch s {
	case ShapeBare:
		return "bare"
	case ShapeStructured:
		return "structured"
	default:
		return "unknown"
	}
}

// Response is a tagged union over the payload forms the service returns.
// Bare is set for ShapeBare, Reply for ShapeStructured when data.reply is a string.
type Response struct {
	Shape Shape
	Bare  any
	Reply *string
	Raw   json.RawMessage
}

// ParseResponse classifies raw. It never fails: anything unrecognized is
// ShapeUnknown. A string "response" wins; otherwise a string data.reply is
// used even when a "response" key is present.
func ParseResponse(raw []byte) Response {
	resp := Response{Raw: json.RawMessage(raw)}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return resp
	}

	field, hasBare := top["response"]
	if hasBare {
		resp.Shape = ShapeBare
		var v any
		if err := json.Unmarshal(field, &v); err == nil {
			resp.Bare = v
		}
		if _, ok := resp.Bare.(string); ok {
			return resp
		}
	}

	field, ok := top["data"]
	if !ok {
		return resp
	}
	var data map[string]json.RawMessage
	if err := json.Unmarshal(field, &data); err != nil {
		return resp
	}

	var reply string
	if err := json.Unmarshal(data["reply"], &reply); err == nil {
		return Response{Shape: ShapeStructured, Reply: &reply, Raw: resp.Raw}
	}
	if !hasBare {
		resp.Shape = ShapeStructured
	}
	return resp
}

// ExtractReply returns the string reply carried by r, if any. Blank strings
// count as no reply.
func ExtractReply(r Response) (string, bool) {
	var reply string
	switch r.Shape {
	case ShapeBare:
		s, ok := r.Bare.(string)
		if !ok {
			return "", false
		}
		reply = s
	case ShapeStructured:
		if r.Reply == nil {
			return "", false
		}
		reply = *r.Reply
	default:
		return "", false
	}

	if strings.TrimSpace(reply) == "" {
		return "", false
	}
	return reply, true
}

// BareResponse and StructuredResponse build responses in code, mainly for
// fakes and tests.
func BareResponse(v any) Response {
	raw, _ := json.Marshal(map[string]any{"response": v})
	return ParseResponse(raw)
}

func StructuredResponse(reply string) Response {
	raw, _ := json.Marshal(map[string]any{"data": map[string]string{"reply": reply}})
	return ParseResponse(raw)
}
