package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseResponse_ExtractReply(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantShape Shape
		wantReply string
		wantOK    bool
	}{
		{"bare string", `{"response":"hello"}`, ShapeBare, "hello", true},
		{"bare number", `{"response":42}`, ShapeBare, "", false},
		{"bare object", `{"response":{"text":"hi"}}`, ShapeBare, "", false},
		{"bare null", `{"response":null}`, ShapeBare, "", false},
		{"bare blank", `{"response":"   "}`, ShapeBare, "", false},
		{"structured", `{"data":{"reply":"from data"}}`, ShapeStructured, "from data", true},
		{"structured without reply", `{"data":{}}`, ShapeStructured, "", false},
		{"structured non-string reply", `{"data":{"reply":["a"]}}`, ShapeStructured, "", false},
		{"structured data not object", `{"data":"oops"}`, ShapeUnknown, "", false},
		{"null response with data reply", `{"response":null,"data":{"reply":"hello"}}`, ShapeStructured, "hello", true},
		{"number response with data reply", `{"response":42,"data":{"reply":"hello"}}`, ShapeStructured, "hello", true},
		{"object response with data reply", `{"response":{"x":1},"data":{"reply":"hello"}}`, ShapeStructured, "hello", true},
		{"string response wins over data reply", `{"response":"bare","data":{"reply":"nested"}}`, ShapeBare, "bare", true},
		{"null response with data without reply", `{"response":null,"data":{}}`, ShapeBare, "", false},
		{"empty object", `{}`, ShapeUnknown, "", false},
		{"array", `["hello"]`, ShapeUnknown, "", false},
		{"invalid json", `not json`, ShapeUnknown, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ParseResponse([]byte(tt.raw))
			if resp.Shape != tt.wantShape {
				t.Errorf("got shape %v, want %v", resp.Shape, tt.wantShape)
			}

			reply, ok := ExtractReply(resp)
			if ok != tt.wantOK {
				t.Fatalf("ExtractReply ok = %v, want %v", ok, tt.wantOK)
			}
			if reply != tt.wantReply {
				t.Errorf("got reply %q, want %q", reply, tt.wantReply)
			}
		})
	}
}

func TestResponseBuilders(t *testing.T) {
	if reply, ok := ExtractReply(BareResponse("bare")); !ok || reply != "bare" {
		t.Errorf("BareResponse: got %q, %v", reply, ok)
	}
	if reply, ok := ExtractReply(StructuredResponse("structured")); !ok || reply != "structured" {
		t.Errorf("StructuredResponse: got %q, %v", reply, ok)
	}
}

func TestHTTPClient_SendMessage(t *testing.T) {
	var gotBody chatRequest
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"reply":"pong"}}`))
	}))
	defer server.Close()

	client, err := NewHTTPClient(HTTPConfig{BaseURL: server.URL + "/", Path: "api/chat", Token: "secret"}, server.Client())
	if err != nil {
		t.Fatalf("NewHTTPClient failed: %v", err)
	}

	resp, err := client.SendMessage(context.Background(), "ping")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	if gotBody.Message != "ping" {
		t.Errorf("server got message %q, want %q", gotBody.Message, "ping")
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("server got auth %q", gotAuth)
	}
	if reply, ok := ExtractReply(resp); !ok || reply != "pong" {
		t.Errorf("got reply %q, %v", reply, ok)
	}
}

func TestHTTPClient_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	client, _ := NewHTTPClient(HTTPConfig{BaseURL: server.URL}, nil)

	_, err := client.SendMessage(context.Background(), "ping")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusBadGateway {
		t.Errorf("got status %d, want %d", statusErr.StatusCode, http.StatusBadGateway)
	}
}

func TestHTTPClient_RequiresBaseURL(t *testing.T) {
	if _, err := NewHTTPClient(HTTPConfig{}, nil); err == nil {
		t.Error("expected error for empty base url")
	}
}

func TestMockClient(t *testing.T) {
	resp, err := NewMockClient().SendMessage(context.Background(), "hello")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if _, ok := ExtractReply(resp); !ok {
		t.Error("mock reply should be extractable")
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMockClient().SendMessage(cancelled, "hello"); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}
