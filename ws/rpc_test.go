package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/sourcegraph/jsonrpc2"

	"github.com/chatpanel/server/assistant"
	"github.com/chatpanel/server/coordinator"
	"github.com/chatpanel/server/history"
	"github.com/chatpanel/server/message"
	"github.com/chatpanel/server/notify"
	"github.com/chatpanel/server/panel"
	"github.com/chatpanel/server/quickaction"
	"github.com/chatpanel/server/rpc"
	"github.com/chatpanel/server/session"
	"github.com/chatpanel/server/watch"
	"github.com/chatpanel/server/workspace"
)

type mockAssistant struct {
	mu  sync.Mutex
	err error
}

func (m *mockAssistant) SendMessage(ctx context.Context, text string) (assistant.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return assistant.Response{}, m.err
	}
	return assistant.StructuredResponse("answer: " + text), nil
}

func (m *mockAssistant) fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

type testEnv struct {
	t         *testing.T
	assistant *mockAssistant
	provider  *workspace.StaticProvider
	index     *history.MemoryStore
	server    *httptest.Server
	conn      *websocket.Conn
	ctx       context.Context
	reqID     int
	pending   []rpcMessage
}

func newHandler(t *testing.T, token string, ws *workspace.Context) (*RPCHandler, *mockAssistant, *workspace.StaticProvider, *history.MemoryStore) {
	t.Helper()

	factory := message.NewFactory(message.UUIDGenerator{})
	provider := workspace.NewStaticProvider(ws)
	store := session.New(factory, provider.Current())
	index := history.NewMemoryStore(message.UUIDGenerator{})
	mock := &mockAssistant{}

	notifications := watch.NewNotificationWatcher()
	coord := coordinator.New(store, index, factory, mock,
		coordinator.WithNotifier(notify.NewMulti(notify.SlogNotifier{}, notifications)),
		coordinator.WithTimeout(time.Second))
	dispatcher := quickaction.NewDispatcher(coord, notifications)
	p := panel.New(store, index, coord, dispatcher, provider)

	watchers := Watchers{
		HistoryList:   watch.NewHistoryListWatcher(index),
		State:         watch.NewStateWatcher(p),
		Notifications: notifications,
	}
	for _, w := range []watch.Watcher{watchers.HistoryList, watchers.State, watchers.Notifications} {
		if err := w.Start(); err != nil {
			t.Fatalf("failed to start watcher: %v", err)
		}
		t.Cleanup(w.Stop)
	}

	return NewRPCHandler(token, "test", true, p, watchers), mock, provider, index
}

func dial(t *testing.T, server *httptest.Server) (*websocket.Conn, context.Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn, ctx
}

func newTestEnv(t *testing.T, ws *workspace.Context) *testEnv {
	h, mock, provider, index := newHandler(t, "test-token", ws)
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	conn, ctx := dial(t, server)
	env := &testEnv{
		t:         t,
		assistant: mock,
		provider:  provider,
		index:     index,
		server:    server,
		conn:      conn,
		ctx:       ctx,
	}

	resp := env.call("auth", rpc.AuthParams{Token: "test-token"})
	if resp.Error != nil {
		t.Fatalf("auth failed: %s", resp.Error.Message)
	}
	return env
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// rpcMessage is either a response (ID set) or a notification (Method set).
type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int            `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpc2.Error `json:"error,omitempty"`
}

func (e *testEnv) read() rpcMessage {
	_, data, err := e.conn.Read(e.ctx)
	if err != nil {
		e.t.Fatalf("failed to read: %v", err)
	}
	var msg rpcMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		e.t.Fatalf("failed to unmarshal: %v", err)
	}
	return msg
}

// call sends a request and returns its response. Notifications that arrive
// first are kept for readNotification.
func (e *testEnv) call(method string, params interface{}) rpcMessage {
	e.reqID++
	id := e.reqID
	data, _ := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err := e.conn.Write(e.ctx, websocket.MessageText, data); err != nil {
		e.t.Fatalf("failed to send: %v", err)
	}

	for {
		msg := e.read()
		if msg.ID != nil && *msg.ID == id {
			return msg
		}
		e.pending = append(e.pending, msg)
	}
}

func (e *testEnv) readNotification(method string) rpcMessage {
	for i, msg := range e.pending {
		if msg.Method == method {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			return msg
		}
	}
	for {
		msg := e.read()
		if msg.Method == method {
			return msg
		}
		e.pending = append(e.pending, msg)
	}
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("failed to decode %s: %v", raw, err)
	}
	return v
}

func TestHandler_Auth_InvalidToken(t *testing.T) {
	h, _, _, _ := newHandler(t, "secret-token", nil)
	server := httptest.NewServer(h)
	defer server.Close()

	conn, ctx := dial(t, server)
	env := &testEnv{t: t, conn: conn, ctx: ctx}

	resp := env.call("auth", rpc.AuthParams{Token: "wrong-token"})
	if resp.Error == nil {
		t.Fatal("expected auth to fail")
	}
	if !strings.Contains(resp.Error.Message, "invalid token") {
		t.Errorf("expected 'invalid token' error, got %q", resp.Error.Message)
	}
}

func TestHandler_Auth_FirstMessageMustBeAuth(t *testing.T) {
	h, _, _, _ := newHandler(t, "test-token", nil)
	server := httptest.NewServer(h)
	defer server.Close()

	conn, ctx := dial(t, server)
	env := &testEnv{t: t, conn: conn, ctx: ctx}

	resp := env.call("chat.state", nil)
	if resp.Error == nil {
		t.Fatal("expected error")
	}
	if resp.Error.Code != jsonrpc2.CodeInvalidRequest {
		t.Errorf("got code %d, want %d", resp.Error.Code, jsonrpc2.CodeInvalidRequest)
	}
}

func TestHandler_MethodNotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.call("chat.delete", nil)
	if resp.Error == nil || resp.Error.Code != jsonrpc2.CodeMethodNotFound {
		t.Errorf("expected method not found, got %+v", resp.Error)
	}
}

func TestHandler_ChatState(t *testing.T) {
	env := newTestEnv(t, &workspace.Context{Name: "Acme", Type: workspace.TypeResume})

	resp := env.call("chat.state", nil)
	if resp.Error != nil {
		t.Fatalf("chat.state failed: %s", resp.Error.Message)
	}

	state := decode[session.State](t, resp.Result)
	if len(state.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(state.Messages))
	}
	if !strings.Contains(state.Messages[0].Text, "Acme") {
		t.Errorf("greeting should mention workspace: %q", state.Messages[0].Text)
	}
	if state.IsSending {
		t.Error("expected is_sending false")
	}
}

func TestHandler_ChatSend(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.call("chat.send", rpc.SendParams{Text: "what can you do?"})
	if resp.Error != nil {
		t.Fatalf("chat.send failed: %s", resp.Error.Message)
	}

	result := decode[rpc.SendResult](t, resp.Result)
	if result.Status != rpc.SendStatusOK {
		t.Errorf("got status %q", result.Status)
	}
	if result.Reply != "answer: what can you do?" {
		t.Errorf("got reply %q", result.Reply)
	}
	if result.SessionID == "" {
		t.Error("expected session id")
	}

	state := decode[session.State](t, env.call("chat.state", nil).Result)
	if len(state.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(state.Messages))
	}
	if !state.Messages[1].IsUser || state.Messages[2].IsUser {
		t.Error("expected user message followed by assistant message")
	}
	if state.ActiveSessionID != result.SessionID {
		t.Errorf("active session %q, want %q", state.ActiveSessionID, result.SessionID)
	}

	list := decode[rpc.SessionListResult](t, env.call("session.list", nil).Result)
	if len(list.Sessions) != 1 || list.Sessions[0].Title != "what can you do?" {
		t.Errorf("unexpected session list %+v", list.Sessions)
	}
}

func TestHandler_ChatSend_Empty(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.call("chat.send", rpc.SendParams{Text: "   "})
	if resp.Error == nil || resp.Error.Code != jsonrpc2.CodeInvalidParams {
		t.Fatalf("expected invalid params, got %+v", resp.Error)
	}

	state := decode[session.State](t, env.call("chat.state", nil).Result)
	if len(state.Messages) != 1 {
		t.Errorf("expected no new messages, got %d", len(state.Messages))
	}

	n := decode[notify.Notification](t, env.readNotification("notify").Params)
	if n.Title != "Empty message" {
		t.Errorf("got notification %q", n.Title)
	}
}

func TestHandler_ChatSend_AssistantFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.assistant.fail(errors.New("connection refused"))

	resp := env.call("chat.send", rpc.SendParams{Text: "hello"})
	if resp.Error != nil {
		t.Fatalf("assistant failures must not be RPC errors: %s", resp.Error.Message)
	}

	result := decode[rpc.SendResult](t, resp.Result)
	if result.Status != rpc.SendStatusFailed {
		t.Errorf("got status %q, want failed", result.Status)
	}
	if result.Error != rpc.SendErrorAssistant || strings.Contains(result.Error, "connection refused") {
		t.Errorf("client must get a fixed failure text, got %q", result.Error)
	}
	if result.Kind != string(coordinator.KindMessage) {
		t.Errorf("got kind %q", result.Kind)
	}

	n := decode[notify.Notification](t, env.readNotification("notify").Params)
	if n.Severity != notify.SeverityDestructive {
		t.Errorf("got severity %q", n.Severity)
	}

	state := decode[session.State](t, env.call("chat.state", nil).Result)
	if len(state.Messages) != 3 {
		t.Fatalf("expected greeting, user message and apology, got %d", len(state.Messages))
	}
	if state.Messages[2].Text != coordinator.Apology(coordinator.KindMessage) {
		t.Errorf("unexpected apology %q", state.Messages[2].Text)
	}
	if env.index.Len() != 0 {
		t.Error("failed exchange must not be committed")
	}
}

func TestHandler_KeywordSearch(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.call("chat.keyword_search", rpc.KeywordSearchParams{Keyword: "kubernetes"})
	if resp.Error != nil {
		t.Fatalf("keyword search failed: %s", resp.Error.Message)
	}

	result := decode[rpc.SendResult](t, resp.Result)
	if !strings.Contains(result.Reply, "kubernetes") {
		t.Errorf("reply should echo templated keyword: %q", result.Reply)
	}
}

func TestHandler_QuickAction(t *testing.T) {
	env := newTestEnv(t, &workspace.Context{Name: "Backend Role", Type: workspace.TypeJD})

	resp := env.call("chat.quick_action", rpc.QuickActionParams{Action: "match"})
	if resp.Error != nil {
		t.Fatalf("match failed: %s", resp.Error.Message)
	}
	result := decode[rpc.QuickActionResult](t, resp.Result)
	if result.Prefill != "find candidate matches for this job" || result.Sent {
		t.Errorf("unexpected match result %+v", result)
	}

	resp = env.call("chat.quick_action", rpc.QuickActionParams{Action: "summarize"})
	if resp.Error == nil || resp.Error.Code != jsonrpc2.CodeInvalidParams {
		t.Fatalf("expected validation error, got %+v", resp.Error)
	}
	if !strings.Contains(resp.Error.Message, "wrong workspace type") {
		t.Errorf("unexpected message %q", resp.Error.Message)
	}
	env.readNotification("notify")
}

func TestHandler_QuickAction_Summarize(t *testing.T) {
	env := newTestEnv(t, &workspace.Context{Name: "Jane", Type: workspace.TypeResume, FilePath: "/cv/jane.pdf"})

	resp := env.call("chat.quick_action", rpc.QuickActionParams{Action: "summarize"})
	if resp.Error != nil {
		t.Fatalf("summarize failed: %s", resp.Error.Message)
	}

	result := decode[rpc.QuickActionResult](t, resp.Result)
	if !result.Sent || result.Result == nil || result.Result.Status != rpc.SendStatusOK {
		t.Errorf("unexpected summarize result %+v", result)
	}
}

func TestHandler_NewChatAndLoad(t *testing.T) {
	env := newTestEnv(t, nil)

	sent := decode[rpc.SendResult](t, env.call("chat.send", rpc.SendParams{Text: "first topic"}).Result)

	fresh := decode[session.State](t, env.call("chat.new", nil).Result)
	if len(fresh.Messages) != 1 || fresh.ActiveSessionID != "" {
		t.Errorf("chat.new should reset: %+v", fresh)
	}

	resp := env.call("session.load", rpc.SessionLoadParams{SessionID: sent.SessionID})
	if resp.Error != nil {
		t.Fatalf("session.load failed: %s", resp.Error.Message)
	}
	loaded := decode[session.State](t, resp.Result)
	if loaded.ActiveSessionID != sent.SessionID || len(loaded.Messages) != 3 {
		t.Errorf("unexpected loaded state %+v", loaded)
	}

	again := decode[rpc.SendResult](t, env.call("chat.send", rpc.SendParams{Text: "more"}).Result)
	if again.SessionID != sent.SessionID {
		t.Errorf("send after load should update %q, got %q", sent.SessionID, again.SessionID)
	}
	if env.index.Len() != 1 {
		t.Errorf("expected 1 record, got %d", env.index.Len())
	}
}

func TestHandler_SessionLoad_NotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.call("session.load", rpc.SessionLoadParams{SessionID: "missing"})
	if resp.Error == nil || resp.Error.Code != jsonrpc2.CodeInvalidParams {
		t.Errorf("expected invalid params, got %+v", resp.Error)
	}

	resp = env.call("session.load", rpc.SessionLoadParams{})
	if resp.Error == nil || resp.Error.Code != jsonrpc2.CodeInvalidParams {
		t.Errorf("expected invalid params for empty id, got %+v", resp.Error)
	}
}

func TestHandler_SessionListSubscribe(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.call("session.list.subscribe", nil)
	if resp.Error != nil {
		t.Fatalf("subscribe failed: %s", resp.Error.Message)
	}
	sub := decode[rpc.SessionListSubscribeResult](t, resp.Result)
	if sub.ID == "" || len(sub.Sessions) != 0 {
		t.Errorf("unexpected subscribe result %+v", sub)
	}

	sent := decode[rpc.SendResult](t, env.call("chat.send", rpc.SendParams{Text: "hello"}).Result)

	type listChanged struct {
		ID        string          `json:"id"`
		Operation string          `json:"operation"`
		Session   history.Summary `json:"session"`
	}
	params := decode[listChanged](t, env.readNotification("session.list.changed").Params)

	if params.ID != sub.ID || params.Operation != "create" || params.Session.ID != sent.SessionID {
		t.Errorf("unexpected notification %+v", params)
	}

	if resp := env.call("session.list.unsubscribe", rpc.UnsubscribeParams{ID: sub.ID}); resp.Error != nil {
		t.Errorf("unsubscribe failed: %s", resp.Error.Message)
	}
}

func TestHandler_StateSubscribe(t *testing.T) {
	env := newTestEnv(t, nil)

	sub := decode[rpc.StateSubscribeResult](t, env.call("chat.state.subscribe", nil).Result)
	if sub.ID == "" || len(sub.State.Messages) != 1 {
		t.Fatalf("unexpected subscribe result %+v", sub)
	}

	env.call("chat.send", rpc.SendParams{Text: "hi"})

	// Snapshots are coalesced; wait for the one that contains the reply.
	type stateChanged struct {
		ID    string        `json:"id"`
		State session.State `json:"state"`
	}
	for {
		params := decode[stateChanged](t, env.readNotification("chat.state.changed").Params)
		if params.ID != sub.ID {
			t.Fatalf("unexpected subscription id %q", params.ID)
		}
		if len(params.State.Messages) == 3 && !params.State.IsSending && params.State.ActiveSessionID != "" {
			break
		}
	}

	if resp := env.call("chat.state.unsubscribe", rpc.UnsubscribeParams{ID: sub.ID}); resp.Error != nil {
		t.Errorf("unsubscribe failed: %s", resp.Error.Message)
	}
}

func TestHandler_WorkspaceGet(t *testing.T) {
	env := newTestEnv(t, &workspace.Context{Name: "Jane", Type: workspace.TypeResume, FilePath: "/cv.pdf"})

	ws := decode[*workspace.Context](t, env.call("workspace.get", nil).Result)
	if ws == nil || ws.Name != "Jane" || ws.FilePath != "/cv.pdf" {
		t.Errorf("unexpected workspace %+v", ws)
	}

	env.provider.Set(nil)
	ws = decode[*workspace.Context](t, env.call("workspace.get", nil).Result)
	if ws != nil {
		t.Errorf("expected null workspace, got %+v", ws)
	}
}
