package ws

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sourcegraph/jsonrpc2"

	"github.com/chatpanel/server/coordinator"
	"github.com/chatpanel/server/history"
	"github.com/chatpanel/server/panel"
	"github.com/chatpanel/server/quickaction"
	"github.com/chatpanel/server/rpc"
	"github.com/chatpanel/server/watch"
)

var errMissingParams = errors.New("missing params")

// Watchers are the push channels a connection can subscribe to.
type Watchers struct {
	HistoryList   *watch.HistoryListWatcher
	State         *watch.StateWatcher
	Notifications *watch.NotificationWatcher
}

func (w Watchers) cleanup(connID string) {
	w.HistoryList.CleanupConnection(connID)
	w.State.CleanupConnection(connID)
	w.Notifications.CleanupConnection(connID)
}

// RPCHandler serves JSON-RPC 2.0 over WebSocket.
type RPCHandler struct {
	token    string
	version  string
	devMode  bool
	panel    *panel.Panel
	watchers Watchers
}

func NewRPCHandler(token, version string, devMode bool, p *panel.Panel, watchers Watchers) *RPCHandler {
	return &RPCHandler{
		token:    token,
		version:  version,
		devMode:  devMode,
		panel:    p,
		watchers: watchers,
	}
}

func (h *RPCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: h.devMode,
	})
	if err != nil {
		slog.Error("failed to accept websocket", "error", err)
		return
	}

	h.handleConnection(r.Context(), conn)
}

func (h *RPCHandler) handleConnection(ctx context.Context, wsConn *websocket.Conn) {
	connID := uuid.Must(uuid.NewV7()).String()
	log := slog.With("connId", connID)
	log.Info("new websocket connection")

	handler := &rpcMethodHandler{
		RPCHandler: h,
		connID:     connID,
		log:        log,
	}

	rpcConn := jsonrpc2.NewConn(ctx, newWebSocketStream(wsConn), jsonrpc2.AsyncHandler(handler))

	<-rpcConn.DisconnectNotify()

	h.watchers.cleanup(connID)
	log.Info("connection closed")
}

// rpcMethodHandler handles the requests of one connection.
type rpcMethodHandler struct {
	*RPCHandler
	connID string
	log    *slog.Logger

	authMu        sync.Mutex
	authenticated bool
}

func (h *rpcMethodHandler) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	h.log.Debug("received request", "method", req.Method, "id", req.ID)

	if !h.isAuthenticated() {
		if req.Method != "auth" {
			h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidRequest, "first request must be auth")
			conn.Close()
			return
		}
		h.handleAuth(ctx, conn, req)
		return
	}

	switch req.Method {
	case "auth":
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidRequest, "already authenticated")
	// chat
	case "chat.state":
		h.handleChatState(ctx, conn, req)
	case "chat.send":
		h.handleChatSend(ctx, conn, req)
	case "chat.keyword_search":
		h.handleKeywordSearch(ctx, conn, req)
	case "chat.quick_action":
		h.handleQuickAction(ctx, conn, req)
	case "chat.new":
		h.handleChatNew(ctx, conn, req)
	case "chat.state.subscribe":
		h.handleStateSubscribe(ctx, conn, req)
	case "chat.state.unsubscribe":
		h.handleStateUnsubscribe(ctx, conn, req)
	// session
	case "session.list":
		h.handleSessionList(ctx, conn, req)
	case "session.load":
		h.handleSessionLoad(ctx, conn, req)
	case "session.list.subscribe":
		h.handleSessionListSubscribe(ctx, conn, req)
	case "session.list.unsubscribe":
		h.handleSessionListUnsubscribe(ctx, conn, req)
	// workspace
	case "workspace.get":
		h.handleWorkspaceGet(ctx, conn, req)
	default:
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeMethodNotFound, "method not found: "+req.Method)
	}
}

func (h *rpcMethodHandler) isAuthenticated() bool {
	h.authMu.Lock()
	defer h.authMu.Unlock()
	return h.authenticated
}

func (h *rpcMethodHandler) setAuthenticated() {
	h.authMu.Lock()
	h.authenticated = true
	h.authMu.Unlock()
}

func (h *rpcMethodHandler) handleAuth(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.AuthParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		conn.Close()
		return
	}

	if subtle.ConstantTimeCompare([]byte(params.Token), []byte(h.token)) != 1 {
		h.log.Warn("invalid auth token")
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidRequest, "invalid token")
		conn.Close()
		return
	}

	h.setAuthenticated()
	h.watchers.Notifications.Register(conn, h.connID)
	h.log.Info("authenticated")

	if err := conn.Reply(ctx, req.ID, rpc.AuthResult{Version: h.version}); err != nil {
		h.log.Error("failed to send auth response", "error", err)
	}
}

func (h *rpcMethodHandler) replyError(ctx context.Context, conn *jsonrpc2.Conn, id jsonrpc2.ID, code int64, message string) {
	if err := conn.ReplyWithError(ctx, id, &jsonrpc2.Error{
		Code:    code,
		Message: message,
	}); err != nil {
		h.log.Error("failed to send error response", "error", err)
	}
}

// replyErr maps domain errors to JSON-RPC codes. Validation and lookup
// failures are the caller's fault; everything else is internal.
func (h *rpcMethodHandler) replyErr(ctx context.Context, conn *jsonrpc2.Conn, id jsonrpc2.ID, err error) {
	var validation *quickaction.ValidationError
	switch {
	case errors.Is(err, coordinator.ErrEmptyMessage),
		errors.Is(err, coordinator.ErrMissingFilePath),
		errors.Is(err, history.ErrSessionNotFound),
		errors.As(err, &validation):
		h.replyError(ctx, conn, id, jsonrpc2.CodeInvalidParams, err.Error())
	default:
		h.log.Error("request failed", "error", err)
		h.replyError(ctx, conn, id, jsonrpc2.CodeInternalError, "internal error")
	}
}

func (h *rpcMethodHandler) reply(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, result any) {
	if err := conn.Reply(ctx, req.ID, result); err != nil {
		h.log.Error("failed to send response", "method", req.Method, "error", err)
	}
}

func unmarshalParams(req *jsonrpc2.Request, v any) error {
	if req.Params == nil {
		return errMissingParams
	}
	return json.Unmarshal(*req.Params, v)
}

// webSocketStream adapts coder/websocket to jsonrpc2.ObjectStream.
type webSocketStream struct {
	conn *websocket.Conn
	mu   sync.Mutex // protects writes
}

func newWebSocketStream(conn *websocket.Conn) *webSocketStream {
	return &webSocketStream{conn: conn}
}

func (s *webSocketStream) ReadObject(v interface{}) error {
	_, data, err := s.conn.Read(context.Background())
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *webSocketStream) WriteObject(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Write(context.Background(), websocket.MessageText, data)
}

func (s *webSocketStream) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "")
}

var _ jsonrpc2.ObjectStream = (*webSocketStream)(nil)
