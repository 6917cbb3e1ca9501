package ws

import (
	"context"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/chatpanel/server/rpc"
)

func (h *rpcMethodHandler) handleSessionList(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	h.reply(ctx, conn, req, rpc.SessionListResult{Sessions: h.panel.Sessions()})
}

func (h *rpcMethodHandler) handleSessionLoad(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.SessionLoadParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}
	if params.SessionID == "" {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "session_id required")
		return
	}

	state, err := h.panel.LoadSession(ctx, params.SessionID)
	if err != nil {
		h.replyErr(ctx, conn, req.ID, err)
		return
	}

	h.log.Info("session loaded", "sessionId", params.SessionID)
	h.reply(ctx, conn, req, state)
}

func (h *rpcMethodHandler) handleSessionListSubscribe(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	id, sessions := h.watchers.HistoryList.Subscribe(conn, h.connID)

	h.reply(ctx, conn, req, rpc.SessionListSubscribeResult{
		ID:       id,
		Sessions: sessions,
	})
}

func (h *rpcMethodHandler) handleSessionListUnsubscribe(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.UnsubscribeParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	h.watchers.HistoryList.Unsubscribe(params.ID)
	h.reply(ctx, conn, req, struct{}{})
}
