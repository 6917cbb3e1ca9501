package ws

import (
	"context"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/chatpanel/server/logger"
	"github.com/chatpanel/server/quickaction"
	"github.com/chatpanel/server/rpc"
)

// promptLogMaxLen limits prompt length in logs for privacy.
const promptLogMaxLen = 50

func (h *rpcMethodHandler) handleChatState(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	h.reply(ctx, conn, req, h.panel.State())
}

// The assistant call outlives the connection: the exchange belongs to the
// shared conversation, not to the client that started it.
func (h *rpcMethodHandler) handleChatSend(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.SendParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	h.log.Info("chat send", "text", logger.Truncate(params.Text, promptLogMaxLen))

	res, err := h.panel.Send(context.WithoutCancel(ctx), params.Text)
	if err != nil {
		h.replyErr(ctx, conn, req.ID, err)
		return
	}
	h.reply(ctx, conn, req, rpc.NewSendResult(res))
}

func (h *rpcMethodHandler) handleKeywordSearch(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.KeywordSearchParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	res, err := h.panel.KeywordSearch(context.WithoutCancel(ctx), params.Keyword)
	if err != nil {
		h.replyErr(ctx, conn, req.ID, err)
		return
	}
	h.reply(ctx, conn, req, rpc.NewSendResult(res))
}

func (h *rpcMethodHandler) handleQuickAction(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.QuickActionParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	outcome, err := h.panel.QuickAction(context.WithoutCancel(ctx), quickaction.Action(params.Action))
	if err != nil {
		h.replyErr(ctx, conn, req.ID, err)
		return
	}
	h.reply(ctx, conn, req, rpc.NewQuickActionResult(outcome))
}

func (h *rpcMethodHandler) handleChatNew(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	h.reply(ctx, conn, req, h.panel.NewChat())
}

func (h *rpcMethodHandler) handleStateSubscribe(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	id, state := h.watchers.State.Subscribe(conn, h.connID)
	h.reply(ctx, conn, req, rpc.StateSubscribeResult{ID: id, State: state})
}

func (h *rpcMethodHandler) handleStateUnsubscribe(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.UnsubscribeParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	h.watchers.State.Unsubscribe(params.ID)
	h.reply(ctx, conn, req, struct{}{})
}

func (h *rpcMethodHandler) handleWorkspaceGet(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	h.reply(ctx, conn, req, h.panel.Workspace())
}
