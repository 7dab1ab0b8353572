package v1

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/tokenvault/tokenvault/api/common"
)

// GetStatus gets the devnet status.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status, err := h.client.Status(ctx)
	if err != nil {
		h.logAndReply(ctx, "failed to get status", w, err)
		h.metrics.RequestCounter(r.URL.Path, "failure", "database_error").Inc()
		return
	}
	h.reply(ctx, w, r, status)
}

// GetVault gets the vault configuration.
func (h *Handler) GetVault(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	vault, err := h.client.Vault(ctx)
	if err != nil {
		h.logAndReply(ctx, "failed to get vault", w, err)
		h.metrics.RequestCounter(r.URL.Path, "failure", "chain_error").Inc()
		return
	}
	h.reply(ctx, w, r, vault)
}

// GetRoleMembership reports whether an account holds a vault role.
func (h *Handler) GetRoleMembership(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	membership, err := h.client.RoleMembership(ctx, r)
	if err != nil {
		h.logAndReply(ctx, "failed to get role membership", w, err)
		h.metrics.RequestCounter(r.URL.Path, "failure", "chain_error").Inc()
		return
	}
	h.reply(ctx, w, r, membership)
}

// GetTokenBalance gets the balance of an account in a token.
func (h *Handler) GetTokenBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	balance, err := h.client.TokenBalance(ctx, r)
	if err != nil {
		h.logAndReply(ctx, "failed to get token balance", w, err)
		h.metrics.RequestCounter(r.URL.Path, "failure", "chain_error").Inc()
		return
	}
	h.reply(ctx, w, r, balance)
}

// ListTokenHolders gets the indexed holders of a token.
func (h *Handler) ListTokenHolders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	holders, err := h.client.TokenHolders(ctx, r)
	if err != nil {
		h.logAndReply(ctx, "failed to list token holders", w, err)
		h.metrics.RequestCounter(r.URL.Path, "failure", "database_error").Inc()
		return
	}
	h.reply(ctx, w, r, holders)
}

// GetReceipt gets a mined receipt.
func (h *Handler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	receipt, err := h.client.Receipt(ctx, r)
	if err != nil {
		h.logAndReply(ctx, "failed to get receipt", w, err)
		h.metrics.RequestCounter(r.URL.Path, "failure", "chain_error").Inc()
		return
	}
	h.reply(ctx, w, r, receipt)
}

// ListEvents gets the indexed contract events.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	events, err := h.client.Events(ctx, r)
	if err != nil {
		h.logAndReply(ctx, "failed to list events", w, err)
		h.metrics.RequestCounter(r.URL.Path, "failure", "database_error").Inc()
		return
	}
	h.reply(ctx, w, r, events)
}

func (h *Handler) reply(ctx context.Context, w http.ResponseWriter, r *http.Request, v interface{}) {
	resp, err := json.Marshal(v)
	if err != nil {
		h.logAndReply(ctx, "failed to marshal response", w, err)
		h.metrics.RequestCounter(r.URL.Path, "failure", "serde_error").Inc()
		return
	}

	w.Header().Set("content-type", "application/json")
	if _, err := w.Write(resp); err != nil {
		h.logger.Error("failed to write response",
			"request_id", ctx.Value(common.RequestIDContextKey),
			"error", err,
		)
		h.metrics.RequestCounter(r.URL.Path, "failure", "http_error").Inc()
	} else {
		h.metrics.RequestCounter(r.URL.Path, "success").Inc()
	}
}

func (h *Handler) logAndReply(ctx context.Context, msg string, w http.ResponseWriter, err error) {
	if common.HttpCodeForError(err) < http.StatusInternalServerError {
		h.logger.Info(msg,
			"request_id", ctx.Value(common.RequestIDContextKey),
			"error", err,
		)
	} else {
		h.logger.Error(msg,
			"request_id", ctx.Value(common.RequestIDContextKey),
			"error", err,
		)
	}
	common.ReplyWithError(w, err)
}
