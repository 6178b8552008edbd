package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"perpsim/internal/domain"
	"perpsim/internal/platform/remote"
)

// AccountService defines the wallet operations the handler requires from
// the engine.
type AccountService interface {
	Account() domain.AccountSnapshot
	Convert(feeAmount decimal.Decimal) error
}

// AccountSource fetches the account snapshot from a remote backend
// (mirror mode).
type AccountSource interface {
	GetAccount(ctx context.Context) (remote.Account, error)
}

// AccountHandler serves balance and conversion endpoints.
type AccountHandler struct {
	account AccountService
	source  AccountSource // nil outside mirror mode
	logger  *slog.Logger
}

// NewAccountHandler creates an AccountHandler. source may be nil; when set,
// GetAccount reflects the remote backend's account instead of the local
// ledgers.
func NewAccountHandler(account AccountService, source AccountSource, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{account: account, source: source, logger: logger}
}

// GetAccount returns both wallets and the cumulative settled PnL.
// GET /api/account
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	if h.source != nil {
		acct, err := h.source.GetAccount(r.Context())
		if err != nil {
			h.logger.WarnContext(r.Context(), "remote account fetch failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusBadGateway, "remote backend unavailable")
			return
		}
		writeJSON(w, http.StatusOK, acct)
		return
	}
	writeJSON(w, http.StatusOK, h.account.Account())
}

// convertRequest is the JSON body for a fee-asset conversion.
type convertRequest struct {
	Amount string `json:"amount"`
}

// Convert exchanges fee asset for payout asset at the configured rate.
// POST /api/convert
func (h *AccountHandler) Convert(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount must be a decimal number")
		return
	}

	if err := h.account.Convert(amount); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.account.Account())
}
