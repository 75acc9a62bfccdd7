package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cartship/flutterwave-gateway/api/responses"
	"github.com/cartship/flutterwave-gateway/internal/payments"
	"github.com/cartship/flutterwave-gateway/pkg/db/models"
	"github.com/cartship/flutterwave-gateway/pkg/enums"
	pkgerrors "github.com/cartship/flutterwave-gateway/pkg/errors"
	"github.com/cartship/flutterwave-gateway/pkg/logger"
	"github.com/cartship/flutterwave-gateway/pkg/pagination"
)

type transactionSummary struct {
	ID                 uuid.UUID  `json:"id"`
	OrderID            uuid.UUID  `json:"order_id"`
	SubscriptionID     *uuid.UUID `json:"subscription_id,omitempty"`
	Type               string     `json:"type"`
	Status             string     `json:"status"`
	TotalCents         int64      `json:"total_cents"`
	RefundedTotalCents int64      `json:"refunded_total_cents"`
	Currency           string     `json:"currency"`
	ProviderChargeID   string     `json:"provider_charge_id,omitempty"`
	ProviderRefundID   string     `json:"provider_refund_id,omitempty"`
	CardBrand          string     `json:"card_brand,omitempty"`
	CardLast4          string     `json:"card_last4,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

type transactionListResponse struct {
	Items      []transactionSummary `json:"items"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

// OrderTransactions lists an order's charge and refund history with cursor
// pagination.
func OrderTransactions(repo payments.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "transaction repository unavailable"))
			return
		}

		orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid order id"))
			return
		}

		query := payments.ListTransactionsQuery{OrderID: orderID}

		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid limit"))
				return
			}
			query.Limit = limit
		}
		if raw := r.URL.Query().Get("cursor"); raw != "" {
			cursor, err := pagination.ParseCursor(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor"))
				return
			}
			query.Cursor = cursor
		}
		if raw := r.URL.Query().Get("type"); raw != "" {
			txnType, err := enums.ParseTransactionType(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction type"))
				return
			}
			query.Type = &txnType
		}
		if raw := r.URL.Query().Get("status"); raw != "" {
			status, err := enums.ParseTransactionStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction status"))
				return
			}
			query.Status = &status
		}

		rows, next, err := repo.ListByOrder(r.Context(), query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]transactionSummary, 0, len(rows))
		for _, row := range rows {
			items = append(items, newTransactionSummary(row))
		}
		payload := transactionListResponse{Items: items}
		if next != nil {
			payload.NextCursor = pagination.EncodeCursor(*next)
		}
		responses.WriteSuccess(w, payload)
	}
}

func newTransactionSummary(txn models.OrderTransaction) transactionSummary {
	return transactionSummary{
		ID:                 txn.ID,
		OrderID:            txn.OrderID,
		SubscriptionID:     txn.SubscriptionID,
		Type:               string(txn.Type),
		Status:             string(txn.Status),
		TotalCents:         txn.TotalCents,
		RefundedTotalCents: txn.RefundedTotalCents,
		Currency:           txn.Currency,
		ProviderChargeID:   txn.ProviderChargeID,
		ProviderRefundID:   txn.ProviderRefundID,
		CardBrand:          txn.CardBrand,
		CardLast4:          txn.CardLast4,
		CreatedAt:          txn.CreatedAt,
	}
}
