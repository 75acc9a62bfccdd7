package initiation

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/cartship/flutterwave-gateway/internal/orders"
	"github.com/cartship/flutterwave-gateway/internal/payments"
	"github.com/cartship/flutterwave-gateway/internal/subscriptions"
	"github.com/cartship/flutterwave-gateway/pkg/config"
	"github.com/cartship/flutterwave-gateway/pkg/db/models"
	"github.com/cartship/flutterwave-gateway/pkg/enums"
	pkgerrors "github.com/cartship/flutterwave-gateway/pkg/errors"
	"github.com/cartship/flutterwave-gateway/pkg/flutterwave"
	"github.com/cartship/flutterwave-gateway/pkg/logger"
	"github.com/cartship/flutterwave-gateway/pkg/txref"
	"github.com/cartship/flutterwave-gateway/pkg/types"
)

type planCreator interface {
	CreatePaymentPlan(ctx context.Context, req flutterwave.PlanRequest) (*flutterwave.PlanData, error)
}

type paymentInitializer interface {
	InitializePayment(ctx context.Context, req flutterwave.PaymentRequest) (*flutterwave.PaymentLink, error)
}

// StartResult carries the hosted checkout handoff for one order.
type StartResult struct {
	OrderID uuid.UUID `json:"order_id"`
	TxRef   string    `json:"tx_ref"`
	Link    string    `json:"link"`
	Mode    string    `json:"mode"`
}

// Service builds provider checkout payloads for one-time and subscription
// purchases.
type Service interface {
	OneTime(ctx context.Context, order *models.Order, txn *models.OrderTransaction) (*flutterwave.PaymentRequest, error)
	Subscription(ctx context.Context, order *models.Order, txn *models.OrderTransaction, sub *models.Subscription) (*flutterwave.PaymentRequest, error)
	Start(ctx context.Context, orderID uuid.UUID) (*StartResult, error)
}

type service struct {
	plans         PlanRepository
	transactions  payments.Repository
	subscriptions subscriptions.Repository
	orders        orders.Repository
	client        planCreator
	initializer   paymentInitializer
	checkout      config.CheckoutConfig
	options       []string
	minimums      map[string]int64
	logg          *logger.Logger
}

// ServiceParams wires the initiation service dependencies.
type ServiceParams struct {
	Plans         PlanRepository
	Transactions  payments.Repository
	Subscriptions subscriptions.Repository
	Orders        orders.Repository
	Client        planCreator
	// Initializer performs the hosted checkout call for Start. Optional when
	// only the payload builders are used.
	Initializer    paymentInitializer
	Checkout       config.CheckoutConfig
	PaymentOptions []string
	// MinimumFirstChargeCents substitutes a per-currency floor for a zero
	// first charge instead of rejecting it.
	MinimumFirstChargeCents map[string]int64
	Logger                  *logger.Logger
}

// NewService validates dependencies and returns an initiation service.
func NewService(params ServiceParams) (Service, error) {
	if params.Plans == nil {
		return nil, fmt.Errorf("plan repository required")
	}
	if params.Transactions == nil {
		return nil, fmt.Errorf("transaction repository required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscription repository required")
	}
	if params.Client == nil {
		return nil, fmt.Errorf("provider client required")
	}
	if params.Checkout.RedirectURL == "" {
		return nil, fmt.Errorf("redirect url required")
	}
	return &service{
		plans:         params.Plans,
		transactions:  params.Transactions,
		subscriptions: params.Subscriptions,
		orders:        params.Orders,
		client:        params.Client,
		initializer:   params.Initializer,
		checkout:      params.Checkout,
		options:       params.PaymentOptions,
		minimums:      params.MinimumFirstChargeCents,
		logg:          params.Logger,
	}, nil
}

// Start resolves the order, ensures its pending charge row, builds the
// matching payment payload and hands the hosted checkout link back.
func (s *service) Start(ctx context.Context, orderID uuid.UUID) (*StartResult, error) {
	if s.orders == nil || s.initializer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "checkout start is not wired")
	}

	order, err := s.orders.FindOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}

	txn, err := s.transactions.FindChargeByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		txn = &models.OrderTransaction{
			ID:         uuid.New(),
			OrderID:    order.ID,
			Type:       enums.TransactionTypeCharge,
			Status:     enums.TransactionStatusPending,
			TotalCents: order.TotalCents,
			Currency:   order.Currency,
		}
		if err := s.transactions.CreateTransaction(ctx, txn); err != nil {
			return nil, err
		}
	}
	if txn.Status == enums.TransactionStatusSucceeded {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is already paid")
	}

	sub, err := s.subscriptions.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	var req *flutterwave.PaymentRequest
	mode := "onetime"
	if sub != nil {
		mode = "subscription"
		req, err = s.Subscription(ctx, order, txn, sub)
	} else {
		req, err = s.OneTime(ctx, order, txn)
	}
	if err != nil {
		return nil, err
	}

	link, err := s.initializer.InitializePayment(ctx, *req)
	if err != nil {
		return nil, err
	}
	return &StartResult{
		OrderID: order.ID,
		TxRef:   req.TxRef,
		Link:    link.Link,
		Mode:    mode,
	}, nil
}

// OneTime builds the hosted checkout payload for a single charge and pins the
// generated tx_ref onto the transaction row before anything leaves the
// process.
func (s *service) OneTime(ctx context.Context, order *models.Order, txn *models.OrderTransaction) (*flutterwave.PaymentRequest, error) {
	if order == nil || txn == nil {
		return nil, fmt.Errorf("order and transaction required")
	}
	currency, err := normalizeCurrency(order.Currency)
	if err != nil {
		return nil, err
	}

	ref := txref.Encode(txref.IntentOneTime, txn.ID.String())
	if err := s.pinTxRef(ctx, txn, ref); err != nil {
		return nil, err
	}

	return s.buildPayment(order, ref, txn.TotalCents, currency, ""), nil
}

// Subscription builds the hosted checkout payload for a subscription's first
// charge, resolving or creating the provider payment plan.
func (s *service) Subscription(ctx context.Context, order *models.Order, txn *models.OrderTransaction, sub *models.Subscription) (*flutterwave.PaymentRequest, error) {
	if order == nil || txn == nil || sub == nil {
		return nil, fmt.Errorf("order, transaction and subscription required")
	}
	currency, err := normalizeCurrency(order.Currency)
	if err != nil {
		return nil, err
	}

	if sub.TrialDays > 0 && !sub.SimulatedTrial {
		return nil, pkgerrors.New(pkgerrors.CodeUnsupported, "free trials require a simulated trial charge")
	}
	if order.Type == enums.OrderTypeRenewal && sub.TrialDays > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeUnsupported, "renewal reactivation can not carry a trial")
	}

	firstCharge := txn.TotalCents
	if firstCharge == 0 {
		floor, ok := s.minimums[currency]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeUnsupported, "zero-amount first charge is not supported")
		}
		firstCharge = floor
	}

	planID, err := s.resolvePlan(ctx, order, sub, currency)
	if err != nil {
		return nil, err
	}
	if sub.ProviderPlanID != planID {
		sub.ProviderPlanID = planID
		if err := s.subscriptions.UpdateSubscription(ctx, sub); err != nil {
			return nil, err
		}
	}

	ref := txref.Encode(txref.IntentSubscription, sub.ID.String())
	if err := s.pinTxRef(ctx, txn, ref); err != nil {
		return nil, err
	}

	return s.buildPayment(order, ref, firstCharge, currency, planID), nil
}

// resolvePlan returns the provider plan id for the subscription shape,
// creating the plan at most once per deterministic key.
func (s *service) resolvePlan(ctx context.Context, order *models.Order, sub *models.Subscription, currency string) (string, error) {
	key := planKey(order, sub, currency)
	mapping, err := s.plans.FindMapping(ctx, key)
	if err != nil {
		return "", err
	}
	if mapping != nil {
		return mapping.ProviderPlanID, nil
	}

	duration := 0
	if sub.BillTimes > 0 {
		// The first charge happens at subscribe time, so the plan bills
		// one fewer cycle than the configured total.
		duration = sub.BillTimes - 1
	}
	plan, err := s.client.CreatePaymentPlan(ctx, flutterwave.PlanRequest{
		Name:     sub.ItemName,
		Amount:   flutterwave.FromMinorUnits(sub.RecurringTotalCents),
		Interval: sub.BillingInterval.ProviderInterval(),
		Duration: duration,
		Currency: currency,
	})
	if err != nil {
		return "", err
	}

	providerPlanID := strconv.FormatInt(plan.ID, 10)
	if err := s.plans.CreateMapping(ctx, &models.PlanMapping{
		Key:            key,
		ProviderPlanID: providerPlanID,
		Currencies:     []string{currency},
	}); err != nil {
		return "", err
	}
	return providerPlanID, nil
}

func planKey(order *models.Order, sub *models.Subscription, currency string) string {
	return strings.Join([]string{
		string(order.Mode),
		sub.Meta.GetString("product_id"),
		sub.Meta.GetString("variation_id"),
		strconv.FormatInt(sub.RecurringTotalCents, 10),
		string(sub.BillingInterval),
		strconv.Itoa(sub.BillTimes),
		currency,
	}, "_")
}

func (s *service) pinTxRef(ctx context.Context, txn *models.OrderTransaction, ref string) error {
	txn.Meta = txn.Meta.Merge(types.Meta{"tx_ref": ref})
	return s.transactions.UpdateTransaction(ctx, txn)
}

func (s *service) buildPayment(order *models.Order, ref string, amountCents int64, currency, planID string) *flutterwave.PaymentRequest {
	req := &flutterwave.PaymentRequest{
		TxRef:       ref,
		Amount:      flutterwave.FromMinorUnits(amountCents),
		Currency:    currency,
		RedirectURL: s.checkout.RedirectURL,
		PaymentPlan: planID,
		Customer: flutterwave.Customer{
			Email:       order.CustomerEmail,
			Name:        order.CustomerName,
			PhoneNumber: order.CustomerPhone,
		},
		Meta: map[string]any{
			"order_id":         order.ID.String(),
			"order_hash":       order.Hash,
			"transaction_hash": order.Meta.GetString("transaction_hash"),
		},
	}
	if len(s.options) > 0 {
		req.PaymentOptions = strings.Join(s.options, ",")
	}
	if s.checkout.Title != "" || s.checkout.LogoURL != "" {
		req.Customizations = &flutterwave.Customizations{
			Title: s.checkout.Title,
			Logo:  s.checkout.LogoURL,
		}
	}
	return req
}

func normalizeCurrency(currency string) (string, error) {
	upper := strings.ToUpper(strings.TrimSpace(currency))
	if upper == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnsupported, "currency is required")
	}
	if !enums.IsFlutterwaveCurrency(upper) {
		return "", pkgerrors.New(pkgerrors.CodeUnsupported, "currency not supported by flutterwave").
			WithDetails(map[string]any{"currency": upper})
	}
	return upper, nil
}
