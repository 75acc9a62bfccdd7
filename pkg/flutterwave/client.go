// Package flutterwave is a thin typed client for the Flutterwave v3 REST API.
package flutterwave

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cartship/flutterwave-gateway/pkg/config"
	"github.com/cartship/flutterwave-gateway/pkg/errors"
	"github.com/cartship/flutterwave-gateway/pkg/logger"
	"github.com/cartship/flutterwave-gateway/pkg/metrics"
)

const defaultBaseURL = "https://api.flutterwave.com/v3/"

// OutboundRequest is the request as built, handed to hooks before sending.
type OutboundRequest struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// RequestHook can inspect or mutate an outbound request before it is sent.
type RequestHook interface {
	BeforeSend(ctx context.Context, req *OutboundRequest) error
}

// Client calls the Flutterwave API with bearer authentication.
type Client struct {
	httpClient *http.Client
	baseURL    string
	secretKey  string
	hooks      []RequestHook
	logger     *logger.Logger
	metrics    *metrics.GatewayMetrics
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL overrides the API base URL. Used by tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithRequestHook appends a pre-send hook.
func WithRequestHook(h RequestHook) Option {
	return func(c *Client) { c.hooks = append(c.hooks, h) }
}

// WithMetrics records per-operation request latency.
func WithMetrics(m *metrics.GatewayMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient builds a Client from config. The secret key is required.
func NewClient(cfg config.FlutterwaveConfig, logg *logger.Logger, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New(errors.CodeConfig, "flutterwave secret key is not configured")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		secretKey:  cfg.SecretKey,
		logger:     logg,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// InitializePayment creates a hosted checkout session and returns its link.
func (c *Client) InitializePayment(ctx context.Context, req PaymentRequest) (*PaymentLink, error) {
	env, err := c.do(ctx, "initialize_payment", http.MethodPost, "payments", nil, req)
	if err != nil {
		return nil, err
	}
	var link PaymentLink
	if err := json.Unmarshal(env.Data, &link); err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "decode payment link")
	}
	return &link, nil
}

// VerifyTransaction fetches the authoritative charge record by provider id.
func (c *Client) VerifyTransaction(ctx context.Context, transactionID int64) (*ChargeData, error) {
	path := fmt.Sprintf("transactions/%d/verify", transactionID)
	env, err := c.do(ctx, "verify_transaction", http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeCharge(env.Data)
}

// VerifyTransactionByReference fetches the charge record by merchant tx_ref.
func (c *Client) VerifyTransactionByReference(ctx context.Context, txRef string) (*ChargeData, error) {
	q := url.Values{"tx_ref": []string{txRef}}
	env, err := c.do(ctx, "verify_by_reference", http.MethodGet, "transactions/verify_by_reference", q, nil)
	if err != nil {
		return nil, err
	}
	return decodeCharge(env.Data)
}

// ListTransactions lists charges matching a tx_ref, one page at a time. The
// returned PageInfo carries the provider-reported total across all pages.
func (c *Client) ListTransactions(ctx context.Context, txRef string, page int) ([]ChargeData, PageInfo, error) {
	q := url.Values{}
	if txRef != "" {
		q.Set("tx_ref", txRef)
	}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	env, err := c.do(ctx, "list_transactions", http.MethodGet, "transactions", q, nil)
	if err != nil {
		return nil, PageInfo{}, err
	}
	var charges []ChargeData
	if err := json.Unmarshal(env.Data, &charges); err != nil {
		return nil, PageInfo{}, errors.Wrap(errors.CodeDependency, err, "decode transaction list")
	}
	var meta ListMeta
	if len(env.Meta) > 0 {
		if err := json.Unmarshal(env.Meta, &meta); err != nil {
			return nil, PageInfo{}, errors.Wrap(errors.CodeDependency, err, "decode transaction list meta")
		}
	}
	return charges, meta.PageInfo, nil
}

// CreateRefund refunds a charge. A nil amount refunds the full charge.
func (c *Client) CreateRefund(ctx context.Context, transactionID int64, amount *decimal.Decimal) (*RefundData, error) {
	path := fmt.Sprintf("transactions/%d/refund", transactionID)
	var body any
	if amount != nil {
		body = map[string]any{"amount": *amount}
	}
	env, err := c.do(ctx, "create_refund", http.MethodPost, path, nil, body)
	if err != nil {
		return nil, err
	}
	var refund RefundData
	if err := json.Unmarshal(env.Data, &refund); err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "decode refund")
	}
	return &refund, nil
}

// CreatePaymentPlan registers a recurring billing plan.
func (c *Client) CreatePaymentPlan(ctx context.Context, req PlanRequest) (*PlanData, error) {
	env, err := c.do(ctx, "create_payment_plan", http.MethodPost, "payment-plans", nil, req)
	if err != nil {
		return nil, err
	}
	var plan PlanData
	if err := json.Unmarshal(env.Data, &plan); err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "decode payment plan")
	}
	return &plan, nil
}

// GetPaymentPlan fetches a plan by provider id.
func (c *Client) GetPaymentPlan(ctx context.Context, planID int64) (*PlanData, error) {
	path := fmt.Sprintf("payment-plans/%d", planID)
	env, err := c.do(ctx, "get_payment_plan", http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	var plan PlanData
	if err := json.Unmarshal(env.Data, &plan); err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "decode payment plan")
	}
	return &plan, nil
}

// GetSubscription fetches a subscription by provider id.
func (c *Client) GetSubscription(ctx context.Context, subscriptionID int64) (*SubscriptionData, error) {
	path := fmt.Sprintf("subscriptions/%d", subscriptionID)
	env, err := c.do(ctx, "get_subscription", http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeSubscription(env.Data)
}

// ListSubscriptions lists subscriptions, optionally filtered by customer email
// or plan id.
func (c *Client) ListSubscriptions(ctx context.Context, email string, planID int64) ([]SubscriptionData, error) {
	q := url.Values{}
	if email != "" {
		q.Set("email", email)
	}
	if planID > 0 {
		q.Set("plan", strconv.FormatInt(planID, 10))
	}
	env, err := c.do(ctx, "list_subscriptions", http.MethodGet, "subscriptions", q, nil)
	if err != nil {
		return nil, err
	}
	var subs []SubscriptionData
	if err := json.Unmarshal(env.Data, &subs); err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "decode subscription list")
	}
	return subs, nil
}

// CancelSubscription cancels a subscription at the provider.
func (c *Client) CancelSubscription(ctx context.Context, subscriptionID int64) (*SubscriptionData, error) {
	path := fmt.Sprintf("subscriptions/%d/cancel", subscriptionID)
	env, err := c.do(ctx, "cancel_subscription", http.MethodPut, path, nil, nil)
	if err != nil {
		return nil, err
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, nil
	}
	return decodeSubscription(env.Data)
}

func decodeCharge(raw json.RawMessage) (*ChargeData, error) {
	var charge ChargeData
	if err := json.Unmarshal(raw, &charge); err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "decode charge")
	}
	return &charge, nil
}

func decodeSubscription(raw json.RawMessage) (*SubscriptionData, error) {
	var sub SubscriptionData
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "decode subscription")
	}
	return &sub, nil
}

// do builds, hooks, sends and decodes one API request.
func (c *Client) do(ctx context.Context, operation, method, path string, query url.Values, body any) (*Envelope, error) {
	out := &OutboundRequest{Method: method, Path: path, Query: query, Body: body}
	for _, h := range c.hooks {
		if err := h.BeforeSend(ctx, out); err != nil {
			return nil, errors.Wrap(errors.CodeDependency, err, "request hook")
		}
	}

	reqURL := c.baseURL + out.Path
	if len(out.Query) > 0 {
		reqURL += "?" + out.Query.Encode()
	}

	var reqBody io.Reader
	if out.Body != nil {
		encoded, err := json.Marshal(out.Body)
		if err != nil {
			return nil, errors.Wrap(errors.CodeInternal, err, "encode request body")
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, out.Method, reqURL, reqBody)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.ObserveProviderLatency(operation, time.Since(start))
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "flutterwave request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "read flutterwave response")
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "decode flutterwave response")
	}

	if resp.StatusCode >= http.StatusBadRequest {
		if c.logger != nil {
			lctx := c.logger.WithFields(ctx, map[string]any{
				"operation":        operation,
				"http_status":      resp.StatusCode,
				"provider_message": env.Message,
			})
			c.logger.Warn(lctx, "flutterwave request rejected")
		}
		return nil, errors.New(errors.CodeProviderRejected, providerMessage(env.Message)).
			WithDetails(map[string]any{
				"http_status": resp.StatusCode,
				"operation":   operation,
			})
	}
	if env.Status != "success" {
		return nil, errors.New(errors.CodeProviderRejected, providerMessage(env.Message)).
			WithDetails(map[string]any{
				"provider_status": env.Status,
				"operation":       operation,
			})
	}
	return &env, nil
}

func providerMessage(msg string) string {
	if msg == "" {
		return "payment provider rejected the request"
	}
	return msg
}
