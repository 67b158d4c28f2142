// Package stripe opens hosted Stripe Checkout sessions.
package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/brujulacripto/creditledger/internal/checkout/domain"
	"github.com/brujulacripto/creditledger/internal/config"
	"github.com/gosimple/slug"
)

const defaultBaseURL = "https://api.stripe.com"

type stripeCheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type stripeErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

type Client struct {
	apiKey     string
	baseURL    string
	successURL string
	cancelURL  string
	client     *http.Client
}

func NewProcessor(cfg config.Config) domain.Processor {
	return newClient(cfg.Stripe.SecretKey, defaultBaseURL, cfg.Stripe.SuccessURL, cfg.Stripe.CancelURL, nil)
}

func newClient(apiKey, baseURL, successURL, cancelURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 12 * time.Second}
	}
	return &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    strings.TrimRight(baseURL, "/"),
		successURL: strings.TrimSpace(successURL),
		cancelURL:  strings.TrimSpace(cancelURL),
		client:     httpClient,
	}
}

func (c *Client) CreateSession(ctx context.Context, req domain.ProcessorRequest) (*domain.ProcessorSession, error) {
	if c.apiKey == "" {
		return nil, domain.ErrProcessorNotReady
	}

	values := url.Values{}
	values.Set("mode", "payment")
	values.Set("client_reference_id", req.CustomerRef)
	values.Set("success_url", c.successURL)
	values.Set("cancel_url", c.cancelURL)
	values.Set("line_items[0][quantity]", "1")
	values.Set("line_items[0][price_data][currency]", strings.ToLower(req.Currency))
	values.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(req.Amount, 10))
	values.Set("line_items[0][price_data][product_data][name]", req.ProductDescription)
	values.Set("line_items[0][price_data][product_data][metadata][sku]", slug.Make(req.ProductDescription))

	keys := make([]string, 0, len(req.Metadata))
	for key := range req.Metadata {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		values.Set("metadata["+key+"]", req.Metadata[key])
		values.Set("payment_intent_data[metadata]["+key+"]", req.Metadata[key])
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checkout/sessions", strings.NewReader(values.Encode()))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProcessorFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var stripeErr stripeErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&stripeErr); err != nil {
			return nil, domain.ErrProcessorFailed
		}
		message := strings.TrimSpace(stripeErr.Error.Message)
		if message == "" {
			return nil, domain.ErrProcessorFailed
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrProcessorFailed, message)
	}

	var session stripeCheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, domain.ErrInvalidProcessorRes
	}
	if session.ID == "" || session.URL == "" {
		return nil, domain.ErrInvalidProcessorRes
	}
	return &domain.ProcessorSession{ID: session.ID, URL: session.URL}, nil
}
