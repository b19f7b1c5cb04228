// Copyright (c) 2025 BVK Chaitanya

package internal

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/bvk/fulfill/ctxutil"
	"golang.org/x/time/rate"
)

type Client struct {
	opts Options

	restURL *url.URL

	client http.Client

	key, secret string

	limiter *rate.Limiter
}

// New returns a new client instance.
func New(key, secret string, opts *Options) (*Client, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}
	restURL, err := url.Parse(opts.RestURL)
	if err != nil {
		return nil, err
	}

	c := &Client{
		opts:    *opts,
		restURL: restURL,
		key:     key,
		secret:  secret,
		client: http.Client{
			Timeout: opts.HttpClientTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
	}
	return c, nil
}

// Close releases resources and destroys the client instance.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func (c *Client) endpoint(p string, values url.Values) *url.URL {
	addrURL := &url.URL{
		Scheme: c.restURL.Scheme,
		Host:   c.restURL.Host,
		Path:   path.Join(c.restURL.Path, p),
	}
	if len(values) != 0 {
		addrURL.RawQuery = values.Encode()
	}
	return addrURL
}

func (c *Client) GetMarkets(ctx context.Context) ([]*MarketStatus, error) {
	addrURL := c.endpoint("/spot/market", nil)
	resp, err := call[[]*MarketStatus](ctx, c, http.MethodGet, addrURL, false, nil)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Error("could not get market status", "url", addrURL, "err", err)
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) GetTicker(ctx context.Context, market string) (*Ticker, error) {
	values := make(url.Values)
	values.Set("market", market)

	addrURL := c.endpoint("/spot/ticker", values)
	resp, err := call[[]*Ticker](ctx, c, http.MethodGet, addrURL, false, nil)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Error("could not get market ticker information", "url", addrURL, "err", err)
		}
		return nil, err
	}
	for _, t := range resp {
		if t.Market == market {
			return t, nil
		}
	}
	return nil, fmt.Errorf("ticker for market %q is not found in the response", market)
}

// GetBalances retrieves all funds information in spot accounts.
func (c *Client) GetBalances(ctx context.Context) ([]*Balance, error) {
	addrURL := c.endpoint("/assets/spot/balance", nil)
	resp, err := call[[]*Balance](ctx, c, http.MethodGet, addrURL, true, nil)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Error("could not get asset balances", "url", addrURL, "err", err)
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*Order, error) {
	addrURL := c.endpoint("/spot/order", nil)
	resp, err := call[*Order](ctx, c, http.MethodPost, addrURL, true, req)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Error("could not create order", "market", req.Market, "side", req.Side, "price", req.Price, "size", req.Amount, "url", addrURL, "err", err)
		}
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("create order response has no order data")
	}
	return resp, nil
}

func (c *Client) GetOrder(ctx context.Context, market string, orderID int64) (*Order, error) {
	values := make(url.Values)
	values.Set("market", market)
	values.Set("order_id", strconv.FormatInt(orderID, 10))

	addrURL := c.endpoint("/spot/order-status", values)
	resp, err := call[*Order](ctx, c, http.MethodGet, addrURL, true, nil)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Error("could not get order status", "url", addrURL, "err", err)
		}
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("order status response has no order data")
	}
	return resp, nil
}

func (c *Client) CancelOrder(ctx context.Context, market string, orderID int64) (*Order, error) {
	req := &CancelOrderRequest{
		Market:     market,
		MarketType: "SPOT",
		OrderID:    orderID,
	}
	addrURL := c.endpoint("/spot/cancel-order", nil)
	resp, err := call[*Order](ctx, c, http.MethodPost, addrURL, true, req)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Error("could not cancel order", "orderID", orderID, "market", market, "url", addrURL, "err", err)
		}
		return nil, err
	}
	return resp, nil
}

// Sign returns the hex encoded request signature over the method, request
// path with the query, body and the timestamp.
func Sign(secret, method string, addrURL *url.URL, body, timestamp string) string {
	var sb strings.Builder
	sb.WriteString(method)
	sb.WriteString(addrURL.Path)
	if len(addrURL.RawQuery) != 0 {
		sb.WriteRune('?')
		sb.WriteString(addrURL.RawQuery)
	}
	sb.WriteString(body)
	sb.WriteString(timestamp)

	hash := hmac.New(sha256.New, []byte(secret))
	io.WriteString(hash, sb.String())
	return hex.EncodeToString(hash.Sum(nil))
}

func (c *Client) do(ctx context.Context, method string, addrURL *url.URL, private bool, body string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, addrURL.String(), strings.NewReader(body))
	if err != nil {
		slog.Error("could not create http request object with context", "method", method, "url", addrURL, "err", err)
		return nil, err
	}
	if len(body) != 0 {
		req.Header.Add("Content-Type", "application/json")
	}
	if private {
		timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
		req.Header.Add("X-COINEX-KEY", c.key)
		req.Header.Add("X-COINEX-SIGN", Sign(c.secret, method, addrURL, body, timestamp))
		req.Header.Add("X-COINEX-TIMESTAMP", timestamp)
	}
	return c.client.Do(req)
}

// call performs the http request with retries for throttled and bad-gateway
// responses and decodes the response data.
func call[T any](ctx context.Context, c *Client, method string, addrURL *url.URL, private bool, request any) (data T, status error) {
	var body string
	if request != nil {
		js, err := json.Marshal(request)
		if err != nil {
			return data, err
		}
		body = string(js)
	}

	for retries := 0; ; retries++ {
		s := time.Now()
		resp, err := c.do(ctx, method, addrURL, private, body)
		if d := time.Since(s); d > c.opts.HttpClientTimeout {
			slog.Warn(fmt.Sprintf("%s request took %s which is more than the http client timeout %s", method, d, c.opts.HttpClientTimeout))
		}
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				slog.Error("could not perform http request", "method", method, "url", addrURL, "err", err)
			}
			return data, err
		}
		raw, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return data, fmt.Errorf("could not read response body: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			slog.Warn("http request returned unsuccessful status code", "method", method, "url", addrURL, "status-code", resp.StatusCode, "response", string(raw))

			retry, timeout := false, c.opts.RetryInterval
			switch resp.StatusCode {
			case http.StatusBadGateway:
				retry = true
			case http.StatusTooManyRequests, http.StatusTeapot:
				retry = true
				if x := resp.Header.Get("Retry-After"); len(x) != 0 {
					if v, err := strconv.Atoi(x); err == nil && v > 0 {
						timeout = time.Duration(v) * time.Second
					}
				}
			}
			if !retry || retries >= c.opts.MaxRetries {
				return data, fmt.Errorf("http %s returned %d", method, resp.StatusCode)
			}
			if err := ctxutil.Sleep(ctx, timeout); err != nil {
				return data, err
			}
			continue
		}

		var envelope Response[T]
		if err := json.Unmarshal(raw, &envelope); err != nil {
			slog.Error("could not unmarshal into generic response", "response", string(raw), "err", err)
			return data, err
		}
		if envelope.Code != CodeOK {
			slog.Error("coinex request failed", "method", method, "url", addrURL, "body", body, "response", string(raw))
			return data, &APIError{Code: envelope.Code, Message: envelope.Message}
		}
		return envelope.Data, nil
	}
}
