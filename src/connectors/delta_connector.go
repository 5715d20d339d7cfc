// REST API CLIENT FOR DELTA EXCHANGE INDIA OPTIONS
// RESTY ONLY + INTERNAL RETRY
package connectors

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"

	"strangleexecutor/src/externalmodel"
)

// -----------------------------
// CONFIG
// -----------------------------
const (
	defaultRetryAttempts   = 5
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 8 * time.Second
	defaultRequestTimeout  = 15 * time.Second
)

// ErrAuthenticationFailed marks 401/403 responses so callers can downgrade
// to simulation instead of retrying with the same credentials.
var ErrAuthenticationFailed = errors.New("delta authentication failed")

// -----------------------------
// API RESPONSE WRAPPER
// -----------------------------
type APIResponse struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   *APIError       `json:"error,omitempty"`
}

type APIError struct {
	Code    string          `json:"code"`
	Context json.RawMessage `json:"context,omitempty"`
}

// -----------------------------
// ORDER REQUEST BODIES
// -----------------------------
type OrderRequest struct {
	ProductID     int64   `json:"product_id"`
	Size          float64 `json:"size"`
	Side          string  `json:"side"`
	OrderType     string  `json:"order_type"`
	LimitPrice    string  `json:"limit_price,omitempty"`
	TimeInForce   string  `json:"time_in_force,omitempty"`
	ReduceOnly    string  `json:"reduce_only,omitempty"`
	PostOnly      string  `json:"post_only,omitempty"`
	ClientOrderID string  `json:"client_order_id,omitempty"`
}

type cancelOrderRequest struct {
	ID        string `json:"id"`
	ProductID int64  `json:"product_id,omitempty"`
}

// -----------------------------
// A) AUTHENTICATED CLIENT
// -----------------------------
type DeltaClient struct {
	apiKey    string
	apiSecret string
	baseURL   string
	http      *resty.Client
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}

	if r == nil {
		return false
	}

	code := r.StatusCode()

	if code >= 500 && code <= 599 {
		return true
	}
	if code == 429 {
		return true
	}
	if code == 408 {
		return true
	}
	return false
}

func NewDeltaClient(cfg Config) *DeltaClient {
	retryCount := defaultRetryAttempts - 1

	baseURL := cfg.DeltaBaseURL
	if baseURL == "" {
		baseURL = "https://api.india.delta.exchange"
		logger.WithField("base_url", baseURL).Warn("No base URL provided, using default")
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(defaultRequestTimeout).
		SetRetryCount(retryCount).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &DeltaClient{
		apiKey:    cfg.DeltaAPIKey,
		apiSecret: cfg.DeltaAPISecret,
		baseURL:   baseURL,
		http:      httpClient,
	}
}

// HasCredentials reports whether the client can sign private endpoints.
// Without credentials the engine runs in simulation mode.
func (c *DeltaClient) HasCredentials() bool {
	return c.apiKey != "" && c.apiSecret != ""
}

// MaskedKey is safe to log.
func (c *DeltaClient) MaskedKey() string {
	return MaskSecret(c.apiKey)
}

// MaskSecret keeps the first four characters of a credential for log
// correlation and hides the rest.
func MaskSecret(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 4 {
		return "***"
	}
	return value[:4] + "***"
}

// signRequest builds the Delta HMAC-SHA256 signature over
// method + timestamp + path + "?"+query + body.
func signRequest(method, timestamp, path, query, body, secret string) string {
	base := method + timestamp + path
	if query != "" {
		base += "?" + query
	}
	if body != "" {
		base += body
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(base))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *DeltaClient) doRequest(method, path string, params url.Values, body []byte, auth bool) (*APIResponse, error) {
	query := ""
	if len(params) > 0 {
		query = params.Encode()
	}

	req := c.http.R()

	if auth {
		timestamp := strconv.FormatInt(time.Now().Unix(), 10)
		sig := signRequest(method, timestamp, path, query, string(body), c.apiSecret)
		req.SetHeader("api-key", c.apiKey).
			SetHeader("signature", sig).
			SetHeader("timestamp", timestamp)
	}

	if query != "" {
		req = req.SetQueryString(query)
	}
	if body != nil {
		req = req.SetBody(body).SetHeader("Content-Type", "application/json")
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, err
	}

	raw := resp.Body()

	if resp.StatusCode() == 401 || resp.StatusCode() == 403 {
		logger.WithFields(map[string]interface{}{
			"path":    path,
			"status":  resp.StatusCode(),
			"api_key": MaskSecret(c.apiKey),
		}).Error("Delta rejected credentials")
		return nil, fmt.Errorf("%w: HTTP %d", ErrAuthenticationFailed, resp.StatusCode())
	}

	var apiResp APIResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		if resp.StatusCode() != 200 {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode(), string(raw))
		}
		return nil, err
	}

	if !apiResp.Success {
		code := "unknown_error"
		if apiResp.Error != nil && apiResp.Error.Code != "" {
			code = apiResp.Error.Code
		}
		return &apiResp, fmt.Errorf("delta API error %s: %s (HTTP %d)", code, GetErrorMsg(code), resp.StatusCode())
	}
	if resp.StatusCode() != 200 {
		return &apiResp, fmt.Errorf("HTTP %d: %s", resp.StatusCode(), string(raw))
	}

	return &apiResp, nil
}

// -----------------------------
// B) MARKET DATA METHODS
// -----------------------------

// ListOptionTickers fetches the option chain for one underlying. expiry is
// optional and must already be formatted dd-mm-yyyy the way the exchange
// expects it.
func (c *DeltaClient) ListOptionTickers(underlying, expiry string) ([]externalmodel.DeltaTicker, error) {
	params := url.Values{}
	params.Set("contract_types", "call_options,put_options")
	params.Set("underlying_asset_symbols", underlying)
	if expiry != "" {
		params.Set("expiry_date", expiry)
	}

	resp, err := c.doRequest("GET", "/v2/tickers", params, nil, false)
	if err != nil {
		return nil, err
	}

	var tickers []externalmodel.DeltaTicker
	if err := json.Unmarshal(resp.Result, &tickers); err != nil {
		return nil, fmt.Errorf("decode tickers: %w", err)
	}
	return tickers, nil
}

// ListTickers fetches tickers without contract-type filtering, used for
// spot index lookups.
func (c *DeltaClient) ListTickers(symbols []string) ([]externalmodel.DeltaTicker, error) {
	params := url.Values{}
	if len(symbols) > 0 {
		params.Set("symbols", strings.Join(symbols, ","))
	}

	resp, err := c.doRequest("GET", "/v2/tickers", params, nil, false)
	if err != nil {
		return nil, err
	}

	var tickers []externalmodel.DeltaTicker
	if err := json.Unmarshal(resp.Result, &tickers); err != nil {
		return nil, fmt.Errorf("decode tickers: %w", err)
	}
	return tickers, nil
}

// GetTicker fetches a single symbol, used to hydrate contracts from bare
// position symbols and as the REST fallback when the stream cache is cold.
func (c *DeltaClient) GetTicker(symbol string) (*externalmodel.DeltaTicker, error) {
	resp, err := c.doRequest("GET", "/v2/tickers/"+symbol, nil, nil, false)
	if err != nil {
		return nil, err
	}

	var ticker externalmodel.DeltaTicker
	if err := json.Unmarshal(resp.Result, &ticker); err != nil {
		return nil, fmt.Errorf("decode ticker %s: %w", symbol, err)
	}
	if ticker.Symbol == "" {
		ticker.Symbol = symbol
	}
	return &ticker, nil
}

// GetProduct fetches product metadata; the executor wants the live tick
// size before pricing limit orders.
func (c *DeltaClient) GetProduct(productID int64) (*externalmodel.DeltaProduct, error) {
	resp, err := c.doRequest("GET", "/v2/products/"+strconv.FormatInt(productID, 10), nil, nil, false)
	if err != nil {
		return nil, err
	}

	var product externalmodel.DeltaProduct
	if err := json.Unmarshal(resp.Result, &product); err != nil {
		return nil, fmt.Errorf("decode product %d: %w", productID, err)
	}
	return &product, nil
}

// -----------------------------
// C) ACCOUNT & POSITION METHODS
// -----------------------------
func (c *DeltaClient) GetMarginedPositions() ([]externalmodel.DeltaPosition, error) {
	resp, err := c.doRequest("GET", "/v2/positions/margined", nil, nil, true)
	if err != nil {
		return nil, err
	}

	var positions []externalmodel.DeltaPosition
	if err := json.Unmarshal(resp.Result, &positions); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}
	return positions, nil
}

// -----------------------------
// D) TRADING METHODS
// -----------------------------
func (c *DeltaClient) PlaceOrder(order *OrderRequest) (*externalmodel.DeltaOrder, error) {
	body, err := json.Marshal(order)
	if err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"product_id":      order.ProductID,
		"side":            order.Side,
		"order_type":      order.OrderType,
		"size":            order.Size,
		"limit_price":     order.LimitPrice,
		"client_order_id": order.ClientOrderID,
	}).Info("Placing Delta order")

	resp, err := c.doRequest("POST", "/v2/orders", nil, body, true)
	if err != nil {
		return nil, err
	}

	var placed externalmodel.DeltaOrder
	if err := json.Unmarshal(resp.Result, &placed); err != nil {
		return nil, fmt.Errorf("decode order response: %w", err)
	}
	return &placed, nil
}

func (c *DeltaClient) GetOrder(orderID string) (*externalmodel.DeltaOrder, error) {
	resp, err := c.doRequest("GET", "/v2/orders/"+orderID, nil, nil, true)
	if err != nil {
		return nil, err
	}

	var order externalmodel.DeltaOrder
	if err := json.Unmarshal(resp.Result, &order); err != nil {
		return nil, fmt.Errorf("decode order %s: %w", orderID, err)
	}
	return &order, nil
}

func (c *DeltaClient) CancelOrder(orderID string, productID int64) error {
	body, err := json.Marshal(cancelOrderRequest{ID: orderID, ProductID: productID})
	if err != nil {
		return err
	}

	_, err = c.doRequest("DELETE", "/v2/orders", nil, body, true)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"order_id":   orderID,
			"product_id": productID,
		}).WithError(err).Warn("Cancel order failed")
	}
	return err
}
