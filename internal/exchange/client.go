package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"signal-trading-engine/internal/logging"
)

// Retry configuration for idempotent market-data reads. Order
// placement is never retried.
const (
	maxRetries     = 3
	baseRetryDelay = 500 * time.Millisecond
	maxRetryDelay  = 5 * time.Second
)

const (
	// FuturesBaseURL is the production Binance Futures API URL
	FuturesBaseURL = "https://fapi.binance.com"
	// FuturesTestnetURL is the testnet Binance Futures API URL
	FuturesTestnetURL = "https://testnet.binancefuture.com"
)

// BinanceClient implements Client against the Binance USDT-futures
// REST API.
type BinanceClient struct {
	apiKey     string
	secretKey  string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logging.Logger
}

// NewBinanceClient creates a futures REST client. The limiter stays
// under Binance's request-weight budget.
func NewBinanceClient(apiKey, secretKey string, testnet bool, logger *logging.Logger) *BinanceClient {
	baseURL := FuturesBaseURL
	if testnet {
		baseURL = FuturesTestnetURL
	}

	// Trim any whitespace from keys - critical for signature generation
	return &BinanceClient{
		apiKey:     strings.TrimSpace(apiKey),
		secretKey:  strings.TrimSpace(secretKey),
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(8), 16),
		logger:     logger,
	}
}

// GetLatestBar returns the most recent candle for the symbol, or nil
// if the exchange has no data.
func (c *BinanceClient) GetLatestBar(ctx context.Context, symbol, timeframe string) (*Bar, error) {
	bars, err := c.GetKlines(ctx, symbol, timeframe, 1)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, nil
	}
	return &bars[len(bars)-1], nil
}

// GetKlines retrieves candlestick data
func (c *BinanceClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Bar, error) {
	resp, err := c.publicGet(ctx, "/fapi/v1/klines", map[string]string{
		"symbol":   strings.ToUpper(symbol),
		"interval": interval,
		"limit":    strconv.Itoa(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("error fetching klines: %w", err)
	}

	var rawKlines [][]interface{}
	if err := json.Unmarshal(resp, &rawKlines); err != nil {
		return nil, fmt.Errorf("error parsing klines: %w", err)
	}

	bars := make([]Bar, 0, len(rawKlines))
	for _, raw := range rawKlines {
		if len(raw) < 7 {
			continue
		}
		openTime, ok := raw[0].(float64)
		if !ok {
			continue
		}
		bars = append(bars, Bar{
			Open:      parseFloat(raw[1]),
			High:      parseFloat(raw[2]),
			Low:       parseFloat(raw[3]),
			Close:     parseFloat(raw[4]),
			Volume:    parseFloat(raw[5]),
			Timestamp: time.UnixMilli(int64(openTime)),
		})
	}
	return bars, nil
}

// GetPrice retrieves the current ticker price for a symbol
func (c *BinanceClient) GetPrice(ctx context.Context, symbol string) (float64, error) {
	resp, err := c.publicGet(ctx, "/fapi/v1/ticker/price", map[string]string{
		"symbol": strings.ToUpper(symbol),
	})
	if err != nil {
		return 0, fmt.Errorf("error fetching price: %w", err)
	}

	var priceResp struct {
		Symbol string  `json:"symbol"`
		Price  float64 `json:"price,string"`
	}
	if err := json.Unmarshal(resp, &priceResp); err != nil {
		return 0, fmt.Errorf("error parsing price: %w", err)
	}
	return priceResp.Price, nil
}

// SetLeverage sets the leverage for a symbol
func (c *BinanceClient) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	_, err := c.signedPost(ctx, "/fapi/v1/leverage", map[string]string{
		"symbol":   strings.ToUpper(symbol),
		"leverage": strconv.Itoa(leverage),
	})
	if err != nil {
		return fmt.Errorf("error setting leverage: %w", err)
	}
	return nil
}

// binanceOrderResponse is the exchange's raw order answer
type binanceOrderResponse struct {
	OrderID       int64   `json:"orderId"`
	ClientOrderID string  `json:"clientOrderId"`
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	Status        string  `json:"status"`
	OrigQty       float64 `json:"origQty,string"`
	AvgPrice      float64 `json:"avgPrice,string"`
	UpdateTime    int64   `json:"updateTime"`
}

// binanceAPIError is Binance's error body shape
type binanceAPIError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// PlaceOrder submits a single order. Transport failures return an
// error; an exchange-side business rejection (4xx with an error body)
// returns an OrderResult with status REJECTED and a nil error so the
// raw rejection is preserved. No retries on this path.
func (c *BinanceClient) PlaceOrder(ctx context.Context, params OrderParams) (*OrderResult, error) {
	reqParams := map[string]string{
		"symbol":   strings.ToUpper(params.Symbol),
		"side":     string(params.Side),
		"type":     string(params.Type),
		"quantity": strconv.FormatFloat(params.Quantity, 'f', -1, 64),
	}
	if params.Type == OrderTypeLimit && params.Price > 0 {
		reqParams["price"] = strconv.FormatFloat(params.Price, 'f', -1, 64)
		reqParams["timeInForce"] = "GTC"
	}
	if params.ReduceOnly {
		reqParams["reduceOnly"] = "true"
	}
	if params.ClientOrderID != "" {
		reqParams["newClientOrderId"] = params.ClientOrderID
	}

	body, status, err := c.signedPostRaw(ctx, "/fapi/v1/order", reqParams)
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		var apiErr binanceAPIError
		if jsonErr := json.Unmarshal(body, &apiErr); jsonErr == nil && apiErr.Msg != "" && status < 500 {
			// Business rejection, not a transport failure.
			return &OrderResult{
				ClientOrderID: params.ClientOrderID,
				Symbol:        strings.ToUpper(params.Symbol),
				Side:          params.Side,
				Status:        OrderStatusRejected,
				Quantity:      params.Quantity,
				Timestamp:     time.Now().UTC(),
				Error:         fmt.Sprintf("code %d: %s", apiErr.Code, apiErr.Msg),
			}, nil
		}
		return nil, fmt.Errorf("API error: %s", string(body))
	}

	var orderResp binanceOrderResponse
	if err := json.Unmarshal(body, &orderResp); err != nil {
		return nil, fmt.Errorf("error parsing order response: %w", err)
	}

	return &OrderResult{
		OrderID:       orderResp.OrderID,
		ClientOrderID: orderResp.ClientOrderID,
		Symbol:        orderResp.Symbol,
		Side:          Side(orderResp.Side),
		Status:        OrderStatus(orderResp.Status),
		Quantity:      orderResp.OrigQty,
		Price:         orderResp.AvgPrice,
		Timestamp:     time.UnixMilli(orderResp.UpdateTime),
	}, nil
}

// ==================== REQUEST PLUMBING ====================

func (c *BinanceClient) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *BinanceClient) signParams(params map[string]string) string {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	query := values.Encode()
	return query + "&signature=" + c.sign(query)
}

// publicGet performs an unauthenticated GET with retry. Market-data
// reads are idempotent, so transient failures are retried with
// exponential backoff and jitter.
func (c *BinanceClient) publicGet(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		values := url.Values{}
		for k, v := range params {
			values.Set(k, v)
		}

		reqURL := c.baseURL + endpoint
		if len(values) > 0 {
			reqURL = reqURL + "?" + values.Encode()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if attempt < maxRetries {
				c.sleepRetry(ctx, endpoint, attempt, err)
				continue
			}
			return nil, err
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("API error: %s", string(body))
			if isRetryableStatus(resp.StatusCode, string(body)) && attempt < maxRetries {
				c.sleepRetry(ctx, endpoint, attempt, lastErr)
				continue
			}
			return nil, lastErr
		}
		return body, nil
	}
	return nil, lastErr
}

// signedPost performs an authenticated POST and errors on any non-200
func (c *BinanceClient) signedPost(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	body, status, err := c.signedPostRaw(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("API error: %s", string(body))
	}
	return body, nil
}

// signedPostRaw performs an authenticated POST exactly once, returning
// the raw body and status. Callers decide how to treat non-200s.
func (c *BinanceClient) signedPostRaw(ctx context.Context, endpoint string, params map[string]string) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}

	if params == nil {
		params = make(map[string]string)
	}
	params["timestamp"] = strconv.FormatInt(time.Now().UnixMilli(), 10)
	params["recvWindow"] = "10000" // 10 seconds tolerance for clock skew

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, 0, err
	}
	req.URL.RawQuery = c.signParams(params)
	req.Header.Set("X-MBX-APIKEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

func (c *BinanceClient) sleepRetry(ctx context.Context, endpoint string, attempt int, cause error) {
	delay := calculateRetryDelay(attempt)
	if c.logger != nil {
		c.logger.Warn("request failed, retrying",
			"endpoint", endpoint,
			"attempt", attempt+1,
			"delay", delay.String(),
			"error", cause)
	}
	select {
	case <-time.After(delay):
	case <-ctx.Done():
	}
}

// isRetryableStatus checks if an error is transient and should be retried
func isRetryableStatus(statusCode int, body string) bool {
	if statusCode == http.StatusTooManyRequests || statusCode >= 500 {
		return true
	}
	// Transient Binance error codes
	if strings.Contains(body, "-1001") || // DISCONNECTED
		strings.Contains(body, "-1003") { // TOO_MANY_REQUESTS
		return true
	}
	return false
}

// calculateRetryDelay returns delay with exponential backoff and jitter
func calculateRetryDelay(attempt int) time.Duration {
	delay := baseRetryDelay * time.Duration(1<<uint(attempt))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay) / 2))
	return delay + jitter - (delay / 4)
}

func parseFloat(v interface{}) float64 {
	switch val := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	case float64:
		return val
	default:
		return 0
	}
}
