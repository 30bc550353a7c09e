package binance

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Retry configuration for API calls. Transient failures are retried with
// exponential backoff; see isRetryable for the error classification.
const (
	maxAttempts    = 3
	baseRetryDelay = 1 * time.Second
	backoffFactor  = 2
)

const (
	// FuturesBaseURL is the production Binance Futures API URL
	FuturesBaseURL = "https://fapi.binance.com"
	// FuturesTestnetURL is the testnet Binance Futures API URL
	FuturesTestnetURL = "https://testnet.binancefuture.com"
)

// FuturesClientImpl implements the FuturesClient interface against the
// Binance USDT-M futures REST API.
type FuturesClientImpl struct {
	apiKey     string
	secretKey  string
	baseURL    string
	httpClient *http.Client
	retryBase  time.Duration
	logger     zerolog.Logger
}

// NewFuturesClient creates a new FuturesClient instance
func NewFuturesClient(apiKey, secretKey string, testnet bool, logger zerolog.Logger) *FuturesClientImpl {
	baseURL := FuturesBaseURL
	if testnet {
		baseURL = FuturesTestnetURL
	}

	// Trim any whitespace from keys - critical for signature generation
	return &FuturesClientImpl{
		apiKey:     strings.TrimSpace(apiKey),
		secretKey:  strings.TrimSpace(secretKey),
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		retryBase:  baseRetryDelay,
		logger:     logger.With().Str("component", "FuturesClient").Logger(),
	}
}

// Ping checks connectivity to the exchange
func (c *FuturesClientImpl) Ping() error {
	_, err := c.publicGet("/fapi/v1/ping", nil)
	if err != nil {
		return fmt.Errorf("error pinging exchange: %w", err)
	}
	return nil
}

// ==================== MARKET DATA ====================

// GetKlines retrieves candlestick data for a symbol
func (c *FuturesClientImpl) GetKlines(symbol, interval string, limit int) ([]Kline, error) {
	resp, err := c.publicGet("/fapi/v1/klines", map[string]string{
		"symbol":   symbol,
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

	klines := make([]Kline, len(rawKlines))
	for i, raw := range rawKlines {
		if len(raw) < 7 {
			return nil, fmt.Errorf("error parsing klines: short row at index %d", i)
		}
		openTime, okOpen := raw[0].(float64)
		closeTime, okClose := raw[6].(float64)
		if !okOpen || !okClose {
			return nil, fmt.Errorf("error parsing klines: non-numeric time field at index %d", i)
		}
		klines[i] = Kline{
			OpenTime:  int64(openTime),
			Open:      parseFloat(raw[1]),
			High:      parseFloat(raw[2]),
			Low:       parseFloat(raw[3]),
			Close:     parseFloat(raw[4]),
			Volume:    parseFloat(raw[5]),
			CloseTime: int64(closeTime),
		}
	}

	return klines, nil
}

// ==================== TRADING ====================

// PlaceMarketOrder places a market order and returns the fill result.
// newOrderRespType=RESULT makes Binance wait for the fill so avgPrice is
// populated in the response.
func (c *FuturesClientImpl) PlaceMarketOrder(symbol, side string, quantity float64) (*FuturesOrderResponse, error) {
	params := map[string]string{
		"symbol":           symbol,
		"side":             side,
		"type":             string(FuturesOrderTypeMarket),
		"quantity":         strconv.FormatFloat(quantity, 'f', -1, 64),
		"newOrderRespType": "RESULT",
		"newClientOrderId": newClientOrderID(),
	}

	resp, err := c.signedPost("/fapi/v1/order", params)
	if err != nil {
		return nil, fmt.Errorf("error placing market order: %w", err)
	}

	var orderResp FuturesOrderResponse
	if err := json.Unmarshal(resp, &orderResp); err != nil {
		return nil, fmt.Errorf("error parsing order response: %w", err)
	}

	return &orderResp, nil
}

// PlaceStopOrder places a reduce-only STOP_MARKET or TAKE_PROFIT_MARKET order
func (c *FuturesClientImpl) PlaceStopOrder(symbol, side string, quantity, stopPrice float64, orderType FuturesOrderType) (*FuturesOrderResponse, error) {
	params := map[string]string{
		"symbol":           symbol,
		"side":             side,
		"type":             string(orderType),
		"quantity":         strconv.FormatFloat(quantity, 'f', -1, 64),
		"stopPrice":        strconv.FormatFloat(stopPrice, 'f', -1, 64),
		"reduceOnly":       "true",
		"newClientOrderId": newClientOrderID(),
	}

	resp, err := c.signedPost("/fapi/v1/order", params)
	if err != nil {
		return nil, fmt.Errorf("error placing %s order: %w", orderType, err)
	}

	var orderResp FuturesOrderResponse
	if err := json.Unmarshal(resp, &orderResp); err != nil {
		return nil, fmt.Errorf("error parsing order response: %w", err)
	}

	return &orderResp, nil
}

// GetOpenOrders retrieves all open orders for a symbol
func (c *FuturesClientImpl) GetOpenOrders(symbol string) ([]FuturesOrder, error) {
	params := map[string]string{
		"symbol": symbol,
	}

	resp, err := c.signedGet("/fapi/v1/openOrders", params)
	if err != nil {
		return nil, fmt.Errorf("error fetching open orders: %w", err)
	}

	var orders []FuturesOrder
	if err := json.Unmarshal(resp, &orders); err != nil {
		return nil, fmt.Errorf("error parsing open orders: %w", err)
	}

	return orders, nil
}

// GetPositions retrieves current positions for a symbol
func (c *FuturesClientImpl) GetPositions(symbol string) ([]FuturesPosition, error) {
	params := map[string]string{
		"symbol": symbol,
	}

	resp, err := c.signedGet("/fapi/v2/positionRisk", params)
	if err != nil {
		return nil, fmt.Errorf("error fetching positions: %w", err)
	}

	var positions []FuturesPosition
	if err := json.Unmarshal(resp, &positions); err != nil {
		return nil, fmt.Errorf("error parsing positions: %w", err)
	}

	return positions, nil
}

// CancelOrder cancels an existing futures order. A -2011 "unknown order"
// response means the order already filled or was cancelled; this is reported
// as CancelAlreadyGone rather than an error.
func (c *FuturesClientImpl) CancelOrder(symbol, orderID string) (CancelOutcome, error) {
	params := map[string]string{
		"symbol":  symbol,
		"orderId": orderID,
	}

	_, err := c.signedDelete("/fapi/v1/order", params)
	if err != nil {
		if IsUnknownOrder(err) {
			return CancelAlreadyGone, nil
		}
		return CancelFailed, fmt.Errorf("error canceling order %s: %w", orderID, err)
	}

	return CancelOK, nil
}

// ==================== ACCOUNT ====================

// SetLeverage sets the leverage for a symbol
func (c *FuturesClientImpl) SetLeverage(symbol string, leverage int) (*LeverageResponse, error) {
	params := map[string]string{
		"symbol":   symbol,
		"leverage": strconv.Itoa(leverage),
	}

	resp, err := c.signedPost("/fapi/v1/leverage", params)
	if err != nil {
		return nil, fmt.Errorf("error setting leverage: %w", err)
	}

	var leverageResp LeverageResponse
	if err := json.Unmarshal(resp, &leverageResp); err != nil {
		return nil, fmt.Errorf("error parsing leverage response: %w", err)
	}

	return &leverageResp, nil
}

// GetFuturesAccountInfo retrieves futures account information
func (c *FuturesClientImpl) GetFuturesAccountInfo() (*FuturesAccountInfo, error) {
	resp, err := c.signedGet("/fapi/v2/account", map[string]string{})
	if err != nil {
		return nil, fmt.Errorf("error fetching account info: %w", err)
	}

	var accountInfo FuturesAccountInfo
	if err := json.Unmarshal(resp, &accountInfo); err != nil {
		return nil, fmt.Errorf("error parsing account info: %w", err)
	}

	return &accountInfo, nil
}

// GetUSDTBalance fetches the USDT balance from the futures account
func (c *FuturesClientImpl) GetUSDTBalance() (float64, error) {
	accountInfo, err := c.GetFuturesAccountInfo()
	if err != nil {
		return 0, fmt.Errorf("failed to get account info: %w", err)
	}

	for _, asset := range accountInfo.Assets {
		if asset.Asset == "USDT" {
			return asset.WalletBalance, nil
		}
	}

	return 0, nil
}

// ==================== HTTP HELPERS ====================

// newClientOrderID generates a unique client order id for order attribution
func newClientOrderID() string {
	return "bibot-" + strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
}

// buildQueryString builds a query string from params (without signature)
func (c *FuturesClientImpl) buildQueryString(params map[string]string) string {
	query := ""
	for k, v := range params {
		if k != "signature" {
			if query != "" {
				query += "&"
			}
			query += k + "=" + url.QueryEscape(v)
		}
	}
	return query
}

// sign creates an HMAC-SHA256 signature for the given query string
func (c *FuturesClientImpl) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

// signParams builds the query string with signature appended
func (c *FuturesClientImpl) signParams(params map[string]string) string {
	query := c.buildQueryString(params)
	signature := c.sign(query)
	return query + "&signature=" + signature
}

// publicGet performs an unauthenticated GET request with retry
func (c *FuturesClientImpl) publicGet(endpoint string, params map[string]string) ([]byte, error) {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}

	reqURL := c.baseURL + endpoint
	if len(values) > 0 {
		reqURL += "?" + values.Encode()
	}

	return c.doWithRetry(func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, reqURL, nil)
	}, endpoint)
}

// signedGet performs an authenticated GET request with retry
func (c *FuturesClientImpl) signedGet(endpoint string, params map[string]string) ([]byte, error) {
	return c.doSigned(http.MethodGet, endpoint, params)
}

// signedPost performs an authenticated POST request with retry
func (c *FuturesClientImpl) signedPost(endpoint string, params map[string]string) ([]byte, error) {
	return c.doSigned(http.MethodPost, endpoint, params)
}

// signedDelete performs an authenticated DELETE request with retry
func (c *FuturesClientImpl) signedDelete(endpoint string, params map[string]string) ([]byte, error) {
	return c.doSigned(http.MethodDelete, endpoint, params)
}

func (c *FuturesClientImpl) doSigned(method, endpoint string, params map[string]string) ([]byte, error) {
	if params == nil {
		params = make(map[string]string)
	}

	return c.doWithRetry(func() (*http.Request, error) {
		// Refresh timestamp for each attempt and set recvWindow for clock
		// skew tolerance
		params["timestamp"] = strconv.FormatInt(time.Now().UnixMilli(), 10)
		params["recvWindow"] = "10000"
		query := c.signParams(params)

		req, err := http.NewRequest(method, c.baseURL+endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.URL.RawQuery = query
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
		return req, nil
	}, endpoint)
}

// doWithRetry executes a request with exponential backoff. Each attempt gets
// a freshly built request so signed timestamps stay valid. Non-retriable API
// errors are surfaced immediately.
func (c *FuturesClientImpl) doWithRetry(build func() (*http.Request, error), endpoint string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := retryDelay(c.retryBase, attempt-1)
			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("attempt", attempt+1).
				Int("max_attempts", maxAttempts).
				Dur("delay", delay).
				Err(lastErr).
				Msg("Retrying request")
			time.Sleep(delay)
		}

		req, err := build()
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode != http.StatusOK {
			apiErr := parseAPIError(resp.StatusCode, body)
			if !isRetryable(apiErr) {
				return nil, apiErr
			}
			lastErr = apiErr
			continue
		}

		return body, nil
	}

	return nil, lastErr
}

// retryDelay returns the backoff delay for the given zero-based attempt:
// base, base*2, base*4, ...
func retryDelay(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= backoffFactor
	}
	return delay
}

func parseFloat(v interface{}) float64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

// Ensure FuturesClientImpl implements FuturesClient
var _ FuturesClient = (*FuturesClientImpl)(nil)
