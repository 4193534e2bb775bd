package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"grid-trader-go/internal/config"
	"grid-trader-go/internal/models"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	baseURL        = "https://api.binance.com/api/v3"
	testnetBaseURL = "https://testnet.binance.vision/api/v3"
	recvWindow     = "5000" // how long a signed request stays valid, in ms

	OrderTypeLimit    = "LIMIT"
	TimeInForceGTC    = "GTC"
	maxOrdersPerFetch = 1000
)

// RestClientInterface is the exchange capability set the strategies consume.
type RestClientInterface interface {
	GetServerTime() (int64, error)
	GetTickerPrice(symbol string) (decimal.Decimal, error)
	GetOpenOrders(symbol string) ([]models.Order, error)
	GetAllOrders(symbol string, startTime int64, limit int) ([]models.Order, error)
	GetAccountBalances() ([]models.Balance, error)
	GetKlines(symbol, interval string, limit int) ([]models.Kline, error)
	SubmitLimitBuy(symbol string, qty, price decimal.Decimal) (int64, error)
	SubmitLimitSell(symbol string, qty, price decimal.Decimal) (int64, error)
	CancelOrder(symbol string, orderID int64) error
}

// RestClient is a client for the Binance spot REST API.
type RestClient struct {
	client    *resty.Client
	apiKey    string
	secretKey string
	logger    *zap.Logger
	limiter   *rate.Limiter
}

// ensure RestClient implements the interface
var _ RestClientInterface = (*RestClient)(nil)

// NewRestClient creates a new Binance REST API client.
func NewRestClient(cfg *config.Binance, logger *zap.Logger) *RestClient {
	var endpoint string
	if cfg.Testnet {
		endpoint = testnetBaseURL
		logger.Warn("Using Binance Testnet")
	} else {
		endpoint = baseURL
		logger.Info("Using Binance Production API")
	}

	client := resty.New().SetBaseURL(endpoint)

	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &RestClient{
		client:    client,
		apiKey:    cfg.ApiKey,
		secretKey: cfg.SecretKey,
		logger:    logger,
		limiter:   limiter,
	}
}

// sign creates a HMAC-SHA256 signature for the request.
func (c *RestClient) sign(data string) string {
	h := hmac.New(sha256.New, []byte(c.secretKey))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// signParams appends the timestamp, recvWindow and signature to a parameter set.
func (c *RestClient) signParams(params url.Values) url.Values {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", recvWindow)
	params.Set("signature", c.sign(params.Encode()))
	return params
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *RestClient) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if resp != nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests || statusCode == 418 { // HTTP 429 or 418
				shouldRetry = true
				retryAfterHeader := resp.Header().Get("Retry-After")
				if seconds, err := strconv.Atoi(retryAfterHeader); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 { // Server errors
				shouldRetry = true
			}
		} else { // Network or other client-side errors
			shouldRetry = true
		}

		if !shouldRetry {
			return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		}

		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}

// GetServerTime fetches the current server time from Binance.
// This is a good endpoint to test connectivity.
func (c *RestClient) GetServerTime() (int64, error) {
	type ServerTimeResponse struct {
		ServerTime int64 `json:"serverTime"`
	}

	req := c.client.R().SetResult(&ServerTimeResponse{})

	resp, err := c.doRequest(context.Background(), "GET", "/time", req)
	if err != nil {
		return 0, fmt.Errorf("failed to get server time: %w", err)
	}

	return resp.Result().(*ServerTimeResponse).ServerTime, nil
}

// GetTickerPrice fetches the latest traded price of one symbol.
func (c *RestClient) GetTickerPrice(symbol string) (decimal.Decimal, error) {
	type TickerPrice struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}

	req := c.client.R().
		SetQueryParam("symbol", symbol).
		SetResult(&TickerPrice{})

	resp, err := c.doRequest(context.Background(), "GET", "/ticker/price", req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get ticker price for %s: %w", symbol, err)
	}

	price, err := decimal.NewFromString(resp.Result().(*TickerPrice).Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse ticker price: %w", err)
	}
	return price, nil
}

// apiOrder is the wire representation of an order; numeric fields arrive as strings.
type apiOrder struct {
	Symbol      string `json:"symbol"`
	OrderID     int64  `json:"orderId"`
	Price       string `json:"price"`
	OrigQty     string `json:"origQty"`
	ExecutedQty string `json:"executedQty"`
	Status      string `json:"status"`
	Side        string `json:"side"`
	Time        int64  `json:"time"`
	UpdateTime  int64  `json:"updateTime"`
}

func (o *apiOrder) toModel() (models.Order, error) {
	price, err := decimal.NewFromString(o.Price)
	if err != nil {
		return models.Order{}, fmt.Errorf("order %d: bad price %q: %w", o.OrderID, o.Price, err)
	}
	origQty, err := decimal.NewFromString(o.OrigQty)
	if err != nil {
		return models.Order{}, fmt.Errorf("order %d: bad origQty %q: %w", o.OrderID, o.OrigQty, err)
	}
	executedQty := decimal.Zero
	if o.ExecutedQty != "" {
		if executedQty, err = decimal.NewFromString(o.ExecutedQty); err != nil {
			return models.Order{}, fmt.Errorf("order %d: bad executedQty %q: %w", o.OrderID, o.ExecutedQty, err)
		}
	}
	return models.Order{
		OrderID:     o.OrderID,
		Symbol:      o.Symbol,
		Side:        models.Side(o.Side),
		Status:      o.Status,
		Price:       price,
		OrigQty:     origQty,
		ExecutedQty: executedQty,
		Time:        o.Time,
		UpdateTime:  o.UpdateTime,
	}, nil
}

func toModelOrders(raw []apiOrder) ([]models.Order, error) {
	orders := make([]models.Order, 0, len(raw))
	for i := range raw {
		order, err := raw[i].toModel()
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// GetOpenOrders fetches every currently-open order for a symbol.
func (c *RestClient) GetOpenOrders(symbol string) ([]models.Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var raw []apiOrder
	req := c.client.R().
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetQueryParamsFromValues(c.signParams(params)).
		SetResult(&raw)

	if _, err := c.doRequest(context.Background(), "GET", "/openOrders", req); err != nil {
		return nil, fmt.Errorf("failed to get open orders: %w", err)
	}
	return toModelOrders(raw)
}

// GetAllOrders fetches orders of a symbol submitted at or after startTime
// (ms since epoch), in submit-time order, up to limit entries.
func (c *RestClient) GetAllOrders(symbol string, startTime int64, limit int) ([]models.Order, error) {
	if limit <= 0 || limit > maxOrdersPerFetch {
		limit = maxOrdersPerFetch
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("startTime", strconv.FormatInt(startTime, 10))
	params.Set("limit", strconv.Itoa(limit))

	var raw []apiOrder
	req := c.client.R().
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetQueryParamsFromValues(c.signParams(params)).
		SetResult(&raw)

	if _, err := c.doRequest(context.Background(), "GET", "/allOrders", req); err != nil {
		return nil, fmt.Errorf("failed to get order history: %w", err)
	}
	return toModelOrders(raw)
}

// GetAccountBalances fetches the free/locked balances of every asset.
func (c *RestClient) GetAccountBalances() ([]models.Balance, error) {
	type accountResponse struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}

	req := c.client.R().
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetQueryParamsFromValues(c.signParams(url.Values{})).
		SetResult(&accountResponse{})

	resp, err := c.doRequest(context.Background(), "GET", "/account", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get account balances: %w", err)
	}

	result := resp.Result().(*accountResponse)
	balances := make([]models.Balance, 0, len(result.Balances))
	for _, b := range result.Balances {
		free, err := decimal.NewFromString(b.Free)
		if err != nil {
			return nil, fmt.Errorf("asset %s: bad free balance %q: %w", b.Asset, b.Free, err)
		}
		locked, err := decimal.NewFromString(b.Locked)
		if err != nil {
			return nil, fmt.Errorf("asset %s: bad locked balance %q: %w", b.Asset, b.Locked, err)
		}
		balances = append(balances, models.Balance{Asset: b.Asset, Free: free, Locked: locked})
	}
	return balances, nil
}

// GetKlines fetches the most recent candlesticks for a symbol.
func (c *RestClient) GetKlines(symbol, interval string, limit int) ([]models.Kline, error) {
	var raw [][]interface{}
	req := c.client.R().
		SetQueryParams(map[string]string{
			"symbol":   symbol,
			"interval": interval,
			"limit":    strconv.Itoa(limit),
		}).
		SetResult(&raw)

	if _, err := c.doRequest(context.Background(), "GET", "/klines", req); err != nil {
		return nil, fmt.Errorf("failed to get klines: %w", err)
	}

	klines := make([]models.Kline, 0, len(raw))
	for _, row := range raw {
		// Wire format: [openTime, open, high, low, close, volume, closeTime, ...]
		if len(row) < 7 {
			return nil, fmt.Errorf("kline row has %d fields, want at least 7", len(row))
		}
		k := models.Kline{
			OpenTime:  int64(asFloat(row[0])),
			CloseTime: int64(asFloat(row[6])),
		}
		var err error
		if k.Open, err = asDecimal(row[1]); err != nil {
			return nil, fmt.Errorf("bad kline open: %w", err)
		}
		if k.High, err = asDecimal(row[2]); err != nil {
			return nil, fmt.Errorf("bad kline high: %w", err)
		}
		if k.Low, err = asDecimal(row[3]); err != nil {
			return nil, fmt.Errorf("bad kline low: %w", err)
		}
		if k.Close, err = asDecimal(row[4]); err != nil {
			return nil, fmt.Errorf("bad kline close: %w", err)
		}
		if k.Volume, err = asDecimal(row[5]); err != nil {
			return nil, fmt.Errorf("bad kline volume: %w", err)
		}
		klines = append(klines, k)
	}
	return klines, nil
}

func asFloat(v interface{}) float64 {
	f, _ := v.(float64)
	return f
}

func asDecimal(v interface{}) (decimal.Decimal, error) {
	s, ok := v.(string)
	if !ok {
		return decimal.Zero, fmt.Errorf("expected string price field, got %T", v)
	}
	return decimal.NewFromString(s)
}

type createOrderResponse struct {
	Symbol  string `json:"symbol"`
	OrderID int64  `json:"orderId"`
	Status  string `json:"status"`
}

// submitLimitOrder places a GTC limit order and returns the exchange order id.
func (c *RestClient) submitLimitOrder(symbol string, side models.Side, qty, price decimal.Decimal) (int64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", string(side))
	params.Set("type", OrderTypeLimit)
	params.Set("timeInForce", TimeInForceGTC)
	params.Set("quantity", qty.String())
	params.Set("price", price.String())

	req := c.client.R().
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(c.signParams(params).Encode()).
		SetResult(&createOrderResponse{})

	resp, err := c.doRequest(context.Background(), "POST", "/order", req)
	if err != nil {
		c.logger.Error("Failed to submit limit order",
			zap.String("symbol", symbol),
			zap.String("side", string(side)),
			zap.String("qty", qty.String()),
			zap.String("price", price.String()),
			zap.Error(err),
		)
		return 0, fmt.Errorf("failed to submit %s order: %w", side, err)
	}

	result := resp.Result().(*createOrderResponse)
	c.logger.Info("Submitted limit order",
		zap.Int64("order_id", result.OrderID),
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.String("qty", qty.String()),
		zap.String("price", price.String()),
	)
	return result.OrderID, nil
}

// SubmitLimitBuy places a GTC limit buy order.
func (c *RestClient) SubmitLimitBuy(symbol string, qty, price decimal.Decimal) (int64, error) {
	return c.submitLimitOrder(symbol, models.SideBuy, qty, price)
}

// SubmitLimitSell places a GTC limit sell order.
func (c *RestClient) SubmitLimitSell(symbol string, qty, price decimal.Decimal) (int64, error) {
	return c.submitLimitOrder(symbol, models.SideSell, qty, price)
}

// CancelOrder cancels a resting order by id.
func (c *RestClient) CancelOrder(symbol string, orderID int64) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", strconv.FormatInt(orderID, 10))

	req := c.client.R().
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetQueryParamsFromValues(c.signParams(params))

	if _, err := c.doRequest(context.Background(), "DELETE", "/order", req); err != nil {
		return fmt.Errorf("failed to cancel order %d: %w", orderID, err)
	}
	c.logger.Info("Cancelled order", zap.Int64("order_id", orderID), zap.String("symbol", symbol))
	return nil
}
