package data

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quanta-engine/core/internal/errs"
	"github.com/quanta-engine/core/pkg/types"
)

// RateLimiter is a token bucket guarding outbound REST calls against the
// exchange's weight limit. Acquire blocks until a token is available,
// refilling continuously at refillRate tokens/second.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64
	lastRefill time.Time
}

// NewRateLimiter constructs a RateLimiter starting full.
func NewRateLimiter(maxTokens int, refillRate float64) *RateLimiter {
	return &RateLimiter{
		tokens:     float64(maxTokens),
		maxTokens:  float64(maxTokens),
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Acquire blocks until one token is available, then consumes it.
func (r *RateLimiter) Acquire() {
	for {
		r.mu.Lock()
		r.refillLocked()
		if r.tokens >= 1 {
			r.tokens--
			r.mu.Unlock()
			return
		}
		r.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
}

func (r *RateLimiter) refillLocked() {
	now := time.Now()
	elapsed := now.Sub(r.lastRefill).Seconds()
	r.tokens = math.Min(r.maxTokens, r.tokens+elapsed*r.refillRate)
	r.lastRefill = now
}

// BinanceConfig configures the Binance REST/WebSocket adapter.
type BinanceConfig struct {
	APIKey     string
	APISecret  string
	Testnet    bool
	HTTPClient *http.Client
}

func (c BinanceConfig) baseURL() string {
	if c.Testnet {
		return "https://testnet.binance.vision"
	}
	return "https://api.binance.com"
}

func (c BinanceConfig) wsBaseURL() string {
	if c.Testnet {
		return "wss://testnet.binance.vision/ws"
	}
	return "wss://stream.binance.com:9443/ws"
}

// BinanceClient is a Binance-shaped ExchangeClient and router.ExchangeAdapter
// implementation. It signs account/order requests with HMAC-SHA256 and
// throttles every outbound call through a token-bucket RateLimiter.
type BinanceClient struct {
	logger      *zap.Logger
	cfg         BinanceConfig
	baseURL     string
	httpClient  *http.Client
	rateLimiter *RateLimiter

	connected atomic.Bool
}

// NewBinanceClient constructs a BinanceClient. It does not dial anything
// until Connect is called.
func NewBinanceClient(logger *zap.Logger, cfg BinanceConfig) *BinanceClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &BinanceClient{
		logger:      logger,
		cfg:         cfg,
		baseURL:     cfg.baseURL(),
		httpClient:  httpClient,
		rateLimiter: NewRateLimiter(1200, 20),
	}
}

// ID satisfies router.ExchangeAdapter.
func (b *BinanceClient) ID() string { return "binance" }

// Connect pings the exchange and marks the adapter connected on success.
func (b *BinanceClient) Connect(ctx context.Context) error {
	b.rateLimiter.Acquire()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/v3/ping", nil)
	if err != nil {
		return err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		b.connected.Store(false)
		return errs.FetchFailure("ping", "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b.connected.Store(false)
		return errs.FetchFailure("ping", "", fmt.Errorf("status %d", resp.StatusCode))
	}

	b.connected.Store(true)
	return nil
}

// IsConnected reports the last known connection health.
func (b *BinanceClient) IsConnected() bool { return b.connected.Load() }

// GetPrice returns the last trade price for symbol.
func (b *BinanceClient) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	b.rateLimiter.Acquire()

	binanceSymbol := toBinanceSymbol(symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		b.baseURL+"/api/v3/ticker/price?symbol="+binanceSymbol, nil)
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, errs.FetchFailure("price", symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, err
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, errs.FetchFailure("price", symbol, fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}

	var raw struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw.Price)
}

// Ticker24h returns the rolling 24h ticker for every traded symbol.
func (b *BinanceClient) Ticker24h(ctx context.Context) ([]Ticker, error) {
	b.rateLimiter.Acquire()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/v3/ticker/24hr", nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, errs.FetchFailure("ticker_24h", "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errs.FetchFailure("ticker_24h", "", fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}

	var raw []struct {
		Symbol             string `json:"symbol"`
		LastPrice          string `json:"lastPrice"`
		Volume             string `json:"volume"`
		PriceChangePercent string `json:"priceChangePercent"`
		HighPrice          string `json:"highPrice"`
		LowPrice           string `json:"lowPrice"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	tickers := make([]Ticker, 0, len(raw))
	for _, t := range raw {
		price, _ := decimal.NewFromString(t.LastPrice)
		volume, _ := decimal.NewFromString(t.Volume)
		change, _ := decimal.NewFromString(t.PriceChangePercent)
		high, _ := decimal.NewFromString(t.HighPrice)
		low, _ := decimal.NewFromString(t.LowPrice)
		tickers = append(tickers, Ticker{
			Symbol:    fromBinanceSymbol(t.Symbol),
			Price:     price,
			Volume24h: volume,
			Change24h: change.Div(decimal.NewFromInt(100)),
			High24h:   high,
			Low24h:    low,
		})
	}
	return tickers, nil
}

var klineIntervals = map[types.Timeframe]string{
	types.Timeframe1m:  "1m",
	types.Timeframe5m:  "5m",
	types.Timeframe15m: "15m",
	types.Timeframe1h:  "1h",
}

// Candles returns up to limit closed OHLCV bars for symbol at timeframe,
// oldest first.
func (b *BinanceClient) Candles(ctx context.Context, symbol string, timeframe types.Timeframe, limit int) ([]types.Candle, error) {
	b.rateLimiter.Acquire()

	interval, ok := klineIntervals[timeframe]
	if !ok {
		interval = "1m"
	}
	binanceSymbol := toBinanceSymbol(symbol)

	reqURL := fmt.Sprintf("%s/api/v3/klines?symbol=%s&interval=%s&limit=%d", b.baseURL, binanceSymbol, interval, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, errs.FetchFailure("klines", symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errs.FetchFailure("klines", symbol, fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}

	var raw [][]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	candles := make([]types.Candle, 0, len(raw))
	for _, row := range raw {
		if len(row) < 11 {
			continue
		}
		candles = append(candles, types.Candle{
			OpenTime:      int64(row[0].(float64)),
			Open:          mustDecimalFromAny(row[1]),
			High:          mustDecimalFromAny(row[2]),
			Low:           mustDecimalFromAny(row[3]),
			Close:         mustDecimalFromAny(row[4]),
			Volume:        mustDecimalFromAny(row[5]),
			CloseTime:     int64(row[6].(float64)),
			QuoteVolume:   mustDecimalFromAny(row[7]),
			TradeCount:    int64(row[8].(float64)),
			TakerBuyBase:  mustDecimalFromAny(row[9]),
			TakerBuyQuote: mustDecimalFromAny(row[10]),
		})
	}
	return candles, nil
}

// AccountInfo returns the signed account snapshot.
func (b *BinanceClient) AccountInfo(ctx context.Context) (AccountInfo, error) {
	b.rateLimiter.Acquire()

	resp, err := b.signedRequest(ctx, http.MethodGet, "/api/v3/account", url.Values{})
	if err != nil {
		return AccountInfo{}, errs.FetchFailure("account", "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return AccountInfo{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return AccountInfo{}, errs.FetchFailure("account", "", fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}

	var raw struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return AccountInfo{}, err
	}

	info := AccountInfo{UpdatedAt: time.Now()}
	for _, bal := range raw.Balances {
		free, _ := decimal.NewFromString(bal.Free)
		locked, _ := decimal.NewFromString(bal.Locked)
		total := free.Add(locked)
		if total.IsZero() {
			continue
		}
		info.Balances = append(info.Balances, AccountBalance{Asset: bal.Asset, Free: free, Locked: locked})
		if bal.Asset == "USDT" {
			info.TotalBalance = info.TotalBalance.Add(total)
		}
	}
	return info, nil
}

// Positions reports non-zero spot balances as positions, since a pure spot
// account has no futures-style position book.
func (b *BinanceClient) Positions(ctx context.Context) ([]PositionInfo, error) {
	account, err := b.AccountInfo(ctx)
	if err != nil {
		return nil, err
	}

	positions := make([]PositionInfo, 0, len(account.Balances))
	for _, bal := range account.Balances {
		if bal.Asset == "USDT" {
			continue
		}
		positions = append(positions, PositionInfo{
			Symbol: bal.Asset + "/USDT",
			Size:   bal.Free.Add(bal.Locked),
		})
	}
	return positions, nil
}

// PlaceOrder submits a signed order and maps the response onto OrderResponse.
func (b *BinanceClient) PlaceOrder(ctx context.Context, req types.OrderRequest) (types.OrderResponse, error) {
	b.rateLimiter.Acquire()
	submittedAt := time.Now()

	params := url.Values{}
	params.Set("symbol", toBinanceSymbol(req.Symbol))
	params.Set("side", strings.ToUpper(string(req.Side)))
	params.Set("type", convertOrderType(req.Type))
	params.Set("quantity", req.Quantity.String())
	if req.Type == types.OrderTypeLimit {
		params.Set("price", req.LimitPrice.String())
		params.Set("timeInForce", strings.ToUpper(string(req.TimeInForce)))
	}

	resp, err := b.signedRequest(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return types.OrderResponse{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.OrderResponse{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return types.OrderResponse{
			Status:      types.OrderStatusRejected,
			SubmittedAt: submittedAt,
			CompletedAt: time.Now(),
		}, fmt.Errorf("place order failed with status %d: %s", resp.StatusCode, body)
	}

	var raw struct {
		OrderID             int64  `json:"orderId"`
		Status              string `json:"status"`
		ExecutedQty         string `json:"executedQty"`
		CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return types.OrderResponse{}, err
	}

	filledQty, _ := decimal.NewFromString(raw.ExecutedQty)
	quoteQty, _ := decimal.NewFromString(raw.CummulativeQuoteQty)
	avgFillPrice := decimal.Zero
	if !filledQty.IsZero() {
		avgFillPrice = quoteQty.Div(filledQty)
	}

	completedAt := time.Now()
	return types.OrderResponse{
		OrderID:      strconv.FormatInt(raw.OrderID, 10),
		ExchangeID:   b.ID(),
		Status:       convertOrderStatus(raw.Status),
		FilledQty:    filledQty,
		AvgFillPrice: avgFillPrice,
		Latency:      completedAt.Sub(submittedAt),
		SubmittedAt:  submittedAt,
		CompletedAt:  completedAt,
	}, nil
}

// CancelOrder cancels a previously placed order.
func (b *BinanceClient) CancelOrder(ctx context.Context, orderID string) error {
	b.rateLimiter.Acquire()

	params := url.Values{}
	params.Set("orderId", orderID)

	resp, err := b.signedRequest(ctx, http.MethodDelete, "/api/v3/order", params)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("cancel order failed with status %d: %s", resp.StatusCode, body)
	}
	return nil
}

// ClosePosition flattens a spot position by market-selling the full balance.
func (b *BinanceClient) ClosePosition(ctx context.Context, symbol string) error {
	positions, err := b.Positions(ctx)
	if err != nil {
		return err
	}
	for _, p := range positions {
		if p.Symbol != symbol {
			continue
		}
		_, err := b.PlaceOrder(ctx, types.OrderRequest{
			Symbol:      symbol,
			Side:        types.OrderSideSell,
			Quantity:    p.Size,
			Type:        types.OrderTypeMarket,
			TimeInForce: types.TimeInForceIOC,
			Timestamp:   time.Now(),
		})
		return err
	}
	return nil
}

// signedRequest timestamps, signs, and submits an authenticated request.
func (b *BinanceClient) signedRequest(ctx context.Context, method, endpoint string, params url.Values) (*http.Response, error) {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	signature := b.sign(params.Encode())
	params.Set("signature", signature)

	reqURL := b.baseURL + endpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", b.cfg.APIKey)

	return b.httpClient.Do(req)
}

func (b *BinanceClient) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(b.cfg.APISecret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func toBinanceSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))
}

func fromBinanceSymbol(symbol string) string {
	if strings.HasSuffix(symbol, "USDT") {
		return symbol[:len(symbol)-4] + "/USDT"
	}
	return symbol
}

func convertOrderType(t types.OrderType) string {
	switch t {
	case types.OrderTypeLimit:
		return "LIMIT"
	case types.OrderTypeStopLoss:
		return "STOP_LOSS_LIMIT"
	case types.OrderTypeTakeProfit:
		return "TAKE_PROFIT_LIMIT"
	default:
		return "MARKET"
	}
}

func convertOrderStatus(s string) types.OrderStatus {
	switch s {
	case "FILLED":
		return types.OrderStatusFilled
	case "PARTIALLY_FILLED":
		return types.OrderStatusPartiallyFilled
	case "CANCELED", "EXPIRED":
		return types.OrderStatusCancelled
	case "REJECTED":
		return types.OrderStatusRejected
	default:
		return types.OrderStatusPending
	}
}

func mustDecimalFromAny(v interface{}) decimal.Decimal {
	s, ok := v.(string)
	if !ok {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
