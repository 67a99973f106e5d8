package data

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PriceCallback receives a live ticker update from the stream.
type PriceCallback func(symbol string, price, volume decimal.Decimal)

// PriceStream is a combined-stream Binance ticker WebSocket client with a
// reconnect-health monitor: if the connection drops, it redials and
// resubscribes on a fixed interval rather than surfacing the gap to callers.
type PriceStream struct {
	logger  *zap.Logger
	cfg     BinanceConfig
	symbols []string

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	onPrice   PriceCallback

	cancel context.CancelFunc
}

// NewPriceStream constructs a PriceStream for the given symbols.
func NewPriceStream(logger *zap.Logger, cfg BinanceConfig, symbols []string) *PriceStream {
	return &PriceStream{logger: logger, cfg: cfg, symbols: symbols}
}

// OnPrice registers the callback invoked for every ticker message.
func (s *PriceStream) OnPrice(cb PriceCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPrice = cb
}

// Start dials the combined stream and begins the read loop and reconnect
// monitor. It returns once the initial connection succeeds.
func (s *PriceStream) Start(ctx context.Context) error {
	streamCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if err := s.connect(streamCtx); err != nil {
		cancel()
		return err
	}

	go s.readLoop(streamCtx)
	go s.reconnectMonitor(streamCtx)
	return nil
}

// Stop tears down the stream.
func (s *PriceStream) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.connected = false
}

// IsConnected reports current WebSocket health.
func (s *PriceStream) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *PriceStream) connect(ctx context.Context) error {
	streams := make([]string, 0, len(s.symbols))
	for _, sym := range s.symbols {
		streams = append(streams, strings.ToLower(toBinanceSymbol(sym))+"@ticker")
	}
	wsURL := s.cfg.wsBaseURL() + "/" + strings.Join(streams, "/")

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("price stream dial: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()

	return nil
}

func (s *PriceStream) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			s.logger.Warn("price stream read error", zap.Error(err))
			s.mu.Lock()
			s.connected = false
			s.mu.Unlock()
			return
		}

		s.handleMessage(message)
	}
}

// reconnectMonitor redials every 5 seconds while disconnected, matching the
// cadence the exchange's own health checks expect.
func (s *PriceStream) reconnectMonitor(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.IsConnected() {
				continue
			}
			if err := s.connect(ctx); err != nil {
				s.logger.Warn("price stream reconnect failed", zap.Error(err))
				continue
			}
			go s.readLoop(ctx)
		}
	}
}

func (s *PriceStream) handleMessage(message []byte) {
	var raw struct {
		EventType string `json:"e"`
		Symbol    string `json:"s"`
		LastPrice string `json:"c"`
		Volume    string `json:"v"`
	}
	if err := json.Unmarshal(message, &raw); err != nil {
		return
	}
	if raw.EventType != "24hrTicker" {
		return
	}

	s.mu.RLock()
	cb := s.onPrice
	s.mu.RUnlock()
	if cb == nil {
		return
	}

	price, err := decimal.NewFromString(raw.LastPrice)
	if err != nil {
		return
	}
	volume, _ := decimal.NewFromString(raw.Volume)
	cb(fromBinanceSymbol(raw.Symbol), price, volume)
}
