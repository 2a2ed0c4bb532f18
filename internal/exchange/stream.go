package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"signal-trading-engine/internal/logging"
)

const (
	// FuturesStreamURL is the production combined-stream endpoint
	FuturesStreamURL = "wss://fstream.binance.com/stream"

	streamReadTimeout  = 90 * time.Second
	reconnectBaseDelay = 2 * time.Second
	reconnectMaxDelay  = 60 * time.Second
)

// klineMessage is the combined-stream kline payload
type klineMessage struct {
	Stream string `json:"stream"`
	Data   struct {
		EventType string `json:"e"`
		Symbol    string `json:"s"`
		Kline     struct {
			StartTime int64  `json:"t"`
			Open      string `json:"o"`
			High      string `json:"h"`
			Low       string `json:"l"`
			Close     string `json:"c"`
			Volume    string `json:"v"`
			Closed    bool   `json:"x"`
		} `json:"k"`
	} `json:"data"`
}

// KlineStream maintains the latest bar per symbol from the futures
// kline websocket, falling back to a REST source when the cache is
// cold or stale.
type KlineStream struct {
	url      string
	symbols  []string
	interval string
	fallback MarketDataSource
	logger   *logging.Logger

	// maxAge bounds how stale a cached bar may be before the fallback
	// is consulted instead.
	maxAge time.Duration

	mu     sync.RWMutex
	latest map[string]Bar
	cancel context.CancelFunc
	done   chan struct{}
}

// NewKlineStream creates a stream for the given symbols and interval
func NewKlineStream(symbols []string, interval string, fallback MarketDataSource, logger *logging.Logger) *KlineStream {
	return &KlineStream{
		url:      FuturesStreamURL,
		symbols:  symbols,
		interval: interval,
		fallback: fallback,
		logger:   logger,
		maxAge:   5 * time.Minute,
		latest:   make(map[string]Bar),
	}
}

// Start connects and keeps reading in the background, reconnecting
// with backoff until the context is cancelled or Stop is called.
func (s *KlineStream) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		delay := reconnectBaseDelay
		for {
			if ctx.Err() != nil {
				return
			}
			if err := s.run(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("kline stream disconnected, reconnecting",
					"error", err, "delay", delay.String())
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}
		}
	}()
}

// Stop tears the stream down
func (s *KlineStream) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}

func (s *KlineStream) run(ctx context.Context) error {
	streams := make([]string, 0, len(s.symbols))
	for _, sym := range s.symbols {
		streams = append(streams, fmt.Sprintf("%s@kline_%s", strings.ToLower(sym), s.interval))
	}
	url := fmt.Sprintf("%s?streams=%s", s.url, strings.Join(streams, "/"))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	s.logger.Info("kline stream connected", "streams", len(streams), "interval", s.interval)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg klineMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Data.EventType != "kline" {
			continue
		}

		bar := Bar{
			Open:      parseFloat(msg.Data.Kline.Open),
			High:      parseFloat(msg.Data.Kline.High),
			Low:       parseFloat(msg.Data.Kline.Low),
			Close:     parseFloat(msg.Data.Kline.Close),
			Volume:    parseFloat(msg.Data.Kline.Volume),
			Timestamp: time.UnixMilli(msg.Data.Kline.StartTime),
		}

		s.mu.Lock()
		s.latest[strings.ToUpper(msg.Data.Symbol)] = bar
		s.mu.Unlock()
	}
}

// GetLatestBar serves from the live cache when fresh and the requested
// timeframe matches the subscribed interval, otherwise from the REST
// fallback.
func (s *KlineStream) GetLatestBar(ctx context.Context, symbol, timeframe string) (*Bar, error) {
	if timeframe == s.interval {
		s.mu.RLock()
		bar, ok := s.latest[strings.ToUpper(symbol)]
		s.mu.RUnlock()

		if ok && time.Since(bar.Timestamp) < s.maxAge {
			b := bar
			return &b, nil
		}
	}
	if s.fallback != nil {
		return s.fallback.GetLatestBar(ctx, symbol, timeframe)
	}
	return nil, nil
}

// GetKlines always goes to the REST fallback; the stream only tracks
// the newest bar.
func (s *KlineStream) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Bar, error) {
	if s.fallback != nil {
		return s.fallback.GetKlines(ctx, symbol, interval, limit)
	}
	return nil, nil
}
