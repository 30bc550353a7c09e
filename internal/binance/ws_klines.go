package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// FuturesWSBaseURL is the production futures websocket endpoint
	FuturesWSBaseURL = "wss://fstream.binance.com/ws"
	// FuturesTestnetWSBaseURL is the testnet futures websocket endpoint
	FuturesTestnetWSBaseURL = "wss://stream.binancefuture.com/ws"

	wsReconnectDelay = 5 * time.Second
	wsReadTimeout    = 90 * time.Second
)

// KlineEvent is a closed candle delivered by the websocket stream
type KlineEvent struct {
	Symbol string
	Kline  Kline
}

// wsKlineMessage mirrors the continuous kline stream payload
type wsKlineMessage struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Kline     struct {
		OpenTime  int64  `json:"t"`
		CloseTime int64  `json:"T"`
		Open      string `json:"o"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Close     string `json:"c"`
		Volume    string `json:"v"`
		Closed    bool   `json:"x"`
	} `json:"k"`
}

// KlineStream subscribes to the kline websocket feed for one symbol and
// delivers closed candles on its channel. It reconnects on failures until the
// context is cancelled.
type KlineStream struct {
	baseURL  string
	symbol   string
	interval string
	logger   zerolog.Logger
	events   chan KlineEvent
}

// NewKlineStream creates a stream for the given symbol and interval
func NewKlineStream(symbol, interval string, testnet bool, logger zerolog.Logger) *KlineStream {
	baseURL := FuturesWSBaseURL
	if testnet {
		baseURL = FuturesTestnetWSBaseURL
	}
	return &KlineStream{
		baseURL:  baseURL,
		symbol:   symbol,
		interval: interval,
		logger:   logger.With().Str("component", "KlineStream").Str("symbol", symbol).Logger(),
		events:   make(chan KlineEvent, 16),
	}
}

// Events returns the channel closed candles are delivered on. It is closed
// when Run returns.
func (s *KlineStream) Events() <-chan KlineEvent {
	return s.events
}

// Run connects and pumps events until ctx is cancelled. Blocks; run in a
// goroutine.
func (s *KlineStream) Run(ctx context.Context) {
	defer close(s.events)

	url := fmt.Sprintf("%s/%s@kline_%s", s.baseURL, strings.ToLower(s.symbol), s.interval)

	for {
		if ctx.Err() != nil {
			return
		}

		if err := s.pump(ctx, url); err != nil && ctx.Err() == nil {
			s.logger.Warn().Err(err).Dur("delay", wsReconnectDelay).Msg("Websocket disconnected, reconnecting")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wsReconnectDelay):
		}
	}
}

func (s *KlineStream) pump(ctx context.Context, url string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	s.logger.Info().Str("url", url).Msg("Websocket connected")

	// Close the connection when the context ends so ReadMessage unblocks
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	for {
		if err := conn.SetReadDeadline(time.Now().Add(wsReadTimeout)); err != nil {
			return err
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg wsKlineMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug().Err(err).Msg("Skipping unparseable websocket message")
			continue
		}
		if msg.EventType != "kline" || !msg.Kline.Closed {
			continue
		}

		event := KlineEvent{
			Symbol: msg.Symbol,
			Kline: Kline{
				OpenTime:  msg.Kline.OpenTime,
				CloseTime: msg.Kline.CloseTime,
				Open:      parseWSFloat(msg.Kline.Open),
				High:      parseWSFloat(msg.Kline.High),
				Low:       parseWSFloat(msg.Kline.Low),
				Close:     parseWSFloat(msg.Kline.Close),
				Volume:    parseWSFloat(msg.Kline.Volume),
			},
		}

		select {
		case s.events <- event:
		case <-ctx.Done():
			return ctx.Err()
		default:
			// Consumer is behind; drop the oldest candle.
			select {
			case <-s.events:
			default:
			}
			s.events <- event
		}
	}
}

func parseWSFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
