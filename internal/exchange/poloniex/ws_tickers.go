package poloniex

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"coinledger/internal/core"
)

type wsEnvelope struct {
	Event   string            `json:"event,omitempty"`
	Channel string            `json:"channel,omitempty"`
	Data    []json.RawMessage `json:"data,omitempty"`
}

type wsSubscribe struct {
	Event   string   `json:"event"`
	Channel []string `json:"channel"`
	Symbols []string `json:"symbols"`
}

const wsWriteTimeout = 10 * time.Second

// StreamTickers subscribes to the public ticker channel and invokes fn
// with the engine pair form ("XMR/BTC") for every update until ctx is
// cancelled or the connection fails. No reconnection is attempted here; a
// caller that wants one wraps this call.
func (c *Client) StreamTickers(ctx context.Context, wsURL string, fn func(pair string, tick core.Ticker)) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return errors.Wrapf(err, "dial %s", wsURL)
	}
	defer conn.Close()

	sub := wsSubscribe{Event: "subscribe", Channel: []string{"ticker"}, Symbols: []string{"all"}}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(sub); err != nil {
		return errors.Wrap(err, "subscribe ticker channel")
	}

	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(wsWriteTimeout))
		_ = conn.Close()
	}()

	for {
		var env wsEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return errors.Wrap(err, "read ticker stream")
		}
		if env.Event == "ping" {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(map[string]string{"event": "pong"}); err != nil {
				return errors.Wrap(err, "write pong")
			}
			continue
		}
		if env.Channel != "ticker" {
			continue
		}
		for _, raw := range env.Data {
			var entry tickerEntry
			if err := json.Unmarshal(raw, &entry); err != nil {
				log.WithError(err).Warn("skip unparsable ticker frame")
				continue
			}
			base, quote, ok := splitSymbol(entry.Symbol)
			if !ok {
				continue
			}
			tick, err := entry.ticker()
			if err != nil {
				log.WithField("symbol", entry.Symbol).WithError(err).Warn("skip unparsable ticker frame")
				continue
			}
			fn(base+"/"+quote, tick)
		}
	}
}
