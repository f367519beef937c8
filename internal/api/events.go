package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/tidwall/gjson"

	"github.com/alexjbarnes/fittrack/internal/models"
)

// wsReadLimit bounds change-notification frames. Events carry only an
// op and a domain name, so a small limit is plenty.
const wsReadLimit = 64 * 1024

// WSConn abstracts the WebSocket connection so Events can be tested
// without a real server. *websocket.Conn satisfies this interface.
//
//go:generate go run go.uber.org/mock/mockgen -source=events.go -destination=mock_ws_test.go -package=api WSConn
type WSConn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Close(code websocket.StatusCode, reason string) error
	SetReadLimit(n int64)
}

// DialFunc opens a WebSocket connection to the event stream. Tests
// substitute a fake; production uses DialEvents.
type DialFunc func(ctx context.Context) (WSConn, error)

// DialEvents returns a DialFunc that connects to the server's
// /sync/events stream with the client's bearer token.
func (c *Client) DialEvents() DialFunc {
	return func(ctx context.Context) (WSConn, error) {
		url := strings.Replace(c.baseURL, "http", "ws", 1) + "/sync/events"

		conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{ //nolint:bodyclose // websocket.Dial closes the response body internally
			HTTPHeader: http.Header{
				"Authorization": []string{"Bearer " + c.token},
				sessionHeader:   []string{c.sessionID},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("dialing event stream: %w", err)
		}

		return conn, nil
	}
}

// Events consumes the server's change-notification stream. Each event
// names a domain another session has just uploaded, letting this client
// pull the change instead of waiting for its next scheduled sync.
type Events struct {
	dial   DialFunc
	logger *slog.Logger
}

// NewEvents creates an event stream consumer.
func NewEvents(dial DialFunc, logger *slog.Logger) *Events {
	return &Events{dial: dial, logger: logger}
}

// Listen connects and dispatches change events to onChange until the
// context is cancelled or the connection drops. A dropped connection
// returns the read error; the caller owns reconnect policy.
func (e *Events) Listen(ctx context.Context, onChange func(domain models.Domain)) error {
	conn, err := e.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	conn.SetReadLimit(wsReadLimit)
	e.logger.Debug("event stream connected")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			return fmt.Errorf("reading event: %w", err)
		}

		op := gjson.GetBytes(data, "op").Str
		switch op {
		case "changed":
			domain := models.Domain(gjson.GetBytes(data, "domain").Str)
			if !domainSynced(domain) {
				e.logger.Warn("change event for unknown domain", slog.String("domain", string(domain)))

				continue
			}

			onChange(domain)
		case "ping":
			// Keepalive, nothing to do.
		default:
			e.logger.Warn("unknown event op", slog.String("op", op))
		}
	}
}

func domainSynced(domain models.Domain) bool {
	for _, d := range models.SyncedDomains {
		if d == domain {
			return true
		}
	}

	return false
}
