package channel

import (
	"context"
	"io"

	"github.com/coder/websocket"
)

// WebsocketDialer is the production Dialer, backed by coder/websocket.
type WebsocketDialer struct {
	// Opts are passed through to the handshake. Nil is fine.
	Opts *websocket.DialOptions
}

func (d *WebsocketDialer) Dial(ctx context.Context, addr string) (Conn, error) {
	conn, _, err := websocket.Dial(ctx, addr, d.Opts)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (w *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.conn.Read(ctx)
	if err != nil {
		// Normalize clean closes so the channel can end quietly.
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return nil, io.EOF
		}
		return nil, err
	}
	return data, nil
}

func (w *wsConn) Close() error {
	return w.conn.Close(websocket.StatusNormalClosure, "bye")
}
