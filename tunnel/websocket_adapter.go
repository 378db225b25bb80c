package tunnel

import (
	"time"

	"github.com/gorilla/websocket"
)

func websocketCloseDeadline() time.Time {
	return time.Now().Add(time.Second)
}

// WebSocketAdapter implements ClientSocket over a gorilla/websocket
// connection; it's the concrete collaborator behind the ClientSocket
// interface once the out-of-scope HTTP/WebSocket upgrade has completed.
type WebSocketAdapter struct {
	conn *websocket.Conn
}

func NewWebSocketAdapter(conn *websocket.Conn) *WebSocketAdapter {
	return &WebSocketAdapter{conn: conn}
}

func (w *WebSocketAdapter) ReceiveText() (string, error) {
	_, data, err := w.conn.ReadMessage()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (w *WebSocketAdapter) SendText(s string) error {
	return w.conn.WriteMessage(websocket.TextMessage, []byte(s))
}

func (w *WebSocketAdapter) Close(code int, reason string) error {
	deadline := websocketCloseDeadline()
	msg := websocket.FormatCloseMessage(code, reason)
	_ = w.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	return w.conn.Close()
}
