package tunnel

// ClientSocket is the capability the tunnel needs from the upstream
// (browser) side. The HTTP/WebSocket upgrade itself is out of scope —
// this is the interface an already-accepted WebSocket is assumed to
// expose.
type ClientSocket interface {
	ReceiveText() (string, error)
	SendText(string) error
	Close(code int, reason string) error
}

// Close codes mirrored from RFC 6455 so callers don't need to import a
// websocket package just to close a tunnel.
const (
	CloseNormal            = 1000
	CloseGoingAway         = 1001
	CloseInternalServerErr = 1011
)

// clientByteReader adapts a ClientSocket's whole-message ReceiveText
// into the io.Reader protocol.Reader expects, so the same streaming
// instruction codec drives both directions of the tunnel.
type clientByteReader struct {
	client ClientSocket
	buf    []byte
}

func (r *clientByteReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		s, err := r.client.ReceiveText()
		if err != nil {
			return 0, err
		}
		r.buf = []byte(s)
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}
