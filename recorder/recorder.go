// Package recorder optionally mirrors a session's daemon→client
// instruction stream to disk, keyed by the guacd-issued connection id,
// for later offline inspection.
package recorder

import "context"

// Recorder is the capability tunnel.Session writes through on its hot
// relay path when recording is enabled.
type Recorder interface {
	// Record appends one instruction's raw bytes to connID's recording,
	// opening the underlying file on first use.
	Record(connID string, data []byte)
	// Close flushes and releases any resources held for connID.
	Close(connID string)
}

// Replayer streams a previously recorded session back as instruction
// strings. It is a library-level capability for offline tooling
// (cmd/guacgw's -replay mode) — not exposed over any wire protocol this
// gateway serves.
type Replayer interface {
	Replay(ctx context.Context, connID string) (chan string, error)
}
