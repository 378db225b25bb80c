package recorder

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/guacgw/gateway/protocol"
)

const defaultBaseDirectory = "records"

// FileRecorderOption configures a FileRecorder at construction time.
type FileRecorderOption func(*FileRecorder)

// WithGzipLevel gzip-compresses every recording at the given
// compression level. Levels outside gzip's valid range fall back to the
// default level.
func WithGzipLevel(level int) FileRecorderOption {
	return func(fr *FileRecorder) {
		if level < gzip.BestSpeed || level > gzip.BestCompression {
			level = gzip.DefaultCompression
		}
		fr.gzipLevel = level
	}
}

// WithBaseDirectory sets the directory recordings are written under.
// Defaults to "records" relative to the working directory.
func WithBaseDirectory(base string) FileRecorderOption {
	return func(fr *FileRecorder) {
		fr.base = base
	}
}

// recording is one session's open output: the file, and the gzip layer
// over it when compression is on.
type recording struct {
	file *os.File
	gz   *gzip.Writer
}

func (r *recording) write(data []byte) {
	if r.gz != nil {
		_, _ = r.gz.Write(data)
		// Flush per instruction so a recording of a crashed session is
		// still readable up to its last instruction.
		_ = r.gz.Flush()
		return
	}
	_, _ = r.file.Write(data)
}

func (r *recording) close() {
	if r.gz != nil {
		_ = r.gz.Close()
	}
	_ = r.file.Close()
}

// FileRecorder writes one file per connection id under its base
// directory, with optional gzip compression, and can stream a finished
// recording back for offline replay.
type FileRecorder struct {
	mu        sync.Mutex
	active    map[string]*recording
	base      string
	gzipLevel int // 0 disables compression
}

// NewFileRecorder builds a FileRecorder, creating its base directory if
// necessary. The concrete type is returned (not the Recorder interface)
// so callers that also need Replay — cmd/guacgw's -replay mode — don't
// need a type assertion.
func NewFileRecorder(opts ...FileRecorderOption) *FileRecorder {
	fr := &FileRecorder{
		active: make(map[string]*recording),
		base:   defaultBaseDirectory,
	}
	for _, opt := range opts {
		opt(fr)
	}
	_ = os.MkdirAll(fr.base, 0755)
	return fr
}

// filename maps a connection id to its recording path, stripping
// guacd's "$" id marker so it doesn't end up in the name.
func (f *FileRecorder) filename(connID string) string {
	name := filepath.Join(f.base, strings.TrimPrefix(connID, "$"))
	if f.gzipLevel != 0 {
		name += ".gz"
	}
	return name
}

func (f *FileRecorder) open(connID string) (*recording, error) {
	file, err := os.Create(f.filename(connID))
	if err != nil {
		return nil, err
	}
	rec := &recording{file: file}
	if f.gzipLevel != 0 {
		rec.gz, err = gzip.NewWriterLevel(file, f.gzipLevel)
		if err != nil {
			_ = file.Close()
			return nil, err
		}
	}
	return rec, nil
}

// Record implements Recorder.
func (f *FileRecorder) Record(connID string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, exists := f.active[connID]
	if !exists {
		var err error
		if rec, err = f.open(connID); err != nil {
			return
		}
		f.active[connID] = rec
	}
	rec.write(data)
}

// Close implements Recorder.
func (f *FileRecorder) Close(connID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, exists := f.active[connID]
	if !exists {
		return
	}
	rec.close()
	delete(f.active, connID)
}

// Replay implements Replayer: it streams connID's recording back as a
// channel of instruction strings, closing the channel when the
// recording is exhausted or ctx is cancelled. The recording is reframed
// through the instruction codec, so a truncated trailing instruction is
// dropped rather than delivered half-formed.
func (f *FileRecorder) Replay(ctx context.Context, connID string) (chan string, error) {
	file, err := os.Open(f.filename(connID))
	if err != nil {
		return nil, err
	}

	var src io.Reader = file
	closeAll := func() { _ = file.Close() }
	if f.gzipLevel != 0 {
		gr, err := gzip.NewReader(file)
		if err != nil {
			_ = file.Close()
			return nil, err
		}
		src = gr
		closeAll = func() {
			_ = gr.Close()
			_ = file.Close()
		}
	}

	ch := make(chan string, 64)
	go func() {
		defer close(ch)
		defer closeAll()
		reader := protocol.NewReader(src)
		for {
			instr, err := reader.ReadInstruction()
			if err != nil {
				return
			}
			select {
			case ch <- string(instr):
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}
