package protocol

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

// chunkedReader replays a fixed sequence of byte chunks, one per Read
// call, regardless of the size of p.
type chunkedReader struct {
	chunks [][]byte
	i      int
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if c.i >= len(c.chunks) {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[c.i])
	c.i++
	return n, nil
}

func TestReader_FramingSplitAcrossChunks(t *testing.T) {
	src := &chunkedReader{chunks: [][]byte{
		[]byte("5.hel"),
		[]byte("lo,5.wo"),
		[]byte("rld;"),
	}}
	r := NewReader(src)

	instr, err := r.ReadInstruction()
	if err != nil {
		t.Fatalf("ReadInstruction: %v", err)
	}
	opcode := instr.Opcode()
	args := instr.Args()
	if opcode.Value() != "hello" {
		t.Fatalf("opcode = %q, want %q", opcode.Value(), "hello")
	}
	if len(args) != 1 || args[0].Value() != "world" {
		t.Fatalf("args = %v, want [world]", args)
	}
}

func TestReader_MultipleInstructionsInOneChunk(t *testing.T) {
	src := bytes.NewBufferString("3.nop;3.nop;")
	r := NewReader(src)
	for i := 0; i < 2; i++ {
		instr, err := r.ReadInstruction()
		if err != nil {
			t.Fatalf("ReadInstruction %d: %v", i, err)
		}
		if instr.Opcode().Value() != "nop" {
			t.Fatalf("instr %d = %q", i, instr)
		}
	}
}

func TestReader_RoundTrip(t *testing.T) {
	instr := NewInstruction("select", "aa,,a", "b,b,b", "c,csdf,")
	wire := string(instr.Bytes())

	for _, split := range [][]int{{3}, {1, 2, 5}, {len(wire)}} {
		t.Run("", func(t *testing.T) {
			var chunks [][]byte
			pos := 0
			for _, at := range split {
				if at <= pos || at > len(wire) {
					continue
				}
				chunks = append(chunks, []byte(wire[pos:at]))
				pos = at
			}
			chunks = append(chunks, []byte(wire[pos:]))

			r := NewReader(&chunkedReader{chunks: chunks})
			got, err := r.ReadInstruction()
			if err != nil {
				t.Fatalf("ReadInstruction: %v", err)
			}
			if got != instr {
				t.Errorf("got %q, want %q", got, instr)
			}
		})
	}
}

func TestReader_FramingViolation(t *testing.T) {
	r := NewReader(strings.NewReader("5.ab;"))
	if _, err := r.ReadInstruction(); err == nil {
		t.Fatal("expected framing error for truncated element")
	} else {
		var fe *FramingError
		if !errors.As(err, &fe) {
			t.Errorf("error %v is not a *FramingError", err)
		}
	}
}

func TestReader_IncompleteAtEOF(t *testing.T) {
	r := NewReader(strings.NewReader("5.hello"))
	if _, err := r.ReadInstruction(); err == nil {
		t.Fatal("expected error for incomplete instruction at EOF")
	} else {
		var fe *FramingError
		if !errors.As(err, &fe) {
			t.Errorf("error %v is not a *FramingError", err)
		}
	}
}

func TestInstruction_WriterByteLength(t *testing.T) {
	s := "héllo" // multi-byte UTF-8
	instr := NewInstruction("x", s)
	wire := string(instr.Bytes())
	// "1.x,<len(bytes(s))>.<s>;"
	want := "1.x," + string(NewElement(s)) + ";"
	if wire != want {
		t.Errorf("wire = %q, want %q", wire, want)
	}
}
