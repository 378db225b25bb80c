// Package handshake drives the select/args/size/audio/video/image/
// connect/ready exchange that brings a guacd connection to the point
// where relay can begin.
package handshake

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/guacgw/gateway/gatewayerr"
	"github.com/guacgw/gateway/protocol"
)

const (
	defaultScreenWidth  = 1024
	defaultScreenHeight = 768
	defaultScreenDPI    = 96
)

// Config is everything the driver needs to perform one handshake.
type Config struct {
	// Protocol is the lower-cased protocol tag ("rdp", "vnc", "ssh", ...).
	Protocol string
	// Arguments is the fully-merged argument map (descriptor + defaults
	// + query overrides), keyed by guacd parameter name.
	Arguments map[string]string
}

func (c *Config) screenDims() (width, height, dpi string) {
	width = c.Arguments["width"]
	if width == "" {
		width = strconv.Itoa(defaultScreenWidth)
	}
	height = c.Arguments["height"]
	if height == "" {
		height = strconv.Itoa(defaultScreenHeight)
	}
	dpi = c.Arguments["dpi"]
	if dpi == "" {
		dpi = strconv.Itoa(defaultScreenDPI)
	}
	return
}

func csv(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// guacdConn is the minimal capability the driver needs from the
// downstream socket: write raw instruction bytes.
type guacdConn interface {
	Write([]byte) (int, error)
}

// instructionSource reads complete instructions one at a time.
type instructionSource interface {
	ReadInstruction() (protocol.Instruction, error)
}

// Result is what a successful handshake produces.
type Result struct {
	// Ready is the verbatim "ready" instruction guacd sent, to be
	// forwarded to the client unmodified.
	Ready protocol.Instruction
	// ConnectionID is the guacd-assigned session identifier, the single
	// element of Ready.
	ConnectionID string
}

// Do drives the handshake over conn/reader and returns the result, or a
// *gatewayerr.Error of kind Handshake on any framing violation,
// unexpected opcode, or socket error. Callers are responsible for
// applying an overall timeout (e.g. via a deadline on conn).
func Do(conn guacdConn, reader instructionSource, cfg *Config) (*Result, error) {
	if err := send(conn, protocol.NewInstruction("select", cfg.Protocol)); err != nil {
		return nil, gatewayerr.New(gatewayerr.Handshake, fmt.Errorf("sending select: %w", err))
	}

	argsInstr, err := reader.ReadInstruction()
	if err != nil {
		return nil, gatewayerr.New(gatewayerr.Handshake, fmt.Errorf("reading args: %w", err))
	}
	if argsInstr.IsError() {
		return nil, gatewayerr.New(gatewayerr.Handshake, argsInstr.Error())
	}
	if argsInstr.Opcode().Value() != "args" {
		return nil, gatewayerr.New(gatewayerr.Handshake, fmt.Errorf("expected args instruction, got opcode %q", argsInstr.Opcode().Value()))
	}

	paramNames := argsInstr.Args()
	connectArgs := make([]string, len(paramNames))
	for i, name := range paramNames {
		// Missing keys contribute an empty element; this preserves the
		// positional alignment guacd requires. The protocol-version
		// marker guacd lists first ("VERSION_1_3_0", ...) is never a
		// real argument and is echoed back as itself.
		n := name.Value()
		v, ok := cfg.Arguments[n]
		if !ok && strings.HasPrefix(n, "VERSION_") {
			v = n
		}
		connectArgs[i] = v
	}

	// guacd reads the client info and connect instructions back to back
	// before replying, so they go out as one write.
	width, height, dpi := cfg.screenDims()
	if err := send(conn,
		protocol.NewInstruction("size", width, height, dpi),
		protocol.NewInstruction("audio", csv(cfg.Arguments["audio"])...),
		protocol.NewInstruction("video", csv(cfg.Arguments["video"])...),
		protocol.NewInstruction("image", csv(cfg.Arguments["image"])...),
		protocol.NewInstruction("connect", connectArgs...),
	); err != nil {
		return nil, gatewayerr.New(gatewayerr.Handshake, fmt.Errorf("sending connect: %w", err))
	}

	readyInstr, err := reader.ReadInstruction()
	if err != nil {
		return nil, gatewayerr.New(gatewayerr.Handshake, fmt.Errorf("reading ready: %w", err))
	}
	if readyInstr.IsError() {
		return nil, gatewayerr.New(gatewayerr.Handshake, readyInstr.Error())
	}
	if readyInstr.Opcode().Value() != "ready" {
		return nil, gatewayerr.New(gatewayerr.Handshake, fmt.Errorf("expected ready instruction, got opcode %q", readyInstr.Opcode().Value()))
	}
	readyArgs := readyInstr.Args()
	if len(readyArgs) == 0 {
		return nil, gatewayerr.New(gatewayerr.Handshake, fmt.Errorf("ready instruction carries no connection id"))
	}

	return &Result{Ready: readyInstr, ConnectionID: readyArgs[0].Value()}, nil
}

func send(conn guacdConn, instrs ...protocol.Instruction) error {
	var buf []byte
	for _, instr := range instrs {
		buf = append(buf, instr.Bytes()...)
	}
	_, err := conn.Write(buf)
	return err
}
