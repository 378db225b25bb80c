package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// https://guacamole.apache.org/doc/gug/guacamole-protocol.html#design

// Element is a single LENGTH.VALUE member of an Instruction's argument
// list. The length prefix is the number of UTF-8 bytes in the value,
// not the number of Unicode code points — this matches the reference
// guacd daemon, which counts bytes.
type Element string

func (e Element) Value() string {
	s := string(e)
	idx := strings.IndexByte(s, '.')
	return s[idx+1:]
}

func NewElement(s string) Element {
	return Element(strconv.Itoa(len(s)) + "." + s)
}

// Instruction
// OPCODE,ARG1,ARG2,ARG3,...;
// Each instruction is a comma-delimited list followed by a terminating
// semicolon, where the first element of the list is the instruction
// opcode and all following elements are the arguments for that
// instruction.
type Instruction string

func (i Instruction) Opcode() Element {
	s := string(i)
	idx := strings.IndexByte(s, ',')
	if idx == -1 {
		return Element(strings.TrimSuffix(s, ";"))
	}
	return Element(s[:idx])
}

func (i Instruction) Args() []Element {
	s := string(i)
	commaIdx := strings.IndexByte(s, ',')
	if commaIdx == -1 {
		return nil
	}
	args := s[commaIdx+1:]
	var elements []Element
	for {
		dotIdx := strings.IndexByte(args, '.')
		length, _ := strconv.Atoi(args[:dotIdx])
		start := dotIdx + 1
		end := start + length
		elements = append(elements, NewElement(args[start:end]))
		if args[end] == ';' {
			break
		}
		args = args[end+1:]
	}
	return elements
}

func (i Instruction) IsError() bool {
	return i.Opcode().Value() == "error"
}

// Error returns the error carried by a Guacamole "error" instruction, or
// nil if this instruction isn't one.
func (i Instruction) Error() error {
	if !i.IsError() {
		return nil
	}
	args := i.Args()
	if len(args) < 2 {
		return fmt.Errorf("malformed error instruction: %q", string(i))
	}
	message := args[0].Value()
	statusCodeInt, _ := strconv.ParseInt(args[1].Value(), 10, 64)
	status := Status(statusCodeInt)
	return fmt.Errorf("guacd error: %s (%s)", message, status.String())
}

func (i Instruction) Bytes() []byte {
	return []byte(i)
}

func NewInstruction(opcode string, args ...string) Instruction {
	elements := make([]string, 0, len(args)+1)
	elements = append(elements, string(NewElement(opcode)))
	for _, arg := range args {
		elements = append(elements, string(NewElement(arg)))
	}
	return Instruction(strings.Join(elements, ",") + ";")
}

// Disconnect is a global Instruction for disconnecting from the Guacamole server
var Disconnect = NewInstruction("disconnect")
