package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// PayloadBuilder constructs frame payloads command by command. The
// framing header and terminator are applied later by EncodeFrame, once
// per recipient, because the counter nibble is per connection.
type PayloadBuilder struct {
	buf bytes.Buffer
}

// NewPayloadBuilder creates a new PayloadBuilder.
func NewPayloadBuilder() *PayloadBuilder {
	return &PayloadBuilder{}
}

// Reset clears the builder for reuse.
func (b *PayloadBuilder) Reset() {
	b.buf.Reset()
}

// WriteByte writes a single byte.
func (b *PayloadBuilder) WriteByte(v byte) *PayloadBuilder {
	b.buf.WriteByte(v)
	return b
}

// WriteUint32 writes a uint32 in little-endian order.
func (b *PayloadBuilder) WriteUint32(v uint32) *PayloadBuilder {
	binary.Write(&b.buf, binary.LittleEndian, v)
	return b
}

// WriteNullString writes a null-terminated string.
func (b *PayloadBuilder) WriteNullString(s string) *PayloadBuilder {
	b.buf.WriteString(s)
	b.buf.WriteByte(0)
	return b
}

// WriteString writes the raw bytes of a string with no terminator.
func (b *PayloadBuilder) WriteString(s string) *PayloadBuilder {
	b.buf.WriteString(s)
	return b
}

// WriteBytes writes raw bytes.
func (b *PayloadBuilder) WriteBytes(data []byte) *PayloadBuilder {
	b.buf.Write(data)
	return b
}

// Build returns the constructed payload bytes.
func (b *PayloadBuilder) Build() []byte {
	return b.buf.Bytes()
}

// Len returns the current size of the payload being built.
func (b *PayloadBuilder) Len() int {
	return b.buf.Len()
}

// String returns a hex dump of the current payload for debugging.
func (b *PayloadBuilder) String() string {
	data := b.buf.Bytes()
	return fmt.Sprintf("PayloadBuilder[%d bytes]: %x", len(data), data)
}

// ---- Pre-built payload constructors ----

// BuildInitialPacket creates the greeting payload (0x64) carrying the
// slot index assigned to a freshly admitted client.
func BuildInitialPacket(slot int) []byte {
	b := NewPayloadBuilder()
	b.WriteByte(CmdInitialPacket)
	b.WriteByte(0x0f)
	b.WriteByte(0x00)
	b.WriteByte(byte(slot))
	b.WriteByte(0x00)
	return b.Build()
}

// BuildCommand creates a one-command payload of opcode plus data.
func BuildCommand(opcode byte, data []byte) []byte {
	b := NewPayloadBuilder()
	b.WriteByte(opcode)
	b.WriteBytes(data)
	return b.Build()
}

// BuildPlayerReady creates a player_ready broadcast payload.
func BuildPlayerReady(ready byte, slot int) []byte {
	return BuildCommand(CmdPlayerReady, []byte{ready, byte(slot)})
}

// BuildBattlePing creates a battle_ping1 payload: the ping sequence
// number followed by the connection's initial packet counter advanced
// by the same sequence.
func BuildBattlePing(seq, initialCounter uint32) []byte {
	b := NewPayloadBuilder()
	b.WriteByte(CmdBattlePing1)
	b.WriteUint32(seq)
	b.WriteUint32(initialCounter + seq)
	return b.Build()
}

// BuildChat creates a player_chat payload.
func BuildChat(text string) []byte {
	b := NewPayloadBuilder()
	b.WriteByte(CmdPlayerChat)
	b.WriteNullString(text)
	return b.Build()
}
