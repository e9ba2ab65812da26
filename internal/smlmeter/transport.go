package smlmeter

import (
	"bytes"
	"fmt"
)

// transport framing: every exchange on the wire is escape-sequence
// delimited, independent of the SML messages it carries.
var (
	escapeSeq = []byte{0x1b, 0x1b, 0x1b, 0x1b}
	startMark = []byte{0x01, 0x01, 0x01, 0x01}
	endMark   = byte(0x1a)
)

// frame wraps the concatenated SML messages in the transport's start
// sequence (four escape bytes, four 0x01 version bytes) and end sequence
// (four escape bytes, 0x1a, a fill-byte count, and a two-byte CRC-16/X-25
// covering everything from the first escape byte through the fill-byte
// count inclusive). The message block is padded to a multiple of 4 bytes,
// matching the padding the transport requires.
func frame(messages []byte) []byte {
	var buf bytes.Buffer
	buf.Write(escapeSeq)
	buf.Write(startMark)
	buf.Write(messages)

	fill := (4 - buf.Len()%4) % 4
	for i := 0; i < fill; i++ {
		buf.WriteByte(0x00)
	}

	buf.Write(escapeSeq)
	buf.WriteByte(endMark)
	buf.WriteByte(byte(fill))

	crc := crc16X25(buf.Bytes())
	buf.WriteByte(byte(crc))
	buf.WriteByte(byte(crc >> 8))

	return buf.Bytes()
}

// unframe strips the transport's start/end sequences and validates the
// trailer CRC, returning the raw SML message bytes in between.
func unframe(buf []byte) ([]byte, error) {
	if len(buf) < 16 {
		return nil, fmt.Errorf("smlmeter: frame too short (%d bytes)", len(buf))
	}
	if !bytes.Equal(buf[:4], escapeSeq) || !bytes.Equal(buf[4:8], startMark) {
		return nil, fmt.Errorf("smlmeter: missing transport start sequence")
	}

	trailerStart := bytes.LastIndex(buf, escapeSeq)
	if trailerStart < 8 || trailerStart+8 > len(buf) {
		return nil, fmt.Errorf("smlmeter: missing transport end sequence")
	}
	if buf[trailerStart+4] != endMark {
		return nil, fmt.Errorf("smlmeter: malformed transport trailer")
	}

	fill := int(buf[trailerStart+5])
	wantCRC := uint16(buf[trailerStart+6]) | uint16(buf[trailerStart+7])<<8
	gotCRC := crc16X25(buf[:trailerStart+6])
	if wantCRC != gotCRC {
		return nil, fmt.Errorf("smlmeter: transport trailer crc mismatch (want %04x, got %04x)", wantCRC, gotCRC)
	}

	messages := buf[8:trailerStart]
	if fill > len(messages) {
		return nil, fmt.Errorf("smlmeter: fill byte count %d exceeds message length", fill)
	}
	return messages[:len(messages)-fill], nil
}
