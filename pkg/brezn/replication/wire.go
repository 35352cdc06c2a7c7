// Package replication is the Replication Engine (§4.6): framed TCP
// server and clients, broadcast-with-TTL, conflict detection and
// resolution, sequence assignment, the incremental sync protocol, and
// the liveness sweep. It is the component every other package exists
// to serve.
package replication

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/dabena/brezn/pkg/brezn/types"
)

const (
	lengthPrefixSize = 4
	maxFrameSize     = 16 << 20 // generous upper bound against a hostile length header
)

// WriteFrame writes a u32 BE length-prefixed JSON frame (§4.6, §6).
func WriteFrame(w io.Writer, payload []byte) error {
	header := make([]byte, lengthPrefixSize)
	binary.BigEndian.PutUint32(header, uint32(len(payload)))
	if _, err := w.Write(header); err != nil {
		return types.WrapError(types.KindTransport, "write frame header", err)
	}
	if _, err := w.Write(payload); err != nil {
		return types.WrapError(types.KindTransport, "write frame payload", err)
	}
	return nil
}

// ReadFrame blocks for exactly one frame: the 4-byte big-endian length
// header, then that many payload bytes.
func ReadFrame(r *bufio.Reader) ([]byte, error) {
	header := make([]byte, lengthPrefixSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, types.WrapError(types.KindTransport, "read frame header", err)
	}
	length := binary.BigEndian.Uint32(header)
	if length > maxFrameSize {
		return nil, types.NewError(types.KindProtocol, "frame length exceeds maximum")
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, types.WrapError(types.KindTransport, "read frame payload", err)
	}
	return payload, nil
}

// FrameDecoder incrementally accumulates raw bytes from a stream (e.g.
// from repeated non-blocking reads) and extracts complete frames only
// once both the header and the declared payload length are available,
// per §4.6's incremental-parsing requirement.
type FrameDecoder struct {
	buf []byte
}

// Feed appends newly read bytes to the decode buffer.
func (d *FrameDecoder) Feed(chunk []byte) {
	d.buf = append(d.buf, chunk...)
}

// Next extracts and consumes the next complete frame, if one is fully
// buffered. It returns ok=false when more bytes are needed.
func (d *FrameDecoder) Next() (payload []byte, ok bool, err error) {
	if len(d.buf) < lengthPrefixSize {
		return nil, false, nil
	}
	length := binary.BigEndian.Uint32(d.buf[:lengthPrefixSize])
	if length > maxFrameSize {
		return nil, false, types.NewError(types.KindProtocol, "frame length exceeds maximum")
	}
	total := lengthPrefixSize + int(length)
	if len(d.buf) < total {
		return nil, false, nil
	}
	frame := make([]byte, length)
	copy(frame, d.buf[lengthPrefixSize:total])
	d.buf = d.buf[total:]
	return frame, true, nil
}
