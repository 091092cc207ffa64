package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// SizeLength is the width of the big-endian length prefix carried by every frame
const SizeLength = 4

// DefaultMaxReceiveSize bounds the payload a Receive will allocate
const DefaultMaxReceiveSize = 512 * 1024

// Send is one outbound size-delimited frame.
// Format: (4-byte big-endian size N) + (N-byte payload)
//
// WriteTo may be called repeatedly against a non-blocking writer until
// Completed reports true.
type Send struct {
	destination string
	buffer      []byte
	offset      int
}

// NewSend frames the payload for the given destination
func NewSend(destination string, payload []byte) *Send {
	buffer := make([]byte, SizeLength+len(payload))
	binary.BigEndian.PutUint32(buffer[:SizeLength], uint32(len(payload)))
	copy(buffer[SizeLength:], payload)

	return &Send{
		destination: destination,
		buffer:      buffer,
	}
}

// Destination returns the node the frame is addressed to
func (s *Send) Destination() string {
	return s.destination
}

// Size returns the total number of bytes on the wire, prefix included
func (s *Send) Size() int {
	return len(s.buffer)
}

// Remaining returns the number of bytes not yet written
func (s *Send) Remaining() int {
	return len(s.buffer) - s.offset
}

// Completed reports whether every byte has been written
func (s *Send) Completed() bool {
	return s.offset == len(s.buffer)
}

// WriteTo performs a single write of the remaining bytes. A writer that
// accepts nothing is not an error; the caller retries on the next
// writability event.
func (s *Send) WriteTo(w io.Writer) (int64, error) {
	if s.Completed() {
		return 0, nil
	}

	n, err := w.Write(s.buffer[s.offset:])
	if n > 0 {
		s.offset += n
	}
	return int64(n), err
}

// Receive assembles one inbound size-delimited frame across partial reads
type Receive struct {
	source      string
	maxSize     int
	size        [SizeLength]byte
	sizeRead    int
	payload     []byte
	payloadRead int
}

// NewReceive creates an empty receive buffer. maxSize <= 0 disables the bound.
func NewReceive(source string, maxSize int) *Receive {
	return &Receive{
		source:  source,
		maxSize: maxSize,
	}
}

// Source returns the node the frame is read from
func (r *Receive) Source() string {
	return r.source
}

// Complete reports whether both the size prefix and the full payload arrived
func (r *Receive) Complete() bool {
	return r.sizeRead == SizeLength && r.payload != nil && r.payloadRead == len(r.payload)
}

// Payload returns the assembled payload, or nil while the frame is incomplete
func (r *Receive) Payload() []byte {
	if !r.Complete() {
		return nil
	}
	return r.payload
}

// ReadFrom performs at most one read for the size prefix and one for the
// payload. A reader returning (0, nil) means no data is available yet.
func (r *Receive) ReadFrom(rd io.Reader) (int64, error) {
	var total int64

	if r.sizeRead < SizeLength {
		n, err := rd.Read(r.size[r.sizeRead:])
		if n > 0 {
			r.sizeRead += n
			total += int64(n)
		}
		if err != nil {
			return total, err
		}
		if r.sizeRead < SizeLength {
			return total, nil
		}

		size := binary.BigEndian.Uint32(r.size[:])
		if size > math.MaxInt32 {
			return total, &InvalidReceiveError{Source: r.source, Size: int64(int32(size))}
		}
		if r.maxSize > 0 && int(size) > r.maxSize {
			return total, &InvalidReceiveError{Source: r.source, Size: int64(size), MaxSize: r.maxSize}
		}
		r.payload = make([]byte, size)
	}

	if r.payloadRead < len(r.payload) {
		n, err := rd.Read(r.payload[r.payloadRead:])
		if n > 0 {
			r.payloadRead += n
			total += int64(n)
		}
		if err != nil {
			return total, err
		}
	}

	return total, nil
}

// InvalidReceiveError reports a declared frame size the receiver refuses
type InvalidReceiveError struct {
	Source  string
	Size    int64
	MaxSize int
}

func (e *InvalidReceiveError) Error() string {
	if e.Size < 0 {
		return fmt.Sprintf("invalid receive from %s: negative size %d", e.Source, e.Size)
	}
	return fmt.Sprintf("invalid receive from %s: size %d larger than %d", e.Source, e.Size, e.MaxSize)
}
