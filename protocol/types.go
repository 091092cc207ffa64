package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Helper functions for encoding the primitive types of the request envelope.
// Decoders take the offset to start at and return the offset after the value.

func writeInt16(buf *bytes.Buffer, v int16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(v))
	buf.Write(b[:])
}

func writeInt32(buf *bytes.Buffer, v int32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	buf.Write(b[:])
}

// writeString encodes an int16 length followed by the bytes
func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > math.MaxInt16 {
		return fmt.Errorf("string of %d bytes exceeds maximum length %d", len(s), math.MaxInt16)
	}
	writeInt16(buf, int16(len(s)))
	buf.WriteString(s)
	return nil
}

// writeNullableString encodes nil as length -1
func writeNullableString(buf *bytes.Buffer, s *string) error {
	if s == nil {
		writeInt16(buf, -1)
		return nil
	}
	return writeString(buf, *s)
}

// writeStringArray encodes an int32 count followed by the strings; nil encodes as -1
func writeStringArray(buf *bytes.Buffer, values []string) error {
	if values == nil {
		writeInt32(buf, -1)
		return nil
	}
	writeInt32(buf, int32(len(values)))
	for _, v := range values {
		if err := writeString(buf, v); err != nil {
			return err
		}
	}
	return nil
}

func readInt16(data []byte, offset int) (int16, int, error) {
	if offset+2 > len(data) {
		return 0, offset, fmt.Errorf("int16 at offset %d extends beyond data", offset)
	}
	return int16(binary.BigEndian.Uint16(data[offset : offset+2])), offset + 2, nil
}

func readInt32(data []byte, offset int) (int32, int, error) {
	if offset+4 > len(data) {
		return 0, offset, fmt.Errorf("int32 at offset %d extends beyond data", offset)
	}
	return int32(binary.BigEndian.Uint32(data[offset : offset+4])), offset + 4, nil
}

func readNullableString(data []byte, offset int) (*string, int, error) {
	strLen, offset, err := readInt16(data, offset)
	if err != nil {
		return nil, offset, fmt.Errorf("string length missing: %w", err)
	}
	if strLen < 0 {
		if strLen != -1 {
			return nil, offset, fmt.Errorf("invalid string length %d", strLen)
		}
		return nil, offset, nil
	}
	if offset+int(strLen) > len(data) {
		return nil, offset, fmt.Errorf("string extends beyond data")
	}
	str := string(data[offset : offset+int(strLen)])
	return &str, offset + int(strLen), nil
}

func readString(data []byte, offset int) (string, int, error) {
	str, offset, err := readNullableString(data, offset)
	if err != nil {
		return "", offset, err
	}
	if str == nil {
		return "", offset, fmt.Errorf("unexpected null string at offset %d", offset-2)
	}
	return *str, offset, nil
}

func readStringArray(data []byte, offset int) ([]string, int, error) {
	count, offset, err := readInt32(data, offset)
	if err != nil {
		return nil, offset, fmt.Errorf("array length missing: %w", err)
	}
	if count < 0 {
		if count != -1 {
			return nil, offset, fmt.Errorf("invalid array length %d", count)
		}
		return nil, offset, nil
	}
	// each element needs at least its two length bytes
	if int64(count)*2 > int64(len(data)-offset) {
		return nil, offset, fmt.Errorf("array of %d elements extends beyond data", count)
	}

	values := make([]string, 0, count)
	for i := int32(0); i < count; i++ {
		var v string
		v, offset, err = readString(data, offset)
		if err != nil {
			return nil, offset, fmt.Errorf("array element %d: %w", i, err)
		}
		values = append(values, v)
	}
	return values, offset, nil
}
