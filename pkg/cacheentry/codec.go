package cacheentry

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Encode serializes a CachedResponse to CacheBolt's stable binary format:
// status as a fixed uint16, header count as a varint, each header as two
// length-prefixed byte strings (name, value), and the body as one
// length-prefixed byte string. Field order is fixed so two processes
// serializing the same CachedResponse always produce identical bytes.
func Encode(r CachedResponse) []byte {
	var buf bytes.Buffer

	var statusBuf [2]byte
	binary.BigEndian.PutUint16(statusBuf[:], r.StatusCode)
	buf.Write(statusBuf[:])

	writeUvarint(&buf, uint64(len(r.Headers)))
	for _, h := range r.Headers {
		writeLengthPrefixed(&buf, []byte(h.Name))
		writeLengthPrefixed(&buf, []byte(h.Value))
	}

	writeLengthPrefixed(&buf, r.Body)

	return buf.Bytes()
}

// Decode parses the format written by Encode. It returns an error if the
// bytes are truncated or malformed; callers treat this as a
// SerializationError and discard the entry.
func Decode(data []byte) (CachedResponse, error) {
	if len(data) < 2 {
		return CachedResponse{}, fmt.Errorf("cacheentry: truncated status code")
	}

	r := CachedResponse{StatusCode: binary.BigEndian.Uint16(data[:2])}
	rest := data[2:]

	headerCount, n, err := readUvarint(rest)
	if err != nil {
		return CachedResponse{}, fmt.Errorf("cacheentry: header count: %w", err)
	}
	rest = rest[n:]

	r.Headers = make([]Header, 0, headerCount)
	for i := uint64(0); i < headerCount; i++ {
		name, consumed, err := readLengthPrefixed(rest)
		if err != nil {
			return CachedResponse{}, fmt.Errorf("cacheentry: header %d name: %w", i, err)
		}
		rest = rest[consumed:]

		value, consumed, err := readLengthPrefixed(rest)
		if err != nil {
			return CachedResponse{}, fmt.Errorf("cacheentry: header %d value: %w", i, err)
		}
		rest = rest[consumed:]

		r.Headers = append(r.Headers, Header{Name: string(name), Value: string(value)})
	}

	body, consumed, err := readLengthPrefixed(rest)
	if err != nil {
		return CachedResponse{}, fmt.Errorf("cacheentry: body: %w", err)
	}
	rest = rest[consumed:]

	if len(rest) != 0 {
		return CachedResponse{}, fmt.Errorf("cacheentry: %d trailing bytes after body", len(rest))
	}

	r.Body = body
	return r, nil
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func readUvarint(b []byte) (uint64, int, error) {
	v, n := binary.Uvarint(b)
	if n <= 0 {
		return 0, 0, fmt.Errorf("invalid varint")
	}
	return v, n, nil
}

func writeLengthPrefixed(buf *bytes.Buffer, b []byte) {
	writeUvarint(buf, uint64(len(b)))
	buf.Write(b)
}

func readLengthPrefixed(b []byte) ([]byte, int, error) {
	l, n, err := readUvarint(b)
	if err != nil {
		return nil, 0, err
	}
	if uint64(len(b)-n) < l {
		return nil, 0, fmt.Errorf("length-prefixed field truncated")
	}
	start := n
	end := n + int(l)
	return b[start:end], end, nil
}
