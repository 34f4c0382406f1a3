// Package record defines the on-disk log record format and its BSON codec.
//
// A record is a tagged variant: either a Set carrying a key and a value, or a
// Remove carrying only a key. Records are encoded with BSON, whose documents
// are self-length-prefixed (the first four bytes of any BSON document are its
// own little-endian length), which makes a concatenation of records
// self-delimiting: a reader never needs an out-of-band length or separator to
// know where one record ends and the next begins.
package record

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Kind discriminates the record variant.
type Kind uint8

const (
	// KindSet tags a record that sets key to value.
	KindSet Kind = 1
	// KindRemove tags a record that removes key.
	KindRemove Kind = 2
)

// ErrDecode reports a record that could not be decoded: a truncated or
// corrupt document, or a document whose Kind field is not recognized.
// Callers should use errors.Is(err, ErrDecode).
var ErrDecode = errors.New("record: decode")

// maxRecordSize bounds a single record's encoded size, guarding against
// allocating an arbitrarily large buffer from a garbled length prefix before
// ReadFull has a chance to fail on a truncated or corrupt record.
const maxRecordSize = 16 << 20 // 16 MiB

// Record is the wire/disk shape of a single log entry. Value is empty and
// ignored for Remove records.
type Record struct {
	Kind  Kind   `bson:"kind"`
	Key   string `bson:"key"`
	Value string `bson:"value,omitempty"`
}

// Set builds a Set record.
func Set(key, value string) Record {
	return Record{Kind: KindSet, Key: key, Value: value}
}

// Remove builds a Remove record.
func Remove(key string) Record {
	return Record{Kind: KindRemove, Key: key}
}

// Encode marshals r to its BSON document bytes.
func Encode(r Record) ([]byte, error) {
	buf, err := bson.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("record: encode: %w", err)
	}

	return buf, nil
}

// WriteTo appends the encoded form of r to w.
func WriteTo(w io.Writer, r Record) (int, error) {
	buf, err := Encode(r)
	if err != nil {
		return 0, err
	}

	n, err := w.Write(buf)
	if err != nil {
		return n, fmt.Errorf("record: write: %w", err)
	}

	return n, nil
}

// Decoder reads a stream of concatenated BSON records from an underlying
// reader, one at a time.
type Decoder struct {
	r io.Reader
}

// NewDecoder returns a Decoder reading records from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Decode reads and decodes the next record.
//
// It returns io.EOF, unwrapped, when the stream ends exactly on a record
// boundary (no bytes of a new record were read). Any other failure — a short
// read inside the length prefix or body, or a document whose Kind is
// unrecognized — is reported wrapped in ErrDecode, distinguishing a genuine
// end-of-stream from a truncated or corrupt tail.
func (d *Decoder) Decode() (Record, error) {
	var lenBuf [4]byte

	_, err := io.ReadFull(d.r, lenBuf[:])
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}

		return Record{}, fmt.Errorf("record: read length: %w: %w", ErrDecode, err)
	}

	docLen := int32(binary.LittleEndian.Uint32(lenBuf[:]))
	if docLen < 5 || docLen > maxRecordSize {
		return Record{}, fmt.Errorf("record: implausible document length %d: %w", docLen, ErrDecode)
	}

	body := make([]byte, docLen)
	copy(body, lenBuf[:])

	_, err = io.ReadFull(d.r, body[4:])
	if err != nil {
		return Record{}, fmt.Errorf("record: read body: %w: %w", ErrDecode, err)
	}

	var rec Record

	err = bson.Unmarshal(body, &rec)
	if err != nil {
		return Record{}, fmt.Errorf("record: unmarshal: %w: %w", ErrDecode, err)
	}

	if rec.Kind != KindSet && rec.Kind != KindRemove {
		return Record{}, fmt.Errorf("record: unknown kind %d: %w", rec.Kind, ErrDecode)
	}

	return rec, nil
}

// DecodeAt decodes exactly one record starting at the current position of r
// and reports the number of bytes consumed. It is used by the log engine's
// Get path, which seeks to a remembered offset and decodes a single record.
func DecodeAt(r io.Reader) (Record, int, error) {
	var counted countingReader

	counted.r = r

	rec, err := NewDecoder(&counted).Decode()

	return rec, counted.n, err
}

type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n

	return n, err
}
