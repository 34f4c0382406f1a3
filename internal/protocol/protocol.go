// Package protocol defines the wire types exchanged between kvs-client and
// the server, and streaming encoders/decoders for them. Messages are
// self-delimiting JSON values written back to back on the same connection,
// decoded with github.com/goccy/go-json's streaming Decoder.
package protocol

import (
	"fmt"
	"io"

	json "github.com/goccy/go-json"
)

// Op identifies the requested operation.
type Op string

const (
	OpSet    Op = "set"
	OpGet    Op = "get"
	OpRemove Op = "remove"
)

// Request is one client call.
type Request struct {
	Op    Op     `json:"op"`
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// Status reports how a Request completed.
type Status string

const (
	StatusOk  Status = "ok"
	StatusErr Status = "err"
)

// Response is the server's reply to one Request. Value is populated only
// for a successful Get that found the key; Found distinguishes a Get miss
// (Status ok, Found false) from a Get hit with an empty string value.
type Response struct {
	Status Status `json:"status"`
	Value  string `json:"value,omitempty"`
	Found  bool   `json:"found,omitempty"`
	Error  string `json:"error,omitempty"`
}

// OkEmpty builds the response for a successful Set or Remove.
func OkEmpty() Response {
	return Response{Status: StatusOk}
}

// OkValue builds the response for a successful Get, found or not.
func OkValue(value string, found bool) Response {
	return Response{Status: StatusOk, Value: value, Found: found}
}

// Err builds an error response carrying msg.
func Err(msg string) Response {
	return Response{Status: StatusErr, Error: msg}
}

// Encoder writes back-to-back JSON values to an underlying writer.
type Encoder struct {
	enc *json.Encoder
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: json.NewEncoder(w)}
}

// EncodeRequest writes req.
func (e *Encoder) EncodeRequest(req Request) error {
	if err := e.enc.Encode(req); err != nil {
		return fmt.Errorf("protocol: encode request: %w", err)
	}

	return nil
}

// EncodeResponse writes resp.
func (e *Encoder) EncodeResponse(resp Response) error {
	if err := e.enc.Encode(resp); err != nil {
		return fmt.Errorf("protocol: encode response: %w", err)
	}

	return nil
}

// Decoder reads back-to-back JSON values from an underlying reader.
type Decoder struct {
	dec *json.Decoder
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: json.NewDecoder(r)}
}

// DecodeRequest reads the next Request. It returns io.EOF, unwrapped, when
// the underlying stream ends cleanly between messages.
func (d *Decoder) DecodeRequest() (Request, error) {
	var req Request

	err := d.dec.Decode(&req)
	if err != nil {
		if err == io.EOF {
			return Request{}, io.EOF
		}

		return Request{}, fmt.Errorf("protocol: decode request: %w", err)
	}

	return req, nil
}

// DecodeResponse reads the next Response.
func (d *Decoder) DecodeResponse() (Response, error) {
	var resp Response

	err := d.dec.Decode(&resp)
	if err != nil {
		if err == io.EOF {
			return Response{}, io.EOF
		}

		return Response{}, fmt.Errorf("protocol: decode response: %w", err)
	}

	return resp, nil
}
