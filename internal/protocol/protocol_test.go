package protocol_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/calvinalkan/kvs/internal/protocol"
)

func Test_RequestRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	enc := protocol.NewEncoder(&buf)

	want := protocol.Request{Op: protocol.OpSet, Key: "k", Value: "v"}

	if err := enc.EncodeRequest(want); err != nil {
		t.Fatalf("encode: %v", err)
	}

	dec := protocol.NewDecoder(&buf)

	got, err := dec.DecodeRequest()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func Test_StreamOfRequests(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	enc := protocol.NewEncoder(&buf)

	reqs := []protocol.Request{
		{Op: protocol.OpSet, Key: "a", Value: "1"},
		{Op: protocol.OpGet, Key: "a"},
		{Op: protocol.OpRemove, Key: "a"},
	}

	for _, r := range reqs {
		if err := enc.EncodeRequest(r); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}

	dec := protocol.NewDecoder(&buf)

	for i, want := range reqs {
		got, err := dec.DecodeRequest()
		if err != nil {
			t.Fatalf("decode #%d: %v", i, err)
		}

		if got != want {
			t.Fatalf("decode #%d = %+v, want %+v", i, got, want)
		}
	}

	_, err := dec.DecodeRequest()
	if !errors.Is(err, io.EOF) {
		t.Fatalf("final decode err = %v, want io.EOF", err)
	}
}

func Test_ResponseVariants(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	enc := protocol.NewEncoder(&buf)

	resps := []protocol.Response{
		protocol.OkEmpty(),
		protocol.OkValue("v1", true),
		protocol.OkValue("", false),
		protocol.Err("key not found"),
	}

	for _, r := range resps {
		if err := enc.EncodeResponse(r); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}

	dec := protocol.NewDecoder(&buf)

	for i, want := range resps {
		got, err := dec.DecodeResponse()
		if err != nil {
			t.Fatalf("decode #%d: %v", i, err)
		}

		if got != want {
			t.Fatalf("decode #%d = %+v, want %+v", i, got, want)
		}
	}
}
