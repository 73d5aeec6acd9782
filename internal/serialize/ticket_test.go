package serialize

import (
	"bytes"
	"testing"
)

func TestTicketRoundTrip(t *testing.T) {
	in := &Ticket{
		Project:    "p1",
		Database:   "(default)",
		Collection: "users",
		Columns:    []string{"__document_id", "age"},
		Filter:     []byte(`{"filters": []}`),
		Limit:      50,
		BatchSize:  1024,
	}

	data, err := EncodeTicket(in)
	if err != nil {
		t.Fatalf("EncodeTicket() error: %v", err)
	}

	out, err := DecodeTicket(data)
	if err != nil {
		t.Fatalf("DecodeTicket() error: %v", err)
	}
	if out.Collection != in.Collection || out.Limit != in.Limit || out.BatchSize != in.BatchSize {
		t.Errorf("decoded = %+v", out)
	}
	if len(out.Columns) != 2 || out.Columns[1] != "age" {
		t.Errorf("columns = %v", out.Columns)
	}
	if !bytes.Equal(out.Filter, in.Filter) {
		t.Errorf("filter = %q", out.Filter)
	}
}

func TestDecodeTicketRejectsGarbage(t *testing.T) {
	if _, err := DecodeTicket(nil); err == nil {
		t.Error("empty ticket must fail")
	}
	if _, err := DecodeTicket([]byte("not zstd")); err == nil {
		t.Error("malformed ticket must fail")
	}
}

func TestCompressRoundTrip(t *testing.T) {
	c, err := NewCompressor()
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	d, err := NewDecompressor()
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	payload := bytes.Repeat([]byte("firestore"), 1000)
	packed, err := c.Compress(payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(packed) >= len(payload) {
		t.Errorf("repetitive payload did not shrink: %d >= %d", len(packed), len(payload))
	}
	unpacked, err := d.Decompress(packed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(unpacked, payload) {
		t.Error("round trip mismatch")
	}
}
