// Package serialize encodes scan tickets so a host can plan a scan in
// one process and execute it in another. Tickets are MessagePack
// encoded and ZStandard compressed.
package serialize

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Ticket captures everything needed to resume a planned scan.
type Ticket struct {
	Project    string   `msgpack:"project"`
	Database   string   `msgpack:"database"`
	Collection string   `msgpack:"collection"`
	Columns    []string `msgpack:"columns,omitempty"`
	Filter     []byte   `msgpack:"filter,omitempty"`
	Limit      int64    `msgpack:"limit,omitempty"`
	BatchSize  int      `msgpack:"batch_size,omitempty"`
}

// EncodeTicket serializes and compresses a ticket.
func EncodeTicket(t *Ticket) ([]byte, error) {
	data, err := msgpack.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to encode ticket: %w", err)
	}

	c, err := NewCompressor()
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return c.Compress(data)
}

// DecodeTicket reverses EncodeTicket.
func DecodeTicket(data []byte) (*Ticket, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty ticket")
	}

	d, err := NewDecompressor()
	if err != nil {
		return nil, err
	}
	defer d.Close()

	raw, err := d.Decompress(data)
	if err != nil {
		return nil, err
	}

	var t Ticket
	if err := msgpack.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("failed to decode ticket: %w", err)
	}
	return &t, nil
}
