package models

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/zeebo/blake3"

	"ms-escrow/internal/keys"
)

// Every record starts with an 8-byte discriminator identifying its kind, so
// raw account data can be decoded without an external index. Discriminators
// are the first 8 bytes of a hash over "account:<Kind>".
var (
	EventDiscriminator        = discriminator("Event")
	TicketDiscriminator       = discriminator("Ticket")
	MintDiscriminator         = discriminator("Mint")
	TokenAccountDiscriminator = discriminator("TokenAccount")
)

var ErrBadDiscriminator = errors.New("models: record discriminator mismatch")

func discriminator(kind string) [8]byte {
	sum := blake3.Sum256([]byte("account:" + kind))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

func (e *Event) Marshal() []byte {
	var buf bytes.Buffer
	buf.Write(EventDiscriminator[:])
	buf.Write(e.Organizer.Bytes())
	putU64(&buf, e.EventID)
	putU64(&buf, e.Price)
	putString(&buf, e.Title)
	putString(&buf, e.Description)
	buf.WriteByte(e.Bump)
	return buf.Bytes()
}

func UnmarshalEvent(data []byte) (*Event, error) {
	r, err := newReader(data, EventDiscriminator)
	if err != nil {
		return nil, err
	}
	var e Event
	e.Organizer = r.address()
	e.EventID = r.u64()
	e.Price = r.u64()
	e.Title = r.str()
	e.Description = r.str()
	e.Bump = r.byte()
	if r.err != nil {
		return nil, fmt.Errorf("models: decode event: %w", r.err)
	}
	return &e, nil
}

func (t *Ticket) Marshal() []byte {
	var buf bytes.Buffer
	buf.Write(TicketDiscriminator[:])
	buf.Write(t.Event.Bytes())
	buf.Write(t.Owner.Bytes())
	if t.Mint != nil {
		buf.WriteByte(1)
		buf.Write(t.Mint.Bytes())
	} else {
		buf.WriteByte(0)
	}
	if t.CheckedIn {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	buf.WriteByte(t.Bump)
	return buf.Bytes()
}

func UnmarshalTicket(data []byte) (*Ticket, error) {
	r, err := newReader(data, TicketDiscriminator)
	if err != nil {
		return nil, err
	}
	var t Ticket
	t.Event = r.address()
	t.Owner = r.address()
	if r.byte() == 1 {
		mint := r.address()
		t.Mint = &mint
	}
	t.CheckedIn = r.byte() == 1
	t.Bump = r.byte()
	if r.err != nil {
		return nil, fmt.Errorf("models: decode ticket: %w", r.err)
	}
	return &t, nil
}

func (m *Mint) Marshal() []byte {
	var buf bytes.Buffer
	buf.Write(MintDiscriminator[:])
	buf.Write(m.Authority.Bytes())
	putU64(&buf, m.Supply)
	return buf.Bytes()
}

func UnmarshalMint(data []byte) (*Mint, error) {
	r, err := newReader(data, MintDiscriminator)
	if err != nil {
		return nil, err
	}
	var m Mint
	m.Authority = r.address()
	m.Supply = r.u64()
	if r.err != nil {
		return nil, fmt.Errorf("models: decode mint: %w", r.err)
	}
	return &m, nil
}

func (t *TokenAccount) Marshal() []byte {
	var buf bytes.Buffer
	buf.Write(TokenAccountDiscriminator[:])
	buf.Write(t.Mint.Bytes())
	buf.Write(t.Owner.Bytes())
	putU64(&buf, t.Amount)
	return buf.Bytes()
}

func UnmarshalTokenAccount(data []byte) (*TokenAccount, error) {
	r, err := newReader(data, TokenAccountDiscriminator)
	if err != nil {
		return nil, err
	}
	var t TokenAccount
	t.Mint = r.address()
	t.Owner = r.address()
	t.Amount = r.u64()
	if r.err != nil {
		return nil, fmt.Errorf("models: decode token account: %w", r.err)
	}
	return &t, nil
}

func putU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func putString(buf *bytes.Buffer, s string) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(len(s)))
	buf.Write(b[:])
	buf.WriteString(s)
}

// reader folds short-read errors so decode paths stay linear.
type reader struct {
	data []byte
	pos  int
	err  error
}

func newReader(data []byte, want [8]byte) (*reader, error) {
	if len(data) < 8 || !bytes.Equal(data[:8], want[:]) {
		return nil, ErrBadDiscriminator
	}
	return &reader{data: data, pos: 8}, nil
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.pos+n > len(r.data) {
		r.err = errors.New("record truncated")
		return nil
	}
	out := r.data[r.pos : r.pos+n]
	r.pos += n
	return out
}

func (r *reader) address() keys.Address {
	var a keys.Address
	if b := r.take(32); b != nil {
		copy(a[:], b)
	}
	return a
}

func (r *reader) u64() uint64 {
	if b := r.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (r *reader) str() string {
	n := int(r.u32())
	if b := r.take(n); b != nil {
		return string(b)
	}
	return ""
}

func (r *reader) u32() uint32 {
	if b := r.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *reader) byte() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}
