package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/zeebo/blake3"
)

// Namespace tags for every derived address the service uses.
const (
	SeedEvent         = "event"
	SeedTicket        = "ticket"
	SeedMintAuthority = "mint_auth"
	SeedTokenAccount  = "ata"
)

// derivedMarker domain-separates derived addresses from any other use of the
// same hash function.
const derivedMarker = "escrow:derived"

var ErrBumpExhausted = errors.New("keys: bump space exhausted for seed tuple")

// Address is a 32-byte account address. Identity addresses are ed25519 public
// keys; derived addresses are hash outputs that are guaranteed not to be valid
// curve points, so the two spaces never overlap.
type Address [32]byte

func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

func (a Address) Bytes() []byte {
	return a[:]
}

func (a Address) IsZero() bool {
	return a == Address{}
}

// MarshalText renders the hex form, so addresses appear as strings in JSON.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Parse decodes the hex form produced by Address.String.
func Parse(s string) (Address, error) {
	var a Address
	raw, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("keys: invalid address %q: %w", s, err)
	}
	if len(raw) != len(a) {
		return a, fmt.Errorf("keys: invalid address length %d", len(raw))
	}
	copy(a[:], raw)
	return a, nil
}

// Keypair is an identity (signing) key. Only the public half ever appears on
// the ledger.
type Keypair struct {
	Public  Address
	private ed25519.PrivateKey
}

func NewKeypair() (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("keys: generate keypair: %w", err)
	}
	var addr Address
	copy(addr[:], pub)
	return &Keypair{Public: addr, private: priv}, nil
}

func (k *Keypair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.private, msg)
}

// IsOnCurve reports whether the address is a valid edwards25519 point
// encoding, i.e. whether it could be an identity public key.
func IsOnCurve(a Address) bool {
	_, err := new(edwards25519.Point).SetBytes(a[:])
	return err == nil
}

// Derive maps a namespace tag plus ordered seed material to a deterministic
// address and its bump. The bump is searched from 255 downward until the
// candidate hash falls off the ed25519 curve, which keeps derived addresses
// disjoint from identity addresses.
func Derive(tag string, seeds ...[]byte) (Address, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		addr := deriveCandidate(tag, uint8(bump), seeds)
		if !IsOnCurve(addr) {
			return addr, uint8(bump), nil
		}
	}
	return Address{}, 0, ErrBumpExhausted
}

// DeriveWithBump recomputes the address for a stored bump, for verifying that
// a supplied account sits at its claimed derivation.
func DeriveWithBump(tag string, bump uint8, seeds ...[]byte) (Address, error) {
	addr := deriveCandidate(tag, bump, seeds)
	if IsOnCurve(addr) {
		return Address{}, fmt.Errorf("keys: bump %d yields an on-curve address for tag %q", bump, tag)
	}
	return addr, nil
}

func deriveCandidate(tag string, bump uint8, seeds [][]byte) Address {
	h := blake3.New()
	h.Write([]byte(tag))
	for _, seed := range seeds {
		h.Write(seed)
	}
	h.Write([]byte{bump})
	h.Write([]byte(derivedMarker))

	var addr Address
	copy(addr[:], h.Sum(nil))
	return addr
}

// Uint64LE serializes a u64 as 8 little-endian bytes for seed material.
func Uint64LE(v uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return buf
}
