package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Record kinds stored in the account arena. System accounts are plain
// balance holders (identity wallets); every other kind carries an encoded
// record in Data.
const (
	KindSystem       = "system"
	KindEvent        = "event"
	KindTicket       = "ticket"
	KindMint         = "mint"
	KindTokenAccount = "token"
)

// Account is one row of the ledger's account arena. The address is the
// primary key, which is what makes creation an atomic insert-if-absent.
type Account struct {
	bun.BaseModel `bun:"table:accounts"`

	Address   string    `bun:"address,pk"`
	Kind      string    `bun:"kind,notnull"`
	Lamports  uint64    `bun:"lamports,notnull"`
	Data      []byte    `bun:"data"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}
