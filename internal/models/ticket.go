package models

import "ms-escrow/internal/keys"

// Ticket is the decoded form of a ticket record. Mint is nil on the free
// admission path and set exactly once on the paid path; once set it is never
// cleared. CheckedIn transitions false to true exactly once.
type Ticket struct {
	Event     keys.Address  `json:"event"`
	Owner     keys.Address  `json:"owner"`
	Mint      *keys.Address `json:"mint,omitempty"`
	CheckedIn bool          `json:"checked_in"`
	Bump      uint8         `json:"bump"`
}

// TicketAddress returns the derived address for an (event, owner) pair. One
// ticket per pair is enforced by the arena's insert-if-absent on this
// address.
func TicketAddress(event, owner keys.Address) (keys.Address, uint8, error) {
	return keys.Derive(keys.SeedTicket, event.Bytes(), owner.Bytes())
}
