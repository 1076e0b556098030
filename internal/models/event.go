package models

import "ms-escrow/internal/keys"

// Bounds on the variable-length Event fields, matching the maximum record
// size the ledger will fund.
const (
	TitleMaxLen       = 50
	DescriptionMaxLen = 500
)

// Event is the decoded form of an event record. All fields are immutable
// after creation; only the account's lamport balance (the escrow) changes.
type Event struct {
	Organizer   keys.Address `json:"organizer"`
	EventID     uint64       `json:"event_id"`
	Price       uint64       `json:"price"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Bump        uint8        `json:"bump"`
}

// EventAddress returns the derived address an event record must live at.
func EventAddress(organizer keys.Address, eventID uint64) (keys.Address, uint8, error) {
	return keys.Derive(keys.SeedEvent, organizer.Bytes(), keys.Uint64LE(eventID))
}
