package models

import "ms-escrow/internal/keys"

// Mint is a token definition. Tickets mint exactly one unit each, so supply
// stays at 1 per paid admission.
type Mint struct {
	Authority keys.Address `json:"authority"`
	Supply    uint64       `json:"supply"`
}

// TokenAccount holds units of one mint for one owner.
type TokenAccount struct {
	Mint   keys.Address `json:"mint"`
	Owner  keys.Address `json:"owner"`
	Amount uint64       `json:"amount"`
}

// MintAuthorityAddress derives the signing authority the mint capability
// recognizes for a given mint.
func MintAuthorityAddress(mint keys.Address) (keys.Address, uint8, error) {
	return keys.Derive(keys.SeedMintAuthority, mint.Bytes())
}

// TokenAccountAddress derives the associated token account for (owner, mint).
func TokenAccountAddress(owner, mint keys.Address) (keys.Address, uint8, error) {
	return keys.Derive(keys.SeedTokenAccount, owner.Bytes(), mint.Bytes())
}
