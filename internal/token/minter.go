package token

import (
	"context"
	"errors"
	"fmt"

	"ms-escrow/internal/keys"
	"ms-escrow/internal/ledger"
	"ms-escrow/internal/models"
)

var (
	// ErrInvalidMint is returned when a supplied address does not hold a
	// mint record.
	ErrInvalidMint = errors.New("account is not a mint")

	// ErrInvalidMintAuthority is returned when a mint instruction carries an
	// authority the mint does not recognize.
	ErrInvalidMintAuthority = errors.New("mint authority mismatch")

	// ErrMintInUse is returned when an admission names a mint that has
	// already minted. Each ticket needs a fresh mint so the unit it receives
	// is the mint's entire supply.
	ErrMintInUse = errors.New("mint supply is not zero")
)

// Minter is the token-mint capability the escrow service consumes: create a
// mint under a given authority, and mint units into a token account. It takes
// the transaction-scoped ledger so minting joins the caller's atomic unit.
type Minter interface {
	CreateMint(ctx context.Context, db *ledger.DB, payer, mint, authority keys.Address) error
	MintTo(ctx context.Context, db *ledger.DB, mint, authority, dest keys.Address, amount uint64) error
	EnsureTokenAccount(ctx context.Context, db *ledger.DB, payer, owner, mint keys.Address) (keys.Address, error)
}

// LedgerMinter persists mints and token accounts as records in the same
// account arena the escrow records live in.
type LedgerMinter struct{}

func NewLedgerMinter() *LedgerMinter {
	return &LedgerMinter{}
}

// CreateMint allocates a mint account with zero supply at mint under the
// given authority, rent funded by payer. The mint address is caller-supplied
// because its authority is usually derived from it.
func (m *LedgerMinter) CreateMint(ctx context.Context, db *ledger.DB, payer, mint, authority keys.Address) error {
	data := (&models.Mint{Authority: authority}).Marshal()
	rent := ledger.MinimumBalance(len(data))
	if err := db.Debit(ctx, payer, rent, 0); err != nil {
		return fmt.Errorf("fund mint account: %w", err)
	}
	return db.CreateAccount(ctx, mint, models.KindMint, rent, data)
}

// EnsureTokenAccount returns the associated token account for (owner, mint),
// creating it with a zero balance when it does not exist yet.
func (m *LedgerMinter) EnsureTokenAccount(ctx context.Context, db *ledger.DB, payer, owner, mint keys.Address) (keys.Address, error) {
	addr, _, err := models.TokenAccountAddress(owner, mint)
	if err != nil {
		return keys.Address{}, err
	}
	if _, err := db.GetAccount(ctx, addr); err == nil {
		return addr, nil
	} else if !errors.Is(err, ledger.ErrAccountNotFound) {
		return keys.Address{}, err
	}

	data := (&models.TokenAccount{Mint: mint, Owner: owner}).Marshal()
	rent := ledger.MinimumBalance(len(data))
	if err := db.Debit(ctx, payer, rent, 0); err != nil {
		return keys.Address{}, fmt.Errorf("fund token account: %w", err)
	}
	if err := db.CreateAccount(ctx, addr, models.KindTokenAccount, rent, data); err != nil {
		return keys.Address{}, err
	}
	return addr, nil
}

// MintTo mints amount units of mint into dest. The authority must match the
// one the mint was created with.
func (m *LedgerMinter) MintTo(ctx context.Context, db *ledger.DB, mint, authority, dest keys.Address, amount uint64) error {
	mintAcct, err := db.GetAccount(ctx, mint)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return ErrInvalidMint
		}
		return err
	}
	mintRec, err := models.UnmarshalMint(mintAcct.Data)
	if err != nil {
		return ErrInvalidMint
	}
	if mintRec.Authority != authority {
		return ErrInvalidMintAuthority
	}

	destAcct, err := db.GetAccount(ctx, dest)
	if err != nil {
		return err
	}
	destRec, err := models.UnmarshalTokenAccount(destAcct.Data)
	if err != nil {
		return fmt.Errorf("destination is not a token account: %w", err)
	}
	if destRec.Mint != mint {
		return fmt.Errorf("token account belongs to a different mint")
	}

	if mintRec.Supply, err = ledger.CheckedAdd(mintRec.Supply, amount); err != nil {
		return err
	}
	if destRec.Amount, err = ledger.CheckedAdd(destRec.Amount, amount); err != nil {
		return err
	}

	if err := db.UpdateData(ctx, mint, mintRec.Marshal()); err != nil {
		return err
	}
	return db.UpdateData(ctx, dest, destRec.Marshal())
}

// GetMint decodes the mint record at addr.
func GetMint(ctx context.Context, db *ledger.DB, addr keys.Address) (*models.Mint, error) {
	acct, err := db.GetAccount(ctx, addr)
	if err != nil {
		return nil, err
	}
	rec, err := models.UnmarshalMint(acct.Data)
	if err != nil {
		return nil, ErrInvalidMint
	}
	return rec, nil
}

// GetTokenAccount decodes the token account record at addr.
func GetTokenAccount(ctx context.Context, db *ledger.DB, addr keys.Address) (*models.TokenAccount, error) {
	acct, err := db.GetAccount(ctx, addr)
	if err != nil {
		return nil, err
	}
	return models.UnmarshalTokenAccount(acct.Data)
}
