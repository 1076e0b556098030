package ledger

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"ms-escrow/internal/keys"
	"ms-escrow/internal/models"
)

// DB is the account arena: every event, ticket, mint, token account and
// wallet lives as one row keyed by its address. Uniqueness of derived
// addresses is the only mutual-exclusion mechanism the service relies on, so
// creation must be an atomic insert-if-absent.
type DB struct {
	bun bun.IDB
}

func New(db *bun.DB) *DB {
	return &DB{bun: db}
}

// Init creates the accounts table. Schema comes straight from the model, the
// same way the test setup provisions it.
func (d *DB) Init(ctx context.Context) error {
	_, err := d.bun.NewCreateTable().
		Model((*models.Account)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

// Reset drops and recreates the accounts table. Test helper.
func (d *DB) Reset(ctx context.Context) error {
	db, ok := d.bun.(*bun.DB)
	if !ok {
		return errors.New("ledger: reset inside a transaction")
	}
	return db.ResetModel(ctx, (*models.Account)(nil))
}

// RunInTx executes fn against a transaction-scoped ledger. Every
// state-transition operation of the service runs through here so its whole
// effect set commits or rolls back as one unit.
func (d *DB) RunInTx(ctx context.Context, fn func(ctx context.Context, tx *DB) error) error {
	db, ok := d.bun.(*bun.DB)
	if !ok {
		// Already inside a transaction; nesting joins it.
		return fn(ctx, d)
	}
	return db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &DB{bun: tx})
	})
}

func (d *DB) GetAccount(ctx context.Context, addr keys.Address) (*models.Account, error) {
	var acct models.Account
	err := d.bun.NewSelect().
		Model(&acct).
		Where("address = ?", addr.String()).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

// CreateAccount allocates a record at addr funded with lamports. A second
// creation at the same address fails with ErrAlreadyInitialized; it never
// overwrites.
func (d *DB) CreateAccount(ctx context.Context, addr keys.Address, kind string, lamports uint64, data []byte) error {
	exists, err := d.bun.NewSelect().
		Model((*models.Account)(nil)).
		Where("address = ?", addr.String()).
		Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return ErrAlreadyInitialized
	}

	acct := models.Account{
		Address:   addr.String(),
		Kind:      kind,
		Lamports:  lamports,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
	_, err = d.bun.NewInsert().Model(&acct).Exec(ctx)
	if isUniqueViolation(err) {
		return ErrAlreadyInitialized
	}
	return err
}

// UpdateData rewrites an account's record bytes, leaving the balance alone.
func (d *DB) UpdateData(ctx context.Context, addr keys.Address, data []byte) error {
	res, err := d.bun.NewUpdate().
		Model((*models.Account)(nil)).
		Set("data = ?", data).
		Where("address = ?", addr.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Credit adds lamports to addr, creating a system account when none exists
// yet (a plain wallet receiving its first transfer). The increment happens
// in SQL so concurrent credits to the same row never lose an update.
func (d *DB) Credit(ctx context.Context, addr keys.Address, amount uint64) error {
	res, err := d.bun.NewUpdate().
		Model((*models.Account)(nil)).
		Set("lamports = lamports + ?", amount).
		Where("address = ?", addr.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n > 0 {
		return nil
	}

	err = d.CreateAccount(ctx, addr, models.KindSystem, amount, nil)
	if !errors.Is(err, ErrAlreadyInitialized) {
		return err
	}

	// Lost the creation race; the row exists now, so increment it.
	res, err = d.bun.NewUpdate().
		Model((*models.Account)(nil)).
		Set("lamports = lamports + ?", amount).
		Where("address = ?", addr.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Debit removes lamports from addr while keeping at least floor behind. The
// balance check and decrement are one guarded SQL statement, so two
// concurrent debits can never both spend the same lamports. A wallet with no
// account cannot afford anything, so it fails exactly like an underfunded
// one.
func (d *DB) Debit(ctx context.Context, addr keys.Address, amount, floor uint64) error {
	need, err := CheckedAdd(amount, floor)
	if err != nil {
		return err
	}

	res, err := d.bun.NewUpdate().
		Model((*models.Account)(nil)).
		Set("lamports = lamports - ?", amount).
		Where("address = ?", addr.String()).
		Where("lamports >= ?", need).
		Exec(ctx)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

// Transfer moves lamports between two accounts, keeping at least floor in
// the source.
func (d *DB) Transfer(ctx context.Context, from, to keys.Address, amount, floor uint64) error {
	if err := d.Debit(ctx, from, amount, floor); err != nil {
		return err
	}
	return d.Credit(ctx, to, amount)
}

// Airdrop deposits lamports from outside the ledger. This is the faucet used
// on dev deployments and in tests; it also models an external transfer into
// an escrow address.
func (d *DB) Airdrop(ctx context.Context, addr keys.Address, amount uint64) error {
	return d.Credit(ctx, addr, amount)
}

// ListByKind returns all accounts of one record kind, newest first.
func (d *DB) ListByKind(ctx context.Context, kind string) ([]models.Account, error) {
	var accts []models.Account
	err := d.bun.NewSelect().
		Model(&accts).
		Where("kind = ?", kind).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return accts, nil
}

// CheckedAdd is u64 addition that fails instead of wrapping.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrArithmeticOverflow
	}
	return sum, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // sqlite
		strings.Contains(msg, "duplicate key value") // postgres
}
