package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-escrow/internal/keys"
	"ms-escrow/internal/ledger"
	"ms-escrow/internal/logger"
	"ms-escrow/internal/models"
	"ms-escrow/internal/token"
)

// Service implements the five state-transition operations over the account
// arena. Every operation runs inside one ledger transaction: all of its
// mutations commit or none do.
type Service struct {
	Ledger    *ledger.DB
	Minter    token.Minter
	Publisher Publisher
	Logger    *logger.Logger
}

func NewService(db *ledger.DB, minter token.Minter, publisher Publisher, log *logger.Logger) *Service {
	return &Service{Ledger: db, Minter: minter, Publisher: publisher, Logger: log}
}

// EventSummary pairs a decoded event with its address and escrow balance.
type EventSummary struct {
	Address keys.Address  `json:"address"`
	Event   *models.Event `json:"event"`
	Balance uint64        `json:"balance"`
}

// CreateEvent registers a new event owned by organizer. The record lives at
// derive("event", organizer, eventID); a second registration for the same
// pair fails with ErrAlreadyInitialized and leaves the first untouched.
func (s *Service) CreateEvent(ctx context.Context, organizer keys.Address, eventID, price uint64, title, description string) (keys.Address, *models.Event, error) {
	if len(title) > models.TitleMaxLen || len(description) > models.DescriptionMaxLen {
		return keys.Address{}, nil, ErrRecordTooLarge
	}

	addr, bump, err := models.EventAddress(organizer, eventID)
	if err != nil {
		return keys.Address{}, nil, err
	}
	event := &models.Event{
		Organizer:   organizer,
		EventID:     eventID,
		Price:       price,
		Title:       title,
		Description: description,
		Bump:        bump,
	}
	data := event.Marshal()
	rent := ledger.MinimumBalance(len(data))

	err = s.Ledger.RunInTx(ctx, func(ctx context.Context, tx *ledger.DB) error {
		if _, err := tx.GetAccount(ctx, addr); err == nil {
			return ledger.ErrAlreadyInitialized
		} else if !errors.Is(err, ledger.ErrAccountNotFound) {
			return err
		}
		if err := tx.Debit(ctx, organizer, rent, 0); err != nil {
			return fmt.Errorf("fund event account: %w", err)
		}
		return tx.CreateAccount(ctx, addr, models.KindEvent, rent, data)
	})
	if err != nil {
		return keys.Address{}, nil, err
	}

	s.logOperation("CREATE_EVENT", fmt.Sprintf("event %s id=%d price=%d", addr, eventID, price))
	s.publish(func(p Publisher) error {
		return p.PublishEventCreated(EventCreated{
			Event:     addr.String(),
			Organizer: organizer.String(),
			EventID:   eventID,
		})
	})
	return addr, event, nil
}

// CreateTicket is the free/pre-registration path: it allocates a ticket for
// (event, owner) with no mint attached and no payment taken. The signer pays
// the record's rent.
func (s *Service) CreateTicket(ctx context.Context, signer, eventAddr, owner keys.Address) (keys.Address, *models.Ticket, error) {
	var (
		ticketAddr keys.Address
		ticket     *models.Ticket
	)
	err := s.Ledger.RunInTx(ctx, func(ctx context.Context, tx *ledger.DB) error {
		if _, _, err := s.loadEvent(ctx, tx, eventAddr); err != nil {
			return err
		}

		addr, bump, err := models.TicketAddress(eventAddr, owner)
		if err != nil {
			return err
		}
		ticketAddr = addr
		ticket = &models.Ticket{Event: eventAddr, Owner: owner, Bump: bump}

		data := ticket.Marshal()
		rent := ledger.MinimumBalance(len(data))
		if err := tx.Debit(ctx, signer, rent, 0); err != nil {
			return fmt.Errorf("fund ticket account: %w", err)
		}
		return tx.CreateAccount(ctx, addr, models.KindTicket, rent, data)
	})
	if err != nil {
		return keys.Address{}, nil, err
	}

	s.logOperation("CREATE_TICKET", fmt.Sprintf("ticket %s event %s", ticketAddr, eventAddr))
	s.publish(func(p Publisher) error {
		return p.PublishTicketCreated(TicketCreated{
			Ticket: ticketAddr.String(),
			Event:  eventAddr.String(),
			Owner:  owner.String(),
		})
	})
	return ticketAddr, ticket, nil
}

// PrepareMint creates a fresh mint whose authority is the derived
// mint-authority address, ready to be attached to a paid admission.
func (s *Service) PrepareMint(ctx context.Context, payer keys.Address) (keys.Address, error) {
	kp, err := keys.NewKeypair()
	if err != nil {
		return keys.Address{}, err
	}
	mint := kp.Public
	authority, _, err := models.MintAuthorityAddress(mint)
	if err != nil {
		return keys.Address{}, err
	}
	err = s.Ledger.RunInTx(ctx, func(ctx context.Context, tx *ledger.DB) error {
		return s.Minter.CreateMint(ctx, tx, payer, mint, authority)
	})
	if err != nil {
		return keys.Address{}, err
	}
	return mint, nil
}

// JoinEvent is the paid admission path. In one atomic unit it debits the
// event's price from the signer into the escrow, mints exactly one unit of
// mint into the signer's token account, and creates the ticket. The mint
// must be fresh (zero supply): the minted unit is the mint's whole supply,
// which is what makes the ticket's token non-fungible. A ticket already
// existing for (event, signer) rejects the whole operation: no second
// payment, no second mint.
func (s *Service) JoinEvent(ctx context.Context, signer, eventAddr, mint keys.Address) (keys.Address, *models.Ticket, error) {
	var (
		ticketAddr keys.Address
		ticket     *models.Ticket
	)
	err := s.Ledger.RunInTx(ctx, func(ctx context.Context, tx *ledger.DB) error {
		_, event, err := s.loadEvent(ctx, tx, eventAddr)
		if err != nil {
			return err
		}

		addr, bump, err := models.TicketAddress(eventAddr, signer)
		if err != nil {
			return err
		}
		if _, err := tx.GetAccount(ctx, addr); err == nil {
			return ledger.ErrAlreadyInitialized
		} else if !errors.Is(err, ledger.ErrAccountNotFound) {
			return err
		}

		authority, _, err := models.MintAuthorityAddress(mint)
		if err != nil {
			return err
		}
		mintRec, err := token.GetMint(ctx, tx, mint)
		if err != nil {
			return err
		}
		if mintRec.Authority != authority {
			return token.ErrInvalidMintAuthority
		}
		if mintRec.Supply != 0 {
			return token.ErrMintInUse
		}

		dest, err := s.Minter.EnsureTokenAccount(ctx, tx, signer, signer, mint)
		if err != nil {
			return err
		}

		if event.Price > 0 {
			if err := tx.Transfer(ctx, signer, eventAddr, event.Price, 0); err != nil {
				return fmt.Errorf("pay admission: %w", err)
			}
		}

		if err := s.Minter.MintTo(ctx, tx, mint, authority, dest, 1); err != nil {
			return err
		}

		ticketAddr = addr
		ticket = &models.Ticket{Event: eventAddr, Owner: signer, Mint: &mint, Bump: bump}
		data := ticket.Marshal()
		rent := ledger.MinimumBalance(len(data))
		if err := tx.Debit(ctx, signer, rent, 0); err != nil {
			return fmt.Errorf("fund ticket account: %w", err)
		}
		return tx.CreateAccount(ctx, addr, models.KindTicket, rent, data)
	})
	if err != nil {
		return keys.Address{}, nil, err
	}

	s.logOperation("JOIN_EVENT", fmt.Sprintf("attendee %s event %s", signer, eventAddr))
	s.publish(func(p Publisher) error {
		return p.PublishJoinedEvent(JoinedEvent{
			Event:    eventAddr.String(),
			Attendee: signer.String(),
		})
	})
	return ticketAddr, ticket, nil
}

// CheckIn flips a ticket's checked_in flag, once. Only the event organizer
// may do it, and only against the event the ticket was issued for.
func (s *Service) CheckIn(ctx context.Context, signer, eventAddr, ticketAddr keys.Address) error {
	err := s.Ledger.RunInTx(ctx, func(ctx context.Context, tx *ledger.DB) error {
		_, event, err := s.loadEvent(ctx, tx, eventAddr)
		if err != nil {
			return err
		}
		if event.Organizer != signer {
			return ErrUnauthorizedSigner
		}

		acct, err := tx.GetAccount(ctx, ticketAddr)
		if err != nil {
			if errors.Is(err, ledger.ErrAccountNotFound) {
				return ErrInvalidEventReference
			}
			return err
		}
		ticket, err := models.UnmarshalTicket(acct.Data)
		if err != nil {
			return ErrInvalidEventReference
		}
		if ticket.Event != eventAddr {
			return ErrInvalidEventReference
		}
		if ticket.CheckedIn {
			return ErrAlreadyCheckedIn
		}

		ticket.CheckedIn = true
		return tx.UpdateData(ctx, ticketAddr, ticket.Marshal())
	})
	if err != nil {
		return err
	}

	s.logOperation("CHECK_IN", fmt.Sprintf("ticket %s event %s", ticketAddr, eventAddr))
	s.publish(func(p Publisher) error {
		return p.PublishCheckedIn(CheckedIn{
			Ticket: ticketAddr.String(),
			At:     time.Now().Unix(),
		})
	})
	return nil
}

// Withdraw moves collected admission fees from the event's escrow to the
// organizer. The transferred value is min(amount, available) where available
// is the balance above the rent floor; the floor itself can never be
// touched. An empty escrow fails with ErrInsufficientFunds.
func (s *Service) Withdraw(ctx context.Context, signer, eventAddr keys.Address, amount uint64) (uint64, error) {
	var withdrawn uint64
	err := s.Ledger.RunInTx(ctx, func(ctx context.Context, tx *ledger.DB) error {
		acct, event, err := s.loadEvent(ctx, tx, eventAddr)
		if err != nil {
			return err
		}
		if event.Organizer != signer {
			return ErrUnauthorizedSigner
		}

		rent := ledger.MinimumBalance(len(acct.Data))
		if acct.Lamports <= rent {
			return ledger.ErrInsufficientFunds
		}
		available := acct.Lamports - rent

		withdrawn = amount
		if withdrawn > available {
			withdrawn = available
		}
		return tx.Transfer(ctx, eventAddr, signer, withdrawn, rent)
	})
	if err != nil {
		return 0, err
	}

	s.logOperation("WITHDRAW", fmt.Sprintf("event %s amount %d", eventAddr, withdrawn))
	s.publish(func(p Publisher) error {
		return p.PublishWithdrawn(Withdrawn{
			Event:  eventAddr.String(),
			To:     signer.String(),
			Amount: withdrawn,
		})
	})
	return withdrawn, nil
}

// GetEvent returns the decoded event at addr together with its escrow
// balance.
func (s *Service) GetEvent(ctx context.Context, addr keys.Address) (*EventSummary, error) {
	var summary *EventSummary
	err := s.Ledger.RunInTx(ctx, func(ctx context.Context, tx *ledger.DB) error {
		acct, event, err := s.loadEvent(ctx, tx, addr)
		if err != nil {
			return err
		}
		summary = &EventSummary{Address: addr, Event: event, Balance: acct.Lamports}
		return nil
	})
	return summary, err
}

// GetTicket returns the decoded ticket at addr.
func (s *Service) GetTicket(ctx context.Context, addr keys.Address) (*models.Ticket, error) {
	acct, err := s.Ledger.GetAccount(ctx, addr)
	if err != nil {
		return nil, err
	}
	ticket, err := models.UnmarshalTicket(acct.Data)
	if err != nil {
		return nil, ErrInvalidEventReference
	}
	return ticket, nil
}

// ListEventsByOrganizer scans event records and keeps those owned by
// organizer.
func (s *Service) ListEventsByOrganizer(ctx context.Context, organizer keys.Address) ([]EventSummary, error) {
	accts, err := s.Ledger.ListByKind(ctx, models.KindEvent)
	if err != nil {
		return nil, err
	}
	summaries := []EventSummary{}
	for _, acct := range accts {
		event, err := models.UnmarshalEvent(acct.Data)
		if err != nil {
			continue
		}
		if event.Organizer != organizer {
			continue
		}
		addr, err := keys.Parse(acct.Address)
		if err != nil {
			continue
		}
		summaries = append(summaries, EventSummary{Address: addr, Event: event, Balance: acct.Lamports})
	}
	return summaries, nil
}

// loadEvent fetches and decodes the event at addr, verifying the account
// actually sits at its claimed derivation.
func (s *Service) loadEvent(ctx context.Context, tx *ledger.DB, addr keys.Address) (*models.Account, *models.Event, error) {
	acct, err := tx.GetAccount(ctx, addr)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return nil, nil, ErrInvalidEventReference
		}
		return nil, nil, err
	}
	event, err := models.UnmarshalEvent(acct.Data)
	if err != nil {
		return nil, nil, ErrInvalidEventReference
	}
	derived, err := keys.DeriveWithBump(keys.SeedEvent, event.Bump, event.Organizer.Bytes(), keys.Uint64LE(event.EventID))
	if err != nil || derived != addr {
		return nil, nil, ErrInvalidEventReference
	}
	return acct, event, nil
}

func (s *Service) publish(fn func(p Publisher) error) {
	if s.Publisher == nil {
		return
	}
	if err := fn(s.Publisher); err != nil && s.Logger != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("publish failed: %v", err))
	}
}

func (s *Service) logOperation(op, msg string) {
	if s.Logger != nil {
		s.Logger.LogOperation(op, msg)
	}
}
