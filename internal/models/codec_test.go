package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-escrow/internal/keys"
	"ms-escrow/internal/models"
)

func TestEventRecordRoundTrip(t *testing.T) {
	organizer, err := keys.NewKeypair()
	require.NoError(t, err)

	_, bump, err := models.EventAddress(organizer.Public, 1)
	require.NoError(t, err)

	event := &models.Event{
		Organizer:   organizer.Public,
		EventID:     1,
		Price:       1_000_000_000,
		Title:       "Hello Event!",
		Description: "Welcome to my new test event!",
		Bump:        bump,
	}

	decoded, err := models.UnmarshalEvent(event.Marshal())
	require.NoError(t, err)
	assert.Equal(t, event, decoded)
}

func TestTicketRecordMintVariants(t *testing.T) {
	event, err := keys.NewKeypair()
	require.NoError(t, err)
	owner, err := keys.NewKeypair()
	require.NoError(t, err)

	free := &models.Ticket{Event: event.Public, Owner: owner.Public, Bump: 254}
	decoded, err := models.UnmarshalTicket(free.Marshal())
	require.NoError(t, err)
	assert.Nil(t, decoded.Mint)
	assert.False(t, decoded.CheckedIn)

	mint, err := keys.NewKeypair()
	require.NoError(t, err)
	paid := &models.Ticket{
		Event:     event.Public,
		Owner:     owner.Public,
		Mint:      &mint.Public,
		CheckedIn: true,
		Bump:      253,
	}
	decoded, err = models.UnmarshalTicket(paid.Marshal())
	require.NoError(t, err)
	require.NotNil(t, decoded.Mint)
	assert.Equal(t, mint.Public, *decoded.Mint)
	assert.True(t, decoded.CheckedIn)
}

func TestDecodeRejectsWrongKind(t *testing.T) {
	organizer, err := keys.NewKeypair()
	require.NoError(t, err)

	event := &models.Event{Organizer: organizer.Public, EventID: 7, Title: "x"}

	_, err = models.UnmarshalTicket(event.Marshal())
	assert.ErrorIs(t, err, models.ErrBadDiscriminator)

	_, err = models.UnmarshalEvent(nil)
	assert.ErrorIs(t, err, models.ErrBadDiscriminator)
}

func TestDecodeRejectsTruncatedRecord(t *testing.T) {
	organizer, err := keys.NewKeypair()
	require.NoError(t, err)

	data := (&models.Event{Organizer: organizer.Public, EventID: 3, Title: "abc"}).Marshal()
	_, err = models.UnmarshalEvent(data[:len(data)-4])
	assert.Error(t, err)
}
