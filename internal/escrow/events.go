package escrow

// Domain events published after each successful operation. Addresses travel
// in their hex form.

type EventCreated struct {
	Event     string `json:"event"`
	Organizer string `json:"organizer"`
	EventID   uint64 `json:"event_id"`
}

type TicketCreated struct {
	Ticket string `json:"ticket"`
	Event  string `json:"event"`
	Owner  string `json:"owner"`
}

type JoinedEvent struct {
	Event    string `json:"event"`
	Attendee string `json:"attendee"`
}

type CheckedIn struct {
	Ticket string `json:"ticket"`
	At     int64  `json:"at"`
}

type Withdrawn struct {
	Event  string `json:"event"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// Publisher streams domain events out of the service. Publish failures are
// logged, never propagated: state transitions have already committed.
type Publisher interface {
	PublishEventCreated(evt EventCreated) error
	PublishTicketCreated(evt TicketCreated) error
	PublishJoinedEvent(evt JoinedEvent) error
	PublishCheckedIn(evt CheckedIn) error
	PublishWithdrawn(evt Withdrawn) error
}
