package storage

import (
	"time"
)

// ShareLink is an organizer-issued public token exposing a curated snapshot
// of ticket and participant data. Code doubles as primary key and URL token.
type ShareLink struct {
	Code                string                  `json:"code" db:"code"`
	OrganizerID         string                  `json:"organizer_id" db:"organizer_id"`
	Name                string                  `json:"name" db:"name"`
	EventIDs            []int64                 `json:"event_ids" db:"event_ids"`
	IsActive            bool                    `json:"is_active" db:"is_active"`
	PasswordHash        *string                 `json:"-" db:"password_hash"`
	ShowParticipants    bool                    `json:"show_participants" db:"show_participants"`
	TicketData          map[int64]EventTickets  `json:"-" db:"ticket_data"`
	ParticipantsData    map[int64][]Participant `json:"-" db:"participants_data"`
	TicketDataUpdatedAt *time.Time              `json:"ticket_data_updated_at,omitempty" db:"ticket_data_updated_at"`
	AccessCount         int                     `json:"access_count" db:"access_count"`
	LastAccessedAt      *time.Time              `json:"last_accessed_at,omitempty" db:"last_accessed_at"`
	CreatedAt           time.Time               `json:"created_at" db:"created_at"`
}

// EventTickets is the per-event ticket breakdown captured at snapshot time.
type EventTickets struct {
	EventID   int64             `json:"event_id"`
	EventName string            `json:"event_name"`
	Types     []TicketTypeCount `json:"types"`
}

// TicketTypeCount holds the totals for one ticket type. Total and the
// type metadata are stable between refreshes; Sold and Available are
// baselines that public reads recompute from live availability.
type TicketTypeCount struct {
	TicketTypeID int64  `json:"ticket_type_id"`
	Name         string `json:"name"`
	Total        int    `json:"total"`
	Sold         int    `json:"sold"`
	Available    int    `json:"available"`
}

// Participant is one roster entry, captured only at creation or explicit
// organizer refresh.
type Participant struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	TicketType string `json:"ticket_type"`
}
