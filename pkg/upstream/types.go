package upstream

import (
	"context"

	"share-gateway/pkg/storage"
)

// SnapshotFetcher pulls the expensive, organizer-scoped data captured at
// share-link creation or explicit refresh. Calls authenticate to the core
// API with the organizer's own forwarded bearer credential; they are never
// made on the public read path.
type SnapshotFetcher interface {
	TicketCounts(ctx context.Context, bearer string, eventIDs []int64) (map[int64]storage.EventTickets, error)
	Participants(ctx context.Context, bearer string, eventIDs []int64) (map[int64][]storage.Participant, error)
}

// AvailabilityLookup is the cheap, unauthenticated per-event call the public
// read uses to recompute current sold/available counts. Returns remaining
// availability keyed by ticket type id.
type AvailabilityLookup interface {
	Availability(ctx context.Context, eventID int64) (map[int64]int, error)
}
