package storage

import (
	"context"
	"time"
)

// ShareLinkStorage is the durable registry of share links. Lookups return
// (nil, nil) when no record exists. All write failures surface as errors;
// silent loss of an organizer's link definition is unacceptable.
type ShareLinkStorage interface {
	Create(ctx context.Context, link *ShareLink) error
	GetByCode(ctx context.Context, code string) (*ShareLink, error)
	ListByOrganizer(ctx context.Context, organizerID string) ([]*ShareLink, error)
	CountByOrganizer(ctx context.Context, organizerID string) (int, error)
	Update(ctx context.Context, link *ShareLink) error
	Delete(ctx context.Context, code string) error
	// RecordAccess bumps the public access counter in a single statement.
	// Concurrent public reads may race with organizer updates; last writer
	// wins for scalar fields and a rare lost increment is accepted.
	RecordAccess(ctx context.Context, code string, at time.Time) error
}
