package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresShareLinkStorage struct {
	pool *pgxpool.Pool
}

func NewPostgresShareLinkStorage(pool *pgxpool.Pool) *PostgresShareLinkStorage {
	return &PostgresShareLinkStorage{pool: pool}
}

const shareLinkColumns = `code, organizer_id, name, event_ids, is_active, password_hash, show_participants, ticket_data, participants_data, ticket_data_updated_at, access_count, last_accessed_at, created_at`

func (s *PostgresShareLinkStorage) Create(ctx context.Context, link *ShareLink) error {
	ticketData, participantsData, err := marshalSnapshots(link)
	if err != nil {
		return err
	}
	query := `INSERT INTO share_links (code, organizer_id, name, event_ids, is_active, password_hash, show_participants, ticket_data, participants_data, ticket_data_updated_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err = s.pool.Exec(ctx, query,
		link.Code, link.OrganizerID, link.Name, link.EventIDs, link.IsActive,
		link.PasswordHash, link.ShowParticipants, ticketData, participantsData,
		link.TicketDataUpdatedAt, link.CreatedAt)
	if err != nil {
		return fmt.Errorf("create share link: %w", err)
	}
	return nil
}

func (s *PostgresShareLinkStorage) GetByCode(ctx context.Context, code string) (*ShareLink, error) {
	query := `SELECT ` + shareLinkColumns + ` FROM share_links WHERE code = $1`
	link, err := scanShareLink(s.pool.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get share link: %w", err)
	}
	return link, nil
}

func (s *PostgresShareLinkStorage) ListByOrganizer(ctx context.Context, organizerID string) ([]*ShareLink, error) {
	query := `SELECT ` + shareLinkColumns + ` FROM share_links WHERE organizer_id = $1 ORDER BY created_at DESC`
	rows, err := s.pool.Query(ctx, query, organizerID)
	if err != nil {
		return nil, fmt.Errorf("list share links: %w", err)
	}
	defer rows.Close()

	var links []*ShareLink
	for rows.Next() {
		link, err := scanShareLink(rows)
		if err != nil {
			return nil, fmt.Errorf("list share links: %w", err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list share links: %w", err)
	}
	return links, nil
}

func (s *PostgresShareLinkStorage) CountByOrganizer(ctx context.Context, organizerID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM share_links WHERE organizer_id = $1`, organizerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count share links: %w", err)
	}
	return count, nil
}

func (s *PostgresShareLinkStorage) Update(ctx context.Context, link *ShareLink) error {
	ticketData, participantsData, err := marshalSnapshots(link)
	if err != nil {
		return err
	}
	query := `UPDATE share_links SET name = $2, event_ids = $3, is_active = $4, password_hash = $5, show_participants = $6, ticket_data = $7, participants_data = $8, ticket_data_updated_at = $9 WHERE code = $1`
	_, err = s.pool.Exec(ctx, query,
		link.Code, link.Name, link.EventIDs, link.IsActive, link.PasswordHash,
		link.ShowParticipants, ticketData, participantsData, link.TicketDataUpdatedAt)
	if err != nil {
		return fmt.Errorf("update share link: %w", err)
	}
	return nil
}

func (s *PostgresShareLinkStorage) Delete(ctx context.Context, code string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM share_links WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("delete share link: %w", err)
	}
	return nil
}

func (s *PostgresShareLinkStorage) RecordAccess(ctx context.Context, code string, at time.Time) error {
	query := `UPDATE share_links SET access_count = access_count + 1, last_accessed_at = $2 WHERE code = $1`
	_, err := s.pool.Exec(ctx, query, code, at)
	if err != nil {
		return fmt.Errorf("record access: %w", err)
	}
	return nil
}

func (s *PostgresShareLinkStorage) Health(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShareLink(row rowScanner) (*ShareLink, error) {
	var link ShareLink
	var ticketData, participantsData []byte
	err := row.Scan(&link.Code, &link.OrganizerID, &link.Name, &link.EventIDs,
		&link.IsActive, &link.PasswordHash, &link.ShowParticipants,
		&ticketData, &participantsData, &link.TicketDataUpdatedAt,
		&link.AccessCount, &link.LastAccessedAt, &link.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(ticketData, &link.TicketData); err != nil {
		return nil, fmt.Errorf("decode ticket data: %w", err)
	}
	if err := json.Unmarshal(participantsData, &link.ParticipantsData); err != nil {
		return nil, fmt.Errorf("decode participants data: %w", err)
	}
	return &link, nil
}

func marshalSnapshots(link *ShareLink) ([]byte, []byte, error) {
	ticketData := link.TicketData
	if ticketData == nil {
		ticketData = map[int64]EventTickets{}
	}
	participantsData := link.ParticipantsData
	if participantsData == nil {
		participantsData = map[int64][]Participant{}
	}
	td, err := json.Marshal(ticketData)
	if err != nil {
		return nil, nil, fmt.Errorf("encode ticket data: %w", err)
	}
	pd, err := json.Marshal(participantsData)
	if err != nil {
		return nil, nil, fmt.Errorf("encode participants data: %w", err)
	}
	return td, pd, nil
}
