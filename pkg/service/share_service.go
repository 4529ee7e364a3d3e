package service

import (
	"context"
	"fmt"
	"time"

	"share-gateway/pkg/bruteforce"
	"share-gateway/pkg/config"
	"share-gateway/pkg/logging"
	"share-gateway/pkg/ratelimit"
	"share-gateway/pkg/storage"
	"share-gateway/pkg/upstream"

	"golang.org/x/crypto/bcrypt"
)

// maxCodeAttempts bounds the generate-and-check loop during creation.
// Exhaustion is a hard failure, never silently extended.
const maxCodeAttempts = 10

// Config holds the registry's policy knobs.
type Config struct {
	MaxLinksPerOrganizer  int
	MaxEventsPerLink      int
	CodeLength            int
	PublicRequests        int
	PublicWindow          time.Duration
	BruteForceMaxAttempts int
	BruteForceWindow      time.Duration
	BruteForceLockout     time.Duration
}

// ConfigFrom assembles the service policy from application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		MaxLinksPerOrganizer:  cfg.ShareLink.MaxLinksPerOrganizer,
		MaxEventsPerLink:      cfg.ShareLink.MaxEventsPerLink,
		CodeLength:            cfg.ShareLink.CodeLength,
		PublicRequests:        cfg.RateLimit.PublicRequests,
		PublicWindow:          cfg.RateLimit.PublicWindow,
		BruteForceMaxAttempts: cfg.BruteForce.MaxAttempts,
		BruteForceWindow:      cfg.BruteForce.Window,
		BruteForceLockout:     cfg.BruteForce.Lockout,
	}
}

type ShareService struct {
	storage      storage.ShareLinkStorage
	fetcher      upstream.SnapshotFetcher
	availability upstream.AvailabilityLookup
	limiter      *ratelimit.Limiter
	guard        *bruteforce.Guard
	logger       *logging.Logger
	cfg          Config
	now          func() time.Time
}

func NewShareService(
	store storage.ShareLinkStorage,
	fetcher upstream.SnapshotFetcher,
	availability upstream.AvailabilityLookup,
	limiter *ratelimit.Limiter,
	guard *bruteforce.Guard,
	logger *logging.Logger,
	cfg Config,
) *ShareService {
	return &ShareService{
		storage:      store,
		fetcher:      fetcher,
		availability: availability,
		limiter:      limiter,
		guard:        guard,
		logger:       logger,
		cfg:          cfg,
		now:          time.Now,
	}
}

// SetClock overrides the time source for tests.
func (s *ShareService) SetClock(now func() time.Time) {
	s.now = now
}

type CreateLinkRequest struct {
	Name             string  `json:"name"`
	EventIDs         []any   `json:"event_ids"`
	Password         *string `json:"password,omitempty"`
	ShowParticipants bool    `json:"show_participants"`
}

type UpdateLinkRequest struct {
	Name             *string `json:"name,omitempty"`
	EventIDs         []any   `json:"event_ids,omitempty"`
	IsActive         *bool   `json:"is_active,omitempty"`
	Password         *string `json:"password,omitempty"`
	ShowParticipants *bool   `json:"show_participants,omitempty"`
	RefreshData      bool    `json:"refresh_data,omitempty"`
}

// LinkSummary is the organizer-facing view of a share link. Password hashes
// and raw snapshot payloads are never echoed back.
type LinkSummary struct {
	Code                string     `json:"code"`
	ShareURL            string     `json:"share_url,omitempty"`
	Name                string     `json:"name"`
	EventIDs            []int64    `json:"event_ids"`
	IsActive            bool       `json:"is_active"`
	HasPassword         bool       `json:"has_password"`
	ShowParticipants    bool       `json:"show_participants"`
	AccessCount         int        `json:"access_count"`
	LastAccessedAt      *time.Time `json:"last_accessed_at,omitempty"`
	TicketDataUpdatedAt *time.Time `json:"ticket_data_updated_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// Create validates the request, generates a unique code, captures the
// initial snapshot using the organizer's own upstream credential, and
// persists the link.
func (s *ShareService) Create(ctx context.Context, organizerID, bearer string, req *CreateLinkRequest) (*LinkSummary, error) {
	eventIDs, err := normalizeEventIDs(req.EventIDs, s.cfg.MaxEventsPerLink)
	if err != nil {
		return nil, err
	}

	count, err := s.storage.CountByOrganizer(ctx, organizerID)
	if err != nil {
		return nil, err
	}
	if count >= s.cfg.MaxLinksPerOrganizer {
		return nil, fmt.Errorf("%w: at most %d share links per organizer", ErrValidation, s.cfg.MaxLinksPerOrganizer)
	}

	name := sanitizeName(req.Name)
	if name == "" {
		name = fmt.Sprintf("Ticket report %d", count+1)
	}

	code, err := s.uniqueCode(ctx)
	if err != nil {
		return nil, err
	}

	var passwordHash *string
	if req.Password != nil && *req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		hashStr := string(hash)
		passwordHash = &hashStr
	}

	link := &storage.ShareLink{
		Code:             code,
		OrganizerID:      organizerID,
		Name:             name,
		EventIDs:         eventIDs,
		IsActive:         true,
		PasswordHash:     passwordHash,
		ShowParticipants: req.ShowParticipants,
		CreatedAt:        s.now(),
	}

	if err := s.refreshSnapshot(ctx, bearer, link); err != nil {
		return nil, err
	}

	if err := s.storage.Create(ctx, link); err != nil {
		s.logger.LogShareOperation(ctx, "create", code, false)
		return nil, err
	}

	s.logger.LogShareOperation(ctx, "create", code, true)
	return s.summary(link), nil
}

// List returns the caller's links, newest first.
func (s *ShareService) List(ctx context.Context, organizerID string) ([]*LinkSummary, error) {
	links, err := s.storage.ListByOrganizer(ctx, organizerID)
	if err != nil {
		return nil, err
	}
	summaries := make([]*LinkSummary, 0, len(links))
	for _, link := range links {
		summaries = append(summaries, s.summary(link))
	}
	return summaries, nil
}

// Update applies a partial update. Changing the event set or setting
// RefreshData re-runs the snapshot fetch with the caller's credential.
func (s *ShareService) Update(ctx context.Context, code, organizerID, bearer string, req *UpdateLinkRequest) (*LinkSummary, error) {
	link, err := s.loadOwned(ctx, code, organizerID)
	if err != nil {
		return nil, err
	}

	refresh := req.RefreshData

	if req.EventIDs != nil {
		eventIDs, err := normalizeEventIDs(req.EventIDs, s.cfg.MaxEventsPerLink)
		if err != nil {
			return nil, err
		}
		link.EventIDs = eventIDs
		refresh = true
	}

	if req.Name != nil {
		if name := sanitizeName(*req.Name); name != "" {
			link.Name = name
		}
	}

	if req.IsActive != nil {
		link.IsActive = *req.IsActive
	}

	if req.ShowParticipants != nil {
		becameVisible := *req.ShowParticipants && !link.ShowParticipants
		link.ShowParticipants = *req.ShowParticipants
		// A roster that was never captured must be fetched before it can
		// be shown.
		if becameVisible && len(link.ParticipantsData) == 0 {
			refresh = true
		}
	}

	if req.Password != nil {
		if *req.Password == "" {
			link.PasswordHash = nil
		} else {
			hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
			if err != nil {
				return nil, fmt.Errorf("hash password: %w", err)
			}
			hashStr := string(hash)
			link.PasswordHash = &hashStr
		}
	}

	if refresh {
		if err := s.refreshSnapshot(ctx, bearer, link); err != nil {
			return nil, err
		}
	}

	if err := s.storage.Update(ctx, link); err != nil {
		s.logger.LogShareOperation(ctx, "update", code, false)
		return nil, err
	}

	s.logger.LogShareOperation(ctx, "update", code, true)
	return s.summary(link), nil
}

// Delete removes the caller's link.
func (s *ShareService) Delete(ctx context.Context, code, organizerID string) error {
	if _, err := s.loadOwned(ctx, code, organizerID); err != nil {
		return err
	}
	if err := s.storage.Delete(ctx, code); err != nil {
		return err
	}
	s.logger.LogShareOperation(ctx, "delete", code, true)
	return nil
}

// PublicReadInput carries everything the unauthenticated read needs. The
// password arrives via request body only; ClientKey identifies the caller
// (an IP) for rate limiting; Automated marks background polling so it does
// not inflate human-facing access stats.
type PublicReadInput struct {
	Code      string
	Password  *string
	ClientKey string
	Automated bool
}

// PublicLinkView is the merged response served to unauthenticated readers.
type PublicLinkView struct {
	Name         string                  `json:"name"`
	Events       []PublicEvent           `json:"events"`
	Participants map[int64][]storage.Participant `json:"participants,omitempty"`
	UpdatedAt    *time.Time              `json:"updated_at,omitempty"`
}

// PublicEvent is one event's merged ticket breakdown. Live is false when
// the availability lookup failed and stored baselines were served instead.
type PublicEvent struct {
	EventID   int64              `json:"event_id"`
	EventName string             `json:"event_name"`
	Types     []PublicTicketType `json:"types"`
	Live      bool               `json:"live"`
}

type PublicTicketType struct {
	TicketTypeID int64  `json:"ticket_type_id"`
	Name         string `json:"name"`
	Total        int    `json:"total"`
	Sold         int    `json:"sold"`
	Available    int    `json:"available"`
}

// PublicRead serves the unauthenticated share-link endpoint: code format
// check, rate limit, lookup, active gate, password gate under the
// brute-force guard, access stats, then the snapshot merged with live
// availability.
func (s *ShareService) PublicRead(ctx context.Context, in PublicReadInput) (*PublicLinkView, error) {
	// Malformed codes are rejected before any storage, rate-limit or
	// lockout state is touched.
	if !ValidateCodeFormat(in.Code) {
		return nil, fmt.Errorf("%w: malformed share code", ErrValidation)
	}

	if !s.limiter.Allow(ctx, "public:"+in.ClientKey, s.cfg.PublicRequests, s.cfg.PublicWindow) {
		return nil, ErrRateLimited
	}

	link, err := s.storage.GetByCode(ctx, in.Code)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, ErrNotFound
	}
	if !link.IsActive {
		return nil, ErrGone
	}

	if link.PasswordHash != nil {
		if err := s.checkPassword(ctx, link, in.Password); err != nil {
			return nil, err
		}
	}

	if !in.Automated {
		// A lost increment under concurrent reads is acceptable; a failed
		// stat write must not fail the read.
		if err := s.storage.RecordAccess(ctx, link.Code, s.now()); err != nil {
			s.logger.Warn(ctx, "failed to record access", "code", link.Code, "error", err)
		}
	}

	view := &PublicLinkView{
		Name:      link.Name,
		Events:    s.mergeTicketData(ctx, link),
		UpdatedAt: link.TicketDataUpdatedAt,
	}
	if link.ShowParticipants {
		view.Participants = link.ParticipantsData
	}

	s.logger.LogPublicAccess(ctx, link.Code, link.PasswordHash != nil, true)
	return view, nil
}

// checkPassword runs the guarded verification sequence: check the lockout
// before verifying, record a failure only after verification fails, clear
// state after success.
func (s *ShareService) checkPassword(ctx context.Context, link *storage.ShareLink, password *string) error {
	if !s.guard.CheckAllowed(ctx, link.Code, s.cfg.BruteForceMaxAttempts, s.cfg.BruteForceWindow, s.cfg.BruteForceLockout) {
		s.logger.LogPublicAccess(ctx, link.Code, true, false)
		return ErrLocked
	}

	if password == nil || *password == "" {
		return ErrPasswordRequired
	}

	if bcrypt.CompareHashAndPassword([]byte(*link.PasswordHash), []byte(*password)) != nil {
		if err := s.guard.RecordFailure(ctx, link.Code, s.cfg.BruteForceWindow); err != nil {
			s.logger.Error(ctx, "failed to record password failure", "code", link.Code, "error", err)
		}
		s.logger.LogPublicAccess(ctx, link.Code, true, false)
		return ErrInvalidPassword
	}

	if err := s.guard.Clear(ctx, link.Code); err != nil {
		s.logger.Warn(ctx, "failed to clear lockout state", "code", link.Code, "error", err)
	}
	return nil
}

// mergeTicketData combines the stored snapshot with a live availability
// lookup per event. The snapshot fixes the shape of the breakdown and the
// totals; current sold/available counts are recomputed on every read. An
// event whose lookup fails degrades to its stored baselines instead of
// failing the whole response.
func (s *ShareService) mergeTicketData(ctx context.Context, link *storage.ShareLink) []PublicEvent {
	events := make([]PublicEvent, 0, len(link.EventIDs))
	for _, eventID := range link.EventIDs {
		snap, ok := link.TicketData[eventID]
		if !ok {
			continue
		}

		ev := PublicEvent{
			EventID:   snap.EventID,
			EventName: snap.EventName,
		}

		avail, err := s.availability.Availability(ctx, eventID)
		if err != nil {
			s.logger.Warn(ctx, "availability lookup failed, serving stored counts",
				"event_id", eventID, "error", err)
			avail = nil
		} else {
			ev.Live = true
		}

		for _, tt := range snap.Types {
			merged := PublicTicketType{
				TicketTypeID: tt.TicketTypeID,
				Name:         tt.Name,
				Total:        tt.Total,
				Sold:         tt.Sold,
				Available:    tt.Available,
			}
			if current, ok := avail[tt.TicketTypeID]; ok {
				merged.Available = current
				merged.Sold = tt.Total - current
				if merged.Sold < 0 {
					merged.Sold = 0
				}
			}
			ev.Types = append(ev.Types, merged)
		}
		events = append(events, ev)
	}
	return events
}

// loadOwned fetches a link and authorizes the caller in one step. Unknown
// code and owned-by-someone-else both come back as ErrNotFound so the
// response never leaks whether a code exists.
func (s *ShareService) loadOwned(ctx context.Context, code, organizerID string) (*storage.ShareLink, error) {
	if !ValidateCodeFormat(code) {
		return nil, ErrNotFound
	}
	link, err := s.storage.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if link == nil || link.OrganizerID != organizerID {
		return nil, ErrNotFound
	}
	return link, nil
}

// uniqueCode generates a code and checks for collisions, within a bounded
// number of attempts.
func (s *ShareService) uniqueCode(ctx context.Context) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := GenerateCode(s.cfg.CodeLength)
		if err != nil {
			return "", err
		}
		existing, err := s.storage.GetByCode(ctx, code)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return code, nil
		}
	}
	return "", ErrCodeGeneration
}

// refreshSnapshot re-fetches ticket data, and the participant roster when
// enabled, stamping the refresh time.
func (s *ShareService) refreshSnapshot(ctx context.Context, bearer string, link *storage.ShareLink) error {
	ticketData, err := s.fetcher.TicketCounts(ctx, bearer, link.EventIDs)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	link.TicketData = ticketData

	if link.ShowParticipants {
		participants, err := s.fetcher.Participants(ctx, bearer, link.EventIDs)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		link.ParticipantsData = participants
	}

	now := s.now()
	link.TicketDataUpdatedAt = &now
	return nil
}

func (s *ShareService) summary(link *storage.ShareLink) *LinkSummary {
	return &LinkSummary{
		Code:                link.Code,
		Name:                link.Name,
		EventIDs:            link.EventIDs,
		IsActive:            link.IsActive,
		HasPassword:         link.PasswordHash != nil,
		ShowParticipants:    link.ShowParticipants,
		AccessCount:         link.AccessCount,
		LastAccessedAt:      link.LastAccessedAt,
		TicketDataUpdatedAt: link.TicketDataUpdatedAt,
		CreatedAt:           link.CreatedAt,
	}
}
