// Package upstream is the HTTP client for the external ticketing core API.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"share-gateway/pkg/config"
	"share-gateway/pkg/logging"
	"share-gateway/pkg/proxycache"
	"share-gateway/pkg/storage"

	"golang.org/x/sync/singleflight"
)

// ErrUnavailable indicates the core API could not serve a call; callers
// degrade to cached data where they can.
var ErrUnavailable = errors.New("upstream unavailable")

const (
	actionAvailability = "event_availability"
	apiKeyHeader       = "X-Api-Key"
)

type Client struct {
	baseURL             string
	apiKey              string
	httpClient          *http.Client
	metadataTimeout     time.Duration
	availabilityTimeout time.Duration
	availabilityTTL     time.Duration
	cache               *proxycache.Cache
	policy              proxycache.Policy
	group               singleflight.Group
	logger              *logging.Logger
}

func NewClient(cfg config.UpstreamConfig, cache *proxycache.Cache, policy proxycache.Policy, logger *logging.Logger) *Client {
	return &Client{
		baseURL:             strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:              cfg.APIKey,
		httpClient:          &http.Client{Timeout: cfg.MetadataTimeout},
		metadataTimeout:     cfg.MetadataTimeout,
		availabilityTimeout: cfg.AvailabilityTimeout,
		availabilityTTL:     cfg.AvailabilityTTL,
		cache:               cache,
		policy:              policy,
		logger:              logger,
	}
}

// DefaultCachePolicy lists the idempotent, unauthenticated core API actions
// the response cache may serve, with their freshness budgets.
func DefaultCachePolicy(availabilityTTL time.Duration) proxycache.Policy {
	return proxycache.NewPolicy(map[string]time.Duration{
		actionAvailability: availabilityTTL,
		"events":           5 * time.Minute,
		"venues":           15 * time.Minute,
		"ticket_types":     5 * time.Minute,
	})
}

type ticketCountsResponse struct {
	Events []storage.EventTickets `json:"events"`
}

// TicketCounts fetches the ticket breakdown for the given events, scoped to
// the organizer identified by bearer.
func (c *Client) TicketCounts(ctx context.Context, bearer string, eventIDs []int64) (map[int64]storage.EventTickets, error) {
	params := url.Values{"events": {joinIDs(eventIDs)}}

	body, err := c.get(ctx, "ticket_counts", params, bearer, c.metadataTimeout)
	if err != nil {
		return nil, err
	}

	var resp ticketCountsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode ticket counts: %w", ErrUnavailable)
	}

	out := make(map[int64]storage.EventTickets, len(resp.Events))
	for _, ev := range resp.Events {
		out[ev.EventID] = ev
	}
	return out, nil
}

type participantsResponse struct {
	Participants []storage.Participant `json:"participants"`
}

// Participants fetches the roster for each event, scoped to the organizer
// identified by bearer. Rosters are expensive and sensitive; only snapshot
// refreshes call this.
func (c *Client) Participants(ctx context.Context, bearer string, eventIDs []int64) (map[int64][]storage.Participant, error) {
	out := make(map[int64][]storage.Participant, len(eventIDs))
	for _, id := range eventIDs {
		params := url.Values{"event": {strconv.FormatInt(id, 10)}}
		body, err := c.get(ctx, "participants", params, bearer, c.metadataTimeout)
		if err != nil {
			return nil, err
		}
		var resp participantsResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("decode participants: %w", ErrUnavailable)
		}
		out[id] = resp.Participants
	}
	return out, nil
}

type availabilityResponse struct {
	Availability []struct {
		TicketTypeID int64 `json:"ticket_type_id"`
		Available    int   `json:"available"`
	} `json:"availability"`
}

// Availability returns remaining availability per ticket type for one event.
// Lookups are deduplicated across concurrent public reads and served from
// the response cache inside its TTL, bounding load on the core API.
func (c *Client) Availability(ctx context.Context, eventID int64) (map[int64]int, error) {
	key := strconv.FormatInt(eventID, 10)
	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.fetchAvailability(ctx, eventID)
	})
	if err != nil {
		return nil, err
	}
	return v.(map[int64]int), nil
}

func (c *Client) fetchAvailability(ctx context.Context, eventID int64) (map[int64]int, error) {
	params := url.Values{"event": {strconv.FormatInt(eventID, 10)}}

	var body []byte
	if entry, hit, err := c.cache.Get(ctx, actionAvailability, params, c.availabilityTTL); err == nil && hit {
		body = entry.Body
	} else {
		fetched, err := c.get(ctx, actionAvailability, params, "", c.availabilityTimeout)
		if err != nil {
			return nil, err
		}
		body = fetched
		if err := c.cache.Set(ctx, actionAvailability, params, http.StatusOK, body, c.availabilityTTL); err != nil {
			c.logger.Warn(ctx, "failed to cache availability", "event_id", eventID, "error", err)
		}
	}

	var resp availabilityResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode availability: %w", ErrUnavailable)
	}
	out := make(map[int64]int, len(resp.Availability))
	for _, a := range resp.Availability {
		out[a.TicketTypeID] = a.Available
	}
	return out, nil
}

// Proxy serves the generic passthrough surface: cacheable actions come from
// the response cache when fresh; everything else is fetched live. The
// passthrough never forwards caller credentials, so every action it reaches
// is unauthenticated by construction.
func (c *Client) Proxy(ctx context.Context, action string, params url.Values) (int, []byte, error) {
	cacheable := c.policy.Cacheable(action, http.MethodGet, false)
	if cacheable {
		if entry, hit, err := c.cache.Get(ctx, action, params, c.policy.TTL(action)); err == nil && hit {
			return entry.StatusCode, entry.Body, nil
		}
	}

	body, err := c.get(ctx, action, params, "", c.metadataTimeout)
	if err != nil {
		return 0, nil, err
	}

	if cacheable {
		if err := c.cache.Set(ctx, action, params, http.StatusOK, body, c.policy.TTL(action)); err != nil {
			c.logger.Warn(ctx, "failed to cache proxy response", "action", action, "error", err)
		}
	}
	return http.StatusOK, body, nil
}

func (c *Client) get(ctx context.Context, action string, params url.Values, bearer string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint := c.baseURL + "/api/" + action
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %d", ErrUnavailable, action, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s response: %v", ErrUnavailable, action, err)
	}
	return body, nil
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
