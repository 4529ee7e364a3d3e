package service

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

const maxNameLength = 100

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// normalizeEventIDs filters a caller-supplied event id list down to unique
// positive integers, preserving first-seen order. Non-numeric and
// non-positive entries are silently dropped, not rejected. Exceeding the
// cap after filtering is a validation error, as is an empty result.
func normalizeEventIDs(raw []any, maxEvents int) ([]int64, error) {
	seen := make(map[int64]bool)
	var ids []int64
	for _, v := range raw {
		id, ok := toEventID(v)
		if !ok || id <= 0 {
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}

	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: at least one valid event id is required", ErrValidation)
	}
	if len(ids) > maxEvents {
		return nil, fmt.Errorf("%w: at most %d events per link", ErrValidation, maxEvents)
	}
	return ids, nil
}

// toEventID accepts the numeric shapes a decoded JSON array can contain.
// Fractional numbers are not event ids.
func toEventID(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		id := int64(n)
		if float64(id) != n {
			return 0, false
		}
		return id, true
	case json.Number:
		id, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return id, true
	case int:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}

// sanitizeName strips HTML and truncates to the display cap. Over-long
// names are truncated, not rejected.
func sanitizeName(name string) string {
	name = htmlTagPattern.ReplaceAllString(name, "")
	name = strings.TrimSpace(name)
	if runes := []rune(name); len(runes) > maxNameLength {
		name = string(runes[:maxNameLength])
	}
	return name
}
