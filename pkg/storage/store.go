package storage

import (
	"context"

	"github.com/rhuss/tabula/pkg/api"
)

// Pagination bounds for ListTurns.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// TurnStore persists turn records.
//
// Implementations must be safe for concurrent use.
type TurnStore interface {
	// SaveTurn stores a new record. It returns ErrConflict if the ID is
	// already taken.
	SaveTurn(ctx context.Context, turn *api.TurnRecord) error

	// GetTurn returns a record by ID or ErrNotFound.
	GetTurn(ctx context.Context, id string) (*api.TurnRecord, error)

	// ListTurns returns a page of one session's records ordered by index.
	ListTurns(ctx context.Context, sessionID string, opts ListOptions) (*api.TurnList, error)

	// DeleteSession removes every record of a session. Deleting an
	// unknown session is not an error.
	DeleteSession(ctx context.Context, sessionID string) error

	HealthCheck(ctx context.Context) error
	Close() error
}

// ListOptions controls pagination and ordering for ListTurns.
type ListOptions struct {
	// Limit caps the page size. Zero means DefaultListLimit; values above
	// MaxListLimit are clamped.
	Limit int

	// After is a turn ID cursor; the page starts after it.
	After string

	// Order is "asc" (default, oldest first) or "desc".
	Order string
}

// EffectiveLimit returns the page size to use.
func (o ListOptions) EffectiveLimit() int {
	switch {
	case o.Limit <= 0:
		return DefaultListLimit
	case o.Limit > MaxListLimit:
		return MaxListLimit
	}
	return o.Limit
}

// Descending reports whether newest records come first.
func (o ListOptions) Descending() bool {
	return o.Order == "desc"
}

// NewTurnList builds a page from records fetched with one extra row
// beyond limit, which signals that more records exist.
func NewTurnList(records []*api.TurnRecord, limit int) *api.TurnList {
	hasMore := len(records) > limit
	if hasMore {
		records = records[:limit]
	}
	list := &api.TurnList{
		Object:  "list",
		Data:    records,
		HasMore: hasMore,
	}
	if len(records) > 0 {
		list.FirstID = records[0].ID
		list.LastID = records[len(records)-1].ID
	}
	if list.Data == nil {
		list.Data = []*api.TurnRecord{}
	}
	return list
}
