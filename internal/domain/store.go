package domain

import (
	"context"
	"time"
)

// AuditFilter narrows audit log queries. The zero value matches everything.
type AuditFilter struct {
	Event  string // exact event name; empty matches all
	Since  *time.Time
	Until  *time.Time
	Limit  int
	Offset int
}

// OpportunityStore persists opportunity history.
type OpportunityStore interface {
	Insert(ctx context.Context, opp ArbitrageOpportunity) error
	UpdateStatus(ctx context.Context, id string, status OpportunityStatus, reason string) error
	GetByID(ctx context.Context, id string) (ArbitrageOpportunity, error)
	ListRecent(ctx context.Context, limit int) ([]ArbitrageOpportunity, error)
	ListTerminalBefore(ctx context.Context, before time.Time) ([]ArbitrageOpportunity, error)
	DeleteTerminalBefore(ctx context.Context, before time.Time) (int64, error)
}

// ExecutionStore persists execution attempts for PnL tracking.
type ExecutionStore interface {
	Create(ctx context.Context, rec ExecutionRecord) error
	GetByID(ctx context.Context, id string) (ExecutionRecord, error)
	ListRecent(ctx context.Context, limit int) ([]ExecutionRecord, error)
	ListBefore(ctx context.Context, before time.Time) ([]ExecutionRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
	SumRealizedProfit(ctx context.Context, since time.Time) (float64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}
