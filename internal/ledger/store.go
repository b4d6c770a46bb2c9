package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JR-coderli/EFsafari/internal/models"
	"github.com/JR-coderli/EFsafari/internal/reporting"
)

// ListQuery selects ledger rows. Dates are inclusive; an empty Media list
// selects every media the predicate admits.
type ListQuery struct {
	Start     time.Time
	End       time.Time
	Media     []string
	Predicate reporting.Predicate
}

// Store persists spend records keyed by (date, media).
type Store interface {
	// DeleteUnlocked removes the records of every date in [start, end]
	// that has no locked record. Locking is per date.
	DeleteUnlocked(ctx context.Context, start, end time.Time) error
	// InsertFromFacts aggregates the main fact table per (date, media) into
	// fresh records for dates in [start, end] without a locked record.
	InsertFromFacts(ctx context.Context, start, end time.Time, actor string) error
	Count(ctx context.Context, start, end time.Time) (int, error)
	Find(ctx context.Context, date time.Time, media string) (models.SpendRecord, bool, error)
	Insert(ctx context.Context, rec models.SpendRecord) error
	UpdateSpend(ctx context.Context, date time.Time, media string, manual, final decimal.Decimal, actor string) error
	SetLocked(ctx context.Context, date time.Time, locked bool, actor string) error
	List(ctx context.Context, q ListQuery) ([]models.SpendRecord, error)
	MediaList(ctx context.Context, q ListQuery) ([]string, error)
	LockedDates(ctx context.Context, start, end time.Time) ([]time.Time, error)
}
