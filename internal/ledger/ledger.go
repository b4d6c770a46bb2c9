// Package ledger keeps the daily spend ledger: per (date, media) an
// automatically synced original spend, a manual correction and the final
// spend shown everywhere, with date-level locks that freeze rows against
// resync.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/JR-coderli/EFsafari/internal/models"
	"github.com/JR-coderli/EFsafari/internal/observability"
	"github.com/JR-coderli/EFsafari/internal/reporting"
)

var (
	// ErrForbidden is returned when the actor's role may not change the ledger.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidDate is returned for unparsable dates or reversed ranges.
	ErrInvalidDate = errors.New("invalid date")
	// ErrInvalidSpend is returned for a negative target spend.
	ErrInvalidSpend = errors.New("invalid spend")
)

// spendPlaces matches the Decimal64(4) ledger columns.
const spendPlaces = 4

// Ledger applies the ledger rules on top of a Store.
type Ledger struct {
	Store       Store
	Logger      *zap.Logger
	Metrics     observability.MetricsRegistry
	UnknownRole string
}

// New returns a Ledger over store.
func New(store Store, logger *zap.Logger, metrics observability.MetricsRegistry, unknownRole string) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Ledger{Store: store, Logger: logger, Metrics: metrics, UnknownRole: unknownRole}
}

// ParseRange parses an inclusive YYYY-MM-DD range.
func ParseRange(start, end string) (time.Time, time.Time, error) {
	s, err := models.ParseDate(start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, start)
	}
	e, err := models.ParseDate(end)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, end)
	}
	if e.Before(s) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %s is before %s", ErrInvalidDate, end, start)
	}
	return s, e, nil
}

func authorize(actor models.User) error {
	if !actor.CanEditSpend() {
		return fmt.Errorf("%w: role %q may not modify spend", ErrForbidden, actor.Role)
	}
	return nil
}

// Sync rebuilds the unlocked records of [start, end] from the main fact
// table and returns how many records the range holds afterwards.
func (l *Ledger) Sync(ctx context.Context, actor models.User, start, end time.Time) (int, error) {
	if err := authorize(actor); err != nil {
		return 0, err
	}
	if end.Before(start) {
		return 0, fmt.Errorf("%w: range end before start", ErrInvalidDate)
	}
	if err := l.Store.DeleteUnlocked(ctx, start, end); err != nil {
		return 0, fmt.Errorf("clear unlocked rows: %w", err)
	}
	if err := l.Store.InsertFromFacts(ctx, start, end, actor.Username); err != nil {
		return 0, fmt.Errorf("aggregate fact rows: %w", err)
	}
	n, err := l.Store.Count(ctx, start, end)
	if err != nil {
		return 0, fmt.Errorf("count ledger rows: %w", err)
	}
	l.Metrics.IncrementSpendCorrections("sync")
	l.Logger.Info("ledger synced",
		zap.String("actor", actor.Username),
		zap.String("start", start.Format(models.DateLayout)),
		zap.String("end", end.Format(models.DateLayout)),
		zap.Int("rows", n))
	return n, nil
}

// SetFinalSpend makes target the final spend of (date, media). The
// correction is stored as target minus the synced original spend; a
// missing record is created with a zero original and the lock state of
// its date.
func (l *Ledger) SetFinalSpend(ctx context.Context, actor models.User, date time.Time, media string, target decimal.Decimal) (models.SpendRecord, error) {
	if err := authorize(actor); err != nil {
		return models.SpendRecord{}, err
	}
	if target.IsNegative() {
		return models.SpendRecord{}, fmt.Errorf("%w: %s", ErrInvalidSpend, target)
	}
	target = target.Round(spendPlaces)

	rec, ok, err := l.Store.Find(ctx, date, media)
	if err != nil {
		return models.SpendRecord{}, fmt.Errorf("load ledger row: %w", err)
	}
	if !ok {
		// a new row joins its date's lock so sync leaves it alone
		locked, err := l.Store.LockedDates(ctx, date, date)
		if err != nil {
			return models.SpendRecord{}, fmt.Errorf("load lock state: %w", err)
		}
		rec = models.SpendRecord{
			Date:           date,
			Media:          media,
			SpendOriginal:  decimal.Zero,
			SpendManual:    target,
			SpendFinal:     target,
			Locked:         len(locked) > 0,
			LastModifiedBy: actor.Username,
			UpdatedAt:      time.Now().UTC(),
		}
		if err := l.Store.Insert(ctx, rec); err != nil {
			return models.SpendRecord{}, fmt.Errorf("create ledger row: %w", err)
		}
		l.Metrics.IncrementSpendCorrections("create")
		l.logChange(actor, rec, "created ledger row")
		return rec, nil
	}

	rec.SpendManual = target.Sub(rec.SpendOriginal)
	rec.SpendFinal = target
	rec.LastModifiedBy = actor.Username
	rec.UpdatedAt = time.Now().UTC()
	if err := l.Store.UpdateSpend(ctx, date, media, rec.SpendManual, rec.SpendFinal, actor.Username); err != nil {
		return models.SpendRecord{}, fmt.Errorf("update ledger row: %w", err)
	}
	l.Metrics.IncrementSpendCorrections("set_final")
	l.logChange(actor, rec, "set final spend")
	return rec, nil
}

// ApplyCorrection adds delta to the manual correction of (date, media).
func (l *Ledger) ApplyCorrection(ctx context.Context, actor models.User, date time.Time, media string, delta decimal.Decimal) (models.SpendRecord, error) {
	if err := authorize(actor); err != nil {
		return models.SpendRecord{}, err
	}
	rec, ok, err := l.Store.Find(ctx, date, media)
	if err != nil {
		return models.SpendRecord{}, fmt.Errorf("load ledger row: %w", err)
	}
	current := decimal.Zero
	if ok {
		current = rec.SpendFinal
	}
	return l.SetFinalSpend(ctx, actor, date, media, current.Add(delta))
}

// Lock sets the lock flag of every record dated date.
func (l *Ledger) Lock(ctx context.Context, actor models.User, date time.Time, locked bool) error {
	if err := authorize(actor); err != nil {
		return err
	}
	if err := l.Store.SetLocked(ctx, date, locked, actor.Username); err != nil {
		return fmt.Errorf("set lock: %w", err)
	}
	action := "unlock"
	if locked {
		action = "lock"
	}
	l.Metrics.IncrementSpendCorrections(action)
	l.Logger.Info("ledger date "+action+"ed",
		zap.String("actor", actor.Username),
		zap.String("date", date.Format(models.DateLayout)))
	return nil
}

func (l *Ledger) logChange(actor models.User, rec models.SpendRecord, msg string) {
	l.Logger.Info(msg,
		zap.String("actor", actor.Username),
		zap.String("date", rec.Date.Format(models.DateLayout)),
		zap.String("media", rec.Media),
		zap.String("spend_original", rec.SpendOriginal.StringFixed(spendPlaces)),
		zap.String("spend_manual", rec.SpendManual.StringFixed(spendPlaces)),
		zap.String("spend_final", rec.SpendFinal.StringFixed(spendPlaces)))
}

func (l *Ledger) query(actor models.User, start, end time.Time, media []string) (ListQuery, error) {
	if end.Before(start) {
		return ListQuery{}, fmt.Errorf("%w: range end before start", ErrInvalidDate)
	}
	return ListQuery{
		Start:     start,
		End:       end,
		Media:     media,
		Predicate: reporting.PredicateFor(actor, l.UnknownRole),
	}, nil
}

// List returns the records of [start, end] visible to actor.
func (l *Ledger) List(ctx context.Context, actor models.User, start, end time.Time, media []string) ([]models.SpendRecord, error) {
	q, err := l.query(actor, start, end, media)
	if err != nil {
		return nil, err
	}
	return l.Store.List(ctx, q)
}

// Summary totals the records of [start, end] visible to actor.
type Summary struct {
	models.MetricsView
	SpendOriginal decimal.Decimal `json:"spend_original"`
	SpendManual   decimal.Decimal `json:"spend_manual"`
	SpendFinal    decimal.Decimal `json:"spend_final"`
	Rows          int             `json:"rows"`
	LockedRows    int             `json:"locked_rows"`
}

// Summary returns the totals of List.
func (l *Ledger) Summary(ctx context.Context, actor models.User, start, end time.Time, media []string) (Summary, error) {
	recs, err := l.List(ctx, actor, start, end, media)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(recs), nil
}

// Summarize totals recs. Derived ratios are computed from the totals.
func Summarize(recs []models.SpendRecord) Summary {
	s := Summary{SpendOriginal: decimal.Zero, SpendManual: decimal.Zero, SpendFinal: decimal.Zero}
	var total models.MetricTuple
	for _, r := range recs {
		total = total.Add(r.Metrics())
		s.SpendOriginal = s.SpendOriginal.Add(r.SpendOriginal)
		s.SpendManual = s.SpendManual.Add(r.SpendManual)
		s.SpendFinal = s.SpendFinal.Add(r.SpendFinal)
		s.Rows++
		if r.Locked {
			s.LockedRows++
		}
	}
	// spend is taken from the exact decimal total
	total.Spend = s.SpendFinal.InexactFloat64()
	s.MetricsView = models.NewMetricsView(total)
	return s
}

// MediaList returns the distinct media of [start, end] visible to actor.
func (l *Ledger) MediaList(ctx context.Context, actor models.User, start, end time.Time) ([]string, error) {
	q, err := l.query(actor, start, end, nil)
	if err != nil {
		return nil, err
	}
	return l.Store.MediaList(ctx, q)
}

// LockedDates returns the locked dates in [start, end].
func (l *Ledger) LockedDates(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	return l.Store.LockedDates(ctx, start, end)
}
