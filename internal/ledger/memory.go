package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JR-coderli/EFsafari/internal/models"
	"github.com/JR-coderli/EFsafari/internal/reporting"
)

var _ Store = (*MemoryStore)(nil)

type recordKey struct {
	date  string
	media string
}

// MemoryStore is an in-memory Store. Facts stands in for the main fact
// table read by InsertFromFacts.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[recordKey]models.SpendRecord
	Facts   []models.FactRow
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[recordKey]models.SpendRecord)}
}

func inRange(d, start, end time.Time) bool {
	return !d.Before(start) && !d.After(end)
}

func (m *MemoryStore) lockedDays() map[string]bool {
	locked := make(map[string]bool)
	for _, r := range m.records {
		if r.Locked {
			locked[day(r.Date)] = true
		}
	}
	return locked
}

func (m *MemoryStore) DeleteUnlocked(_ context.Context, start, end time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	locked := m.lockedDays()
	for k, r := range m.records {
		if inRange(r.Date, start, end) && !locked[k.date] {
			delete(m.records, k)
		}
	}
	return nil
}

func (m *MemoryStore) InsertFromFacts(_ context.Context, start, end time.Time, actor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	locked := m.lockedDays()
	now := time.Now().UTC()
	for _, f := range m.Facts {
		if !inRange(f.ReportDate, start, end) || locked[day(f.ReportDate)] {
			continue
		}
		k := recordKey{day(f.ReportDate), f.Media}
		r, ok := m.records[k]
		if !ok {
			r = models.SpendRecord{Date: f.ReportDate, Media: f.Media, SpendOriginal: decimal.Zero, SpendManual: decimal.Zero}
		}
		r.Impressions += f.Impressions
		r.Clicks += f.Clicks
		r.Conversions += f.Conversions
		r.Revenue += f.Revenue
		r.MobileImpressions += f.MobileImpressions
		r.MobileClicks += f.MobileClicks
		r.MobileConversions += f.MobileConversions
		r.SpendOriginal = r.SpendOriginal.Add(decimal.NewFromFloat(f.Spend)).Round(spendPlaces)
		r.SpendFinal = r.SpendOriginal
		r.LastModifiedBy = actor
		r.UpdatedAt = now
		m.records[k] = r
	}
	return nil
}

func (m *MemoryStore) Count(_ context.Context, start, end time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.records {
		if inRange(r.Date, start, end) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Find(_ context.Context, date time.Time, media string) (models.SpendRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[recordKey{day(date), media}]
	return r, ok, nil
}

func (m *MemoryStore) Insert(_ context.Context, rec models.SpendRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[recordKey{day(rec.Date), rec.Media}] = rec
	return nil
}

func (m *MemoryStore) UpdateSpend(_ context.Context, date time.Time, media string, manual, final decimal.Decimal, actor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := recordKey{day(date), media}
	r, ok := m.records[k]
	if !ok {
		return nil
	}
	r.SpendManual, r.SpendFinal = manual, final
	r.LastModifiedBy = actor
	r.UpdatedAt = time.Now().UTC()
	m.records[k] = r
	return nil
}

func (m *MemoryStore) SetLocked(_ context.Context, date time.Time, locked bool, actor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, r := range m.records {
		if k.date == day(date) {
			r.Locked = locked
			r.LastModifiedBy = actor
			m.records[k] = r
		}
	}
	return nil
}

func (m *MemoryStore) visible(q ListQuery) []models.SpendRecord {
	media := make(map[string]bool, len(q.Media))
	for _, v := range q.Media {
		media[v] = true
	}
	var out []models.SpendRecord
	for _, r := range m.records {
		if !inRange(r.Date, q.Start, q.End) {
			continue
		}
		if len(media) > 0 && !media[r.Media] {
			continue
		}
		if !q.Predicate.MatchRow(reporting.Daily, map[string]string{"Media": r.Media}) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (m *MemoryStore) List(_ context.Context, q ListQuery) ([]models.SpendRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := m.visible(q)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].SpendFinal.GreaterThan(out[j].SpendFinal)
	})
	return out, nil
}

func (m *MemoryStore) MediaList(_ context.Context, q ListQuery) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, r := range m.visible(q) {
		if !seen[r.Media] {
			seen[r.Media] = true
			out = append(out, r.Media)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) LockedDates(_ context.Context, start, end time.Time) ([]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool)
	var out []time.Time
	for _, r := range m.records {
		if r.Locked && inRange(r.Date, start, end) && !seen[day(r.Date)] {
			seen[day(r.Date)] = true
			out = append(out, r.Date)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}
