package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/JR-coderli/EFsafari/internal/models"
)

// MockWarehouse is an in-memory stand-in for the ETL writer side of
// Warehouse. Errors set on the mock are returned by the matching call.
type MockWarehouse struct {
	mu sync.Mutex

	Facts  []models.FactRow
	Hourly []models.HourlyRow

	FactDeletes   []time.Time
	HourlyDeletes [][2]time.Time
	InsertCalls   int

	DeleteErr error
	// InsertErrs is consumed one element per insert call; nil entries succeed.
	InsertErrs []error
}

// NewMockWarehouse creates an empty MockWarehouse.
func NewMockWarehouse() *MockWarehouse {
	return &MockWarehouse{}
}

func (m *MockWarehouse) nextInsertErr() error {
	m.InsertCalls++
	if len(m.InsertErrs) == 0 {
		return nil
	}
	err := m.InsertErrs[0]
	m.InsertErrs = m.InsertErrs[1:]
	return err
}

func (m *MockWarehouse) InsertFacts(_ context.Context, rows []models.FactRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.nextInsertErr(); err != nil {
		return err
	}
	m.Facts = append(m.Facts, rows...)
	return nil
}

func (m *MockWarehouse) DeleteFacts(_ context.Context, date time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.FactDeletes = append(m.FactDeletes, date)
	kept := m.Facts[:0]
	for _, r := range m.Facts {
		if !r.ReportDate.Equal(date) {
			kept = append(kept, r)
		}
	}
	m.Facts = kept
	return nil
}

func (m *MockWarehouse) InsertHourly(_ context.Context, rows []models.HourlyRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.nextInsertErr(); err != nil {
		return err
	}
	m.Hourly = append(m.Hourly, rows...)
	return nil
}

func (m *MockWarehouse) DeleteHourlyRange(_ context.Context, start, end time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.HourlyDeletes = append(m.HourlyDeletes, [2]time.Time{start, end})
	kept := m.Hourly[:0]
	for _, r := range m.Hourly {
		ts := r.ReportDate.Add(time.Duration(r.ReportHour) * time.Hour)
		if ts.Before(start) || !ts.Before(end) {
			kept = append(kept, r)
		}
	}
	m.Hourly = kept
	return nil
}
