package reporting

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JR-coderli/EFsafari/internal/cache"
	"github.com/JR-coderli/EFsafari/internal/models"
	"github.com/JR-coderli/EFsafari/internal/timezone"
)

// RowSource supplies grouped warehouse rows.
type RowSource interface {
	Rows(ctx context.Context, q Query) ([]FlatRow, error)
	HourlyRows(ctx context.Context, q HourlyQuery) ([]FlatRow, error)
	Platforms(ctx context.Context, start, end time.Time, p Predicate) ([]string, error)
}

// LanderSource resolves lander ids to URLs.
type LanderSource interface {
	LanderURLs(ctx context.Context) (map[string]string, error)
}

// Request selects a date range and drill-down of the main or hourly report.
type Request struct {
	Dimensions []string          `json:"dimensions"`
	StartDate  string            `json:"start_date"`
	EndDate    string            `json:"end_date"`
	Path       []FilterPathEntry `json:"path,omitempty"`
	Timezone   string            `json:"timezone,omitempty"`
}

// DailyPoint is one date of a daily series.
type DailyPoint struct {
	Date string `json:"date"`
	models.MetricsView
}

// Service answers dashboard queries for a user, applying the user's
// permission predicate and caching responses per user.
type Service struct {
	Source      RowSource
	Landers     LanderSource
	Cache       *cache.Cache
	Logger      *zap.Logger
	UnknownRole string
	// RowLimit caps the rows of a drill-down level; zero is unlimited.
	RowLimit int

	now func() time.Time
}

// NewService returns a Service over source.
func NewService(source RowSource, landers LanderSource, c *cache.Cache, logger *zap.Logger, unknownRole string, rowLimit int) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		Source:      source,
		Landers:     landers,
		Cache:       c,
		Logger:      logger,
		UnknownRole: unknownRole,
		RowLimit:    rowLimit,
		now:         time.Now,
	}
}

type cacheParams struct {
	Request   Request   `json:"request"`
	Predicate Predicate `json:"predicate"`
}

func (s *Service) key(prefix string, u models.User, req Request) cache.Key {
	return cache.Key{
		Prefix: prefix,
		UserID: u.ID,
		Params: cacheParams{Request: req, Predicate: PredicateFor(u, s.UnknownRole)},
	}
}

func parseDates(req Request) (time.Time, time.Time, error) {
	start, err := models.ParseDate(req.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start_date %q", ErrInvalidRequest, req.StartDate)
	}
	end, err := models.ParseDate(req.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end_date %q", ErrInvalidRequest, req.EndDate)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end_date before start_date", ErrInvalidRequest)
	}
	return start, end, nil
}

func validate(f Family, req Request) error {
	if len(req.Dimensions) == 0 {
		return fmt.Errorf("%w: at least one dimension is required", ErrInvalidRequest)
	}
	seen := make(map[string]bool, len(req.Dimensions))
	for _, d := range req.Dimensions {
		if seen[d] {
			return fmt.Errorf("%w: duplicate dimension %q", ErrInvalidRequest, d)
		}
		seen[d] = true
		if f == Hourly && isTimeDimension(d) {
			continue
		}
		if _, err := SafeColumn(f, d); err != nil {
			return err
		}
	}
	if len(req.Path) >= len(req.Dimensions) {
		return fmt.Errorf("%w: path deeper than dimensions", ErrInvalidRequest)
	}
	for i, step := range req.Path {
		if step.Dimension != req.Dimensions[i] {
			return fmt.Errorf("%w: path step %d is %q, want %q", ErrInvalidRequest, i, step.Dimension, req.Dimensions[i])
		}
	}
	return nil
}

func (s *Service) attachLanders(ctx context.Context, rows []FlatRow) {
	if s.Landers == nil {
		return
	}
	need := false
	for _, r := range rows {
		if r.LanderID != "" {
			need = true
			break
		}
	}
	if !need {
		return
	}
	urls, err := s.Landers.LanderURLs(ctx)
	if err != nil {
		s.Logger.Warn("lander urls unavailable", zap.Error(err))
		return
	}
	for i := range rows {
		rows[i].LanderURL = urls[rows[i].LanderID]
	}
}

func (s *Service) mainRows(ctx context.Context, u models.User, req Request, dims []string, path []FilterPathEntry) ([]FlatRow, error) {
	start, end, err := parseDates(req)
	if err != nil {
		return nil, err
	}
	rows, err := s.Source.Rows(ctx, Query{
		Dimensions: dims,
		Start:      start,
		End:        end,
		Filters:    path,
		Predicate:  PredicateFor(u, s.UnknownRole),
	})
	if err != nil {
		return nil, err
	}
	s.attachLanders(ctx, rows)
	return rows, nil
}

// Hierarchy builds the full drill-down tree of the main report.
func (s *Service) Hierarchy(ctx context.Context, u models.User, req Request) (*HierarchyResponse, error) {
	req.Path = nil
	if err := validate(Main, req); err != nil {
		return nil, err
	}
	return cache.Fetch(ctx, s.Cache, s.key("hierarchy", u, req), func(ctx context.Context) (*HierarchyResponse, error) {
		rows, err := s.mainRows(ctx, u, req, req.Dimensions, nil)
		if err != nil {
			return nil, err
		}
		tree := Build(rows, req.Dimensions)
		if tree.Skipped > 0 {
			s.Logger.Warn("rows missing dimensions skipped", zap.Int("skipped", tree.Skipped))
		}
		return &HierarchyResponse{
			Dimensions: req.Dimensions,
			Hierarchy:  tree.Roots,
			StartDate:  req.StartDate,
			EndDate:    req.EndDate,
		}, nil
	})
}

// Data returns one drill-down level of the main report: the rows directly
// under req.Path, queried only as deep as that level.
func (s *Service) Data(ctx context.Context, u models.User, req Request) ([]DrillRow, error) {
	if err := validate(Main, req); err != nil {
		return nil, err
	}
	return cache.Fetch(ctx, s.Cache, s.key("data", u, req), func(ctx context.Context) ([]DrillRow, error) {
		depth := len(req.Path) + 1
		rows, err := s.mainRows(ctx, u, req, req.Dimensions[:depth], req.Path)
		if err != nil {
			return nil, err
		}
		return s.level(rows, req.Dimensions, req.Path), nil
	})
}

// level builds the rows under path from rows grouped down to that level.
// HasChild reflects the full requested dimension list.
func (s *Service) level(rows []FlatRow, dims []string, path []FilterPathEntry) []DrillRow {
	depth := len(path) + 1
	tree := Build(rows, dims[:depth])
	out := tree.Level(path)
	for i := range out {
		out[i].HasChild = depth < len(dims)
	}
	if s.RowLimit > 0 && len(out) > s.RowLimit {
		out = out[:s.RowLimit]
	}
	return out
}

// Daily returns one point per report date in the range for the row
// selected by req.Path.
func (s *Service) Daily(ctx context.Context, u models.User, req Request) ([]DailyPoint, error) {
	req.Dimensions = []string{"date"}
	if _, _, err := parseDates(req); err != nil {
		return nil, err
	}
	return cache.Fetch(ctx, s.Cache, s.key("daily", u, req), func(ctx context.Context) ([]DailyPoint, error) {
		rows, err := s.mainRows(ctx, u, req, req.Dimensions, req.Path)
		if err != nil {
			return nil, err
		}
		out := make([]DailyPoint, 0, len(rows))
		for _, r := range rows {
			out = append(out, DailyPoint{Date: dateOnly(r.Values["date"]), MetricsView: models.NewMetricsView(r.Metrics)})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
		return out, nil
	})
}

// Aggregate returns the totals of the range, optionally narrowed by
// req.Path.
func (s *Service) Aggregate(ctx context.Context, u models.User, req Request) (models.MetricsView, error) {
	req.Dimensions = nil
	if _, _, err := parseDates(req); err != nil {
		return models.MetricsView{}, err
	}
	return cache.Fetch(ctx, s.Cache, s.key("aggregate", u, req), func(ctx context.Context) (models.MetricsView, error) {
		rows, err := s.mainRows(ctx, u, req, nil, req.Path)
		if err != nil {
			return models.MetricsView{}, err
		}
		var total models.MetricTuple
		for _, r := range rows {
			total = total.Add(r.Metrics)
		}
		return models.NewMetricsView(total), nil
	})
}

// Platforms lists the media visible to u in the range.
func (s *Service) Platforms(ctx context.Context, u models.User, req Request) ([]string, error) {
	req.Dimensions, req.Path = nil, nil
	start, end, err := parseDates(req)
	if err != nil {
		return nil, err
	}
	return cache.Fetch(ctx, s.Cache, s.key("platforms", u, req), func(ctx context.Context) ([]string, error) {
		return s.Source.Platforms(ctx, start, end, PredicateFor(u, s.UnknownRole))
	})
}

func (s *Service) hourlyQuery(u models.User, req Request, dims []string) (HourlyQuery, error) {
	tz := req.Timezone
	if tz == "" {
		tz = "UTC"
	}
	now := s.now()
	offset, err := timezone.Offset(tz, now)
	if err != nil {
		return HourlyQuery{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	w, err := timezone.NewWindow(req.StartDate, req.EndDate, offset, now)
	if err != nil {
		return HourlyQuery{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return HourlyQuery{
		Timezone:   tz,
		Dimensions: dims,
		Window:     w,
		Offset:     offset,
		Filters:    req.Path,
		Predicate:  PredicateFor(u, s.UnknownRole),
	}, nil
}

// HourlyHierarchy builds the drill-down tree of the hourly report in the
// requested timezone.
func (s *Service) HourlyHierarchy(ctx context.Context, u models.User, req Request) (*HierarchyResponse, error) {
	req.Path = nil
	if err := validate(Hourly, req); err != nil {
		return nil, err
	}
	q, err := s.hourlyQuery(u, req, req.Dimensions)
	if err != nil {
		return nil, err
	}
	return cache.Fetch(ctx, s.Cache, s.key("hourly_hierarchy", u, req), func(ctx context.Context) (*HierarchyResponse, error) {
		rows, err := s.Source.HourlyRows(ctx, q)
		if err != nil {
			return nil, err
		}
		tree := Build(rows, req.Dimensions)
		return &HierarchyResponse{
			Dimensions: req.Dimensions,
			Hierarchy:  tree.Roots,
			StartDate:  req.StartDate,
			EndDate:    req.EndDate,
			Timezone:   q.Timezone,
		}, nil
	})
}

// HourlyData returns one drill-down level of the hourly report.
func (s *Service) HourlyData(ctx context.Context, u models.User, req Request) ([]DrillRow, error) {
	if err := validate(Hourly, req); err != nil {
		return nil, err
	}
	depth := len(req.Path) + 1
	q, err := s.hourlyQuery(u, req, req.Dimensions[:depth])
	if err != nil {
		return nil, err
	}
	return cache.Fetch(ctx, s.Cache, s.key("hourly_data", u, req), func(ctx context.Context) ([]DrillRow, error) {
		rows, err := s.Source.HourlyRows(ctx, q)
		if err != nil {
			return nil, err
		}
		return s.level(rows, req.Dimensions, req.Path), nil
	})
}

func dateOnly(s string) string {
	if i := strings.IndexByte(s, ' '); i > 0 {
		return s[:i]
	}
	if i := strings.IndexByte(s, 'T'); i > 0 {
		return s[:i]
	}
	return s
}
