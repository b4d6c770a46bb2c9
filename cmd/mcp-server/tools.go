package main

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/JR-coderli/EFsafari/internal/ledger"
	"github.com/JR-coderli/EFsafari/internal/models"
	"github.com/JR-coderli/EFsafari/internal/reporting"
)

// HierarchyInput selects a report hierarchy.
type HierarchyInput struct {
	StartDate  string   `json:"start_date"`
	EndDate    string   `json:"end_date"`
	Dimensions []string `json:"dimensions"`
	Timezone   string   `json:"timezone,omitempty"`
	Hourly     bool     `json:"hourly,omitempty"`
}

// DailyReportInput selects ledger rows.
type DailyReportInput struct {
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
	Media     []string `json:"media,omitempty"`
}

// DailyReportOutput is the ledger rows of a range with their totals.
type DailyReportOutput struct {
	Rows    []models.SpendRecord `json:"rows"`
	Summary ledger.Summary       `json:"summary"`
}

// ReportTools answers MCP tool calls with the permissions of one
// configured dashboard user.
type ReportTools struct {
	reports *reporting.Service
	ledger  *ledger.Ledger
	user    models.User
	timeout time.Duration
	logger  *zap.Logger
}

// GetHierarchy implements the get_hierarchy tool.
func (s *ReportTools) GetHierarchy(ctx context.Context, _ *mcp.CallToolRequest, input HierarchyInput) (*mcp.CallToolResult, any, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req := reporting.Request{
		Dimensions: input.Dimensions,
		StartDate:  input.StartDate,
		EndDate:    input.EndDate,
		Timezone:   input.Timezone,
	}
	var (
		resp *reporting.HierarchyResponse
		err  error
	)
	if input.Hourly {
		resp, err = s.reports.HourlyHierarchy(ctx, s.user, req)
	} else {
		resp, err = s.reports.Hierarchy(ctx, s.user, req)
	}
	if err != nil {
		s.logger.Warn("get_hierarchy failed", zap.Error(err))
		return nil, nil, fmt.Errorf("get_hierarchy: %w", err)
	}
	return nil, resp, nil
}

// GetDailyReport implements the get_daily_report tool.
func (s *ReportTools) GetDailyReport(ctx context.Context, _ *mcp.CallToolRequest, input DailyReportInput) (*mcp.CallToolResult, any, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start, end, err := ledger.ParseRange(input.StartDate, input.EndDate)
	if err != nil {
		return nil, nil, err
	}
	rows, err := s.ledger.List(ctx, s.user, start, end, input.Media)
	if err != nil {
		s.logger.Warn("get_daily_report failed", zap.Error(err))
		return nil, nil, fmt.Errorf("get_daily_report: %w", err)
	}
	if rows == nil {
		rows = []models.SpendRecord{}
	}
	return nil, DailyReportOutput{Rows: rows, Summary: ledger.Summarize(rows)}, nil
}

func dateProperty(desc string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"pattern":     `^\d{4}-\d{2}-\d{2}$`,
		"description": desc,
	}
}

// register adds the report tools to server.
func (s *ReportTools) register(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_hierarchy",
		Description: "Aggregate marketing metrics into a drill-down tree over the given dimensions",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"start_date": dateProperty("First report date (YYYY-MM-DD)"),
				"end_date":   dateProperty("Last report date (YYYY-MM-DD)"),
				"dimensions": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Dimensions from outermost to innermost, e.g. platform, offer, lander",
				},
				"timezone": map[string]interface{}{
					"type":        "string",
					"description": "Reporting timezone for the hourly report (optional, defaults to UTC)",
				},
				"hourly": map[string]interface{}{
					"type":        "boolean",
					"description": "Query the hourly report instead of the daily one",
				},
			},
			"required": []string{"start_date", "end_date", "dimensions"},
		},
	}, s.GetHierarchy)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_daily_report",
		Description: "List daily spend ledger rows per media with corrected spend and totals",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"start_date": dateProperty("First date (YYYY-MM-DD)"),
				"end_date":   dateProperty("Last date (YYYY-MM-DD)"),
				"media": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Only these media (optional)",
				},
			},
			"required": []string{"start_date", "end_date"},
		},
	}, s.GetDailyReport)
}
