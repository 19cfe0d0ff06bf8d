package ejudge

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"github.com/lksh/markboard/internal/domain/mark"
	"github.com/lksh/markboard/internal/domain/shared"
	"github.com/lksh/markboard/internal/domain/standings"
)

// PageFetcher downloads a raw standings page.
type PageFetcher interface {
	FetchStandings(ctx context.Context) ([]byte, error)
}

// Source implements standings.Source: fetch the page, then parse it.
type Source struct {
	fetcher PageFetcher
	grid    mark.Grid
	logger  *slog.Logger
}

// NewSource creates a standings source over a fetcher.
func NewSource(fetcher PageFetcher, grid mark.Grid, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		fetcher: fetcher,
		grid:    grid,
		logger:  logger,
	}
}

// Fetch downloads and parses the current standings. A page that cannot be
// parsed is reported as an external service error.
func (s *Source) Fetch(ctx context.Context) (*standings.Table, error) {
	start := time.Now()

	page, err := s.fetcher.FetchStandings(ctx)
	if err != nil {
		return nil, err
	}

	table, err := ParseStandings(bytes.NewReader(page), s.grid)
	if err != nil {
		s.logger.Error("failed to parse standings page", "bytes", len(page), "error", err)
		return nil, shared.WrapError("ejudge", "Fetch", shared.ErrExternalService, "invalid standings page", err)
	}

	s.logger.Info("standings parsed",
		"students", table.Len(),
		"grid", s.grid.String(),
		"duration", time.Since(start),
	)
	return table, nil
}
