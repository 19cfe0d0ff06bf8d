package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lksh/markboard/internal/domain/mark"
	"github.com/lksh/markboard/internal/domain/shared"
	"github.com/lksh/markboard/internal/domain/standings"
)

// ══════════════════════════════════════════════════════════════════════════════
// STANDINGS REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// StandingsRepository implements standings.Repository for PostgreSQL.
type StandingsRepository struct {
	db *DB
}

// NewStandingsRepository creates a new StandingsRepository.
func NewStandingsRepository(db *DB) *StandingsRepository {
	return &StandingsRepository{db: db}
}

var _ standings.Repository = (*StandingsRepository)(nil)

const snapshotColumns = `id, contest_from, contest_to, topics, levels, students, fetched_at`

// ─────────────────────────────────────────────────────────────────────────────
// WRITE OPERATIONS
// ─────────────────────────────────────────────────────────────────────────────

// Save stores the snapshot header and all of its rows in one transaction.
func (r *StandingsRepository) Save(ctx context.Context, snapshot *standings.Snapshot) error {
	id, err := uuid.Parse(snapshot.ID)
	if err != nil {
		return shared.WrapError("standings", "Save", shared.ErrInvalidID, "snapshot ID is not a UUID", err)
	}

	table := snapshot.Table
	grid := table.Grid()
	entries := table.Entries()

	return r.db.inTx(ctx, false, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO standings_snapshots (id, contest_from, contest_to, topics, levels, students, fetched_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`,
			id,
			snapshot.Contests.From,
			snapshot.Contests.To,
			grid.Topics,
			grid.Levels,
			len(entries),
			snapshot.FetchedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return shared.WrapError("standings", "Save", shared.ErrAlreadyExists, "snapshot already stored", err)
			}
			return fmt.Errorf("failed to insert snapshot: %w", err)
		}

		if len(entries) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for position, entry := range entries {
			batch.Queue(`
				INSERT INTO standings_results
				(snapshot_id, position, ejid, grp, last_name, first_name, solved, mark)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`,
				id,
				position,
				entry.Student.EJID.Int(),
				entry.Student.Group,
				entry.Student.LastName,
				entry.Student.FirstName,
				encodeSolved(entry.Solved),
				entry.Mark,
			)
		}

		br := tx.SendBatch(ctx, batch)
		defer br.Close()

		for range entries {
			if _, err := br.Exec(); err != nil {
				return fmt.Errorf("failed to insert standings row: %w", err)
			}
		}

		return br.Close()
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// READ OPERATIONS
// ─────────────────────────────────────────────────────────────────────────────

// Latest returns the most recently fetched snapshot.
func (r *StandingsRepository) Latest(ctx context.Context) (*standings.Snapshot, error) {
	var snapshot *standings.Snapshot

	err := r.db.inTx(ctx, true, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT `+snapshotColumns+`
			FROM standings_snapshots
			ORDER BY fetched_at DESC, created_at DESC
			LIMIT 1
		`)

		var err error
		snapshot, err = r.load(ctx, tx, row)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Get returns a snapshot by ID.
func (r *StandingsRepository) Get(ctx context.Context, id string) (*standings.Snapshot, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, shared.WrapError("standings", "Get", shared.ErrInvalidID, "snapshot ID is not a UUID", err)
	}

	var snapshot *standings.Snapshot
	err = r.db.inTx(ctx, true, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT `+snapshotColumns+`
			FROM standings_snapshots
			WHERE id = $1
		`, parsed)

		var err error
		snapshot, err = r.load(ctx, tx, row)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// List returns summaries of the most recent snapshots, newest first.
func (r *StandingsRepository) List(ctx context.Context, limit int) ([]standings.Summary, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	rows, err := r.db.pool.Query(ctx, `
		SELECT `+snapshotColumns+`
		FROM standings_snapshots
		ORDER BY fetched_at DESC, created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	summaries := make([]standings.Summary, 0, limit)
	for rows.Next() {
		h, err := scanHeader(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, h.summary())
	}

	return summaries, rows.Err()
}

// DeleteOlderThan removes snapshots fetched before the cutoff. The latest
// snapshot is always kept.
func (r *StandingsRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.pool.Exec(ctx, `
		DELETE FROM standings_snapshots
		WHERE fetched_at < $1
		  AND id <> (SELECT id FROM standings_snapshots ORDER BY fetched_at DESC, created_at DESC LIMIT 1)`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// HELPERS
// ─────────────────────────────────────────────────────────────────────────────

// snapshotHeader is a standings_snapshots row.
type snapshotHeader struct {
	id        uuid.UUID
	from, to  string
	grid      mark.Grid
	students  int
	fetchedAt time.Time
}

func (h snapshotHeader) summary() standings.Summary {
	return standings.Summary{
		ID:        h.id.String(),
		From:      h.from,
		To:        h.to,
		Grid:      h.grid,
		FetchedAt: h.fetchedAt.UTC(),
		Students:  h.students,
	}
}

func scanHeader(row pgx.Row) (snapshotHeader, error) {
	var h snapshotHeader
	err := row.Scan(&h.id, &h.from, &h.to, &h.grid.Topics, &h.grid.Levels, &h.students, &h.fetchedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return h, shared.ErrSnapshotNotFound
		}
		return h, fmt.Errorf("failed to scan snapshot: %w", err)
	}
	return h, nil
}

// load reads the header row and the ordered standings rows of a snapshot.
func (r *StandingsRepository) load(ctx context.Context, tx pgx.Tx, row pgx.Row) (*standings.Snapshot, error) {
	h, err := scanHeader(row)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT ejid, grp, last_name, first_name, solved
		FROM standings_results
		WHERE snapshot_id = $1
		ORDER BY position
	`, h.id)
	if err != nil {
		return nil, fmt.Errorf("failed to query standings rows: %w", err)
	}
	defer rows.Close()

	table := standings.NewTable(h.grid)
	for rows.Next() {
		var (
			student standings.Student
			ejid    int
			solved  []int16
		)
		if err := rows.Scan(&ejid, &student.Group, &student.LastName, &student.FirstName, &solved); err != nil {
			return nil, fmt.Errorf("failed to scan standings row: %w", err)
		}
		student.EJID = shared.EJID(ejid)

		if err := table.Add(student, decodeSolved(solved)); err != nil {
			return nil, fmt.Errorf("stored standings row for ejid %d: %w", ejid, err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &standings.Snapshot{
		ID:        h.id.String(),
		Contests:  shared.ContestRange{From: h.from, To: h.to},
		FetchedAt: h.fetchedAt.UTC(),
		Table:     table,
	}, nil
}

func encodeSolved(solved []int) []int16 {
	out := make([]int16, len(solved))
	for i, v := range solved {
		out[i] = int16(v)
	}
	return out
}

func decodeSolved(solved []int16) []int {
	out := make([]int, len(solved))
	for i, v := range solved {
		out[i] = int(v)
	}
	return out
}
