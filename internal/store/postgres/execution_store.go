package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantrend/dexarb/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore using PostgreSQL.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates a new ExecutionStore backed by the given
// connection pool.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

var _ domain.ExecutionStore = (*ExecutionStore)(nil)

const execSelectCols = `id, opportunity_id, natural_key, token_in, token_out,
	source_venue, target_venue, trade_size, expected_profit,
	funding_provider, funding_fee, gas_cost, realized_profit,
	outcome, reason, tx_ref, started_at, finished_at`

// Create stores a finished execution attempt. Rows are append-only.
func (s *ExecutionStore) Create(ctx context.Context, rec domain.ExecutionRecord) error {
	const query = `
		INSERT INTO executions (
			id, opportunity_id, natural_key, token_in, token_out,
			source_venue, target_venue, trade_size, expected_profit,
			funding_provider, funding_fee, gas_cost, realized_profit,
			outcome, reason, tx_ref, started_at, finished_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13,
			$14, $15, $16, $17, $18
		)`

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.OpportunityID, rec.NaturalKey, rec.TokenIn, rec.TokenOut,
		rec.SourceVenue, rec.TargetVenue, rec.TradeSize, rec.ExpectedProfit,
		rec.FundingProvider, rec.FundingFee, rec.GasCost, rec.RealizedProfit,
		string(rec.Outcome), rec.Reason, rec.TxRef, rec.StartedAt, rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert execution %s: %w", rec.ID, err)
	}
	return nil
}

// GetByID returns the execution record with the given id, or
// domain.ErrNotFound.
func (s *ExecutionStore) GetByID(ctx context.Context, id string) (domain.ExecutionRecord, error) {
	query := `SELECT ` + execSelectCols + ` FROM executions WHERE id = $1`

	row := s.pool.QueryRow(ctx, query, id)
	rec, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ExecutionRecord{}, domain.ErrNotFound
		}
		return domain.ExecutionRecord{}, fmt.Errorf("postgres: get execution %s: %w", id, err)
	}
	return rec, nil
}

// ListRecent returns the most recent execution attempts ordered by start time.
func (s *ExecutionStore) ListRecent(ctx context.Context, limit int) ([]domain.ExecutionRecord, error) {
	query := `SELECT ` + execSelectCols + ` FROM executions ORDER BY started_at DESC`
	args := []any{}

	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent executions: %w", err)
	}
	defer rows.Close()

	var recs []domain.ExecutionRecord
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan execution: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list recent executions rows: %w", err)
	}
	return recs, nil
}

// ListBefore returns all execution attempts finished strictly before the
// cutoff, oldest first. Used by the archiver.
func (s *ExecutionStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ExecutionRecord, error) {
	query := `SELECT ` + execSelectCols + ` FROM executions
		WHERE finished_at < $1
		ORDER BY finished_at ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions before: %w", err)
	}
	defer rows.Close()

	var recs []domain.ExecutionRecord
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan execution: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list executions before rows: %w", err)
	}
	return recs, nil
}

// DeleteBefore removes execution attempts finished strictly before the
// cutoff. The archive pipeline calls this once the rows are in cold storage.
func (s *ExecutionStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	const query = `DELETE FROM executions WHERE finished_at < $1`

	tag, err := s.pool.Exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete executions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SumRealizedProfit returns the total realized profit over executions started
// at or after since. Failed attempts contribute their (negative) gas burn.
func (s *ExecutionStore) SumRealizedProfit(ctx context.Context, since time.Time) (float64, error) {
	const query = `SELECT COALESCE(SUM(realized_profit), 0)
		FROM executions WHERE started_at >= $1`

	var total float64
	if err := s.pool.QueryRow(ctx, query, since).Scan(&total); err != nil {
		return 0, fmt.Errorf("postgres: sum realized profit: %w", err)
	}
	return total, nil
}

// scanExecution reads one execution row from a pgx row scanner.
func scanExecution(row pgx.Row) (domain.ExecutionRecord, error) {
	var rec domain.ExecutionRecord
	var outcome string

	if err := row.Scan(
		&rec.ID, &rec.OpportunityID, &rec.NaturalKey, &rec.TokenIn, &rec.TokenOut,
		&rec.SourceVenue, &rec.TargetVenue, &rec.TradeSize, &rec.ExpectedProfit,
		&rec.FundingProvider, &rec.FundingFee, &rec.GasCost, &rec.RealizedProfit,
		&outcome, &rec.Reason, &rec.TxRef, &rec.StartedAt, &rec.FinishedAt,
	); err != nil {
		return domain.ExecutionRecord{}, err
	}

	rec.Outcome = domain.ExecutionOutcome(outcome)
	return rec, nil
}
