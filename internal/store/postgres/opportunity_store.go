package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantrend/dexarb/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a new OpportunityStore backed by the given
// connection pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

var _ domain.OpportunityStore = (*OpportunityStore)(nil)

const oppSelectCols = `id, natural_key,
	token_in_addr, token_in_symbol, token_in_decimals,
	token_out_addr, token_out_symbol, token_out_decimals,
	source_venue, target_venue, source_price, target_price,
	profit_pct, estimated_profit, gas_estimate, trade_size,
	confidence_score, risk_level, status, failure_reason,
	detected_at, updated_at, executed_at, tx_ref`

// Insert stores a detected opportunity. Re-inserting an existing id updates
// the quote-derived fields in place, so a rescan refresh is idempotent.
func (s *OpportunityStore) Insert(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	const query = `
		INSERT INTO opportunities (
			id, natural_key,
			token_in_addr, token_in_symbol, token_in_decimals,
			token_out_addr, token_out_symbol, token_out_decimals,
			source_venue, target_venue, source_price, target_price,
			profit_pct, estimated_profit, gas_estimate, trade_size,
			confidence_score, risk_level, status, failure_reason,
			detected_at, updated_at, executed_at, tx_ref
		) VALUES (
			$1, $2,
			$3, $4, $5,
			$6, $7, $8,
			$9, $10, $11, $12,
			$13, $14, $15, $16,
			$17, $18, $19, $20,
			$21, $22, $23, $24
		)
		ON CONFLICT (id) DO UPDATE SET
			source_price     = EXCLUDED.source_price,
			target_price     = EXCLUDED.target_price,
			profit_pct       = EXCLUDED.profit_pct,
			estimated_profit = EXCLUDED.estimated_profit,
			gas_estimate     = EXCLUDED.gas_estimate,
			trade_size       = EXCLUDED.trade_size,
			confidence_score = EXCLUDED.confidence_score,
			risk_level       = EXCLUDED.risk_level,
			updated_at       = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		opp.ID, opp.NaturalKey(),
		opp.TokenIn.Address.Hex(), opp.TokenIn.Symbol, int16(opp.TokenIn.Decimals),
		opp.TokenOut.Address.Hex(), opp.TokenOut.Symbol, int16(opp.TokenOut.Decimals),
		opp.SourceVenue, opp.TargetVenue, opp.SourcePrice, opp.TargetPrice,
		opp.ProfitPercentage, opp.EstimatedProfit, opp.GasEstimate, opp.TradeSize,
		opp.ConfidenceScore, string(opp.RiskLevel), string(opp.Status), opp.FailureReason,
		opp.DetectedAt, opp.UpdatedAt, opp.ExecutedAt, opp.TxRef,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// UpdateStatus applies a lifecycle transition to a stored opportunity.
// Completing an opportunity also stamps executed_at.
func (s *OpportunityStore) UpdateStatus(ctx context.Context, id string, status domain.OpportunityStatus, reason string) error {
	const query = `
		UPDATE opportunities SET
			status         = $2,
			failure_reason = $3,
			updated_at     = NOW(),
			executed_at    = CASE WHEN $2 = 'completed' THEN NOW() ELSE executed_at END
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, string(status), reason)
	if err != nil {
		return fmt.Errorf("postgres: update opportunity status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID returns the opportunity with the given id, or domain.ErrNotFound.
func (s *OpportunityStore) GetByID(ctx context.Context, id string) (domain.ArbitrageOpportunity, error) {
	query := `SELECT ` + oppSelectCols + ` FROM opportunities WHERE id = $1`

	row := s.pool.QueryRow(ctx, query, id)
	opp, err := scanOpportunity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ArbitrageOpportunity{}, domain.ErrNotFound
		}
		return domain.ArbitrageOpportunity{}, fmt.Errorf("postgres: get opportunity %s: %w", id, err)
	}
	return opp, nil
}

// ListRecent returns the most recent opportunities ordered by detection time.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.ArbitrageOpportunity, error) {
	query := `SELECT ` + oppSelectCols + ` FROM opportunities ORDER BY detected_at DESC`
	args := []any{}

	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent opportunities: %w", err)
	}
	defer rows.Close()

	var opps []domain.ArbitrageOpportunity
	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		opps = append(opps, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list recent opportunities rows: %w", err)
	}
	return opps, nil
}

// ListTerminalBefore returns all completed or failed opportunities whose last
// update is strictly before the cutoff, oldest first. Used by the archiver.
func (s *OpportunityStore) ListTerminalBefore(ctx context.Context, before time.Time) ([]domain.ArbitrageOpportunity, error) {
	query := `SELECT ` + oppSelectCols + ` FROM opportunities
		WHERE status IN ('completed', 'failed') AND updated_at < $1
		ORDER BY updated_at ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list terminal opportunities: %w", err)
	}
	defer rows.Close()

	var opps []domain.ArbitrageOpportunity
	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		opps = append(opps, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list terminal opportunities rows: %w", err)
	}
	return opps, nil
}

// DeleteTerminalBefore removes completed or failed opportunities whose last
// update is strictly before the cutoff and returns the number deleted.
func (s *OpportunityStore) DeleteTerminalBefore(ctx context.Context, before time.Time) (int64, error) {
	const query = `DELETE FROM opportunities
		WHERE status IN ('completed', 'failed') AND updated_at < $1`

	tag, err := s.pool.Exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete terminal opportunities: %w", err)
	}
	return tag.RowsAffected(), nil
}

// scanOpportunity reads one opportunity row from a pgx row scanner.
func scanOpportunity(row pgx.Row) (domain.ArbitrageOpportunity, error) {
	var opp domain.ArbitrageOpportunity
	var naturalKey string
	var inAddr, outAddr string
	var inDecimals, outDecimals int16
	var riskLevel, status string

	if err := row.Scan(
		&opp.ID, &naturalKey,
		&inAddr, &opp.TokenIn.Symbol, &inDecimals,
		&outAddr, &opp.TokenOut.Symbol, &outDecimals,
		&opp.SourceVenue, &opp.TargetVenue, &opp.SourcePrice, &opp.TargetPrice,
		&opp.ProfitPercentage, &opp.EstimatedProfit, &opp.GasEstimate, &opp.TradeSize,
		&opp.ConfidenceScore, &riskLevel, &status, &opp.FailureReason,
		&opp.DetectedAt, &opp.UpdatedAt, &opp.ExecutedAt, &opp.TxRef,
	); err != nil {
		return domain.ArbitrageOpportunity{}, err
	}

	opp.TokenIn.Address = common.HexToAddress(inAddr)
	opp.TokenIn.Decimals = uint8(inDecimals)
	opp.TokenOut.Address = common.HexToAddress(outAddr)
	opp.TokenOut.Decimals = uint8(outDecimals)
	opp.RiskLevel = domain.RiskLevel(riskLevel)
	opp.Status = domain.OpportunityStatus(status)
	return opp, nil
}
