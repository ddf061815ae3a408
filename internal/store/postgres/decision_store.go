package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/adlift/bidpilot/internal/domain"
)

// DecisionStore implements domain.DecisionStore using PostgreSQL. Rows are
// append-only; the engine never updates or deletes them.
type DecisionStore struct {
	pool *pgxpool.Pool
}

// NewDecisionStore creates a new DecisionStore backed by the given pool.
func NewDecisionStore(pool *pgxpool.Pool) *DecisionStore {
	return &DecisionStore{pool: pool}
}

const decisionSelectCols = `id, campaign_id, time, current_pos, target_pos,
	previous_bid, calculated_bid, action, reason, saved_amount`

func scanDecisionRows(rows pgx.Rows) ([]domain.BidDecision, error) {
	var decisions []domain.BidDecision
	for rows.Next() {
		var d domain.BidDecision
		var action string
		if err := rows.Scan(
			&d.ID, &d.CampaignID, &d.Time, &d.CurrentPos, &d.TargetPos,
			&d.PreviousBid, &d.CalculatedBid, &action, &d.Reason, &d.SavedAmount,
		); err != nil {
			return nil, err
		}
		d.Action = domain.Action(action)
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

// Append inserts one decision row.
func (s *DecisionStore) Append(ctx context.Context, d domain.BidDecision) error {
	const query = `
		INSERT INTO bid_decisions (
			id, campaign_id, time, current_pos, target_pos,
			previous_bid, calculated_bid, action, reason, saved_amount
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.pool.Exec(ctx, query,
		d.ID, d.CampaignID, d.Time, d.CurrentPos, d.TargetPos,
		d.PreviousBid, d.CalculatedBid, string(d.Action), d.Reason, d.SavedAmount,
	)
	if err != nil {
		return fmt.Errorf("postgres: append decision for %s: %w", d.CampaignID, err)
	}
	return nil
}

// ListByCampaign returns decisions for one campaign, newest first, with
// pagination and optional time filtering.
func (s *DecisionStore) ListByCampaign(ctx context.Context, campaignID string, opts domain.ListOpts) ([]domain.BidDecision, error) {
	query := `SELECT ` + decisionSelectCols + ` FROM bid_decisions WHERE campaign_id = $1`
	args := []any{campaignID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND time >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND time <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY time DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list decisions for %s: %w", campaignID, err)
	}
	defer rows.Close()

	decisions, err := scanDecisionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan decisions for %s: %w", campaignID, err)
	}
	return decisions, nil
}

// ListBefore returns all decisions strictly older than the cutoff, oldest
// first, for cold-storage archival.
func (s *DecisionStore) ListBefore(ctx context.Context, before time.Time) ([]domain.BidDecision, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+decisionSelectCols+` FROM bid_decisions WHERE time < $1 ORDER BY time ASC`,
		before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list decisions before %v: %w", before, err)
	}
	defer rows.Close()
	return scanDecisionRows(rows)
}

// SumSaved totals saved_amount for a campaign since the given time. The
// result is the "budget saved" figure shown on dashboards.
func (s *DecisionStore) SumSaved(ctx context.Context, campaignID string, since time.Time) (int64, error) {
	var sum *int64
	err := s.pool.QueryRow(ctx,
		`SELECT SUM(saved_amount) FROM bid_decisions WHERE campaign_id = $1 AND time >= $2`,
		campaignID, since).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("postgres: sum saved for %s: %w", campaignID, err)
	}
	if sum == nil {
		return 0, nil
	}
	return *sum, nil
}

// Compile-time interface check.
var _ domain.DecisionStore = (*DecisionStore)(nil)
