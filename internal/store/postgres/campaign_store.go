package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/adlift/bidpilot/internal/domain"
)

// CampaignStore implements domain.CampaignStore using PostgreSQL.
type CampaignStore struct {
	pool *pgxpool.Pool
}

// NewCampaignStore creates a new CampaignStore backed by the given pool.
func NewCampaignStore(pool *pgxpool.Pool) *CampaignStore {
	return &CampaignStore{pool: pool}
}

const campaignSelectCols = `id, operator_id, name, is_active, keyword, sku,
	target_pos, min_bid, max_bid, target_cpa, max_cpm, strategy,
	check_organic, updated_at`

func scanCampaign(row pgx.Row) (domain.CampaignSettings, error) {
	var c domain.CampaignSettings
	var strategy string
	err := row.Scan(
		&c.ID, &c.OperatorID, &c.Name, &c.IsActive, &c.Keyword, &c.SKU,
		&c.TargetPos, &c.MinBid, &c.MaxBid, &c.TargetCPA, &c.MaxCPM,
		&strategy, &c.CheckOrganic, &c.UpdatedAt,
	)
	if err != nil {
		return domain.CampaignSettings{}, err
	}
	c.Strategy = domain.Strategy(strategy)
	return c, nil
}

// Get returns a single campaign by ID. It returns domain.ErrNotFound when no
// row exists.
func (s *CampaignStore) Get(ctx context.Context, id string) (domain.CampaignSettings, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+campaignSelectCols+` FROM campaigns WHERE id = $1`, id)

	c, err := scanCampaign(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CampaignSettings{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.CampaignSettings{}, fmt.Errorf("postgres: get campaign %s: %w", id, err)
	}
	return c, nil
}

// ListActive returns every campaign with is_active = true. This is the
// producer's scheduling read path.
func (s *CampaignStore) ListActive(ctx context.Context) ([]domain.CampaignSettings, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+campaignSelectCols+` FROM campaigns WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []domain.CampaignSettings
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan campaign: %w", err)
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

// Upsert inserts or fully replaces a campaign row.
func (s *CampaignStore) Upsert(ctx context.Context, c domain.CampaignSettings) error {
	const query = `
		INSERT INTO campaigns (
			id, operator_id, name, is_active, keyword, sku,
			target_pos, min_bid, max_bid, target_cpa, max_cpm,
			strategy, check_organic, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, NOW()
		) ON CONFLICT (id) DO UPDATE SET
			operator_id = EXCLUDED.operator_id,
			name = EXCLUDED.name,
			is_active = EXCLUDED.is_active,
			keyword = EXCLUDED.keyword,
			sku = EXCLUDED.sku,
			target_pos = EXCLUDED.target_pos,
			min_bid = EXCLUDED.min_bid,
			max_bid = EXCLUDED.max_bid,
			target_cpa = EXCLUDED.target_cpa,
			max_cpm = EXCLUDED.max_cpm,
			strategy = EXCLUDED.strategy,
			check_organic = EXCLUDED.check_organic,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query,
		c.ID, c.OperatorID, c.Name, c.IsActive, c.Keyword, c.SKU,
		c.TargetPos, c.MinBid, c.MaxBid, c.TargetCPA, c.MaxCPM,
		string(c.Strategy), c.CheckOrganic,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert campaign %s: %w", c.ID, err)
	}
	return nil
}

// SetActive flips the scheduling gate for a campaign.
func (s *CampaignStore) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE campaigns SET is_active = $2, updated_at = NOW() WHERE id = $1`,
		id, active)
	if err != nil {
		return fmt.Errorf("postgres: set campaign %s active=%t: %w", id, active, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Compile-time interface check.
var _ domain.CampaignStore = (*CampaignStore)(nil)
