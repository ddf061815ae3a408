package domain

import "context"

// AuctionProvider fetches the live auction ordering for a keyword. A failed
// fetch means "no data this cycle": the worker aborts without touching any
// state, and the next scheduled tick retries naturally.
type AuctionProvider interface {
	FetchAuction(ctx context.Context, keyword string) (AuctionSnapshot, error)
}

// OrganicRankProvider reports the unpaid search placement of a product.
// Failures here fail open: the worker proceeds to the normal computation
// without the organic override.
type OrganicRankProvider interface {
	FetchOrganicRank(ctx context.Context, keyword, sku string) (int, error)
}

// BidSubmitter applies bids to the marketplace and reads back the currently
// applied CPM. FetchBidInfo is the source of truth for "what bid is live":
// the worker compares against the observed value, never an assumed-applied
// one, so a lost submission reconciles itself on the next cycle.
type BidSubmitter interface {
	SubmitBid(ctx context.Context, campaignID string, amount int) error
	FetchBidInfo(ctx context.Context, campaignID string) (int, error)
}

// StatsProvider fetches the efficiency metrics consumed by the CPA guard.
type StatsProvider interface {
	FetchStats(ctx context.Context, campaignID string) (CampaignStats, error)
}

// MarketplaceAPI is the full per-operator API surface of the marketplace.
type MarketplaceAPI interface {
	AuctionProvider
	OrganicRankProvider
	BidSubmitter
	StatsProvider
}

// MarketplaceSource resolves the MarketplaceAPI authenticated as the
// operator owning a campaign. An unknown operator is a configuration error
// wrapping ErrNotFound, not a transient failure.
type MarketplaceSource interface {
	ForOperator(ctx context.Context, operatorID string) (MarketplaceAPI, error)
}
