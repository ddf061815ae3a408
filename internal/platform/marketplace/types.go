package marketplace

import (
	"time"

	"github.com/adlift/bidpilot/internal/domain"
)

// APIAuctionSlot is the wire representation of one paid slot in a keyword
// auction response.
type APIAuctionSlot struct {
	Position   int    `json:"position"`
	Bid        int    `json:"bid"`
	CampaignID string `json:"campaignId"`
}

// APIAuction is the wire representation of a keyword auction snapshot.
type APIAuction struct {
	Keyword string           `json:"keyword"`
	Slots   []APIAuctionSlot `json:"slots"`
}

// ToDomainSnapshot converts the API auction into the domain snapshot,
// stamping the fetch time.
func (a *APIAuction) ToDomainSnapshot(now time.Time) domain.AuctionSnapshot {
	slots := make([]domain.AuctionSlot, 0, len(a.Slots))
	for _, s := range a.Slots {
		slots = append(slots, domain.AuctionSlot{
			Position:   s.Position,
			Bid:        s.Bid,
			CampaignID: s.CampaignID,
		})
	}
	return domain.AuctionSnapshot{
		Keyword:   a.Keyword,
		FetchedAt: now,
		Slots:     slots,
	}
}

// APISearchResult is one entry of the organic search response.
type APISearchResult struct {
	SKU  string `json:"sku"`
	Rank int    `json:"rank"`
}

// APISearchPage is the organic search response for a keyword.
type APISearchPage struct {
	Keyword string            `json:"keyword"`
	Results []APISearchResult `json:"results"`
}

// APIBidInfo is the response of the campaign bid endpoint.
type APIBidInfo struct {
	CampaignID string `json:"campaignId"`
	Bid        int    `json:"bid"`
}

// APIBidUpdate is the request body for submitting a new bid.
type APIBidUpdate struct {
	Bid int `json:"bid"`
}

// APICampaignStats is the response of the campaign statistics endpoint.
// Rates are fractions, not percentages.
type APICampaignStats struct {
	CampaignID string  `json:"campaignId"`
	CTR        float64 `json:"ctr"`
	CR         float64 `json:"cr"`
}

// APIError is the marketplace error envelope.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
