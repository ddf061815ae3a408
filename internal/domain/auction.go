package domain

import "time"

// FarPosition is the sentinel rank used when a campaign is absent from the
// auction snapshot. It keeps the controller driving bids upward from a "far"
// state instead of failing the cycle.
const FarPosition = 100

// AuctionSlot is one entry of a live auction ordering.
type AuctionSlot struct {
	// Position is the 1-based auction rank; lower is better.
	Position int
	// Bid is the CPM bid currently holding the slot.
	Bid int
	// CampaignID identifies the advertiser occupying the slot.
	CampaignID string
}

// AuctionSnapshot is the live auction ordering for a keyword, fetched fresh
// every cycle and never persisted by the engine.
type AuctionSnapshot struct {
	Keyword   string
	FetchedAt time.Time
	// Slots are ordered by position; ranks are 1-based and contiguous.
	Slots []AuctionSlot
}

// PositionOf returns the rank the given campaign holds in the snapshot, or
// FarPosition when the campaign is not present in the auction.
func (s AuctionSnapshot) PositionOf(campaignID string) int {
	for _, slot := range s.Slots {
		if slot.CampaignID == campaignID {
			return slot.Position
		}
	}
	return FarPosition
}

// BidAt returns the bid holding the given rank and whether that rank is
// occupied at all.
func (s AuctionSnapshot) BidAt(position int) (int, bool) {
	for _, slot := range s.Slots {
		if slot.Position == position {
			return slot.Bid, true
		}
	}
	return 0, false
}
