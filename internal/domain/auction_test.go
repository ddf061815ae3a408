package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionOfReturnsFarWhenAbsent(t *testing.T) {
	s := AuctionSnapshot{Slots: []AuctionSlot{
		{Position: 1, Bid: 500, CampaignID: "a"},
		{Position: 2, Bid: 300, CampaignID: "b"},
	}}

	assert.Equal(t, 2, s.PositionOf("b"))
	assert.Equal(t, FarPosition, s.PositionOf("ghost"))
	assert.Equal(t, FarPosition, AuctionSnapshot{}.PositionOf("a"))
}

func TestBidAt(t *testing.T) {
	s := AuctionSnapshot{Slots: []AuctionSlot{
		{Position: 1, Bid: 500, CampaignID: "a"},
	}}

	bid, ok := s.BidAt(1)
	require.True(t, ok)
	assert.Equal(t, 500, bid)

	_, ok = s.BidAt(2)
	assert.False(t, ok)
}
