package marketplace

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adlift/bidpilot/internal/domain"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-token", 5*time.Second)
}

func TestFetchAuction(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auction", r.URL.Path)
		assert.Equal(t, "usb hub", r.URL.Query().Get("keyword"))
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Write([]byte(`{
			"keyword": "usb hub",
			"slots": [
				{"position": 1, "bid": 500, "campaignId": "a"},
				{"position": 2, "bid": 300, "campaignId": "b"}
			]
		}`))
	})

	snap, err := c.FetchAuction(context.Background(), "usb hub")
	require.NoError(t, err)
	assert.Equal(t, "usb hub", snap.Keyword)
	require.Len(t, snap.Slots, 2)
	assert.Equal(t, 1, snap.PositionOf("a"))
	assert.Equal(t, 2, snap.PositionOf("b"))
	assert.False(t, snap.FetchedAt.IsZero())
}

func TestFetchAuctionWrapsFailures(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.FetchAuction(context.Background(), "usb hub")
	require.ErrorIs(t, err, domain.ErrAuctionUnavailable)
}

func TestFetchOrganicRank(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		w.Write([]byte(`{
			"keyword": "usb hub",
			"results": [
				{"sku": "sku-1", "rank": 3},
				{"sku": "sku-2", "rank": 7}
			]
		}`))
	})

	rank, err := c.FetchOrganicRank(context.Background(), "usb hub", "sku-2")
	require.NoError(t, err)
	assert.Equal(t, 7, rank)
}

func TestFetchOrganicRankAbsentSKU(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"keyword": "usb hub", "results": []}`))
	})

	rank, err := c.FetchOrganicRank(context.Background(), "usb hub", "sku-9")
	require.NoError(t, err)
	assert.Equal(t, domain.FarPosition, rank)
}

func TestFetchOrganicRankWrapsFailures(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.FetchOrganicRank(context.Background(), "usb hub", "sku-1")
	require.ErrorIs(t, err, domain.ErrOrganicCheckFailed)
}

func TestSubmitBid(t *testing.T) {
	var gotMethod, gotPath, gotBody string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		buf, _ := io.ReadAll(r.Body)
		gotBody = string(buf)
		w.Write([]byte(`{}`))
	})

	require.NoError(t, c.SubmitBid(context.Background(), "c1", 450))
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/campaigns/c1/bid", gotPath)
	assert.JSONEq(t, `{"bid": 450}`, gotBody)
}

func TestFetchBidInfo(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/campaigns/c1/bid", r.URL.Path)
		w.Write([]byte(`{"campaignId": "c1", "bid": 275}`))
	})

	bid, err := c.FetchBidInfo(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 275, bid)
}

func TestFetchStats(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/campaigns/c1/stats", r.URL.Path)
		w.Write([]byte(`{"campaignId": "c1", "ctr": 0.04, "cr": 0.015}`))
	})

	stats, err := c.FetchStats(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignStats{CTR: 0.04, CR: 0.015}, stats)
}

func TestNotFoundMapsToDomainError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"code": "CAMPAIGN_NOT_FOUND", "message": "no such campaign"}`))
	})

	_, err := c.FetchBidInfo(context.Background(), "ghost")
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "no such campaign")
}
