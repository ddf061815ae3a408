// Package marketplace implements the REST client for the advertising
// marketplace API: keyword auctions, organic search, campaign bids, and
// campaign statistics.
package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/adlift/bidpilot/internal/domain"
)

// Client is the REST client for the marketplace API. It implements
// domain.AuctionProvider, domain.OrganicRankProvider, domain.BidSubmitter,
// and domain.StatsProvider.
type Client struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
}

// NewClient creates a new marketplace client.
//
// baseURL is the API root, e.g. "https://ads-api.marketplace.example/v2".
// apiToken is the seller API bearer token.
func NewClient(baseURL, apiToken string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:  baseURL,
		apiToken: apiToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchAuction returns the current paid-slot auction for a keyword. Failures
// are wrapped in domain.ErrAuctionUnavailable so callers can abort the cycle
// without inspecting transport details.
func (c *Client) FetchAuction(ctx context.Context, keyword string) (domain.AuctionSnapshot, error) {
	params := url.Values{}
	params.Set("keyword", keyword)

	body, err := c.doRequest(ctx, http.MethodGet, "/auction?"+params.Encode(), nil)
	if err != nil {
		return domain.AuctionSnapshot{}, fmt.Errorf("marketplace: fetch auction %q: %w: %w",
			keyword, domain.ErrAuctionUnavailable, err)
	}

	var apiAuction APIAuction
	if err := json.Unmarshal(body, &apiAuction); err != nil {
		return domain.AuctionSnapshot{}, fmt.Errorf("marketplace: decode auction %q: %w: %w",
			keyword, domain.ErrAuctionUnavailable, err)
	}

	return apiAuction.ToDomainSnapshot(time.Now().UTC()), nil
}

// FetchOrganicRank returns the product's rank in unpaid search results for a
// keyword. A product absent from the page gets domain.FarPosition. Failures
// are wrapped in domain.ErrOrganicCheckFailed; the caller decides whether to
// fail open.
func (c *Client) FetchOrganicRank(ctx context.Context, keyword, sku string) (int, error) {
	params := url.Values{}
	params.Set("keyword", keyword)

	body, err := c.doRequest(ctx, http.MethodGet, "/search?"+params.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("marketplace: fetch organic rank %q: %w: %w",
			keyword, domain.ErrOrganicCheckFailed, err)
	}

	var page APISearchPage
	if err := json.Unmarshal(body, &page); err != nil {
		return 0, fmt.Errorf("marketplace: decode search page %q: %w: %w",
			keyword, domain.ErrOrganicCheckFailed, err)
	}

	for _, r := range page.Results {
		if r.SKU == sku {
			return r.Rank, nil
		}
	}
	return domain.FarPosition, nil
}

// FetchBidInfo returns the bid currently applied to a campaign on the
// marketplace side.
func (c *Client) FetchBidInfo(ctx context.Context, campaignID string) (int, error) {
	path := fmt.Sprintf("/campaigns/%s/bid", url.PathEscape(campaignID))

	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return 0, fmt.Errorf("marketplace: fetch bid info %s: %w", campaignID, err)
	}

	var info APIBidInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return 0, fmt.Errorf("marketplace: decode bid info %s: %w", campaignID, err)
	}
	return info.Bid, nil
}

// SubmitBid applies a new bid amount to a campaign.
func (c *Client) SubmitBid(ctx context.Context, campaignID string, amount int) error {
	path := fmt.Sprintf("/campaigns/%s/bid", url.PathEscape(campaignID))

	_, err := c.doRequest(ctx, http.MethodPut, path, APIBidUpdate{Bid: amount})
	if err != nil {
		return fmt.Errorf("marketplace: submit bid %s=%d: %w", campaignID, amount, err)
	}
	return nil
}

// FetchStats returns recent click-through and conversion rates for a
// campaign.
func (c *Client) FetchStats(ctx context.Context, campaignID string) (domain.CampaignStats, error) {
	path := fmt.Sprintf("/campaigns/%s/stats", url.PathEscape(campaignID))

	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return domain.CampaignStats{}, fmt.Errorf("marketplace: fetch stats %s: %w", campaignID, err)
	}

	var stats APICampaignStats
	if err := json.Unmarshal(body, &stats); err != nil {
		return domain.CampaignStats{}, fmt.Errorf("marketplace: decode stats %s: %w", campaignID, err)
	}
	return domain.CampaignStats{CTR: stats.CTR, CR: stats.CR}, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doRequest builds, sends, and reads an HTTP request against the marketplace
// API with bearer-token auth.
func (c *Client) doRequest(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := c.checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

// checkStatus maps non-2xx HTTP status codes to errors.
func (c *Client) checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr APIError
	_ = json.Unmarshal(body, &apiErr)

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s (%s)", domain.ErrNotFound, apiErr.Message, apiErr.Code)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("unauthorized: %s (%s)", apiErr.Message, apiErr.Code)
	case http.StatusTooManyRequests:
		return fmt.Errorf("rate limited: %s (%s)", apiErr.Message, apiErr.Code)
	case http.StatusBadRequest:
		return fmt.Errorf("bad request: %s (%s)", apiErr.Message, apiErr.Code)
	default:
		return fmt.Errorf("HTTP %d: %s (%s)", statusCode, apiErr.Message, apiErr.Code)
	}
}

// Compile-time interface checks.
var (
	_ domain.AuctionProvider     = (*Client)(nil)
	_ domain.OrganicRankProvider = (*Client)(nil)
	_ domain.BidSubmitter        = (*Client)(nil)
	_ domain.StatsProvider       = (*Client)(nil)
)
