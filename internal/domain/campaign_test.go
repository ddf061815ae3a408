package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() CampaignSettings {
	return CampaignSettings{
		ID:        "c1",
		IsActive:  true,
		Keyword:   "usb hub",
		TargetPos: 1,
		MinBid:    100,
		MaxBid:    1000,
		Strategy:  StrategyPID,
	}
}

func TestParseStrategy(t *testing.T) {
	for raw, want := range map[string]Strategy{
		"pid":         StrategyPID,
		"PID":         StrategyPID,
		" target_pos": StrategyTargetPos,
		"pid ":        StrategyPID,
	} {
		got, err := ParseStrategy(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got)
	}

	for _, raw := range []string{"", "cpc", "target-pos"} {
		_, err := ParseStrategy(raw)
		assert.Error(t, err, raw)
	}
}

func TestValidateAcceptsGoodSettings(t *testing.T) {
	assert.NoError(t, validSettings().Validate())
}

func TestValidateCollectsAllProblems(t *testing.T) {
	c := validSettings()
	c.ID = ""
	c.TargetPos = 0
	c.MinBid = 500
	c.MaxBid = 100
	c.Keyword = ""

	err := c.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSettings)
	msg := err.Error()
	assert.Contains(t, msg, "campaign id")
	assert.Contains(t, msg, "target_pos")
	assert.Contains(t, msg, "min_bid 500 exceeds max_bid 100")
	assert.Contains(t, msg, "keyword")
}

func TestValidateOrganicRequiresSKU(t *testing.T) {
	c := validSettings()
	c.CheckOrganic = true
	c.SKU = ""

	err := c.Validate()
	require.ErrorIs(t, err, ErrInvalidSettings)
	assert.Contains(t, err.Error(), "sku")

	c.SKU = "sku-1"
	assert.NoError(t, c.Validate())
}

func TestValidateRejectsUnknownStrategy(t *testing.T) {
	c := validSettings()
	c.Strategy = "chaos"

	err := c.Validate()
	require.ErrorIs(t, err, ErrInvalidSettings)
	assert.Contains(t, err.Error(), "unknown strategy")
}
