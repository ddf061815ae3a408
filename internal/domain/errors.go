package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrLockHeld           = errors.New("lock already held")
	ErrAuctionUnavailable = errors.New("auction data unavailable")
	ErrOrganicCheckFailed = errors.New("organic rank check failed")
	ErrInactiveCampaign   = errors.New("campaign is inactive")
	ErrInvalidSettings    = errors.New("invalid campaign settings")
)
