package marketplace

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adlift/bidpilot/internal/domain"
)

// OperatorClients hands out marketplace clients authenticated per operator.
// Each campaign runs under the API token of the operator that owns it;
// campaigns without an operator fall back to the service-level token.
//
// Clients are cached by token, so two campaigns of the same operator share
// one http.Client and its connection pool.
type OperatorClients struct {
	operators domain.OperatorStore
	baseURL   string
	timeout   time.Duration

	// fallback serves campaigns with no operator binding.
	fallback *Client

	mu      sync.Mutex
	byToken map[string]*Client
}

// NewOperatorClients creates the per-operator client source. defaultToken is
// the service-level bearer token used when a campaign carries no operator.
func NewOperatorClients(operators domain.OperatorStore, baseURL, defaultToken string, timeout time.Duration) *OperatorClients {
	return &OperatorClients{
		operators: operators,
		baseURL:   baseURL,
		timeout:   timeout,
		fallback:  NewClient(baseURL, defaultToken, timeout),
		byToken:   make(map[string]*Client),
	}
}

// ForOperator resolves the client for one operator. An unknown operator
// wraps domain.ErrNotFound: that is a configuration error, not a transient
// one, and the caller refuses the cycle instead of retrying.
func (s *OperatorClients) ForOperator(ctx context.Context, operatorID string) (domain.MarketplaceAPI, error) {
	if operatorID == "" {
		return s.fallback, nil
	}

	op, err := s.operators.Get(ctx, operatorID)
	if err != nil {
		return nil, fmt.Errorf("marketplace: operator %s credentials: %w", operatorID, err)
	}
	if op.APIToken == "" {
		return s.fallback, nil
	}
	return s.clientFor(op.APIToken), nil
}

func (s *OperatorClients) clientFor(token string) *Client {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.byToken[token]; ok {
		return c
	}
	c := NewClient(s.baseURL, token, s.timeout)
	s.byToken[token] = c
	return c
}

var _ domain.MarketplaceSource = (*OperatorClients)(nil)
