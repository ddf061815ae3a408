package marketplace

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adlift/bidpilot/internal/domain"
)

type fakeOperatorStore struct {
	operators map[string]domain.Operator
	getErr    error
}

func (f *fakeOperatorStore) Get(_ context.Context, id string) (domain.Operator, error) {
	if f.getErr != nil {
		return domain.Operator{}, f.getErr
	}
	op, ok := f.operators[id]
	if !ok {
		return domain.Operator{}, fmt.Errorf("operator %s: %w", id, domain.ErrNotFound)
	}
	return op, nil
}

func (f *fakeOperatorStore) Upsert(_ context.Context, op domain.Operator) error {
	f.operators[op.ID] = op
	return nil
}

func newOperatorSource(store *fakeOperatorStore) *OperatorClients {
	return NewOperatorClients(store, "http://marketplace.local/v2", "service-token", time.Second)
}

func TestForOperatorUsesOperatorToken(t *testing.T) {
	store := &fakeOperatorStore{operators: map[string]domain.Operator{
		"op1": {ID: "op1", Name: "Acme", APIToken: "acme-token"},
	}}
	src := newOperatorSource(store)

	api, err := src.ForOperator(context.Background(), "op1")
	require.NoError(t, err)

	client, ok := api.(*Client)
	require.True(t, ok)
	assert.Equal(t, "acme-token", client.apiToken)
	assert.NotSame(t, src.fallback, client)
}

func TestForOperatorCachesClientPerToken(t *testing.T) {
	store := &fakeOperatorStore{operators: map[string]domain.Operator{
		"op1": {ID: "op1", APIToken: "shared-token"},
		"op2": {ID: "op2", APIToken: "shared-token"},
	}}
	src := newOperatorSource(store)

	first, err := src.ForOperator(context.Background(), "op1")
	require.NoError(t, err)
	second, err := src.ForOperator(context.Background(), "op2")
	require.NoError(t, err)

	// Same token means same client and connection pool.
	assert.Same(t, first, second)
}

func TestForOperatorEmptyIDFallsBack(t *testing.T) {
	src := newOperatorSource(&fakeOperatorStore{operators: map[string]domain.Operator{}})

	api, err := src.ForOperator(context.Background(), "")
	require.NoError(t, err)
	assert.Same(t, src.fallback, api.(*Client))
}

func TestForOperatorEmptyTokenFallsBack(t *testing.T) {
	store := &fakeOperatorStore{operators: map[string]domain.Operator{
		"op1": {ID: "op1", Name: "Tokenless"},
	}}
	src := newOperatorSource(store)

	api, err := src.ForOperator(context.Background(), "op1")
	require.NoError(t, err)
	assert.Same(t, src.fallback, api.(*Client))
}

func TestForOperatorUnknownWrapsNotFound(t *testing.T) {
	src := newOperatorSource(&fakeOperatorStore{operators: map[string]domain.Operator{}})

	_, err := src.ForOperator(context.Background(), "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "ghost")
}

func TestForOperatorStoreFailurePropagates(t *testing.T) {
	src := newOperatorSource(&fakeOperatorStore{getErr: errors.New("pg down")})

	_, err := src.ForOperator(context.Background(), "op1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}
