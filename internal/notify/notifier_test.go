package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	name string
	sent []string
	err  error
}

func (f *fakeSender) Send(_ context.Context, title, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, title)
	return nil
}

func (f *fakeSender) Name() string { return f.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyRespectsSubscriptionFilter(t *testing.T) {
	s := &fakeSender{name: "test"}
	n := NewNotifier([]Sender{s}, []string{"config_error"}, discardLogger())

	require.NoError(t, n.Notify(context.Background(), EventConfigError, "bad config", "..."))
	require.NoError(t, n.Notify(context.Background(), EventArchiveDone, "archived", "..."))

	assert.Equal(t, []string{"bad config"}, s.sent)
}

func TestNotifyEmptyFilterAllowsAll(t *testing.T) {
	s := &fakeSender{name: "test"}
	n := NewNotifier([]Sender{s}, nil, discardLogger())

	require.NoError(t, n.Notify(context.Background(), EventEngineStopped, "stopped", "..."))
	assert.Len(t, s.sent, 1)
}

func TestNotifyFailingSenderDoesNotBlockOthers(t *testing.T) {
	broken := &fakeSender{name: "telegram", err: errors.New("api down")}
	ok := &fakeSender{name: "discord"}
	n := NewNotifier([]Sender{broken, ok}, nil, discardLogger())

	err := n.Notify(context.Background(), EventConfigError, "bad config", "...")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram")
	assert.Len(t, ok.sent, 1, "healthy sender still delivers")
}

func TestNotifyNoSendersIsNoOp(t *testing.T) {
	n := NewNotifier(nil, nil, discardLogger())
	assert.NoError(t, n.Notify(context.Background(), EventConfigError, "t", "m"))
}
