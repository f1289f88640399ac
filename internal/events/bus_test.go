package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/MarkBind/markbind-sub000/internal/foundation/errors"
)

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	var zero T
	return zero
}

func TestPublishDeliversByType(t *testing.T) {
	b := NewBus()
	defer b.Close()

	rebuilt, stop := Subscribe[PagesRebuilt](b, 1)
	defer stop()
	changed, stop2 := Subscribe[SourcesChanged](b, 1)
	defer stop2()

	require.NoError(t, b.Publish(t.Context(), PagesRebuilt{Pages: []string{"index.md"}, Hash: "h1"}))

	got := receive(t, rebuilt)
	assert.Equal(t, "h1", got.Hash)
	assert.Empty(t, changed)
}

func TestInterfaceSubscriptionSeesEveryEvent(t *testing.T) {
	b := NewBus()
	defer b.Close()

	all, stop := Subscribe[Event](b, 2)
	defer stop()

	require.NoError(t, b.Publish(t.Context(), SourcesChanged{Paths: []string{"a.md"}}))
	require.NoError(t, b.Publish(t.Context(), PagesRebuilt{}))

	assert.Equal(t, "sources_changed", receive(t, all).EventName())
	assert.Equal(t, "pages_rebuilt", receive(t, all).EventName())
}

func TestPublishBlocksUntilCanceled(t *testing.T) {
	b := NewBus()
	defer b.Close()

	_, stop := Subscribe[SourcesChanged](b, 0)
	defer stop()

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	err := b.Publish(ctx, SourcesChanged{})
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryRuntime))
}

func TestUnsubscribe(t *testing.T) {
	b := NewBus()
	defer b.Close()

	ch, stop := Subscribe[PagesRebuilt](b, 1)
	assert.Equal(t, 1, Subscribers[PagesRebuilt](b))
	stop()
	stop()
	assert.Equal(t, 0, Subscribers[PagesRebuilt](b))

	_, open := <-ch
	assert.False(t, open)
	require.NoError(t, b.Publish(t.Context(), PagesRebuilt{}))
}

func TestClose(t *testing.T) {
	b := NewBus()
	ch, _ := Subscribe[SourcesChanged](b, 1)
	b.Close()

	_, open := <-ch
	assert.False(t, open)
	assert.Error(t, b.Publish(t.Context(), SourcesChanged{}))
	assert.Error(t, b.Publish(t.Context(), nil))

	late, _ := Subscribe[SourcesChanged](b, 1)
	_, open = <-late
	assert.False(t, open)
}
