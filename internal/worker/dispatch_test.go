package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchUnknownEvent(t *testing.T) {
	f := newFixture(t, nil)
	d := NewDispatcher(f.worker)

	_, err := d.Dispatch(context.Background(), Event{Type: "sync"}).Wait(context.Background())
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestDispatchLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	f.respond("GET", "/", 200, "root")
	f.respond("GET", "/index.html", 200, "index")
	f.respond("GET", "/offline.html", 200, "offline page")
	_, err := f.storage.Open("mql5-automation-v0")
	require.NoError(t, err)

	d := NewDispatcher(f.worker)
	ctx := context.Background()

	_, err = d.Dispatch(ctx, Event{Type: EventInstall}).Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateActivated, f.worker.State(), "install skips waiting")

	names, err := f.storage.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"mql5-automation-v1"}, names)

	res, err := d.Dispatch(ctx, Event{Type: EventFetch, Request: get(t, "/index.html")}).Wait(ctx)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, SourceCache, res.Source)
	assert.Equal(t, "index", readBody(t, res.Response))
}

func TestDispatchFailedInstallDoesNotActivate(t *testing.T) {
	f := newFixture(t, nil)
	f.fail("GET", "/")

	d := NewDispatcher(f.worker)
	_, err := d.Dispatch(context.Background(), Event{Type: EventInstall}).Wait(context.Background())
	assert.ErrorIs(t, err, ErrInstallFailed)
	assert.Equal(t, StateRedundant, f.worker.State())

	_, err = d.Dispatch(context.Background(), Event{Type: EventActivate}).Wait(context.Background())
	assert.ErrorIs(t, err, ErrNotInstalled)
}

func TestDispatchMessage(t *testing.T) {
	f := newFixture(t, nil)
	d := NewDispatcher(f.worker)

	var replies []any
	port := PortFunc(func(v any) error {
		replies = append(replies, v)
		return nil
	})

	_, err := d.Dispatch(context.Background(), Event{Type: EventMessage, Message: Message{Type: MessageClearCache}, Port: port}).Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []any{CacheClearedResponse{Type: "CACHE_CLEARED", Success: true}}, replies)
}

func TestDispatchPushAndClick(t *testing.T) {
	f := newFixture(t, nil)
	d := NewDispatcher(f.worker)
	ctx := context.Background()

	_, err := d.Dispatch(ctx, Event{Type: EventPush, Payload: []byte("margin call")}).Wait(ctx)
	require.NoError(t, err)
	require.Len(t, f.center.Active(), 1)

	_, err = d.Dispatch(ctx, Event{Type: EventNotificationClick, Tag: "trading-notification"}).Wait(ctx)
	require.NoError(t, err)
	assert.Empty(t, f.center.Active())
	assert.Equal(t, []string{"/"}, f.clients.opened)
}

func TestPendingWaitHonoursContext(t *testing.T) {
	f := newFixture(t, nil)
	d := NewDispatcher(f.worker)

	release := make(chan struct{})
	d.Handle("sync", func(ctx context.Context, _ Event) (*FetchResult, error) {
		<-release
		return nil, nil
	})

	p := d.Dispatch(context.Background(), Event{Type: "sync"})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := p.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	<-p.Done()
	_, err = p.Wait(context.Background())
	assert.NoError(t, err)
}
