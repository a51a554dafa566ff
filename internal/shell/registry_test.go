package shell

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/cinemax-club/internal/identity"
)

type fakeProvider struct {
	clients map[string]*fakeClient
}

func (p *fakeProvider) ForVisitor(id string) identity.Client {
	c := &fakeClient{}
	p.clients[id] = c
	return c
}

func (p *fakeProvider) Configured() bool { return true }

type countingObserver struct{ live atomic.Int32 }

func (o *countingObserver) ShellMounted()   { o.live.Add(1) }
func (o *countingObserver) ShellUnmounted() { o.live.Add(-1) }

func TestRegistryGetReusesShell(t *testing.T) {
	provider := &fakeProvider{clients: map[string]*fakeClient{}}
	obs := &countingObserver{}
	r := NewRegistry(provider, Options{}, time.Minute, obs, discardLogger())
	defer r.Close()

	a := r.Get("a")
	require.NotNil(t, a)
	assert.Same(t, a, r.Get("a"))
	assert.NotSame(t, a, r.Get("b"))
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, int32(2), obs.live.Load())
	assert.True(t, a.Mounted())
}

func TestRegistrySweep(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	provider := &fakeProvider{clients: map[string]*fakeClient{}}
	obs := &countingObserver{}
	r := NewRegistry(provider, Options{Now: clock}, 10*time.Minute, obs, discardLogger())
	defer r.Close()

	idle := r.Get("idle")
	now = now.Add(8 * time.Minute)
	r.Get("active")
	now = now.Add(5 * time.Minute)

	assert.Equal(t, 1, r.Sweep(now))
	assert.Equal(t, 1, r.Len())
	assert.False(t, idle.Mounted())
	assert.Equal(t, int32(1), provider.clients["idle"].disposals.Load())
	assert.Equal(t, int32(1), obs.live.Load())

	assert.NotSame(t, idle, r.Get("idle"), "an expired visitor gets a fresh shell")
}

func TestRegistryClose(t *testing.T) {
	provider := &fakeProvider{clients: map[string]*fakeClient{}}
	obs := &countingObserver{}
	r := NewRegistry(provider, Options{}, time.Minute, obs, discardLogger())
	r.Start()

	a := r.Get("a")
	r.Get("b")
	r.Close()
	r.Close()

	assert.False(t, a.Mounted())
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, int32(0), obs.live.Load())
	for id, c := range provider.clients {
		assert.Equal(t, int32(1), c.disposals.Load(), "visitor %s", id)
	}
	assert.Nil(t, r.Get("c"))
}

func TestRegistryGetRacingSweepReturnsLiveShell(t *testing.T) {
	var clock atomic.Int64
	clock.Store(time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC).UnixNano())
	now := func() time.Time { return time.Unix(0, clock.Load()).UTC() }

	provider := &fakeProvider{clients: map[string]*fakeClient{}}
	r := NewRegistry(provider, Options{Now: now}, time.Minute, nil, discardLogger())
	defer r.Close()

	r.Get("v")
	for i := 0; i < 200; i++ {
		clock.Add(int64(2 * time.Minute))

		swept := make(chan struct{})
		go func() {
			defer close(swept)
			r.Sweep(now())
		}()
		got := r.Get("v")
		<-swept

		require.True(t, got.Mounted(), "iteration %d: Get returned a swept shell", i)
		require.Same(t, got, r.Get("v"), "iteration %d", i)
	}
}
