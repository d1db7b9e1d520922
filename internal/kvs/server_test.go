package kvs

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// newTestPair builds a context in ordinary memory (the shared layout works
// anywhere) with a running server and an attached client.
func newTestPair(t *testing.T, workers int) (*Server[int64, int64], *Client[int64, int64]) {
	t.Helper()

	ctx := new(SharedContext[int64, int64])
	server, err := NewServerFromContext(ctx, 4)
	require.NoError(t, err)
	require.True(t, server.Start(workers))
	t.Cleanup(server.Stop)

	client, err := NewClient(ctx, 12345, 5*time.Second)
	require.NoError(t, err)
	return server, client
}

func TestNewServerRejectsNilArguments(t *testing.T) {
	_, err := NewServer[int64, int64](nil, new(ResponseTable[int64]), 0)
	require.ErrorIs(t, err, ErrNilRing)

	_, err = NewServer[int64, int64](new(Ring[int64, int64]), nil, 0)
	require.ErrorIs(t, err, ErrNilTable)

	_, err = NewServerFromContext[int64, int64](nil, 0)
	require.ErrorIs(t, err, ErrNilRing)
}

func TestServerStartStop(t *testing.T) {
	ctx := new(SharedContext[int64, int64])
	server, err := NewServerFromContext(ctx, 0)
	require.NoError(t, err)

	require.False(t, server.IsRunning())
	require.True(t, server.Start(3))
	require.True(t, server.IsRunning())
	require.Equal(t, 3, server.WorkerCount())

	// A second start while running is refused.
	require.False(t, server.Start(3))

	server.Stop()
	require.False(t, server.IsRunning())
	require.Equal(t, 0, server.WorkerCount())

	// Stop is idempotent, and the pool restarts cleanly.
	server.Stop()
	require.True(t, server.Start(1))
	server.Stop()
}

func TestSetGetRoundTrip(t *testing.T) {
	_, client := newTestPair(t, 2)

	require.True(t, client.Set(7, 700))
	value, ok := client.Get(7)
	require.True(t, ok)
	require.Equal(t, int64(700), value)
}

func TestGetMissingKey(t *testing.T) {
	_, client := newTestPair(t, 2)

	_, ok := client.Get(999)
	require.False(t, ok)
}

func TestPostConflict(t *testing.T) {
	_, client := newTestPair(t, 2)

	require.True(t, client.Set(1, 10))
	require.False(t, client.Post(1, 20), "POST onto an existing key must fail")

	value, ok := client.Get(1)
	require.True(t, ok)
	require.Equal(t, int64(10), value, "losing POST must not overwrite")
}

func TestDeleteSemantics(t *testing.T) {
	_, client := newTestPair(t, 2)

	require.True(t, client.Set(3, 30))
	require.True(t, client.Del(3))
	_, ok := client.Get(3)
	require.False(t, ok)
	require.False(t, client.Del(3), "second delete must report not-found")
}

// The composite scenario exercising every command against overlapping keys.
func TestOperationsComposite(t *testing.T) {
	server, client := newTestPair(t, 2)

	for k := int64(0); k < 5; k++ {
		require.True(t, client.Set(k, k*100))
	}
	for k := int64(0); k < 5; k++ {
		value, ok := client.Get(k)
		require.True(t, ok)
		require.Equal(t, k*100, value)
	}
	for k := int64(0); k < 3; k++ {
		require.False(t, client.Post(k, 999), "POST on existing key %d", k)
	}
	for k := int64(10); k < 13; k++ {
		require.True(t, client.Post(k, k*50), "POST on fresh key %d", k)
	}
	for k := int64(0); k < 3; k++ {
		require.True(t, client.Del(k))
	}
	for k := int64(0); k < 3; k++ {
		_, ok := client.Get(k)
		require.False(t, ok)
	}

	// Keys {3,4,10,11,12} remain.
	require.Equal(t, 5, server.StorageSize())
}

func TestUnknownCommandPublishesFailed(t *testing.T) {
	ctx := new(SharedContext[int64, int64])
	server, err := NewServerFromContext(ctx, 0)
	require.NoError(t, err)
	require.True(t, server.Start(1))
	t.Cleanup(server.Stop)

	const ticket = uint64(1)
	ctx.Table().Clear(ticket)
	req := Request[int64, int64]{Cmd: Command(42), Ticket: ticket, ClientPID: 1}
	require.True(t, ctx.Ring().TryEnqueue(&req, MaxRetries))

	require.Eventually(t, func() bool {
		status, done := ctx.Table().Complete(ticket)
		return done && status == StatusFailed
	}, 2*time.Second, time.Millisecond, "unknown command should fail its slot")
}

func TestAsyncTicketsAndAwait(t *testing.T) {
	_, client := newTestPair(t, 2)

	t1, err := client.SetAsync(5, 50)
	require.NoError(t, err)
	t2, err := client.SetAsync(6, 60)
	require.NoError(t, err)
	require.Greater(t, t2, t1, "tickets must increase monotonically")

	status, _, ok := client.Await(t1, 2*time.Second)
	require.True(t, ok)
	require.Equal(t, StatusSuccess, status)
	status, _, ok = client.Await(t2, 2*time.Second)
	require.True(t, ok)
	require.Equal(t, StatusSuccess, status)

	ticket, err := client.GetAsync(5)
	require.NoError(t, err)
	status, value, ok := client.Await(ticket, 2*time.Second)
	require.True(t, ok)
	require.Equal(t, StatusSuccess, status)
	require.Equal(t, int64(50), value)
}

func TestClientTimesOutWithoutWorkers(t *testing.T) {
	ctx := new(SharedContext[int64, int64])
	client, err := NewClient(ctx, 0, 50*time.Millisecond)
	require.NoError(t, err)

	start := time.Now()
	_, ok := client.Get(1)
	require.False(t, ok)
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	// The request is still queued; nobody is draining.
	require.Equal(t, 1, client.QueueSize())
}

func TestSubmitFailsWhenRingFull(t *testing.T) {
	ctx := new(SharedContext[int64, int64])
	client, err := NewClient(ctx, 0, time.Second)
	require.NoError(t, err)

	var req Request[int64, int64]
	for ctx.Ring().TryEnqueue(&req, MaxRetries) {
	}
	require.True(t, client.QueueFull())

	_, err = client.SetAsync(1, 1)
	require.ErrorIs(t, err, ErrQueueFull)
	require.False(t, client.Set(1, 1))
}

func TestDrainStopProcessesBacklog(t *testing.T) {
	ctx := new(SharedContext[int64, int64])
	server, err := NewServerFromContext(ctx, 0)
	require.NoError(t, err)

	// Queue a backlog before any worker runs.
	for i := int64(0); i < 100; i++ {
		ticket := uint64(i + 1)
		ctx.Table().Clear(ticket)
		req := Request[int64, int64]{Cmd: CmdSet, Key: i, Value: i, HasValue: true, Ticket: ticket}
		require.True(t, ctx.Ring().TryEnqueue(&req, MaxRetries))
	}

	require.True(t, server.Start(2))
	server.DrainStop(5 * time.Second)

	require.False(t, server.IsRunning())
	require.True(t, ctx.Ring().Empty())
	require.Equal(t, 100, server.StorageSize())
}

// TestConcurrencyTorture runs 8 clients x 1000 mixed operations over a
// small key space. Every SET must complete, and every successful GET must
// return a value some client wrote for that key; POST and DELETE outcomes
// are not checked.
func TestConcurrencyTorture(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping torture test in short mode")
	}

	const (
		clients  = 8
		opsEach  = 1000
		keySpace = 64
	)

	ctx := new(SharedContext[int64, int64])
	server, err := NewServerFromContext(ctx, 0)
	require.NoError(t, err)
	require.True(t, server.Start(4))
	t.Cleanup(server.Stop)

	// All writes to key k use values k*1_000_000 + c for some client c, so
	// a GET result is checkable without tracking global order.
	validValue := func(key, value int64) bool {
		return value >= key*1_000_000 && value < key*1_000_000+clients
	}

	var wg sync.WaitGroup
	wg.Add(clients)
	errCh := make(chan error, clients)

	for c := 0; c < clients; c++ {
		go func(c int) {
			defer wg.Done()

			client, err := NewClient(ctx, 1000+c, 10*time.Second)
			if err != nil {
				errCh <- err
				return
			}

			rng := uint64(c + 1)
			for i := 0; i < opsEach; i++ {
				// xorshift keeps the mix deterministic per client.
				rng ^= rng << 13
				rng ^= rng >> 7
				rng ^= rng << 17
				key := int64(rng % keySpace)
				value := key*1_000_000 + int64(c)

				switch rng % 4 {
				case 0:
					if got, ok := client.Get(key); ok && !validValue(key, got) {
						t.Errorf("GET(%d) returned %d, never written", key, got)
					}
				case 1:
					if !client.Set(key, value) {
						t.Errorf("SET(%d) did not complete", key)
					}
				case 2:
					client.Post(key, value) // conflict is a legal outcome
				case 3:
					client.Del(key) // not-found is a legal outcome
				}
			}
		}(c)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	require.LessOrEqual(t, server.StorageSize(), keySpace)
}
