package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caio-sobreiro/dicomizer/codec"
	dcmerrors "github.com/caio-sobreiro/dicomizer/errors"
)

type fakeStore struct {
	mu      sync.Mutex
	frames  map[string][]byte
	calls   []string
	block   chan struct{}
	started chan string
}

func (s *fakeStore) GetStudyMetadata(ctx context.Context, datastoreID, studyID string) ([]byte, error) {
	return nil, dcmerrors.ErrNotFound
}

func (s *fakeStore) GetFrame(ctx context.Context, datastoreID, studyID, frameID string) ([]byte, error) {
	s.mu.Lock()
	s.calls = append(s.calls, frameID)
	s.mu.Unlock()

	if s.started != nil {
		s.started <- frameID
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	payload, ok := s.frames[frameID]
	if !ok {
		return nil, fmt.Errorf("frame %s: %w", frameID, dcmerrors.ErrNotFound)
	}
	return payload, nil
}

// fakeDecoder returns a 1x1 8-bit frame whose single sample is the payload length.
var fakeDecoder = codec.DecoderFunc(func(ctx context.Context, payload []byte) (*codec.PixelBuffer, error) {
	if string(payload) == "corrupt" {
		return nil, errors.New("bad codestream")
	}
	return &codec.PixelBuffer{
		Rows:            1,
		Columns:         1,
		BitsAllocated:   8,
		SamplesPerPixel: 1,
		Data:            []byte{byte(len(payload))},
	}, nil
})

func newStartedPool(t *testing.T, size int, store *fakeStore, opts ...Option) *Pool {
	t.Helper()
	pool, err := NewPool(size, store, fakeDecoder, opts...)
	require.NoError(t, err)
	require.NoError(t, pool.Start(context.Background()))
	t.Cleanup(pool.Stop)
	return pool
}

// collect waits for n completions across all workers.
func collect(t *testing.T, pool *Pool, n int) []Completion {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var completions []Completion
	for len(completions) < n {
		for i := 0; i < pool.Size(); i++ {
			if c, ok := pool.Drain(i); ok {
				completions = append(completions, c)
			}
		}
		if len(completions) >= n {
			break
		}
		select {
		case <-pool.Ready():
		case <-ctx.Done():
			t.Fatalf("timed out with %d of %d completions", len(completions), n)
		}
	}
	return completions
}

func TestNewPool_Invalid(t *testing.T) {
	_, err := NewPool(0, &fakeStore{}, fakeDecoder)
	require.Error(t, err)
	assert.ErrorIs(t, err, dcmerrors.ErrMissingArgument)

	var argErr *dcmerrors.ArgumentError
	assert.True(t, errors.As(err, &argErr))

	_, err = NewPool(1, nil, fakeDecoder)
	assert.Error(t, err)
}

func TestPool_FetchAndDecode(t *testing.T) {
	store := &fakeStore{frames: map[string][]byte{"f1": []byte("abc"), "f2": []byte("abcdef")}}
	pool := newStartedPool(t, 2, store)

	require.NoError(t, pool.Submit(&Job{FrameID: "f1", InstanceUID: "1.1"}, 0))
	require.NoError(t, pool.Submit(&Job{FrameID: "f2", InstanceUID: "1.2"}, 1))

	completions := collect(t, pool, 2)
	byFrame := map[string]Completion{}
	for _, c := range completions {
		require.NoError(t, c.Err)
		byFrame[c.Job.FrameID] = c
	}

	assert.Equal(t, 0, byFrame["f1"].Worker)
	assert.Equal(t, []byte{3}, byFrame["f1"].Job.Pixels.Data)
	assert.Equal(t, 1, byFrame["f2"].Worker)
	assert.Equal(t, []byte{6}, byFrame["f2"].Job.Pixels.Data)
}

func TestPool_FIFOWithinWorker(t *testing.T) {
	store := &fakeStore{frames: map[string][]byte{}}
	pool, err := NewPool(1, store, fakeDecoder)
	require.NoError(t, err)

	// Queue everything before the worker starts
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("f%d", i)
		store.frames[id] = []byte(id)
		require.NoError(t, pool.Submit(&Job{FrameID: id}, 0))
	}
	assert.Equal(t, 5, pool.Pending())

	require.NoError(t, pool.Start(context.Background()))
	t.Cleanup(pool.Stop)

	completions := collect(t, pool, 5)
	for i, c := range completions {
		assert.Equal(t, fmt.Sprintf("f%d", i), c.Job.FrameID)
	}
	assert.Equal(t, 0, pool.Pending())
}

func TestPool_FailuresAreReported(t *testing.T) {
	store := &fakeStore{frames: map[string][]byte{"good": []byte("x"), "corrupt": []byte("corrupt")}}
	pool := newStartedPool(t, 1, store)

	require.NoError(t, pool.Submit(&Job{FrameID: "missing"}, 0))
	require.NoError(t, pool.Submit(&Job{FrameID: "corrupt"}, 0))
	require.NoError(t, pool.Submit(&Job{FrameID: "good"}, 0))

	completions := collect(t, pool, 3)

	assert.ErrorIs(t, completions[0].Err, dcmerrors.ErrFrameFetch)
	assert.ErrorIs(t, completions[0].Err, dcmerrors.ErrNotFound)
	assert.Nil(t, completions[0].Job.Pixels)

	assert.ErrorIs(t, completions[1].Err, dcmerrors.ErrFrameDecode)
	assert.Nil(t, completions[1].Job.Pixels)

	assert.NoError(t, completions[2].Err)
	assert.NotNil(t, completions[2].Job.Pixels)
}

func TestPool_FetchTimeout(t *testing.T) {
	store := &fakeStore{frames: map[string][]byte{"f1": []byte("x")}, block: make(chan struct{})}
	defer close(store.block)
	pool := newStartedPool(t, 1, store, WithFetchTimeout(20*time.Millisecond))

	require.NoError(t, pool.Submit(&Job{FrameID: "f1"}, 0))

	completions := collect(t, pool, 1)
	require.Error(t, completions[0].Err)

	var timeoutErr *dcmerrors.TimeoutError
	assert.True(t, errors.As(completions[0].Err, &timeoutErr))
	assert.ErrorIs(t, completions[0].Err, dcmerrors.ErrFrameFetch)
}

func TestPool_StopFinishesInFlightJob(t *testing.T) {
	store := &fakeStore{
		frames:  map[string][]byte{"f1": []byte("x"), "f2": []byte("y")},
		block:   make(chan struct{}),
		started: make(chan string, 2),
	}
	pool, err := NewPool(1, store, fakeDecoder)
	require.NoError(t, err)
	require.NoError(t, pool.Start(context.Background()))

	require.NoError(t, pool.Submit(&Job{FrameID: "f1"}, 0))
	require.NoError(t, pool.Submit(&Job{FrameID: "f2"}, 0))
	assert.Equal(t, "f1", <-store.started)
	assert.Equal(t, []State{StateBusy}, pool.States())

	stopped := make(chan struct{})
	go func() {
		pool.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a fetch was in flight")
	case <-time.After(30 * time.Millisecond):
	}

	close(store.block)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	// The in-flight job completed normally; the queued one was never started
	c, ok := pool.Drain(0)
	require.True(t, ok)
	assert.NoError(t, c.Err)
	assert.Equal(t, "f1", c.Job.FrameID)
	_, ok = pool.Drain(0)
	assert.False(t, ok)
	assert.Equal(t, []string{"f1"}, store.calls)

	assert.ErrorIs(t, pool.Submit(&Job{FrameID: "f3"}, 0), dcmerrors.ErrPoolStopped)
	assert.ErrorIs(t, pool.Start(context.Background()), dcmerrors.ErrPoolStopped)
	pool.Stop()
}

func TestPool_SubmitOutOfRange(t *testing.T) {
	pool := newStartedPool(t, 2, &fakeStore{})

	assert.Error(t, pool.Submit(&Job{}, 2))
	assert.Error(t, pool.Submit(&Job{}, -1))
	_, ok := pool.Drain(5)
	assert.False(t, ok)
}

func TestPool_IdleStates(t *testing.T) {
	pool := newStartedPool(t, 3, &fakeStore{})

	assert.Eventually(t, func() bool {
		for _, s := range pool.States() {
			if s != StateIdle {
				return false
			}
		}
		return true
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "busy", StateBusy.String())
}

func TestPool_StartTwice(t *testing.T) {
	pool := newStartedPool(t, 1, &fakeStore{})
	assert.Error(t, pool.Start(context.Background()))
}
