package availability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/safirbus/holdcoord/internal/lockapi"
	"github.com/safirbus/holdcoord/internal/trip"
)

// MockClient is a mock implementation of lockapi.Client
type MockClient struct {
	mock.Mock
}

func (m *MockClient) AcquireLock(ctx context.Context, key trip.Key, date string, seats []trip.SeatLabel, clientID string) error {
	args := m.Called(ctx, key, date, seats, clientID)
	return args.Error(0)
}

func (m *MockClient) ReleaseLock(ctx context.Context, key trip.Key, date string, seats []trip.SeatLabel, clientID string) error {
	args := m.Called(ctx, key, date, seats, clientID)
	return args.Error(0)
}

func (m *MockClient) QueryAvailability(ctx context.Context, key trip.Key, date string) (lockapi.Availability, error) {
	args := m.Called(ctx, key, date)
	return args.Get(0).(lockapi.Availability), args.Error(1)
}

func (m *MockClient) QueryHoldTime(ctx context.Context, key trip.Key, date string, clientID string) (lockapi.HoldTime, error) {
	args := m.Called(ctx, key, date, clientID)
	return args.Get(0).(lockapi.HoldTime), args.Error(1)
}

var (
	keyA = trip.Key{TripID: "trip-a", Departure: "21:30"}
	keyB = trip.Key{TripID: "trip-b", Departure: "08:00"}
)

func availWith(n int, booked ...trip.SeatLabel) lockapi.Availability {
	return lockapi.Availability{AvailableSeats: &n, BookedSeats: booked}
}

// fakeClock drives the reconciler's TTL decisions deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestReconciler(client lockapi.Client, clock *fakeClock) *Reconciler {
	return New(client, "2026-09-01", Config{Now: clock.Now}, nil)
}

func TestThrottleSkipsFreshTrip(t *testing.T) {
	ctx := context.Background()
	client := new(MockClient)
	clock := newFakeClock()
	r := newTestReconciler(client, clock)

	client.On("QueryAvailability", mock.Anything, keyA, "2026-09-01").Return(availWith(10), nil).Once()

	_, err := r.Refresh(ctx, keyA, false)
	require.NoError(t, err)

	// a second unforced fetch inside the TTL must not hit the network
	clock.Advance(3 * time.Second)
	snap, err := r.Refresh(ctx, keyA, false)
	require.NoError(t, err)
	assert.Equal(t, 10, *snap.Available)
	client.AssertNumberOfCalls(t, "QueryAvailability", 1)

	// past the TTL it fetches again
	client.On("QueryAvailability", mock.Anything, keyA, "2026-09-01").Return(availWith(9), nil).Once()
	clock.Advance(6 * time.Second)
	snap, err = r.Refresh(ctx, keyA, false)
	require.NoError(t, err)
	assert.Equal(t, 9, *snap.Available)
}

func TestForcedRefreshUsesTighterFloor(t *testing.T) {
	ctx := context.Background()
	client := new(MockClient)
	clock := newFakeClock()
	r := newTestReconciler(client, clock)

	client.On("QueryAvailability", mock.Anything, keyA, "2026-09-01").Return(availWith(10), nil).Once()
	_, err := r.Refresh(ctx, keyA, false)
	require.NoError(t, err)

	// forced but inside the 2s floor: still throttled
	clock.Advance(time.Second)
	_, err = r.Refresh(ctx, keyA, true)
	require.NoError(t, err)
	client.AssertNumberOfCalls(t, "QueryAvailability", 1)

	// forced past the floor but inside the normal TTL: fetches
	client.On("QueryAvailability", mock.Anything, keyA, "2026-09-01").Return(availWith(8), nil).Once()
	clock.Advance(2 * time.Second)
	snap, err := r.Refresh(ctx, keyA, true)
	require.NoError(t, err)
	assert.Equal(t, 8, *snap.Available)
}

func TestInFlightDeduplication(t *testing.T) {
	ctx := context.Background()
	client := new(MockClient)
	clock := newFakeClock()
	r := newTestReconciler(client, clock)

	release := make(chan struct{})
	client.On("QueryAvailability", mock.Anything, keyA, "2026-09-01").
		Run(func(mock.Arguments) { <-release }).
		Return(availWith(10), nil).Once()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Refresh(ctx, keyA, false)
		}()
	}
	// let the callers pile onto the single outstanding fetch
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	client.AssertNumberOfCalls(t, "QueryAvailability", 1)
	snap, ok := r.Snapshot(keyA)
	require.True(t, ok)
	assert.Equal(t, 10, *snap.Available)
}

func TestRateLimitArmsGlobalBackoff(t *testing.T) {
	ctx := context.Background()
	client := new(MockClient)
	clock := newFakeClock()
	r := newTestReconciler(client, clock)

	client.On("QueryAvailability", mock.Anything, keyA, "2026-09-01").
		Return(lockapi.Availability{}, &lockapi.RateLimitError{RetryAfter: 20 * time.Second}).Once()
	_, err := r.Refresh(ctx, keyA, false)
	require.Error(t, err)

	// unforced fetches for any trip are skipped while backed off
	_, err = r.Refresh(ctx, keyB, false)
	require.NoError(t, err)
	client.AssertNumberOfCalls(t, "QueryAvailability", 1)

	// forced fetches still go through: they are direct user feedback
	client.On("QueryAvailability", mock.Anything, keyB, "2026-09-01").Return(availWith(5), nil).Once()
	_, err = r.Refresh(ctx, keyB, true)
	require.NoError(t, err)
	client.AssertNumberOfCalls(t, "QueryAvailability", 2)

	// once the backoff passes, unforced fetches resume
	client.On("QueryAvailability", mock.Anything, keyA, "2026-09-01").Return(availWith(4), nil).Once()
	clock.Advance(21 * time.Second)
	_, err = r.Refresh(ctx, keyA, false)
	require.NoError(t, err)
	client.AssertNumberOfCalls(t, "QueryAvailability", 3)
}

func TestTransientFailureKeepsPreviousSnapshot(t *testing.T) {
	ctx := context.Background()
	client := new(MockClient)
	clock := newFakeClock()
	r := newTestReconciler(client, clock)

	client.On("QueryAvailability", mock.Anything, keyA, "2026-09-01").
		Return(availWith(10, "3C"), nil).Once()
	_, err := r.Refresh(ctx, keyA, false)
	require.NoError(t, err)

	client.On("QueryAvailability", mock.Anything, keyA, "2026-09-01").
		Return(lockapi.Availability{}, errors.New("connection reset")).Once()
	clock.Advance(10 * time.Second)
	snap, err := r.Refresh(ctx, keyA, false)
	require.Error(t, err)
	require.NotNil(t, snap.Available)
	assert.Equal(t, 10, *snap.Available)
	assert.True(t, snap.Booked("3C"))
}

func TestFirstFetchUnresolvedReadsAsChecking(t *testing.T) {
	client := new(MockClient)
	clock := newFakeClock()
	r := newTestReconciler(client, clock)

	r.Track(keyA)
	snap, ok := r.Snapshot(keyA)
	require.True(t, ok)
	assert.Nil(t, snap.Available)
}

func TestPopulateFetchesAllTrips(t *testing.T) {
	ctx := context.Background()
	client := new(MockClient)
	clock := newFakeClock()
	r := newTestReconciler(client, clock)

	keys := make([]trip.Key, 0, 15)
	for i := 0; i < 15; i++ {
		k := trip.Key{TripID: string(rune('a' + i)), Departure: "10:00"}
		keys = append(keys, k)
		client.On("QueryAvailability", mock.Anything, k, "2026-09-01").Return(availWith(i), nil).Once()
	}
	r.Populate(ctx, keys)

	client.AssertNumberOfCalls(t, "QueryAvailability", 15)
	for i, k := range keys {
		snap, ok := r.Snapshot(k)
		require.True(t, ok)
		assert.Equal(t, i, *snap.Available)
	}
}

func TestResetDiscardsLateResponses(t *testing.T) {
	ctx := context.Background()
	client := new(MockClient)
	clock := newFakeClock()
	r := newTestReconciler(client, clock)

	release := make(chan struct{})
	client.On("QueryAvailability", mock.Anything, keyA, "2026-09-01").
		Run(func(mock.Arguments) { <-release }).
		Return(availWith(10), nil).Once()

	done := make(chan struct{})
	go func() {
		_, _ = r.Refresh(ctx, keyA, false)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	r.Reset()
	close(release)
	<-done

	// the torn-down page's response must not repopulate the view
	_, ok := r.Snapshot(keyA)
	assert.False(t, ok)
}

func TestPollOrderPrioritizesExpandedTrip(t *testing.T) {
	client := new(MockClient)
	clock := newFakeClock()
	r := newTestReconciler(client, clock)

	r.Track(keyA, keyB)
	r.SetPriority(&keyB)

	order := r.pollOrder()
	require.Len(t, order, 2)
	assert.Equal(t, keyB, order[0])
}
