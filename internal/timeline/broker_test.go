package timeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duochat/internal/models"
)

// fakeStore is an in-memory Store for broker tests.
type fakeStore struct {
	mu       sync.Mutex
	msgs     map[string][]models.Message
	profiles []models.Profile
	failWith error
}

func newFakeStore() *fakeStore {
	return &fakeStore{msgs: make(map[string][]models.Message)}
}

func (s *fakeStore) append(conversationID string, msg models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs[conversationID] = append(s.msgs[conversationID], msg)
}

func (s *fakeStore) TimelineSnapshot(_ context.Context, conversationID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	out := make([]models.Message, len(s.msgs[conversationID]))
	copy(out, s.msgs[conversationID])
	return out, nil
}

func (s *fakeStore) DirectorySnapshot(context.Context) ([]models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	out := make([]models.Profile, len(s.profiles))
	copy(out, s.profiles)
	return out, nil
}

func waitSnapshot(t *testing.T, ch <-chan []models.Message) []models.Message {
	t.Helper()
	select {
	case msgs := <-ch:
		return msgs
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func TestSubscribeTimelineDeliversInitialEmptySnapshot(t *testing.T) {
	store := newFakeStore()
	broker := NewBroker(store, nil)
	defer broker.Close()

	snapshots := make(chan []models.Message, 4)
	sub := broker.SubscribeTimeline("alice:bob", func(msgs []models.Message) {
		snapshots <- msgs
	}, nil)
	defer sub.Cancel()

	first := waitSnapshot(t, snapshots)
	assert.Empty(t, first)
}

func TestInvalidateTimelineTriggersFreshSnapshot(t *testing.T) {
	store := newFakeStore()
	broker := NewBroker(store, nil)
	defer broker.Close()

	snapshots := make(chan []models.Message, 4)
	sub := broker.SubscribeTimeline("alice:bob", func(msgs []models.Message) {
		snapshots <- msgs
	}, nil)
	defer sub.Cancel()

	waitSnapshot(t, snapshots)

	store.append("alice:bob", models.Message{ID: "m1", SenderID: "alice", Seq: 1, Body: "hi"})
	broker.InvalidateTimeline(context.Background(), "alice:bob")

	second := waitSnapshot(t, snapshots)
	require.Len(t, second, 1)
	assert.Equal(t, "m1", second[0].ID)
}

func TestInvalidateReachesAllConversationSubscribers(t *testing.T) {
	store := newFakeStore()
	broker := NewBroker(store, nil)
	defer broker.Close()

	chA := make(chan []models.Message, 4)
	chB := make(chan []models.Message, 4)
	subA := broker.SubscribeTimeline("alice:bob", func(msgs []models.Message) { chA <- msgs }, nil)
	defer subA.Cancel()
	subB := broker.SubscribeTimeline("alice:bob", func(msgs []models.Message) { chB <- msgs }, nil)
	defer subB.Cancel()

	waitSnapshot(t, chA)
	waitSnapshot(t, chB)

	store.append("alice:bob", models.Message{ID: "m1", Seq: 1, Body: "hi"})
	broker.InvalidateTimeline(context.Background(), "alice:bob")

	require.Len(t, waitSnapshot(t, chA), 1)
	require.Len(t, waitSnapshot(t, chB), 1)
}

func TestInvalidateOtherConversationDoesNotNotify(t *testing.T) {
	store := newFakeStore()
	broker := NewBroker(store, nil)
	defer broker.Close()

	snapshots := make(chan []models.Message, 4)
	sub := broker.SubscribeTimeline("alice:bob", func(msgs []models.Message) {
		snapshots <- msgs
	}, nil)
	defer sub.Cancel()

	waitSnapshot(t, snapshots)

	broker.InvalidateTimeline(context.Background(), "bob:carol")

	select {
	case <-snapshots:
		t.Fatal("unexpected snapshot for unrelated conversation")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCancelStopsDeliveries(t *testing.T) {
	store := newFakeStore()
	broker := NewBroker(store, nil)
	defer broker.Close()

	snapshots := make(chan []models.Message, 16)
	sub := broker.SubscribeTimeline("alice:bob", func(msgs []models.Message) {
		snapshots <- msgs
	}, nil)

	waitSnapshot(t, snapshots)
	sub.Cancel()

	// No callback may fire once Cancel has returned.
	broker.InvalidateTimeline(context.Background(), "alice:bob")
	select {
	case <-snapshots:
		t.Fatal("snapshot delivered after cancel")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	store := newFakeStore()
	broker := NewBroker(store, nil)
	defer broker.Close()

	sub := broker.SubscribeTimeline("alice:bob", func([]models.Message) {}, nil)
	sub.Cancel()
	sub.Cancel()
}

func TestSubscribeTimelineReportsPersistentFailure(t *testing.T) {
	store := newFakeStore()
	store.failWith = backoff.Permanent(errors.New("store down"))
	broker := NewBroker(store, nil)
	defer broker.Close()

	errs := make(chan error, 1)
	sub := broker.SubscribeTimeline("alice:bob", func([]models.Message) {
		t.Error("snapshot delivered despite store failure")
	}, func(err error) {
		errs <- err
	})
	defer sub.Cancel()

	select {
	case err := <-errs:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for error callback")
	}
}

func TestSubscribeDirectoryDeliversOnInvalidate(t *testing.T) {
	store := newFakeStore()
	store.profiles = []models.Profile{{ID: "alice"}}
	broker := NewBroker(store, nil)
	defer broker.Close()

	snapshots := make(chan []models.Profile, 4)
	sub := broker.SubscribeDirectory(func(profiles []models.Profile) {
		snapshots <- profiles
	}, nil)
	defer sub.Cancel()

	select {
	case profiles := <-snapshots:
		require.Len(t, profiles, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for initial directory snapshot")
	}

	store.mu.Lock()
	store.profiles = append(store.profiles, models.Profile{ID: "bob"})
	store.mu.Unlock()
	broker.InvalidateDirectory(context.Background())

	select {
	case profiles := <-snapshots:
		require.Len(t, profiles, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for directory update")
	}
}
