package timeline

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"duochat/internal/models"
	"duochat/internal/observability"
)

// Store is the read side the broker derives snapshots from. Snapshots are
// always re-read in full; the broker never applies deltas, so every
// delivery reflects a single linearized view of the mutation history.
type Store interface {
	TimelineSnapshot(ctx context.Context, conversationID string) ([]models.Message, error)
	DirectorySnapshot(ctx context.Context) ([]models.Profile, error)
}

// TimelineFunc receives the full ordered message list of a conversation.
type TimelineFunc func([]models.Message)

// DirectoryFunc receives the full profile list.
type DirectoryFunc func([]models.Profile)

// ErrorFunc is invoked when snapshot reads keep failing and the
// subscription gives up.
type ErrorFunc func(error)

const (
	invalidatePrefix         = "duochat:invalidate:"
	invalidateTimelinePrefix = invalidatePrefix + "timeline:"
	invalidateDirectoryTopic = invalidatePrefix + "directory"
	snapshotRetryMaxElapsed  = 15 * time.Second
)

// Subscription is a cancellable registration for snapshot push.
type Subscription struct {
	cancel     context.CancelFunc
	cancelOnce sync.Once
	done       chan struct{}
	kick       chan struct{}
}

// Cancel stops the subscription and waits for any in-flight delivery to
// finish. No callback fires after Cancel returns.
func (s *Subscription) Cancel() {
	s.cancelOnce.Do(s.cancel)
	<-s.done
}

func (s *Subscription) notify() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Broker fans out full-snapshot notifications to timeline and directory
// subscribers. With a Redis client it also relays invalidations across
// instances; without one it is local-only.
type Broker struct {
	store Store
	rdb   *redis.Client

	mu        sync.RWMutex
	timelines map[string]map[*Subscription]struct{}
	directory map[*Subscription]struct{}

	listenCancel context.CancelFunc
}

// NewBroker creates a Broker. rdb may be nil.
func NewBroker(store Store, rdb *redis.Client) *Broker {
	b := &Broker{
		store:     store,
		rdb:       rdb,
		timelines: make(map[string]map[*Subscription]struct{}),
		directory: make(map[*Subscription]struct{}),
	}
	if rdb != nil {
		ctx, cancel := context.WithCancel(context.Background())
		b.listenCancel = cancel
		go b.listenInvalidations(ctx)
	}
	return b
}

// Close stops the Redis listener. Individual subscriptions are cancelled by
// their owners.
func (b *Broker) Close() {
	if b.listenCancel != nil {
		b.listenCancel()
	}
}

// SubscribeTimeline registers for full-snapshot push on a conversation. The
// initial snapshot is delivered right away, as an empty sequence when the
// timeline has no messages yet. onError fires only when delivery has failed
// past the retry budget, after which the subscription is dead and the
// caller decides whether to resubscribe.
func (b *Broker) SubscribeTimeline(conversationID string, fn TimelineFunc, onError ErrorFunc) *Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{
		cancel: cancel,
		done:   make(chan struct{}),
		kick:   make(chan struct{}, 1),
	}

	b.mu.Lock()
	if _, ok := b.timelines[conversationID]; !ok {
		b.timelines[conversationID] = make(map[*Subscription]struct{})
	}
	b.timelines[conversationID][sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		defer close(sub.done)
		defer b.removeTimeline(conversationID, sub)

		deliver := func() bool {
			msgs, err := b.readTimeline(ctx, conversationID)
			if err != nil {
				if ctx.Err() == nil && onError != nil {
					onError(err)
				}
				return false
			}
			if ctx.Err() != nil {
				return false
			}
			fn(msgs)
			observability.IncSnapshotDelivered("timeline")
			return true
		}

		if !deliver() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.kick:
				if !deliver() {
					return
				}
			}
		}
	}()

	return sub
}

// SubscribeDirectory registers for full profile-list snapshots.
func (b *Broker) SubscribeDirectory(fn DirectoryFunc, onError ErrorFunc) *Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{
		cancel: cancel,
		done:   make(chan struct{}),
		kick:   make(chan struct{}, 1),
	}

	b.mu.Lock()
	b.directory[sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		defer close(sub.done)
		defer b.removeDirectory(sub)

		deliver := func() bool {
			profiles, err := b.readDirectory(ctx)
			if err != nil {
				if ctx.Err() == nil && onError != nil {
					onError(err)
				}
				return false
			}
			if ctx.Err() != nil {
				return false
			}
			fn(profiles)
			observability.IncSnapshotDelivered("directory")
			return true
		}

		if !deliver() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.kick:
				if !deliver() {
					return
				}
			}
		}
	}()

	return sub
}

// InvalidateTimeline signals that the conversation mutated. Subscribers on
// every instance re-derive their snapshot.
func (b *Broker) InvalidateTimeline(ctx context.Context, conversationID string) {
	b.kickTimeline(conversationID)
	if b.rdb != nil {
		if err := b.rdb.Publish(ctx, invalidateTimelinePrefix+conversationID, "").Err(); err != nil {
			log.Printf("redis publish failed: %v", err)
		}
	}
}

// InvalidateDirectory signals that the profile directory mutated.
func (b *Broker) InvalidateDirectory(ctx context.Context) {
	b.kickDirectory()
	if b.rdb != nil {
		if err := b.rdb.Publish(ctx, invalidateDirectoryTopic, "").Err(); err != nil {
			log.Printf("redis publish failed: %v", err)
		}
	}
}

func (b *Broker) kickTimeline(conversationID string) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.timelines[conversationID] {
		sub.notify()
	}
}

func (b *Broker) kickDirectory() {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.directory {
		sub.notify()
	}
}

func (b *Broker) removeTimeline(conversationID string, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := b.timelines[conversationID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.timelines, conversationID)
		}
	}
}

func (b *Broker) removeDirectory(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.directory, sub)
}

func (b *Broker) readTimeline(ctx context.Context, conversationID string) ([]models.Message, error) {
	var msgs []models.Message
	err := backoff.Retry(func() error {
		var err error
		msgs, err = b.store.TimelineSnapshot(ctx, conversationID)
		return err
	}, snapshotRetryPolicy(ctx))
	return msgs, err
}

func (b *Broker) readDirectory(ctx context.Context) ([]models.Profile, error) {
	var profiles []models.Profile
	err := backoff.Retry(func() error {
		var err error
		profiles, err = b.store.DirectorySnapshot(ctx)
		return err
	}, snapshotRetryPolicy(ctx))
	return profiles, err
}

func snapshotRetryPolicy(ctx context.Context) backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = snapshotRetryMaxElapsed
	return backoff.WithContext(policy, ctx)
}

func (b *Broker) listenInvalidations(ctx context.Context) {
	pubsub := b.rdb.PSubscribe(ctx, invalidatePrefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			switch {
			case msg.Channel == invalidateDirectoryTopic:
				b.kickDirectory()
			case strings.HasPrefix(msg.Channel, invalidateTimelinePrefix):
				b.kickTimeline(strings.TrimPrefix(msg.Channel, invalidateTimelinePrefix))
			}
		}
	}
}
