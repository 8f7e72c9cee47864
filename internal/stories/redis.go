package stories

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// DeletedChannel is the pub/sub channel carrying deleted story IDs
const DeletedChannel = "stories:deleted"

// ViewMarker remembers which (story, viewer) pairs were already reported so
// repeated reports skip the database
type ViewMarker interface {
	// MarkViewed returns true when the pair was not marked before
	MarkViewed(ctx context.Context, storyID, viewerID int64) (bool, error)
	Forget(ctx context.Context, storyID, viewerID int64) error
}

type redisViewMarker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisViewMarker keeps markers for ttl, which should match story expiry
func NewRedisViewMarker(client *redis.Client, ttl time.Duration) ViewMarker {
	return &redisViewMarker{client: client, ttl: ttl}
}

func viewKey(storyID, viewerID int64) string {
	return fmt.Sprintf("stories:viewed:%d:%d", storyID, viewerID)
}

func (m *redisViewMarker) MarkViewed(ctx context.Context, storyID, viewerID int64) (bool, error) {
	return m.client.SetNX(ctx, viewKey(storyID, viewerID), 1, m.ttl).Result()
}

func (m *redisViewMarker) Forget(ctx context.Context, storyID, viewerID int64) error {
	return m.client.Del(ctx, viewKey(storyID, viewerID)).Err()
}

// DeletionNotifier fans story deletions out to every player instance
type DeletionNotifier interface {
	Publish(ctx context.Context, storyID int64) error
	// Subscribe calls fn for every deletion until ctx is done
	Subscribe(ctx context.Context, fn func(storyID int64)) error
}

type redisDeletionNotifier struct {
	client *redis.Client
}

func NewRedisDeletionNotifier(client *redis.Client) DeletionNotifier {
	return &redisDeletionNotifier{client: client}
}

func (n *redisDeletionNotifier) Publish(ctx context.Context, storyID int64) error {
	return n.client.Publish(ctx, DeletedChannel, strconv.FormatInt(storyID, 10)).Err()
}

func (n *redisDeletionNotifier) Subscribe(ctx context.Context, fn func(storyID int64)) error {
	pubsub := n.client.Subscribe(ctx, DeletedChannel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", DeletedChannel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("deletion channel closed")
			}
			id, err := strconv.ParseInt(msg.Payload, 10, 64)
			if err != nil {
				continue
			}
			fn(id)
		}
	}
}

// LocalDeletionNotifier delivers deletions inside one process. Used when
// Redis is not configured.
type LocalDeletionNotifier struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(int64)
}

func NewLocalDeletionNotifier() *LocalDeletionNotifier {
	return &LocalDeletionNotifier{subs: make(map[int]func(int64))}
}

func (n *LocalDeletionNotifier) Publish(_ context.Context, storyID int64) error {
	n.mu.Lock()
	fns := make([]func(int64), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn(storyID)
	}
	return nil
}

func (n *LocalDeletionNotifier) Subscribe(ctx context.Context, fn func(storyID int64)) error {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = fn
	n.mu.Unlock()

	<-ctx.Done()

	n.mu.Lock()
	delete(n.subs, id)
	n.mu.Unlock()
	return nil
}

// PositionStore remembers whose story a viewer was last watching so the next
// session can start there
type PositionStore interface {
	LastOwner(ctx context.Context, viewerID int64) (int64, error)
	Remember(ctx context.Context, viewerID, ownerID int64) error
}

type redisPositionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisPositionStore(client *redis.Client, ttl time.Duration) PositionStore {
	return &redisPositionStore{client: client, ttl: ttl}
}

func positionKey(viewerID int64) string {
	return fmt.Sprintf("stories:position:%d", viewerID)
}

// LastOwner returns 0 when nothing is remembered
func (p *redisPositionStore) LastOwner(ctx context.Context, viewerID int64) (int64, error) {
	owner, err := p.client.Get(ctx, positionKey(viewerID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return owner, err
}

func (p *redisPositionStore) Remember(ctx context.Context, viewerID, ownerID int64) error {
	return p.client.Set(ctx, positionKey(viewerID), ownerID, p.ttl).Err()
}

type memoryPositionStore struct {
	mu     sync.RWMutex
	owners map[int64]int64
}

func NewMemoryPositionStore() PositionStore {
	return &memoryPositionStore{owners: make(map[int64]int64)}
}

func (p *memoryPositionStore) LastOwner(_ context.Context, viewerID int64) (int64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.owners[viewerID], nil
}

func (p *memoryPositionStore) Remember(_ context.Context, viewerID, ownerID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.owners[viewerID] = ownerID
	return nil
}
