package discovery

import (
	"context"
	"io"
	"log"
	"time"

	"solana-transfer-desk/internal/domain"
	"solana-transfer-desk/internal/storage"
)

// Tracker keeps a Book in step with the connected identity.
type Tracker struct {
	source    Source
	book      *Book
	snapshots storage.HoldingSnapshotStore
	logger    *log.Logger
	now       func() time.Time
}

// TrackerOption configures Tracker.
type TrackerOption func(*Tracker)

// WithSnapshotStore records every discovery run into store.
func WithSnapshotStore(store storage.HoldingSnapshotStore) TrackerOption {
	return func(t *Tracker) {
		t.snapshots = store
	}
}

// WithLogger sets the tracker logger.
func WithLogger(logger *log.Logger) TrackerOption {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// NewTracker creates a tracker merging source results into book.
func NewTracker(source Source, book *Book, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		source: source,
		book:   book,
		logger: log.New(io.Discard, "", 0),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Book returns the tracked book.
func (t *Tracker) Book() *Book {
	return t.book
}

// Sync resets the book for identity and, unless identity is empty, starts discovery.
// The returned channel is closed once every result of this run has been merged or dropped.
// Earlier runs keep going but their results no longer reach the book.
func (t *Tracker) Sync(ctx context.Context, identity string) <-chan struct{} {
	epoch := t.book.Reset(identity)
	done := make(chan struct{})

	if identity == "" {
		close(done)
		return done
	}

	results := t.source.Discover(ctx, identity)
	go func() {
		defer close(done)

		observedAt := t.now().UnixMilli()
		var accepted []*domain.HoldingSnapshot
		for h := range results {
			if t.book.Append(epoch, h) {
				accepted = append(accepted, domain.NewHoldingSnapshot(identity, epoch, h, observedAt))
			}
		}

		t.record(ctx, epoch, accepted)
	}()

	return done
}

// Refresh rediscovers the current identity.
func (t *Tracker) Refresh(ctx context.Context) <-chan struct{} {
	identity, _ := t.book.Current()
	return t.Sync(ctx, identity)
}

func (t *Tracker) record(ctx context.Context, epoch uint64, snapshots []*domain.HoldingSnapshot) {
	if t.snapshots == nil || len(snapshots) == 0 {
		return
	}
	if _, current := t.book.Current(); current != epoch {
		return
	}
	if err := t.snapshots.InsertBulk(ctx, snapshots); err != nil {
		t.logger.Printf("record holdings snapshot (epoch %d): %v", epoch, err)
	}
}
