// Package ledger applies item mutations to a list while keeping its budget
// invariants. Every mutation of a list is serialized, gated and followed by
// a fresh classification of the list's totals.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"budgetlist/internal/cache"
	"budgetlist/internal/core"
	"budgetlist/internal/log"
	"budgetlist/internal/store"
)

// Change describes a committed mutation. Before and After are snapshots of
// the list around it.
type Change struct {
	Op     string
	Owner  string
	Before core.Snapshot
	After  core.Snapshot
}

// Observer is notified after every committed mutation, while the list is
// still locked. It must not call back into the ledger for the same list.
type Observer func(ctx context.Context, c Change)

const defaultTotalsTTL = 5 * time.Minute

// CachedTotals are derived totals stamped with the version of the list they
// were computed from. An entry whose version no longer matches is ignored.
type CachedTotals struct {
	Version string
	Totals  core.Totals
}

type Ledger struct {
	store     store.Store
	totals    cache.Cache[CachedTotals]
	locks     *keyedMutex
	observers []Observer
	logger    *log.Logger
}

type Option func(*Ledger)

// WithCache sets the cache used for derived totals.
func WithCache(c cache.Cache[CachedTotals]) Option {
	return func(l *Ledger) { l.totals = c }
}

func WithObserver(o Observer) Option {
	return func(l *Ledger) { l.observers = append(l.observers, o) }
}

func WithLogger(logger *log.Logger) Option {
	return func(l *Ledger) { l.logger = logger.WithComponent(log.ComponentLedger) }
}

func New(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:  s,
		locks:  newKeyedMutex(),
		logger: log.Discard(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.totals == nil {
		l.totals = cache.NewLRUCache[CachedTotals](256, defaultTotalsTTL)
	}
	return l
}

// Store returns the store the ledger writes to.
func (l *Ledger) Store() store.Store { return l.store }

// AddItem validates in, checks the budget gate and inserts the item.
// A rejected addition leaves the list untouched.
func (l *Ledger) AddItem(ctx context.Context, owner, listID string, in core.NewItem) (*core.Item, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	unlock := l.locks.Lock(lockKey(owner, listID))
	defer unlock()

	before, err := l.store.GetList(ctx, owner, listID)
	if err != nil {
		return nil, err
	}

	item := in.Item(listID)
	if err := core.CheckAddition(before.Spent(), before.Budget, item.LineTotal()); err != nil {
		l.logger.InfoContext(ctx, "Item rejected by budget gate",
			log.NewFields().WithList(listID, owner).WithBudget(before.Spent().Cents, before.Budget.Cents, core.Classify(before.Spent(), before.Budget).String()).ToSlice()...)
		return nil, err
	}

	created, err := l.store.InsertItem(ctx, owner, item)
	if err != nil {
		return nil, err
	}

	after := *before
	after.Items = append(append([]core.Item(nil), before.Items...), *created)
	after.UpdatedAt = created.UpdatedAt
	l.commit(ctx, log.OpAddItem, owner, *before, after)
	return created, nil
}

// UpdateItem replaces the provided fields of an item. The item must belong
// to listID.
func (l *Ledger) UpdateItem(ctx context.Context, owner, listID, itemID string, patch core.ItemPatch) (*core.Item, error) {
	if patch.IsEmpty() {
		return nil, core.ErrEmptyPatch
	}

	unlock := l.locks.Lock(lockKey(owner, listID))
	defer unlock()

	before, err := l.store.GetList(ctx, owner, listID)
	if err != nil {
		return nil, err
	}
	i, ok := before.FindItem(itemID)
	if !ok {
		return nil, core.ErrItemNotFound
	}

	next := patch.Apply(before.Items[i])
	if err := next.Validate(); err != nil {
		return nil, err
	}

	updated, err := l.store.UpdateItem(ctx, owner, next)
	if err != nil {
		return nil, err
	}

	after := *before
	after.Items = append([]core.Item(nil), before.Items...)
	after.Items[i] = *updated
	after.UpdatedAt = updated.UpdatedAt
	l.commit(ctx, log.OpUpdateItem, owner, *before, after)
	return updated, nil
}

func (l *Ledger) DeleteItem(ctx context.Context, owner, listID, itemID string) error {
	unlock := l.locks.Lock(lockKey(owner, listID))
	defer unlock()

	before, err := l.store.GetList(ctx, owner, listID)
	if err != nil {
		return err
	}
	i, ok := before.FindItem(itemID)
	if !ok {
		return core.ErrItemNotFound
	}

	if err := l.store.DeleteItem(ctx, owner, listID, itemID); err != nil {
		return err
	}

	after, err := l.store.GetList(ctx, owner, listID)
	if err != nil {
		// the delete is committed; report it against the list as we knew it
		l.logger.WarnContext(ctx, "Reload after item delete failed",
			log.FieldListID, listID, log.FieldError, err.Error())
		fallback := *before
		fallback.Items = append(append([]core.Item(nil), before.Items[:i]...), before.Items[i+1:]...)
		fallback.UpdatedAt = time.Now().UTC()
		after = &fallback
	}
	l.commit(ctx, log.OpDeleteItem, owner, *before, *after)
	return nil
}

// Snapshot returns the list with its derived totals. It does not take the
// list lock: a fill racing with a mutation may store totals for an older
// version, which the next read discards.
func (l *Ledger) Snapshot(ctx context.Context, owner, listID string) (*core.Snapshot, error) {
	list, err := l.store.GetList(ctx, owner, listID)
	if err != nil {
		return nil, err
	}

	key := lockKey(owner, list.ID)
	version := listVersion(*list)
	if entry, ok := l.totals.Get(key); ok && entry.Version == version {
		return &core.Snapshot{List: *list, Totals: entry.Totals}, nil
	}
	totals := core.ComputeTotals(*list)
	l.totals.Set(key, CachedTotals{Version: version, Totals: totals})
	return &core.Snapshot{List: *list, Totals: totals}, nil
}

// Invalidate drops cached totals for a list. Callers that change a list
// outside the ledger must call it.
func (l *Ledger) Invalidate(owner, listID string) {
	l.totals.Delete(lockKey(owner, listID))
}

// UpdateList applies a list-level patch under the list lock so that it
// cannot interleave with item mutations.
func (l *Ledger) UpdateList(ctx context.Context, owner, listID string, patch core.ListPatch) (*core.List, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	unlock := l.locks.Lock(lockKey(owner, listID))
	defer unlock()

	before, err := l.store.GetList(ctx, owner, listID)
	if err != nil {
		return nil, err
	}
	updated, err := l.store.UpdateList(ctx, owner, listID, patch)
	if err != nil {
		return nil, err
	}
	l.commit(ctx, log.OpUpdate, owner, *before, *updated)
	return updated, nil
}

// DeleteList removes a list and forgets its cached totals.
func (l *Ledger) DeleteList(ctx context.Context, owner, listID string) error {
	unlock := l.locks.Lock(lockKey(owner, listID))
	defer unlock()

	if err := l.store.DeleteList(ctx, owner, listID); err != nil {
		return err
	}
	l.Invalidate(owner, listID)
	return nil
}

func (l *Ledger) commit(ctx context.Context, op, owner string, before, after core.List) {
	l.Invalidate(owner, after.ID)

	change := Change{
		Op:     op,
		Owner:  owner,
		Before: core.Summarize(before),
		After:  core.Summarize(after),
	}
	l.logger.DebugContext(ctx, "List mutated",
		log.NewFields().
			WithOperation(op).
			WithList(after.ID, owner).
			WithBudget(change.After.Totals.Spent.Cents, after.Budget.Cents, change.After.Totals.Status.String()).
			ToSlice()...)

	for _, o := range l.observers {
		o(ctx, change)
	}
}

// IsRejection reports whether err is a domain outcome, as opposed to an
// infrastructure failure.
func IsRejection(err error) bool {
	return errors.Is(err, core.ErrInvalidInput) ||
		errors.Is(err, core.ErrListNotFound) ||
		errors.Is(err, core.ErrItemNotFound) ||
		errors.Is(err, core.ErrOverBudget)
}

// listVersion changes whenever a committed mutation changes the list's
// totals: every store bumps UpdatedAt on item and budget changes.
func listVersion(l core.List) string {
	return fmt.Sprintf("%d/%d/%d", l.UpdatedAt.UnixNano(), len(l.Items), l.Budget.Cents)
}

func lockKey(owner, listID string) string {
	return fmt.Sprintf("%s/%s", owner, listID)
}
