package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetlist/internal/core"
	"budgetlist/internal/local"
	"budgetlist/internal/store"
)

func newTestLedger(t *testing.T, budget int64, opts ...Option) (*Ledger, string) {
	t.Helper()
	s := local.New(memfs.New())
	l, err := s.CreateList(context.Background(), "", core.NewList{Name: "Groceries", Budget: core.Cents(budget)})
	require.NoError(t, err)
	return New(s, opts...), l.ID
}

func item(name string, qty int, cents int64) core.NewItem {
	return core.NewItem{Name: name, Quantity: qty, UnitValue: core.Cents(cents)}
}

func TestAddItemGate(t *testing.T) {
	ctx := context.Background()
	lg, listID := newTestLedger(t, 10000)

	_, err := lg.AddItem(ctx, "", listID, item("Rice", 1, 9000))
	require.NoError(t, err)

	_, err = lg.AddItem(ctx, "", listID, item("Beans", 1, 1500))
	assert.ErrorIs(t, err, core.ErrOverBudget)

	snap, err := lg.Snapshot(ctx, "", listID)
	require.NoError(t, err)
	assert.Len(t, snap.List.Items, 1, "rejected add must not change the list")
	assert.Equal(t, int64(9000), snap.Totals.Spent.Cents)
	assert.Equal(t, core.StatusWarning, snap.Totals.Status)

	_, err = lg.AddItem(ctx, "", listID, item("Beans", 1, 1000))
	require.NoError(t, err, "reaching the budget exactly is accepted")

	snap, err = lg.Snapshot(ctx, "", listID)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), snap.Totals.Spent.Cents)
	assert.Equal(t, core.StatusCritical, snap.Totals.Status)
}

func TestWarningAt9499(t *testing.T) {
	ctx := context.Background()
	lg, listID := newTestLedger(t, 10000)

	_, err := lg.AddItem(ctx, "", listID, item("Coffee", 1, 9499))
	require.NoError(t, err)

	snap, err := lg.Snapshot(ctx, "", listID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusWarning, snap.Totals.Status)
}

func TestAddThenDeleteRestoresTotal(t *testing.T) {
	ctx := context.Background()
	lg, listID := newTestLedger(t, 10000)

	_, err := lg.AddItem(ctx, "", listID, item("Milk", 2, 450))
	require.NoError(t, err)
	before, err := lg.Snapshot(ctx, "", listID)
	require.NoError(t, err)

	added, err := lg.AddItem(ctx, "", listID, item("Bread", 3, 700))
	require.NoError(t, err)
	require.NoError(t, lg.DeleteItem(ctx, "", listID, added.ID))

	after, err := lg.Snapshot(ctx, "", listID)
	require.NoError(t, err)
	assert.Equal(t, before.Totals.Spent, after.Totals.Spent)
	assert.Equal(t, before.Totals.Status, after.Totals.Status)

	assert.ErrorIs(t, lg.DeleteItem(ctx, "", listID, added.ID), core.ErrItemNotFound)
}

func TestValidationHappensBeforeLookup(t *testing.T) {
	ctx := context.Background()
	lg, _ := newTestLedger(t, 10000)

	_, err := lg.AddItem(ctx, "", "offline-missing", item("", 1, 100))
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = lg.AddItem(ctx, "", "offline-missing", item("Eggs", 1, 100))
	assert.ErrorIs(t, err, core.ErrListNotFound)

	_, err = lg.AddItem(ctx, "", "offline-missing", item("Eggs", 0, 100))
	assert.ErrorIs(t, err, core.ErrInvalidQuantity)
}

func TestUpdateItem(t *testing.T) {
	ctx := context.Background()
	lg, listID := newTestLedger(t, 10000)

	it, err := lg.AddItem(ctx, "", listID, item("Apples", 2, 300))
	require.NoError(t, err)

	qty := 5
	updated, err := lg.UpdateItem(ctx, "", listID, it.ID, core.ItemPatch{Quantity: &qty})
	require.NoError(t, err)
	assert.Equal(t, 5, updated.Quantity)
	assert.Equal(t, "Apples", updated.Name)
	assert.Equal(t, int64(300), updated.UnitValue.Cents)

	snap, err := lg.Snapshot(ctx, "", listID)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), snap.Totals.Spent.Cents, "cached totals must be invalidated")

	zero := 0
	_, err = lg.UpdateItem(ctx, "", listID, it.ID, core.ItemPatch{Quantity: &zero})
	assert.ErrorIs(t, err, core.ErrInvalidQuantity)

	_, err = lg.UpdateItem(ctx, "", listID, it.ID, core.ItemPatch{})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestItemScopedToList(t *testing.T) {
	ctx := context.Background()
	lg, listA := newTestLedger(t, 10000)
	listB, err := lg.Store().CreateList(ctx, "", core.NewList{Budget: core.Cents(10000)})
	require.NoError(t, err)

	it, err := lg.AddItem(ctx, "", listA, item("Soap", 1, 300))
	require.NoError(t, err)

	name := "Shampoo"
	_, err = lg.UpdateItem(ctx, "", listB.ID, it.ID, core.ItemPatch{Name: &name})
	assert.ErrorIs(t, err, core.ErrItemNotFound)
	assert.ErrorIs(t, lg.DeleteItem(ctx, "", listB.ID, it.ID), core.ErrItemNotFound)

	snap, err := lg.Snapshot(ctx, "", listA)
	require.NoError(t, err)
	assert.Equal(t, "Soap", snap.List.Items[0].Name)
}

func TestConcurrentAddsNeverExceedBudget(t *testing.T) {
	ctx := context.Background()
	lg, listID := newTestLedger(t, 1000)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := lg.AddItem(ctx, "", listID, item("Gum", 1, 100)); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, accepted)
	snap, err := lg.Snapshot(ctx, "", listID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), snap.Totals.Spent.Cents)
	assert.Zero(t, lg.locks.size(), "per-list locks must be released")
}

func TestObserverSeesTransition(t *testing.T) {
	ctx := context.Background()
	var changes []Change
	lg, listID := newTestLedger(t, 10000, WithObserver(func(_ context.Context, c Change) {
		changes = append(changes, c)
	}))

	_, err := lg.AddItem(ctx, "", listID, item("TV", 1, 8000))
	require.NoError(t, err)
	_, err = lg.AddItem(ctx, "", listID, item("Cable", 1, 3000))
	require.Error(t, err)

	require.Len(t, changes, 1, "rejected adds are not reported")
	assert.Equal(t, core.StatusOK, changes[0].Before.Totals.Status)
	assert.Equal(t, core.StatusWarning, changes[0].After.Totals.Status)

	budget := core.Cents(5000)
	_, err = lg.UpdateList(ctx, "", listID, core.ListPatch{Budget: &budget})
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, core.StatusOverBudget, changes[1].After.Totals.Status)
}

// gateStore accepts nothing, standing in for a store whose own atomic check
// rejects an insert the ledger already approved.
type gateStore struct {
	store.Store
}

func (gateStore) InsertItem(context.Context, string, core.Item) (*core.Item, error) {
	return nil, core.ErrOverBudget
}

func TestStoreRejectionIsPropagated(t *testing.T) {
	ctx := context.Background()
	s := local.New(memfs.New())
	l, err := s.CreateList(ctx, "", core.NewList{Budget: core.Cents(10000)})
	require.NoError(t, err)

	lg := New(gateStore{Store: s})
	_, err = lg.AddItem(ctx, "", l.ID, item("Chair", 1, 100))
	assert.True(t, errors.Is(err, core.ErrOverBudget))
	assert.True(t, IsRejection(err))
	assert.False(t, IsRejection(errors.New("disk full")))
}

// pausingStore lets a test hold one GetList call after it has read the list,
// so that a mutation can commit before the caller continues.
type pausingStore struct {
	store.Store
	mu      sync.Mutex
	armed   bool
	reached chan struct{}
	release chan struct{}
}

func (p *pausingStore) arm() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.armed = true
	p.reached = make(chan struct{})
	p.release = make(chan struct{})
}

func (p *pausingStore) GetList(ctx context.Context, owner, listID string) (*core.List, error) {
	l, err := p.Store.GetList(ctx, owner, listID)

	p.mu.Lock()
	armed := p.armed
	p.armed = false
	p.mu.Unlock()
	if armed {
		close(p.reached)
		<-p.release
	}
	return l, err
}

func TestSnapshotRacingMutationDoesNotCacheStaleTotals(t *testing.T) {
	ctx := context.Background()
	s := &pausingStore{Store: local.New(memfs.New())}
	l, err := s.CreateList(ctx, "", core.NewList{Name: "Groceries", Budget: core.Cents(10000)})
	require.NoError(t, err)
	lg := New(s)

	s.arm()
	done := make(chan *core.Snapshot)
	go func() {
		snap, err := lg.Snapshot(ctx, "", l.ID)
		assert.NoError(t, err)
		done <- snap
	}()
	<-s.reached

	_, err = lg.AddItem(ctx, "", l.ID, item("Rice", 1, 9000))
	require.NoError(t, err)

	close(s.release)
	old := <-done
	assert.Zero(t, old.Totals.Spent.Cents, "the paused read saw the list before the add")

	snap, err := lg.Snapshot(ctx, "", l.ID)
	require.NoError(t, err)
	require.Len(t, snap.List.Items, 1)
	assert.Equal(t, snap.List.Spent(), snap.Totals.Spent, "totals must match the items they describe")
	assert.Equal(t, core.StatusWarning, snap.Totals.Status)
}

func TestSnapshotReusesTotalsForUnchangedList(t *testing.T) {
	ctx := context.Background()
	lg, listID := newTestLedger(t, 10000)
	_, err := lg.AddItem(ctx, "", listID, item("Rice", 1, 2500))
	require.NoError(t, err)

	first, err := lg.Snapshot(ctx, "", listID)
	require.NoError(t, err)
	entry, ok := lg.totals.Get(lockKey("", listID))
	require.True(t, ok)
	assert.Equal(t, listVersion(first.List), entry.Version)

	second, err := lg.Snapshot(ctx, "", listID)
	require.NoError(t, err)
	assert.Equal(t, first.Totals, second.Totals)
}

func TestDeleteItemReportsFreshList(t *testing.T) {
	ctx := context.Background()
	var changes []Change
	lg, listID := newTestLedger(t, 10000, WithObserver(func(_ context.Context, c Change) {
		changes = append(changes, c)
	}))

	it, err := lg.AddItem(ctx, "", listID, item("Rice", 1, 8000))
	require.NoError(t, err)
	require.NoError(t, lg.DeleteItem(ctx, "", listID, it.ID))

	require.Len(t, changes, 2)
	del := changes[1]
	assert.Empty(t, del.After.List.Items)
	assert.False(t, del.After.List.UpdatedAt.Before(del.Before.List.UpdatedAt))
	assert.Equal(t, core.StatusOK, del.After.Totals.Status)
	assert.Equal(t, core.StatusWarning, del.Before.Totals.Status)

	stored, err := lg.Store().GetList(ctx, "", listID)
	require.NoError(t, err)
	assert.Equal(t, stored.UpdatedAt, del.After.List.UpdatedAt)
}
