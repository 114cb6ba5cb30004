package device

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetlist/internal/auth"
	"budgetlist/internal/core"
	apihttp "budgetlist/internal/http"
	"budgetlist/internal/local"
	"budgetlist/internal/reconcile"
	"budgetlist/internal/remote"
	"budgetlist/internal/services"
	"budgetlist/internal/storage"
)

func newTestServer(t *testing.T) string {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "device.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	srv := apihttp.NewServer(
		services.NewListService(repo, nil),
		auth.NewService(repo, auth.NewJWTManager("device-test-secret-123456", time.Hour)),
		apihttp.Options{},
	)
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Shutdown(context.Background())
	})
	return ts.URL
}

func newServerClient(t *testing.T) *remote.Client {
	t.Helper()
	c, err := remote.New(newTestServer(t))
	require.NoError(t, err)
	ctx := context.Background()
	_, err = c.Register(ctx, "ana@example.com", "password123", "")
	require.NoError(t, err)
	_, err = c.Login(ctx, "ana@example.com", "password123")
	require.NoError(t, err)
	return c
}

func offlineClient(t *testing.T) *remote.Client {
	t.Helper()
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()
	c, err := remote.New(url, remote.WithToken("token"))
	require.NoError(t, err)
	return c
}

func TestOfflineDevice(t *testing.T) {
	d := New(local.New(memfs.New()), offlineClient(t), nil)
	ctx := context.Background()

	assert.False(t, d.Online(ctx))

	snap, err := d.CreateList(ctx, core.NewList{Name: "Camping", Budget: core.Cents(10000)})
	require.NoError(t, err)
	assert.True(t, local.IsLocalID(snap.List.ID))
	assert.Equal(t, core.ProvenanceLocal, snap.List.Provenance)

	_, err = d.AddItem(ctx, snap.List.ID, core.NewItem{Name: "Tent", Quantity: 1, UnitValue: core.Cents(9000)})
	require.NoError(t, err)
	_, err = d.AddItem(ctx, snap.List.ID, core.NewItem{Name: "Lamp", Quantity: 1, UnitValue: core.Cents(1500)})
	assert.ErrorIs(t, err, core.ErrOverBudget)

	got, err := d.GetList(ctx, snap.List.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(9000), got.Totals.Spent.Cents)
	assert.Equal(t, core.StatusWarning, got.Totals.Status)

	history, err := d.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, snap.List.ID, history[0].List.ID)

	_, err = d.GetList(ctx, "server-list-id")
	assert.ErrorIs(t, err, reconcile.ErrSourceUnavailable)

	report, err := d.Export(ctx, snap.List.ID, "md")
	require.NoError(t, err)
	assert.Contains(t, string(report), "# Camping")
}

func TestDeviceWithoutServer(t *testing.T) {
	d := New(local.New(memfs.New()), nil, nil)
	ctx := context.Background()

	snap, err := d.CreateList(ctx, core.NewList{Budget: core.Cents(100)})
	require.NoError(t, err)
	assert.True(t, local.IsLocalID(snap.List.ID))

	history, err := d.History(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestOnlineDeviceRoutesByProvenance(t *testing.T) {
	store := local.New(memfs.New())
	ctx := context.Background()

	// A list created while offline stays on the device.
	offline := New(store, nil, nil)
	localSnap, err := offline.CreateList(ctx, core.NewList{Name: "Offline list", Budget: core.Cents(5000)})
	require.NoError(t, err)

	d := New(store, newServerClient(t), nil)
	require.True(t, d.Online(ctx))

	serverSnap, err := d.CreateList(ctx, core.NewList{Name: "Server list", Budget: core.Cents(5000)})
	require.NoError(t, err)
	assert.Equal(t, core.ProvenanceServer, serverSnap.List.Provenance)
	assert.False(t, local.IsLocalID(serverSnap.List.ID))

	// Items follow the list they belong to.
	_, err = d.AddItem(ctx, localSnap.List.ID, core.NewItem{Name: "Map", Quantity: 1, UnitValue: core.Cents(1000)})
	require.NoError(t, err)
	serverItem, err := d.AddItem(ctx, serverSnap.List.ID, core.NewItem{Name: "Bread", Quantity: 2, UnitValue: core.Cents(700)})
	require.NoError(t, err)

	stored, err := store.GetList(ctx, "", localSnap.List.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Items, 1)
	_, err = store.GetList(ctx, "", serverSnap.List.ID)
	assert.ErrorIs(t, err, core.ErrListNotFound, "server lists are never written to the device")

	history, err := d.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, serverSnap.List.ID, history[0].List.ID, "newest first")
	assert.Equal(t, localSnap.List.ID, history[1].List.ID)

	qty := 3
	item, err := d.UpdateItem(ctx, serverSnap.List.ID, serverItem.ID, core.ItemPatch{Quantity: &qty})
	require.NoError(t, err)
	assert.Equal(t, 3, item.Quantity)

	budget := core.Cents(1000)
	updated, err := d.UpdateList(ctx, localSnap.List.ID, core.ListPatch{Budget: &budget})
	require.NoError(t, err)
	assert.Equal(t, core.StatusCritical, updated.Totals.Status)

	require.NoError(t, d.DeleteItem(ctx, serverSnap.List.ID, serverItem.ID))
	require.NoError(t, d.DeleteList(ctx, localSnap.List.ID))
	require.NoError(t, d.DeleteList(ctx, serverSnap.List.ID))

	history, err = d.History(ctx)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestHistoryWithExpiredSessionShowsDeviceLists(t *testing.T) {
	store := local.New(memfs.New())
	ctx := context.Background()

	snap, err := New(store, nil, nil).CreateList(ctx, core.NewList{Name: "Groceries", Budget: core.Cents(3000)})
	require.NoError(t, err)

	c, err := remote.New(newTestServer(t), remote.WithToken("stale-session-token"))
	require.NoError(t, err)
	_, err = c.ListLists(ctx, "")
	require.ErrorIs(t, err, core.ErrUnauthorized)

	d := New(store, c, nil)
	require.True(t, d.Online(ctx), "the server is reachable, only the session is rejected")

	history, err := d.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, snap.List.ID, history[0].List.ID)
	assert.Equal(t, core.ProvenanceLocal, history[0].List.Provenance)
}

func TestMissingLocalList(t *testing.T) {
	d := New(local.New(memfs.New()), nil, nil)
	_, err := d.GetList(context.Background(), local.IDPrefix+"gone")
	assert.ErrorIs(t, err, core.ErrListNotFound)
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	d := New(local.New(memfs.New()), nil, nil)
	_, err := d.Export(context.Background(), "x", "pdf")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}
