package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetlist/internal/auth"
	"budgetlist/internal/core"
	apihttp "budgetlist/internal/http"
	"budgetlist/internal/reconcile"
	"budgetlist/internal/services"
	"budgetlist/internal/storage"
)

func newAPIServer(t *testing.T) *httptest.Server {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "remote.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	srv := apihttp.NewServer(
		services.NewListService(repo, nil),
		auth.NewService(repo, auth.NewJWTManager("remote-test-secret-123456", time.Hour)),
		apihttp.Options{Ready: repo.Ping},
	)
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Shutdown(context.Background())
	})
	return ts
}

func loggedIn(t *testing.T, url string) *Client {
	t.Helper()
	ctx := context.Background()
	c, err := New(url)
	require.NoError(t, err)
	_, err = c.Register(ctx, "ana@example.com", "password123", "Ana")
	require.NoError(t, err)
	_, err = c.Login(ctx, "ana@example.com", "password123")
	require.NoError(t, err)
	require.True(t, c.HasToken())
	return c
}

func TestClientAgainstServer(t *testing.T) {
	ts := newAPIServer(t)
	c := loggedIn(t, ts.URL)
	ctx := context.Background()

	assert.True(t, c.Online(ctx))

	snap, err := c.CreateList(ctx, core.NewList{Name: "Groceries", Budget: core.Cents(10000)})
	require.NoError(t, err)
	assert.Equal(t, core.ProvenanceServer, snap.List.Provenance)

	item, err := c.AddItem(ctx, snap.List.ID, core.NewItem{Name: "Rice", Quantity: 2, UnitValue: core.Cents(4500)})
	require.NoError(t, err)
	assert.Equal(t, int64(9000), item.LineTotal().Cents)

	_, err = c.AddItem(ctx, snap.List.ID, core.NewItem{Name: "Oil", Quantity: 1, UnitValue: core.Cents(1500)})
	assert.ErrorIs(t, err, core.ErrOverBudget)

	qty := 1
	item, err = c.UpdateItem(ctx, snap.List.ID, item.ID, core.ItemPatch{Quantity: &qty})
	require.NoError(t, err)
	assert.Equal(t, 1, item.Quantity)

	name := "Weekly groceries"
	snap, err = c.UpdateList(ctx, snap.List.ID, core.ListPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, snap.List.Name)
	assert.Equal(t, int64(4500), snap.Totals.Spent.Cents)

	lists, err := c.ListLists(ctx, "ignored")
	require.NoError(t, err)
	require.Len(t, lists, 1)

	report, err := c.Export(ctx, snap.List.ID, "md")
	require.NoError(t, err)
	assert.Contains(t, string(report), "# Weekly groceries")

	require.NoError(t, c.DeleteItem(ctx, snap.List.ID, item.ID))
	assert.ErrorIs(t, c.DeleteItem(ctx, snap.List.ID, item.ID), core.ErrItemNotFound)

	require.NoError(t, c.DeleteList(ctx, snap.List.ID))
	_, err = c.GetList(ctx, snap.List.ID)
	assert.ErrorIs(t, err, core.ErrListNotFound)
}

func TestClientErrors(t *testing.T) {
	ts := newAPIServer(t)
	ctx := context.Background()

	c, err := New(ts.URL, WithHTTPClient(ts.Client()))
	require.NoError(t, err)

	_, err = c.ListLists(ctx, "")
	assert.ErrorIs(t, err, core.ErrUnauthorized)

	_, err = c.Register(ctx, "ana@example.com", "short", "")
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = c.Register(ctx, "ana@example.com", "password123", "")
	require.NoError(t, err)
	_, err = c.Register(ctx, "ana@example.com", "password123", "")
	assert.ErrorIs(t, err, core.ErrEmailTaken)

	_, err = c.Login(ctx, "ana@example.com", "nope-nope")
	assert.ErrorIs(t, err, core.ErrUnauthorized)
	assert.False(t, c.HasToken())
}

func TestClientUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	c, err := New(url, WithToken("token"))
	require.NoError(t, err)
	ctx := context.Background()

	assert.False(t, c.Online(ctx))
	_, err = c.ListLists(ctx, "")
	assert.ErrorIs(t, err, reconcile.ErrSourceUnavailable)
}

func TestDecodeErrorStatuses(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   error
	}{
		{http.StatusNotFound, `{"error":"item not found"}`, core.ErrItemNotFound},
		{http.StatusNotFound, `{"error":"list not found"}`, core.ErrListNotFound},
		{http.StatusTooManyRequests, `{"error":"rate limit exceeded"}`, ErrRateLimited},
		{http.StatusServiceUnavailable, `upstream down`, reconcile.ErrSourceUnavailable},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			c, err := New(ts.URL, WithToken("t"))
			require.NoError(t, err)
			_, err = c.GetList(context.Background(), "x")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New("not a url")
	assert.Error(t, err)
}
