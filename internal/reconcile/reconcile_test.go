package reconcile

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetlist/internal/core"
)

type fakeSource struct {
	lists  []core.List
	err    error
	calls  int
	owners []string
}

func (f *fakeSource) ListLists(_ context.Context, owner string) ([]core.List, error) {
	f.calls++
	f.owners = append(f.owners, owner)
	if f.err != nil {
		return nil, f.err
	}
	return append([]core.List(nil), f.lists...), nil
}

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func list(id string, minutes int, p core.Provenance) core.List {
	return core.List{ID: id, CreatedAt: t0.Add(time.Duration(minutes) * time.Minute), Provenance: p}
}

func ids(lists []core.List) []string {
	out := make([]string, len(lists))
	for i, l := range lists {
		out[i] = l.ID
	}
	return out
}

func TestUnifiedHistoryOnline(t *testing.T) {
	server := &fakeSource{lists: []core.List{
		list("s1", 1, core.ProvenanceServer),
		list("s3", 3, core.ProvenanceServer),
	}}
	local := &fakeSource{lists: []core.List{list("offline-l2", 2, core.ProvenanceLocal)}}

	got, err := New(server, local, nil).UnifiedHistory(context.Background(), "u1", Static(true))
	require.NoError(t, err)
	assert.Equal(t, []string{"s3", "offline-l2", "s1"}, ids(got))
	assert.Equal(t, core.ProvenanceLocal, got[1].Provenance)
	assert.Equal(t, []string{"u1"}, server.owners)
}

func TestUnifiedHistoryOffline(t *testing.T) {
	server := &fakeSource{lists: []core.List{list("s1", 1, core.ProvenanceServer)}}
	local := &fakeSource{lists: []core.List{
		list("offline-a", 1, core.ProvenanceLocal),
		list("offline-b", 5, core.ProvenanceLocal),
	}}

	got, err := New(server, local, nil).UnifiedHistory(context.Background(), "u1", Static(false))
	require.NoError(t, err)
	assert.Equal(t, []string{"offline-b", "offline-a"}, ids(got))
	assert.Zero(t, server.calls, "server must not be contacted while offline")
}

func TestUnifiedHistoryTiesKeepServerFirst(t *testing.T) {
	server := &fakeSource{lists: []core.List{list("s", 1, core.ProvenanceServer)}}
	local := &fakeSource{lists: []core.List{list("offline-l", 1, core.ProvenanceLocal)}}

	got, err := New(server, local, nil).UnifiedHistory(context.Background(), "u1", Static(true))
	require.NoError(t, err)
	assert.Equal(t, []string{"s", "offline-l"}, ids(got))
}

func TestUnifiedHistoryDegradesWhenServerUnavailable(t *testing.T) {
	server := &fakeSource{err: fmt.Errorf("dial: %w", ErrSourceUnavailable)}
	local := &fakeSource{lists: []core.List{list("offline-a", 1, core.ProvenanceLocal)}}

	got, err := New(server, local, nil).UnifiedHistory(context.Background(), "u1", Static(true))
	require.NoError(t, err)
	assert.Equal(t, []string{"offline-a"}, ids(got))
}

func TestUnifiedHistoryDegradesWhenSessionExpired(t *testing.T) {
	server := &fakeSource{err: fmt.Errorf("%w: token expired", core.ErrUnauthorized)}
	local := &fakeSource{lists: []core.List{
		list("offline-a", 1, core.ProvenanceLocal),
		list("offline-b", 2, core.ProvenanceLocal),
	}}

	got, err := New(server, local, nil).UnifiedHistory(context.Background(), "u1", Static(true))
	require.NoError(t, err)
	assert.Equal(t, []string{"offline-b", "offline-a"}, ids(got))
	assert.Equal(t, 1, server.calls)
}

func TestUnifiedHistoryPropagatesOtherErrors(t *testing.T) {
	server := &fakeSource{err: errors.New("unexpected status 500")}
	local := &fakeSource{}

	_, err := New(server, local, nil).UnifiedHistory(context.Background(), "u1", Static(true))
	assert.Error(t, err)

	broken := &fakeSource{err: errors.New("decode lists.json")}
	_, err = New(&fakeSource{}, broken, nil).UnifiedHistory(context.Background(), "u1", Static(false))
	assert.Error(t, err)
}

func TestConnectivityObservedPerCall(t *testing.T) {
	server := &fakeSource{lists: []core.List{list("s1", 1, core.ProvenanceServer)}}
	local := &fakeSource{}
	online := false
	conn := ConnectivityFunc(func(context.Context) bool { return online })
	r := New(server, local, nil)

	got, err := r.UnifiedHistory(context.Background(), "u1", conn)
	require.NoError(t, err)
	assert.Empty(t, got)

	online = true
	got, err = r.UnifiedHistory(context.Background(), "u1", conn)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids(got))
}

func TestUnifiedHistoryDoesNotMutateSources(t *testing.T) {
	server := &fakeSource{lists: []core.List{
		list("s1", 1, core.ProvenanceServer),
		list("s2", 2, core.ProvenanceServer),
	}}
	local := &fakeSource{}

	_, err := New(server, local, nil).UnifiedHistory(context.Background(), "u1", Static(true))
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, ids(server.lists))
}
