// Package reconcile merges the server-side history of a user with the lists
// that only exist on the device.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"budgetlist/internal/core"
	"budgetlist/internal/log"
)

// ErrSourceUnavailable marks a failure to reach the server side. The history
// degrades to local lists instead of failing.
var ErrSourceUnavailable = errors.New("source unavailable")

// Source lists the lists visible to owner.
type Source interface {
	ListLists(ctx context.Context, owner string) ([]core.List, error)
}

// Connectivity reports whether the server can be reached right now.
type Connectivity interface {
	Online(ctx context.Context) bool
}

// Static is a fixed Connectivity answer.
type Static bool

func (s Static) Online(context.Context) bool { return bool(s) }

// ConnectivityFunc adapts a function to Connectivity.
type ConnectivityFunc func(ctx context.Context) bool

func (f ConnectivityFunc) Online(ctx context.Context) bool { return f(ctx) }

type Reconciler struct {
	server Source
	local  Source
	logger *log.Logger
}

func New(server, local Source, logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = log.Discard()
	}
	return &Reconciler{
		server: server,
		local:  local,
		logger: logger.WithComponent(log.ComponentReconcile),
	}
}

// UnifiedHistory returns the lists to show the user, newest first.
//
// Offline, only device lists are returned. Online, server and device lists
// are fetched concurrently and concatenated server first before a stable
// sort on CreatedAt, so that equal timestamps keep server lists ahead.
// Neither source is modified.
func (r *Reconciler) UnifiedHistory(ctx context.Context, owner string, conn Connectivity) ([]core.List, error) {
	if conn == nil || r.server == nil || !conn.Online(ctx) {
		return r.localOnly(ctx)
	}

	var serverLists, localLists []core.List
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lists, err := r.server.ListLists(gctx, owner)
		if degraded(err) {
			r.logger.WarnContext(ctx, "Server lists unavailable, showing device lists only",
				log.FieldOwnerID, owner, log.FieldError, err.Error())
			return nil
		}
		if err != nil {
			return fmt.Errorf("list server lists: %w", err)
		}
		serverLists = lists
		return nil
	})
	g.Go(func() error {
		lists, err := r.local.ListLists(gctx, "")
		if err != nil {
			return fmt.Errorf("list local lists: %w", err)
		}
		localLists = lists
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make([]core.List, 0, len(serverLists)+len(localLists))
	merged = append(merged, serverLists...)
	merged = append(merged, localLists...)
	SortNewestFirst(merged)

	r.logger.DebugContext(ctx, "History reconciled",
		log.FieldOwnerID, owner, "server", len(serverLists), "local", len(localLists))
	return merged, nil
}

// degraded reports whether a server failure should fall back to device
// lists. An expired or revoked session is treated like a lost connection.
func degraded(err error) bool {
	return errors.Is(err, ErrSourceUnavailable) || errors.Is(err, core.ErrUnauthorized)
}

func (r *Reconciler) localOnly(ctx context.Context) ([]core.List, error) {
	lists, err := r.local.ListLists(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list local lists: %w", err)
	}
	SortNewestFirst(lists)
	return lists, nil
}

// SortNewestFirst orders lists by CreatedAt descending, keeping the
// relative order of lists created at the same instant.
func SortNewestFirst(lists []core.List) {
	sort.SliceStable(lists, func(i, j int) bool {
		return lists[i].CreatedAt.After(lists[j].CreatedAt)
	})
}
