// Package device routes list operations on a user's device. Lists kept in
// the Local Store are edited locally through a ledger; everything else is
// forwarded to the server.
package device

import (
	"context"
	"errors"
	"fmt"

	"budgetlist/internal/core"
	"budgetlist/internal/export"
	"budgetlist/internal/ledger"
	"budgetlist/internal/local"
	"budgetlist/internal/log"
	"budgetlist/internal/reconcile"
)

// Server is the remote side of the device. *remote.Client implements it.
type Server interface {
	reconcile.Source
	Online(ctx context.Context) bool
	HasToken() bool
	GetList(ctx context.Context, listID string) (*core.Snapshot, error)
	CreateList(ctx context.Context, in core.NewList) (*core.Snapshot, error)
	UpdateList(ctx context.Context, listID string, patch core.ListPatch) (*core.Snapshot, error)
	DeleteList(ctx context.Context, listID string) error
	AddItem(ctx context.Context, listID string, in core.NewItem) (*core.Item, error)
	UpdateItem(ctx context.Context, listID, itemID string, patch core.ItemPatch) (*core.Item, error)
	DeleteItem(ctx context.Context, listID, itemID string) error
	Export(ctx context.Context, listID, format string) ([]byte, error)
}

var errOffline = fmt.Errorf("%w: offline or not logged in", reconcile.ErrSourceUnavailable)

type Device struct {
	local      *local.Store
	ledger     *ledger.Ledger
	server     Server
	reconciler *reconcile.Reconciler
	logger     *log.Logger
}

// New builds a device over a Local Store. server may be nil for a device
// that never goes online.
func New(store *local.Store, server Server, logger *log.Logger) *Device {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentDevice)

	var source reconcile.Source
	if server != nil {
		source = server
	}
	return &Device{
		local:      store,
		ledger:     ledger.New(store, ledger.WithLogger(logger)),
		server:     server,
		reconciler: reconcile.New(source, store, logger),
		logger:     logger,
	}
}

// Online reports whether server operations can be attempted.
func (d *Device) Online(ctx context.Context) bool {
	return d.server != nil && d.server.HasToken() && d.server.Online(ctx)
}

// History returns server and device lists, newest first. Offline or with a
// rejected session, only device lists are returned.
func (d *Device) History(ctx context.Context) ([]core.Snapshot, error) {
	lists, err := d.reconciler.UnifiedHistory(ctx, "", reconcile.ConnectivityFunc(d.Online))
	if err != nil {
		return nil, err
	}
	snaps := make([]core.Snapshot, 0, len(lists))
	for _, l := range lists {
		snaps = append(snaps, core.Summarize(l))
	}
	return snaps, nil
}

// CreateList creates a server list when online and a device list otherwise.
func (d *Device) CreateList(ctx context.Context, in core.NewList) (*core.Snapshot, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if d.Online(ctx) {
		snap, err := d.server.CreateList(ctx, in)
		if !errors.Is(err, reconcile.ErrSourceUnavailable) {
			return snap, err
		}
		d.logger.WarnContext(ctx, "Server became unreachable, creating list on device", log.FieldError, err.Error())
	}

	l, err := d.local.CreateList(ctx, "", in)
	if err != nil {
		return nil, err
	}
	d.logger.InfoContext(ctx, "List created on device", log.FieldListID, l.ID)
	snap := core.Summarize(*l)
	return &snap, nil
}

func (d *Device) GetList(ctx context.Context, listID string) (*core.Snapshot, error) {
	isLocal, err := d.isLocal(ctx, listID)
	if err != nil {
		return nil, err
	}
	if isLocal {
		return d.ledger.Snapshot(ctx, "", listID)
	}
	if err := d.requireServer(ctx); err != nil {
		return nil, err
	}
	return d.server.GetList(ctx, listID)
}

func (d *Device) UpdateList(ctx context.Context, listID string, patch core.ListPatch) (*core.Snapshot, error) {
	isLocal, err := d.isLocal(ctx, listID)
	if err != nil {
		return nil, err
	}
	if isLocal {
		if _, err := d.ledger.UpdateList(ctx, "", listID, patch); err != nil {
			return nil, err
		}
		return d.ledger.Snapshot(ctx, "", listID)
	}
	if err := d.requireServer(ctx); err != nil {
		return nil, err
	}
	return d.server.UpdateList(ctx, listID, patch)
}

func (d *Device) DeleteList(ctx context.Context, listID string) error {
	isLocal, err := d.isLocal(ctx, listID)
	if err != nil {
		return err
	}
	if isLocal {
		return d.ledger.DeleteList(ctx, "", listID)
	}
	if err := d.requireServer(ctx); err != nil {
		return err
	}
	return d.server.DeleteList(ctx, listID)
}

// AddItem adds an item under the budget gate of whichever side owns the list.
func (d *Device) AddItem(ctx context.Context, listID string, in core.NewItem) (*core.Item, error) {
	isLocal, err := d.isLocal(ctx, listID)
	if err != nil {
		return nil, err
	}
	if isLocal {
		return d.ledger.AddItem(ctx, "", listID, in)
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := d.requireServer(ctx); err != nil {
		return nil, err
	}
	return d.server.AddItem(ctx, listID, in)
}

func (d *Device) UpdateItem(ctx context.Context, listID, itemID string, patch core.ItemPatch) (*core.Item, error) {
	isLocal, err := d.isLocal(ctx, listID)
	if err != nil {
		return nil, err
	}
	if isLocal {
		return d.ledger.UpdateItem(ctx, "", listID, itemID, patch)
	}
	if err := d.requireServer(ctx); err != nil {
		return nil, err
	}
	return d.server.UpdateItem(ctx, listID, itemID, patch)
}

func (d *Device) DeleteItem(ctx context.Context, listID, itemID string) error {
	isLocal, err := d.isLocal(ctx, listID)
	if err != nil {
		return err
	}
	if isLocal {
		return d.ledger.DeleteItem(ctx, "", listID, itemID)
	}
	if err := d.requireServer(ctx); err != nil {
		return err
	}
	return d.server.DeleteItem(ctx, listID, itemID)
}

// Export renders device lists locally and asks the server for the rest.
func (d *Device) Export(ctx context.Context, listID, format string) ([]byte, error) {
	if export.ContentType(format) == "" {
		return nil, fmt.Errorf("%w: unsupported export format %q", core.ErrInvalidInput, format)
	}
	isLocal, err := d.isLocal(ctx, listID)
	if err != nil {
		return nil, err
	}
	if !isLocal {
		if err := d.requireServer(ctx); err != nil {
			return nil, err
		}
		return d.server.Export(ctx, listID, format)
	}

	snap, err := d.ledger.Snapshot(ctx, "", listID)
	if err != nil {
		return nil, err
	}
	if format == export.FormatHTML {
		return export.HTML(snap)
	}
	return []byte(export.Markdown(snap)), nil
}

// isLocal reports whether the Local Store holds listID.
func (d *Device) isLocal(ctx context.Context, listID string) (bool, error) {
	if !local.IsLocalID(listID) {
		return false, nil
	}
	_, err := d.local.GetList(ctx, "", listID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, core.ErrListNotFound):
		return false, core.ErrListNotFound
	default:
		return false, err
	}
}

func (d *Device) requireServer(ctx context.Context) error {
	if !d.Online(ctx) {
		return errOffline
	}
	return nil
}
