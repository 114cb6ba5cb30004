// Package store defines the persistence surface shared by the server-side
// List Store and the on-device Local Store.
package store

import (
	"context"

	"budgetlist/internal/core"
)

// Store persists lists and their items. The owner argument scopes every
// call; a list or item belonging to another owner is reported exactly like a
// missing one. Stores without ownership ignore it.
type Store interface {
	CreateList(ctx context.Context, owner string, in core.NewList) (*core.List, error)
	// GetList returns the list with its items in insertion order.
	GetList(ctx context.Context, owner, listID string) (*core.List, error)
	// ListLists returns the owner's lists, newest first, items included.
	ListLists(ctx context.Context, owner string) ([]core.List, error)
	UpdateList(ctx context.Context, owner, listID string, patch core.ListPatch) (*core.List, error)
	// DeleteList removes the list and all of its items.
	DeleteList(ctx context.Context, owner, listID string) error

	// InsertItem assigns an id and timestamps and commits the item only if
	// the list's total after insertion stays within its budget; otherwise it
	// returns core.ErrOverBudget and persists nothing.
	InsertItem(ctx context.Context, owner string, item core.Item) (*core.Item, error)
	// UpdateItem replaces name, quantity and unit value of an item that
	// belongs to item.ListID.
	UpdateItem(ctx context.Context, owner string, item core.Item) (*core.Item, error)
	DeleteItem(ctx context.Context, owner, listID, itemID string) error

	Close() error
}

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u core.User) (*core.User, error)
	GetUserByEmail(ctx context.Context, email string) (*core.User, error)
	GetUserByID(ctx context.Context, id string) (*core.User, error)
}
