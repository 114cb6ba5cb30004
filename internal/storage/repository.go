// Package storage is the authoritative List Store backed by SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"budgetlist/internal/core"
	"budgetlist/internal/store"
)

var (
	_ store.Store     = (*SQLiteRepository)(nil)
	_ store.UserStore = (*SQLiteRepository)(nil)
)

// The budget gate and the insert are a single statement so that two
// concurrent additions cannot both pass against the same stale total.
const insertItemWithinBudget = `
INSERT INTO items (id, list_id, name, quantity, unit_value_cents, created_at, updated_at)
SELECT ?, l.id, ?, ?, ?, ?, ?
FROM lists l
WHERE l.id = ? AND l.owner_id = ?
  AND (SELECT COALESCE(SUM(i.quantity * i.unit_value_cents), 0) FROM items i WHERE i.list_id = l.id) + ? <= l.budget_cents`

const (
	listColumns = `l.id, l.owner_id, l.name, l.budget_cents, l.created_at, l.updated_at`
	itemColumns = `i.id, i.list_id, i.name, i.quantity, i.unit_value_cents, i.created_at, i.updated_at`
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// SQLite allows a single writer; one connection avoids SQLITE_BUSY on
	// lock upgrades inside transactions.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks that the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) CreateList(ctx context.Context, owner string, in core.NewList) (*core.List, error) {
	now := r.now()
	l := &core.List{
		ID:         uuid.NewString(),
		Name:       strings.TrimSpace(in.Name),
		Budget:     in.Budget,
		OwnerID:    owner,
		Items:      []core.Item{},
		CreatedAt:  now,
		UpdatedAt:  now,
		Provenance: core.ProvenanceServer,
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO lists (id, owner_id, name, budget_cents, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		l.ID, l.OwnerID, l.Name, l.Budget.Cents, now.UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert list: %w", err)
	}

	slog.DebugContext(ctx, "List created", "list_id", l.ID, "owner_id", owner, "budget_cents", l.Budget.Cents)
	return l, nil
}

func (r *SQLiteRepository) GetList(ctx context.Context, owner, listID string) (*core.List, error) {
	return r.getList(ctx, r.db, owner, listID)
}

func (r *SQLiteRepository) getList(ctx context.Context, q querier, owner, listID string) (*core.List, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+listColumns+` FROM lists l WHERE l.id = ? AND l.owner_id = ?`, listID, owner)
	l, err := scanList(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrListNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get list: %w", err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items i JOIN lists l ON l.id = i.list_id
		 WHERE i.list_id = ? AND l.owner_id = ? ORDER BY i.created_at, i.rowid`, listID, owner)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		l.Items = append(l.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return &l, nil
}

func (r *SQLiteRepository) ListLists(ctx context.Context, owner string) ([]core.List, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+listColumns+` FROM lists l WHERE l.owner_id = ? ORDER BY l.created_at DESC, l.rowid DESC`, owner)
	if err != nil {
		return nil, fmt.Errorf("query lists: %w", err)
	}
	defer rows.Close()

	lists := []core.List{}
	index := map[string]int{}
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			return nil, fmt.Errorf("scan list: %w", err)
		}
		index[l.ID] = len(lists)
		lists = append(lists, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lists: %w", err)
	}
	if len(lists) == 0 {
		return lists, nil
	}

	itemRows, err := r.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items i JOIN lists l ON l.id = i.list_id
		 WHERE l.owner_id = ? ORDER BY i.created_at, i.rowid`, owner)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		it, err := scanItem(itemRows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		if i, ok := index[it.ListID]; ok {
			lists[i].Items = append(lists[i].Items, it)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return lists, nil
}

func (r *SQLiteRepository) UpdateList(ctx context.Context, owner, listID string, patch core.ListPatch) (*core.List, error) {
	var (
		name   sql.NullString
		budget sql.NullInt64
	)
	if patch.Name != nil {
		name = sql.NullString{String: strings.TrimSpace(*patch.Name), Valid: true}
	}
	if patch.Budget != nil {
		budget = sql.NullInt64{Int64: patch.Budget.Cents, Valid: true}
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE lists SET name = COALESCE(?, name), budget_cents = COALESCE(?, budget_cents), updated_at = ?
		 WHERE id = ? AND owner_id = ?`,
		name, budget, r.now().UnixNano(), listID, owner,
	)
	if err != nil {
		return nil, fmt.Errorf("update list: %w", err)
	}
	if err := requireAffected(res, core.ErrListNotFound); err != nil {
		return nil, err
	}
	return r.GetList(ctx, owner, listID)
}

func (r *SQLiteRepository) DeleteList(ctx context.Context, owner, listID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM lists WHERE id = ? AND owner_id = ?`, listID, owner)
	if err != nil {
		return fmt.Errorf("delete list: %w", err)
	}
	if err := requireAffected(res, core.ErrListNotFound); err != nil {
		return err
	}
	slog.DebugContext(ctx, "List deleted", "list_id", listID, "owner_id", owner)
	return nil
}

func (r *SQLiteRepository) InsertItem(ctx context.Context, owner string, item core.Item) (*core.Item, error) {
	now := r.now()
	item.ID = uuid.NewString()
	item.CreatedAt, item.UpdatedAt = now, now
	line := item.LineTotal()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := ensureList(ctx, tx, owner, item.ListID); err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, insertItemWithinBudget,
		item.ID, item.Name, item.Quantity, item.UnitValue.Cents, now.UnixNano(), now.UnixNano(),
		item.ListID, owner, line.Cents,
	)
	if err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}
	if err := requireAffected(res, core.ErrOverBudget); err != nil {
		return nil, fmt.Errorf("%w: adding %s to list %s", err, line, item.ListID)
	}

	if err := touchList(ctx, tx, item.ListID, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return &item, nil
}

func (r *SQLiteRepository) UpdateItem(ctx context.Context, owner string, item core.Item) (*core.Item, error) {
	now := r.now()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := ensureList(ctx, tx, owner, item.ListID); err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE items SET name = ?, quantity = ?, unit_value_cents = ?, updated_at = ?
		 WHERE id = ? AND list_id = ?`,
		item.Name, item.Quantity, item.UnitValue.Cents, now.UnixNano(), item.ID, item.ListID,
	)
	if err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}
	if err := requireAffected(res, core.ErrItemNotFound); err != nil {
		return nil, err
	}

	updated, err := scanItem(tx.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items i WHERE i.id = ?`, item.ID))
	if err != nil {
		return nil, fmt.Errorf("reload item: %w", err)
	}
	if err := touchList(ctx, tx, item.ListID, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return &updated, nil
}

func (r *SQLiteRepository) DeleteItem(ctx context.Context, owner, listID, itemID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := ensureList(ctx, tx, owner, listID); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ? AND list_id = ?`, itemID, listID)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	if err := requireAffected(res, core.ErrItemNotFound); err != nil {
		return err
	}
	if err := touchList(ctx, tx, listID, r.now()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) (*core.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = r.now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.CreatedAt.UnixNano(),
	)
	if err != nil {
		var se *sqlite.Error
		if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return nil, core.ErrEmailTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &u, nil
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	return r.getUser(ctx, `email = ?`, email)
}

func (r *SQLiteRepository) GetUserByID(ctx context.Context, id string) (*core.User, error) {
	return r.getUser(ctx, `id = ?`, id)
}

func (r *SQLiteRepository) getUser(ctx context.Context, where string, arg string) (*core.User, error) {
	var (
		u       core.User
		created int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, name, password_hash, created_at FROM users WHERE `+where, arg,
	).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt = fromNanos(created)
	return &u, nil
}

func ensureList(ctx context.Context, q querier, owner, listID string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM lists WHERE id = ? AND owner_id = ?`, listID, owner).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrListNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup list: %w", err)
	}
	return nil
}

func touchList(ctx context.Context, q querier, listID string, at time.Time) error {
	if _, err := q.ExecContext(ctx, `UPDATE lists SET updated_at = ? WHERE id = ?`, at.UnixNano(), listID); err != nil {
		return fmt.Errorf("touch list: %w", err)
	}
	return nil
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func scanList(s rowScanner) (core.List, error) {
	var (
		l                core.List
		created, updated int64
	)
	if err := s.Scan(&l.ID, &l.OwnerID, &l.Name, &l.Budget.Cents, &created, &updated); err != nil {
		return core.List{}, err
	}
	l.CreatedAt = fromNanos(created)
	l.UpdatedAt = fromNanos(updated)
	l.Items = []core.Item{}
	l.Provenance = core.ProvenanceServer
	return l, nil
}

func scanItem(s rowScanner) (core.Item, error) {
	var (
		it               core.Item
		created, updated int64
	)
	if err := s.Scan(&it.ID, &it.ListID, &it.Name, &it.Quantity, &it.UnitValue.Cents, &created, &updated); err != nil {
		return core.Item{}, err
	}
	it.CreatedAt = fromNanos(created)
	it.UpdatedAt = fromNanos(updated)
	return it, nil
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
