// Package local is the on-device Local Store. Lists created while offline
// live here as a single JSON document; they never have an owner.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/uuid"

	"budgetlist/internal/core"
	"budgetlist/internal/store"
)

const (
	// IDPrefix marks ids minted on the device.
	IDPrefix = "offline-"

	fileName = "lists.json"
)

var _ store.Store = (*Store)(nil)

// IsLocalID reports whether id was minted by a Local Store.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, IDPrefix)
}

type (
	listRecord struct {
		ID        string       `json:"id"`
		Name      string       `json:"name"`
		Budget    core.Money   `json:"budget"`
		Items     []itemRecord `json:"items"`
		CreatedAt time.Time    `json:"created_at"`
		UpdatedAt time.Time    `json:"updated_at"`
	}

	itemRecord struct {
		ID        string     `json:"id"`
		Name      string     `json:"name"`
		Quantity  int        `json:"quantity"`
		Value     core.Money `json:"value"`
		CreatedAt time.Time  `json:"created_at"`
		UpdatedAt time.Time  `json:"updated_at"`
	}
)

// Store keeps the whole collection in one file. Every call reads the file,
// applies its change and writes the file back while holding mu.
type Store struct {
	mu  sync.Mutex
	fs  billy.Filesystem
	now func() time.Time
}

// New returns a Store persisting to fs.
func New(fs billy.Filesystem) *Store {
	return &Store{
		fs:  fs,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Open returns a Store rooted at dir on the OS filesystem.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create local data directory: %w", err)
	}
	return New(osfs.New(dir)), nil
}

func (s *Store) Close() error { return nil }

func (s *Store) CreateList(ctx context.Context, _ string, in core.NewList) (*core.List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return nil, err
	}

	now := s.now()
	rec := listRecord{
		ID:        IDPrefix + uuid.NewString(),
		Name:      strings.TrimSpace(in.Name),
		Budget:    in.Budget,
		Items:     []itemRecord{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	records = append(records, rec)
	if err := s.save(records); err != nil {
		return nil, err
	}
	l := rec.list()
	return &l, nil
}

func (s *Store) GetList(ctx context.Context, _ string, listID string) (*core.List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return nil, err
	}
	i := indexOf(records, listID)
	if i < 0 {
		return nil, core.ErrListNotFound
	}
	l := records[i].list()
	return &l, nil
}

func (s *Store) ListLists(ctx context.Context, _ string) ([]core.List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return nil, err
	}
	lists := make([]core.List, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		lists = append(lists, records[i].list())
	}
	sort.SliceStable(lists, func(i, j int) bool {
		return lists[i].CreatedAt.After(lists[j].CreatedAt)
	})
	return lists, nil
}

func (s *Store) UpdateList(ctx context.Context, _ string, listID string, patch core.ListPatch) (*core.List, error) {
	var out core.List
	err := s.mutate(listID, func(rec *listRecord) error {
		if patch.Name != nil {
			rec.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Budget != nil {
			rec.Budget = *patch.Budget
		}
		rec.UpdatedAt = s.now()
		out = rec.list()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) DeleteList(ctx context.Context, _ string, listID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	i := indexOf(records, listID)
	if i < 0 {
		return core.ErrListNotFound
	}
	records = append(records[:i], records[i+1:]...)
	return s.save(records)
}

func (s *Store) InsertItem(ctx context.Context, _ string, item core.Item) (*core.Item, error) {
	var out core.Item
	err := s.mutate(item.ListID, func(rec *listRecord) error {
		l := rec.list()
		line := item.LineTotal()
		if err := core.CheckAddition(l.Spent(), l.Budget, line); err != nil {
			return err
		}
		now := s.now()
		rec.Items = append(rec.Items, itemRecord{
			ID:        IDPrefix + uuid.NewString(),
			Name:      item.Name,
			Quantity:  item.Quantity,
			Value:     item.UnitValue,
			CreatedAt: now,
			UpdatedAt: now,
		})
		rec.UpdatedAt = now
		out = rec.Items[len(rec.Items)-1].item(rec.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) UpdateItem(ctx context.Context, _ string, item core.Item) (*core.Item, error) {
	var out core.Item
	err := s.mutate(item.ListID, func(rec *listRecord) error {
		for i := range rec.Items {
			if rec.Items[i].ID != item.ID {
				continue
			}
			now := s.now()
			rec.Items[i].Name = item.Name
			rec.Items[i].Quantity = item.Quantity
			rec.Items[i].Value = item.UnitValue
			rec.Items[i].UpdatedAt = now
			rec.UpdatedAt = now
			out = rec.Items[i].item(rec.ID)
			return nil
		}
		return core.ErrItemNotFound
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) DeleteItem(ctx context.Context, _ string, listID, itemID string) error {
	return s.mutate(listID, func(rec *listRecord) error {
		for i := range rec.Items {
			if rec.Items[i].ID == itemID {
				rec.Items = append(rec.Items[:i], rec.Items[i+1:]...)
				rec.UpdatedAt = s.now()
				return nil
			}
		}
		return core.ErrItemNotFound
	})
}

// mutate applies fn to one list and persists the collection if fn succeeds.
func (s *Store) mutate(listID string, fn func(*listRecord) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	i := indexOf(records, listID)
	if i < 0 {
		return core.ErrListNotFound
	}
	if err := fn(&records[i]); err != nil {
		return err
	}
	return s.save(records)
}

func (s *Store) load() ([]listRecord, error) {
	data, err := util.ReadFile(s.fs, fileName)
	if errors.Is(err, os.ErrNotExist) {
		return []listRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fileName, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return []listRecord{}, nil
	}

	var records []listRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", fileName, err)
	}
	return records, nil
}

// save writes to a temp file and renames it over the collection, so a crash
// mid-write leaves the previous document intact.
func (s *Store) save(records []listRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", fileName, err)
	}

	tmp, err := util.TempFile(s.fs, ".", "lists-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		s.fs.Remove(tmp.Name())
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := s.fs.Rename(tmp.Name(), fileName); err != nil {
		s.fs.Remove(tmp.Name())
		return fmt.Errorf("replace %s: %w", fileName, err)
	}
	return nil
}

func indexOf(records []listRecord, id string) int {
	for i := range records {
		if records[i].ID == id {
			return i
		}
	}
	return -1
}

func (r listRecord) list() core.List {
	items := make([]core.Item, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, it.item(r.ID))
	}
	return core.List{
		ID:         r.ID,
		Name:       r.Name,
		Budget:     r.Budget,
		Items:      items,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
		Provenance: core.ProvenanceLocal,
	}
}

func (r itemRecord) item(listID string) core.Item {
	return core.Item{
		ID:        r.ID,
		ListID:    listID,
		Name:      r.Name,
		Quantity:  r.Quantity,
		UnitValue: r.Value,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}
