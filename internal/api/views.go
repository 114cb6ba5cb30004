// Package api holds the JSON documents exchanged between the HTTP server and
// its clients.
package api

import (
	"fmt"
	"time"

	"budgetlist/internal/core"
)

type ItemView struct {
	ID        string     `json:"id"`
	ListID    string     `json:"list_id"`
	Name      string     `json:"name"`
	Quantity  int        `json:"quantity"`
	Value     core.Money `json:"value"`
	LineTotal core.Money `json:"line_total"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type TotalsView struct {
	Spent     core.Money        `json:"spent"`
	Remaining core.Money        `json:"remaining"`
	Ratio     float64           `json:"ratio"`
	Status    core.BudgetStatus `json:"status"`
	ItemCount int               `json:"item_count"`
	Units     int               `json:"units"`
}

type ListView struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Budget     core.Money      `json:"budget"`
	OwnerID    string          `json:"owner_id,omitempty"`
	Provenance core.Provenance `json:"provenance"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	Items      []ItemView      `json:"items"`
	Totals     TotalsView      `json:"totals"`
}

func NewItemView(it core.Item) ItemView {
	return ItemView{
		ID:        it.ID,
		ListID:    it.ListID,
		Name:      it.Name,
		Quantity:  it.Quantity,
		Value:     it.UnitValue,
		LineTotal: it.LineTotal(),
		CreatedAt: it.CreatedAt,
		UpdatedAt: it.UpdatedAt,
	}
}

func NewListView(s core.Snapshot) ListView {
	items := make([]ItemView, 0, len(s.List.Items))
	for _, it := range s.List.Items {
		items = append(items, NewItemView(it))
	}
	return ListView{
		ID:         s.List.ID,
		Name:       s.List.Name,
		Budget:     s.List.Budget,
		OwnerID:    s.List.OwnerID,
		Provenance: s.List.Provenance,
		CreatedAt:  s.List.CreatedAt,
		UpdatedAt:  s.List.UpdatedAt,
		Items:      items,
		Totals: TotalsView{
			Spent:     s.Totals.Spent,
			Remaining: s.Totals.Remaining,
			Ratio:     s.Totals.Ratio.Round(4).InexactFloat64(),
			Status:    s.Totals.Status,
			ItemCount: s.Totals.ItemCount,
			Units:     s.Totals.Units,
		},
	}
}

func NewListViews(snaps []core.Snapshot) []ListView {
	views := make([]ListView, 0, len(snaps))
	for _, s := range snaps {
		views = append(views, NewListView(s))
	}
	return views
}

// Item converts the view back to a domain item.
func (v ItemView) Item() core.Item {
	return core.Item{
		ID:        v.ID,
		ListID:    v.ListID,
		Name:      v.Name,
		Quantity:  v.Quantity,
		UnitValue: v.Value,
		CreatedAt: v.CreatedAt,
		UpdatedAt: v.UpdatedAt,
	}
}

// List converts the view back to a domain list. Totals are recomputed by
// the caller when needed; the view's copy is not trusted.
func (v ListView) List() core.List {
	items := make([]core.Item, 0, len(v.Items))
	for _, it := range v.Items {
		items = append(items, it.Item())
	}
	provenance := v.Provenance
	if !provenance.Valid() {
		provenance = core.ProvenanceServer
	}
	return core.List{
		ID:         v.ID,
		Name:       v.Name,
		Budget:     v.Budget,
		OwnerID:    v.OwnerID,
		Items:      items,
		CreatedAt:  v.CreatedAt,
		UpdatedAt:  v.UpdatedAt,
		Provenance: provenance,
	}
}

var (
	errBudgetRequired = fmt.Errorf("%w: budget is required", core.ErrInvalidInput)
	errValueRequired  = fmt.Errorf("%w: value is required", core.ErrInvalidInput)
)

type CreateListRequest struct {
	Name   string      `json:"name"`
	Budget *core.Money `json:"budget"`
}

func (r CreateListRequest) NewList() (core.NewList, error) {
	if r.Budget == nil {
		return core.NewList{}, errBudgetRequired
	}
	in := core.NewList{Name: r.Name, Budget: *r.Budget}
	return in, in.Validate()
}

type UpdateListRequest struct {
	Name   *string     `json:"name,omitempty"`
	Budget *core.Money `json:"budget,omitempty"`
}

func (r UpdateListRequest) Patch() (core.ListPatch, error) {
	p := core.ListPatch{Name: r.Name, Budget: r.Budget}
	return p, p.Validate()
}

type AddItemRequest struct {
	Name     string      `json:"name"`
	Quantity int         `json:"quantity"`
	Value    *core.Money `json:"value"`
}

func (r AddItemRequest) NewItem() (core.NewItem, error) {
	if r.Value == nil {
		return core.NewItem{}, errValueRequired
	}
	in := core.NewItem{Name: r.Name, Quantity: r.Quantity, UnitValue: *r.Value}
	return in, in.Validate()
}

type UpdateItemRequest struct {
	Name     *string     `json:"name,omitempty"`
	Quantity *int        `json:"quantity,omitempty"`
	Value    *core.Money `json:"value,omitempty"`
}

func (r UpdateItemRequest) Patch() (core.ItemPatch, error) {
	p := core.ItemPatch{Name: r.Name, Quantity: r.Quantity, UnitValue: r.Value}
	if p.IsEmpty() {
		return p, core.ErrEmptyPatch
	}
	return p, nil
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token string     `json:"token"`
	User  *core.User `json:"user,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}
