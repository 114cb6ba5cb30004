package core

import (
	"strings"
	"time"
)

const (
	ProvenanceServer Provenance = "server"
	ProvenanceLocal  Provenance = "local"
)

// MaxQuantity bounds item quantities.
const MaxQuantity = 1_000_000

const maxNameLength = 200

type (
	// Provenance tells where the authoritative copy of a list lives.
	Provenance string

	List struct {
		ID         string
		Name       string
		Budget     Money
		OwnerID    string // empty for local lists
		Items      []Item
		CreatedAt  time.Time
		UpdatedAt  time.Time
		Provenance Provenance
	}

	Item struct {
		ID        string
		ListID    string
		Name      string
		Quantity  int
		UnitValue Money
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	// NewList carries the fields a user supplies when creating a list.
	NewList struct {
		Name   string
		Budget Money
	}

	// ListPatch holds optional replacements for a list's editable fields.
	ListPatch struct {
		Name   *string
		Budget *Money
	}

	// NewItem carries the fields a user supplies when adding an item.
	NewItem struct {
		Name      string
		Quantity  int
		UnitValue Money
	}

	// ItemPatch holds optional replacements for an item's editable fields.
	ItemPatch struct {
		Name      *string
		Quantity  *int
		UnitValue *Money
	}
)

// IsLocal reports whether the list only exists on the device.
func (p Provenance) IsLocal() bool {
	return p == ProvenanceLocal
}

func (p Provenance) Valid() bool {
	return p == ProvenanceServer || p == ProvenanceLocal
}

// LineTotal returns quantity × unit value for the item.
func (it Item) LineTotal() Money {
	return LineTotal(it.Quantity, it.UnitValue)
}

func (it Item) Validate() error {
	if err := validateItemName(it.Name); err != nil {
		return err
	}
	if it.Quantity < 1 || it.Quantity > MaxQuantity {
		return ErrInvalidQuantity
	}
	return it.UnitValue.Validate()
}

// Spent returns the sum of the list's line totals.
func (l List) Spent() Money {
	return ListTotal(l.Items)
}

// FindItem returns the index of the item with the given id.
func (l List) FindItem(id string) (int, bool) {
	for i := range l.Items {
		if l.Items[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

func (l List) Validate() error {
	if len(l.Name) > maxNameLength {
		return ErrNameTooLong
	}
	return l.Budget.Validate()
}

func (n NewList) Validate() error {
	if len(strings.TrimSpace(n.Name)) > maxNameLength {
		return ErrNameTooLong
	}
	return n.Budget.Validate()
}

func (p ListPatch) IsEmpty() bool {
	return p.Name == nil && p.Budget == nil
}

func (p ListPatch) Validate() error {
	if p.IsEmpty() {
		return ErrEmptyPatch
	}
	if p.Name != nil && len(strings.TrimSpace(*p.Name)) > maxNameLength {
		return ErrNameTooLong
	}
	if p.Budget != nil {
		return p.Budget.Validate()
	}
	return nil
}

// Apply returns a copy of l with the patch applied.
func (p ListPatch) Apply(l List) List {
	if p.Name != nil {
		l.Name = strings.TrimSpace(*p.Name)
	}
	if p.Budget != nil {
		l.Budget = *p.Budget
	}
	return l
}

func (n NewItem) Validate() error {
	return n.Item("").Validate()
}

// Item builds an unsaved item for the given list.
func (n NewItem) Item(listID string) Item {
	return Item{
		ListID:    listID,
		Name:      strings.TrimSpace(n.Name),
		Quantity:  n.Quantity,
		UnitValue: n.UnitValue,
	}
}

func (p ItemPatch) IsEmpty() bool {
	return p.Name == nil && p.Quantity == nil && p.UnitValue == nil
}

// Apply returns a copy of it with the provided fields replaced. The result
// must be validated by the caller.
func (p ItemPatch) Apply(it Item) Item {
	if p.Name != nil {
		it.Name = strings.TrimSpace(*p.Name)
	}
	if p.Quantity != nil {
		it.Quantity = *p.Quantity
	}
	if p.UnitValue != nil {
		it.UnitValue = *p.UnitValue
	}
	return it
}

func validateItemName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if len(name) > maxNameLength {
		return ErrNameTooLong
	}
	return nil
}
