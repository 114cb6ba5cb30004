package core

import (
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		total  int64
		budget int64
		want   BudgetStatus
	}{
		{"empty list zero budget", 0, 0, StatusOK},
		{"half", 5000, 10000, StatusOK},
		{"just below warning", 6999, 10000, StatusOK},
		{"warning boundary", 7000, 10000, StatusWarning},
		{"just below critical", 9499, 10000, StatusWarning},
		{"critical boundary", 9500, 10000, StatusCritical},
		{"exactly budget", 10000, 10000, StatusCritical},
		{"over", 10001, 10000, StatusOverBudget},
		{"anything over zero budget", 1, 0, StatusOverBudget},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(Cents(tc.total), Cents(tc.budget)); got != tc.want {
				t.Fatalf("Classify(%d, %d) = %s, want %s", tc.total, tc.budget, got, tc.want)
			}
		})
	}
}

func TestCheckAddition(t *testing.T) {
	cases := []struct {
		name    string
		current int64
		budget  int64
		line    int64
		wantErr bool
	}{
		{"fits", 5000, 10000, 1000, false},
		{"reaches exactly", 9000, 10000, 1000, false},
		{"exceeds", 9000, 10000, 1500, true},
		{"one cent over", 10000, 10000, 1, true},
		{"zero budget zero line", 0, 0, 0, false},
		{"zero budget positive line", 0, 0, 1, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckAddition(Cents(tc.current), Cents(tc.budget), Cents(tc.line))
			if tc.wantErr {
				if !errors.Is(err, ErrOverBudget) {
					t.Fatalf("expected ErrOverBudget, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestComputeTotals(t *testing.T) {
	l := List{
		Budget: Cents(10000),
		Items: []Item{
			{Quantity: 1, UnitValue: Cents(9000)},
			{Quantity: 1, UnitValue: Cents(499)},
		},
	}
	got := ComputeTotals(l)
	if got.Spent.Cents != 9499 || got.Remaining.Cents != 501 {
		t.Fatalf("spent/remaining = %d/%d", got.Spent.Cents, got.Remaining.Cents)
	}
	if got.Status != StatusWarning {
		t.Fatalf("status = %s, want warning", got.Status)
	}
	if got.ItemCount != 2 || got.Units != 2 {
		t.Fatalf("counts = %d/%d", got.ItemCount, got.Units)
	}

	l.Budget = Cents(5000)
	over := ComputeTotals(l)
	if over.Status != StatusOverBudget || over.Remaining.Cents != -4499 {
		t.Fatalf("over budget totals = %+v", over)
	}
}

func TestAlerting(t *testing.T) {
	if StatusOK.Alerting() {
		t.Fatal("ok must not alert")
	}
	for _, s := range []BudgetStatus{StatusWarning, StatusCritical, StatusOverBudget} {
		if !s.Alerting() {
			t.Fatalf("%s should alert", s)
		}
	}
}
