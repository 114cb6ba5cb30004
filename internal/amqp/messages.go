package amqp

import (
	"encoding/json"
	"time"

	"budgetlist/internal/core"
)

// BudgetAlertMessage announces that a server list moved into an alerting
// budget status. Amounts are in major units.
type BudgetAlertMessage struct {
	ListID         string     `json:"list_id"`
	OwnerID        string     `json:"owner_id"`
	ListName       string     `json:"list_name,omitempty"`
	PreviousStatus string     `json:"previous_status"`
	Status         string     `json:"status"`
	Spent          core.Money `json:"spent"`
	Budget         core.Money `json:"budget"`
	Timestamp      time.Time  `json:"timestamp"`
}

// NewBudgetAlertMessage builds an alert for the transition from previous to
// the status in snap.
func NewBudgetAlertMessage(ownerID string, previous core.BudgetStatus, snap core.Snapshot) *BudgetAlertMessage {
	return &BudgetAlertMessage{
		ListID:         snap.List.ID,
		OwnerID:        ownerID,
		ListName:       snap.List.Name,
		PreviousStatus: previous.String(),
		Status:         snap.Totals.Status.String(),
		Spent:          snap.Totals.Spent,
		Budget:         snap.List.Budget,
		Timestamp:      time.Now().UTC(),
	}
}

func (m *BudgetAlertMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func BudgetAlertMessageFromJSON(data []byte) (*BudgetAlertMessage, error) {
	var msg BudgetAlertMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
