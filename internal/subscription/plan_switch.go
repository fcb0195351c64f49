package subscription

import "time"

// SwitchStatus is the lifecycle of a scheduled plan change.
type SwitchStatus string

const (
	SwitchScheduled  SwitchStatus = "scheduled"
	SwitchProcessing SwitchStatus = "processing"
	SwitchCompleted  SwitchStatus = "completed"
	SwitchCanceled   SwitchStatus = "canceled"
)

// PlanSwitch is a plan change that takes effect when the current period ends.
type PlanSwitch struct {
	ID        string       `json:"id"`
	TenantID  string       `json:"tenant_id"`
	PlanID    string       `json:"plan_id"`
	Cycle     Cycle        `json:"cycle"`
	Status    SwitchStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}
