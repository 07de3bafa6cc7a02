package execution

import "time"

// ReopenWindow is how long after finishing an execution may be reopened.
const ReopenWindow = 24 * time.Hour

// ActionPlanExecution is one run of a plan. Started is set when the run
// begins; Finished stays unset until every item is done and the run is
// explicitly finished.
type ActionPlanExecution struct {
	ID       string `json:"id"`
	PlanID   string `json:"action_plan_id"`
	Started  int64  `json:"started"`
	Finished *int64 `json:"finished,omitempty"`
}

// IsFinished reports whether the execution has been finished.
func (e *ActionPlanExecution) IsFinished() bool {
	return e.Finished != nil && *e.Finished > 0
}

// ActionItemExecution is the snapshot of one plan item within a run.
// It copies the item's order_index and action reference at start time,
// so later edits to the plan never change a run already underway.
type ActionItemExecution struct {
	ID          string `json:"id"`
	OrderIndex  int64  `json:"order_index"`
	ItemID      string `json:"action_item_id"`
	ActionID    string `json:"action_id"`
	ExecutionID string `json:"action_plan_execution_id"`
	Finished    *int64 `json:"finished,omitempty"`

	// ActionName is joined in through the source item for display.
	ActionName string `json:"action_name,omitempty"`
}

// IsFinished reports whether the item has been checked off.
func (i *ActionItemExecution) IsFinished() bool {
	return i.Finished != nil && *i.Finished > 0
}

// FinishedDisplay returns the item's finish time formatted for display,
// or an empty string while unfinished.
func (i *ActionItemExecution) FinishedDisplay() string {
	if !i.IsFinished() {
		return ""
	}
	return FormatTimestamp(*i.Finished)
}

// Detail is an execution together with its plan name and ordered items.
type Detail struct {
	ActionPlanExecution
	PlanName string                `json:"plan_name"`
	Items    []ActionItemExecution `json:"items"`
}

// Remaining returns how many items are still unfinished.
func (d *Detail) Remaining() int {
	remaining := 0
	for i := range d.Items {
		if !d.Items[i].IsFinished() {
			remaining++
		}
	}
	return remaining
}

// Summary is an execution row for listings, with the plan name joined in.
type Summary struct {
	ActionPlanExecution
	PlanName string `json:"plan_name"`
}

// CompletionStatus reports item progress within one execution.
type CompletionStatus struct {
	Total    int `json:"total"`
	Finished int `json:"finished"`
}

// Complete reports whether every item has been finished.
func (c CompletionStatus) Complete() bool {
	return c.Finished == c.Total
}

// FormatTimestamp renders a unix-seconds timestamp for display in local time
func FormatTimestamp(unix int64) string {
	return time.Unix(unix, 0).Local().Format("2006-01-02 15:04")
}
