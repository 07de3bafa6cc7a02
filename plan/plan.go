package plan

// Action is a reusable named task definition. Actions are shared across
// plans and are reused by exact (case-insensitive) name when items are added.
type Action struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ActionPlan is a named, ordered template of action items.
//
// Plans are soft-deleted: DeletedAt is a unix-seconds timestamp that, once
// set, excludes the plan from active listings and blocks new executions
// while keeping historical executions readable.
type ActionPlan struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	DeletedAt *int64 `json:"deleted_at,omitempty"`
}

// Deleted reports whether the plan has been soft-deleted.
func (p *ActionPlan) Deleted() bool {
	return p.DeletedAt != nil && *p.DeletedAt > 0
}

// ActionItem binds an Action to a position within a plan.
// OrderIndex values are dense non-negative integers scoped to the plan;
// inserts, removals and reorders keep the sequence contiguous.
type ActionItem struct {
	ID         string `json:"id"`
	OrderIndex int64  `json:"order_index"`
	PlanID     string `json:"action_plan_id"`
	ActionID   string `json:"action_id"`

	// ActionName is joined in for display; not a column of action_items.
	ActionName string `json:"action_name,omitempty"`
}

// Detail is a plan together with its ordered items.
type Detail struct {
	ActionPlan
	Items []ActionItem `json:"items"`
}
