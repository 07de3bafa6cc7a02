package plan

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/mplan/errors"
)

// Store handles persistence of actions, plans and plan items.
//
// Every multi-row mutation (item insert, removal, reorder) runs in a single
// transaction so readers never observe duplicate or gapped order_index values.
type Store struct {
	db     *sql.DB
	search SearchOptions
}

// NewStore creates a plan store with default search options
func NewStore(db *sql.DB) *Store {
	return NewStoreWithSearch(db, DefaultSearchOptions())
}

// NewStoreWithSearch creates a plan store with explicit search options
func NewStoreWithSearch(db *sql.DB, search SearchOptions) *Store {
	return &Store{db: db, search: search.withDefaults()}
}

// CreatePlan creates a new, empty action plan
func (s *Store) CreatePlan(name string) (*ActionPlan, error) {
	name = normalizeName(name)
	if name == "" {
		return nil, errors.NewInvalidRequestError("plan name must not be empty")
	}

	p := &ActionPlan{
		ID:   uuid.New().String(),
		Name: name,
	}
	_, err := s.db.Exec(
		"INSERT INTO action_plans (id, name, deleted_at) VALUES (?, ?, NULL)",
		p.ID, p.Name,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create plan")
	}
	return p, nil
}

// RenamePlan updates a plan's name
func (s *Store) RenamePlan(id, name string) error {
	name = normalizeName(name)
	if name == "" {
		return errors.NewInvalidRequestError("plan name must not be empty")
	}

	result, err := s.db.Exec("UPDATE action_plans SET name = ? WHERE id = ?", name, id)
	if err != nil {
		return errors.Wrap(err, "failed to rename plan")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check rows affected")
	}
	if affected == 0 {
		return errors.NewNotFoundError("no action plan exists for id: %s", id)
	}
	return nil
}

// ListPlans returns all plans that have not been soft-deleted, ordered by name
func (s *Store) ListPlans() ([]ActionPlan, error) {
	rows, err := s.db.Query(`
		SELECT id, name, deleted_at
		FROM action_plans
		WHERE deleted_at IS NULL OR deleted_at <= 0
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list plans")
	}
	defer rows.Close()

	var plans []ActionPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *p)
	}
	return plans, rows.Err()
}

// GetPlan retrieves a plan with its ordered items. Soft-deleted plans are
// returned too; callers decide whether deletion matters for them.
func (s *Store) GetPlan(id string) (*Detail, error) {
	row := s.db.QueryRow("SELECT id, name, deleted_at FROM action_plans WHERE id = ?", id)
	p, err := scanPlan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewNotFoundError("no action plan exists for id: %s", id)
		}
		return nil, err
	}

	items, err := s.planItems(id)
	if err != nil {
		return nil, err
	}
	return &Detail{ActionPlan: *p, Items: items}, nil
}

// DeletePlan soft-deletes a plan by setting deleted_at. Items and past
// executions are untouched. Deleting an already-deleted plan is a no-op.
func (s *Store) DeletePlan(id string) error {
	result, err := s.db.Exec(`
		UPDATE action_plans
		SET deleted_at = ?
		WHERE id = ? AND (deleted_at IS NULL OR deleted_at <= 0)
	`, time.Now().Unix(), id)
	if err != nil {
		return errors.Wrap(err, "failed to delete plan")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check rows affected")
	}
	if affected == 0 {
		var exists bool
		if err := s.db.QueryRow("SELECT EXISTS(SELECT 1 FROM action_plans WHERE id = ?)", id).Scan(&exists); err != nil {
			return errors.Wrap(err, "failed to check plan existence")
		}
		if !exists {
			return errors.NewNotFoundError("no action plan exists for id: %s", id)
		}
		// Already soft-deleted: idempotent.
	}
	return nil
}

// AddItem adds an action to a plan at the given position, shifting later
// items up by one. The action is resolved by id when actionID is non-empty,
// otherwise reused or created by exact name. Position is clamped to the
// valid range [0, item count].
func (s *Store) AddItem(planID, actionID, actionName string, position int64) (*ActionItem, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if err := requireActivePlan(tx, planID); err != nil {
		return nil, err
	}

	var name string
	if actionID != "" {
		err = tx.QueryRow("SELECT name FROM actions WHERE id = ?", actionID).Scan(&name)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewNotFoundError("no action exists for id: %s", actionID)
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to resolve action")
		}
	} else {
		actionID, name, err = ensureAction(tx, actionName)
		if err != nil {
			return nil, err
		}
	}

	var count int64
	if err := tx.QueryRow("SELECT COUNT(*) FROM action_items WHERE action_plan = ?", planID).Scan(&count); err != nil {
		return nil, errors.Wrap(err, "failed to count plan items")
	}
	if position < 0 {
		position = 0
	}
	if position > count {
		position = count
	}

	_, err = tx.Exec(`
		UPDATE action_items
		SET order_index = order_index + 1
		WHERE action_plan = ? AND order_index >= ?
	`, planID, position)
	if err != nil {
		return nil, errors.Wrap(err, "failed to shift item order")
	}

	item := &ActionItem{
		ID:         uuid.New().String(),
		OrderIndex: position,
		PlanID:     planID,
		ActionID:   actionID,
		ActionName: name,
	}
	_, err = tx.Exec(`
		INSERT INTO action_items (id, order_index, action_plan, action)
		VALUES (?, ?, ?, ?)
	`, item.ID, item.OrderIndex, item.PlanID, item.ActionID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to insert item")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit item insert")
	}
	return item, nil
}

// ReorderItems rewrites the plan's order_index values to match the supplied
// total ordering. The id set must match the plan's current items exactly.
func (s *Store) ReorderItems(planID string, orderedItemIDs []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if err := requireActivePlan(tx, planID); err != nil {
		return err
	}

	rows, err := tx.Query("SELECT id FROM action_items WHERE action_plan = ?", planID)
	if err != nil {
		return errors.Wrap(err, "failed to load plan items")
	}
	current := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return errors.Wrap(err, "failed to scan item id")
		}
		current[id] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "failed to iterate plan items")
	}

	if len(orderedItemIDs) != len(current) {
		return errors.NewInvalidRequestError(
			"reorder id set does not match plan items: got %d ids, plan has %d items",
			len(orderedItemIDs), len(current))
	}
	seen := make(map[string]bool, len(orderedItemIDs))
	for _, id := range orderedItemIDs {
		if !current[id] {
			return errors.NewInvalidRequestError("reorder id %s is not an item of plan %s", id, planID)
		}
		if seen[id] {
			return errors.NewInvalidRequestError("reorder id %s appears more than once", id)
		}
		seen[id] = true
	}

	for index, id := range orderedItemIDs {
		if _, err := tx.Exec("UPDATE action_items SET order_index = ? WHERE id = ?", index, id); err != nil {
			return errors.Wrap(err, "failed to update item order")
		}
	}

	return errors.Wrap(tx.Commit(), "failed to commit reorder")
}

// RemoveItem deletes an item and compacts the following order_index values
// so the plan's sequence stays dense.
func (s *Store) RemoveItem(itemID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	var planID string
	var orderIndex int64
	err = tx.QueryRow(
		"SELECT action_plan, order_index FROM action_items WHERE id = ?", itemID,
	).Scan(&planID, &orderIndex)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.NewNotFoundError("no action item exists for id: %s", itemID)
	}
	if err != nil {
		return errors.Wrap(err, "failed to load item")
	}

	if _, err := tx.Exec("DELETE FROM action_items WHERE id = ?", itemID); err != nil {
		return errors.Wrap(err, "failed to delete item")
	}

	_, err = tx.Exec(`
		UPDATE action_items
		SET order_index = order_index - 1
		WHERE action_plan = ? AND order_index > ?
	`, planID, orderIndex)
	if err != nil {
		return errors.Wrap(err, "failed to compact item order")
	}

	return errors.Wrap(tx.Commit(), "failed to commit item removal")
}

// ListActions returns all actions ordered by name
func (s *Store) ListActions() ([]Action, error) {
	rows, err := s.db.Query("SELECT id, name FROM actions ORDER BY name ASC")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list actions")
	}
	defer rows.Close()

	var actions []Action
	for rows.Next() {
		var a Action
		if err := rows.Scan(&a.ID, &a.Name); err != nil {
			return nil, errors.Wrap(err, "failed to scan action")
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// RenameAction updates an action's name
func (s *Store) RenameAction(id, name string) error {
	name = normalizeName(name)
	if name == "" {
		return errors.NewInvalidRequestError("action name must not be empty")
	}

	result, err := s.db.Exec("UPDATE actions SET name = ? WHERE id = ?", name, id)
	if err != nil {
		return errors.Wrap(err, "failed to rename action")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check rows affected")
	}
	if affected == 0 {
		return errors.NewNotFoundError("no action exists for id: %s", id)
	}
	return nil
}

// DeleteAction removes an action. Refused while any plan item still
// references it, so historical executions stay resolvable.
func (s *Store) DeleteAction(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRow("SELECT EXISTS(SELECT 1 FROM actions WHERE id = ?)", id).Scan(&exists); err != nil {
		return errors.Wrap(err, "failed to check action existence")
	}
	if !exists {
		return errors.NewNotFoundError("no action exists for id: %s", id)
	}

	var referenced bool
	err = tx.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM action_items WHERE action = ?)
		    OR EXISTS(SELECT 1 FROM action_item_executions WHERE action = ?)
	`, id, id).Scan(&referenced)
	if err != nil {
		return errors.Wrap(err, "failed to check action references")
	}
	if referenced {
		return errors.NewConflictError("action %s is still referenced by plan items or executions", id)
	}

	if _, err := tx.Exec("DELETE FROM actions WHERE id = ?", id); err != nil {
		return errors.Wrap(err, "failed to delete action")
	}

	return errors.Wrap(tx.Commit(), "failed to commit action delete")
}

func (s *Store) planItems(planID string) ([]ActionItem, error) {
	rows, err := s.db.Query(`
		SELECT action_items.id, action_items.order_index, action_items.action_plan,
		       action_items.action, actions.name
		FROM action_items
		INNER JOIN actions ON actions.id = action_items.action
		WHERE action_items.action_plan = ?
		ORDER BY action_items.order_index ASC
	`, planID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load plan items")
	}
	defer rows.Close()

	var items []ActionItem
	for rows.Next() {
		var item ActionItem
		if err := rows.Scan(&item.ID, &item.OrderIndex, &item.PlanID, &item.ActionID, &item.ActionName); err != nil {
			return nil, errors.Wrap(err, "failed to scan item")
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ensureAction resolves an action by exact (case-insensitive) name,
// inserting a new one if no match exists. Runs inside the caller's
// transaction so item insert and action insert commit together.
func ensureAction(tx *sql.Tx, name string) (id, resolved string, err error) {
	name = normalizeName(name)
	if name == "" {
		return "", "", errors.NewInvalidRequestError("action name must not be empty")
	}

	err = tx.QueryRow(
		"SELECT id, name FROM actions WHERE name = ? COLLATE NOCASE", name,
	).Scan(&id, &resolved)
	if err == nil {
		return id, resolved, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", "", errors.Wrap(err, "failed to resolve action by name")
	}

	id = uuid.New().String()
	if _, err := tx.Exec("INSERT INTO actions (id, name) VALUES (?, ?)", id, name); err != nil {
		return "", "", errors.Wrap(err, "failed to create action")
	}
	return id, name, nil
}

// requireActivePlan fails with ErrNotFound when the plan is missing or
// soft-deleted. Mutations never apply to deleted plans.
func requireActivePlan(tx *sql.Tx, planID string) error {
	var deletedAt sql.NullInt64
	err := tx.QueryRow("SELECT deleted_at FROM action_plans WHERE id = ?", planID).Scan(&deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.NewNotFoundError("no action plan exists for id: %s", planID)
	}
	if err != nil {
		return errors.Wrap(err, "failed to load plan")
	}
	if deletedAt.Valid && deletedAt.Int64 > 0 {
		return errors.NewNotFoundError("action plan %s has been deleted", planID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPlan(row rowScanner) (*ActionPlan, error) {
	var p ActionPlan
	var deletedAt sql.NullInt64
	if err := row.Scan(&p.ID, &p.Name, &deletedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to scan plan")
	}
	if deletedAt.Valid {
		p.DeletedAt = &deletedAt.Int64
	}
	return &p, nil
}
