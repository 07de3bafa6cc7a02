package execution

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/mplan/errors"
)

// Store handles persistence of plan executions and their item snapshots.
type Store struct {
	db *sql.DB
}

// NewStore creates an execution store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Start begins a new execution of a plan, snapshotting the plan's current
// items into item executions in the same transaction. Fails with ErrNotFound
// for missing or soft-deleted plans and ErrConflict for empty plans.
func (s *Store) Start(planID string) (*Detail, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	var planName string
	var deletedAt sql.NullInt64
	err = tx.QueryRow(
		"SELECT name, deleted_at FROM action_plans WHERE id = ?", planID,
	).Scan(&planName, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("no action plan exists for id: %s", planID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load plan")
	}
	if deletedAt.Valid && deletedAt.Int64 > 0 {
		return nil, errors.NewNotFoundError("action plan %s has been deleted", planID)
	}

	rows, err := tx.Query(`
		SELECT action_items.id, action_items.order_index, actions.id, actions.name
		FROM action_items
		INNER JOIN actions ON actions.id = action_items.action
		WHERE action_items.action_plan = ?
		ORDER BY action_items.order_index ASC
	`, planID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load plan items")
	}

	type sourceItem struct {
		id         string
		orderIndex int64
		actionID   string
		actionName string
	}
	var sources []sourceItem
	for rows.Next() {
		var src sourceItem
		if err := rows.Scan(&src.id, &src.orderIndex, &src.actionID, &src.actionName); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "failed to scan plan item")
		}
		sources = append(sources, src)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate plan items")
	}

	if len(sources) == 0 {
		return nil, errors.NewConflictError("plan %s has no items to execute", planID)
	}

	detail := &Detail{
		ActionPlanExecution: ActionPlanExecution{
			ID:      uuid.New().String(),
			PlanID:  planID,
			Started: time.Now().Unix(),
		},
		PlanName: planName,
	}
	_, err = tx.Exec(`
		INSERT INTO action_plan_executions (id, action_plan, started, finished)
		VALUES (?, ?, ?, NULL)
	`, detail.ID, detail.PlanID, detail.Started)
	if err != nil {
		return nil, errors.Wrap(err, "failed to insert execution")
	}

	for _, src := range sources {
		item := ActionItemExecution{
			ID:          uuid.New().String(),
			OrderIndex:  src.orderIndex,
			ItemID:      src.id,
			ActionID:    src.actionID,
			ExecutionID: detail.ID,
			ActionName:  src.actionName,
		}
		_, err = tx.Exec(`
			INSERT INTO action_item_executions (id, order_index, action_item, action, action_plan_execution, finished)
			VALUES (?, ?, ?, ?, ?, NULL)
		`, item.ID, item.OrderIndex, item.ItemID, item.ActionID, item.ExecutionID)
		if err != nil {
			return nil, errors.Wrap(err, "failed to insert item execution")
		}
		detail.Items = append(detail.Items, item)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit execution start")
	}
	return detail, nil
}

// Get retrieves an execution with its plan name and ordered item snapshots
func (s *Store) Get(id string) (*Detail, error) {
	row := s.db.QueryRow(`
		SELECT e.id, e.action_plan, e.started, e.finished, p.name
		FROM action_plan_executions e
		INNER JOIN action_plans p ON p.id = e.action_plan
		WHERE e.id = ?
	`, id)

	detail := &Detail{}
	var finished sql.NullInt64
	err := row.Scan(&detail.ID, &detail.PlanID, &detail.Started, &finished, &detail.PlanName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("no execution exists for id: %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load execution")
	}
	if finished.Valid {
		detail.Finished = &finished.Int64
	}

	items, err := s.executionItems(id)
	if err != nil {
		return nil, err
	}
	detail.Items = items
	return detail, nil
}

// SetItemFinished marks an item execution finished or unfinished. Finishing
// an already-finished item keeps its original timestamp. Fails with
// ErrConflict once the surrounding execution has been finished.
func (s *Store) SetItemFinished(itemExecutionID string, finished bool) (*ActionItemExecution, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	item := &ActionItemExecution{ID: itemExecutionID}
	var itemFinished, executionFinished sql.NullInt64
	err = tx.QueryRow(`
		SELECT i.order_index, i.action_item, i.action, i.action_plan_execution, i.finished, e.finished
		FROM action_item_executions i
		INNER JOIN action_plan_executions e ON e.id = i.action_plan_execution
		WHERE i.id = ?
	`, itemExecutionID).Scan(&item.OrderIndex, &item.ItemID, &item.ActionID, &item.ExecutionID, &itemFinished, &executionFinished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("no item execution exists for id: %s", itemExecutionID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load item execution")
	}

	if executionFinished.Valid && executionFinished.Int64 > 0 {
		return nil, errors.NewConflictError("execution %s has already been finished", item.ExecutionID)
	}

	switch {
	case finished && itemFinished.Valid && itemFinished.Int64 > 0:
		// Already finished: keep the original timestamp.
		item.Finished = &itemFinished.Int64
	case finished:
		now := time.Now().Unix()
		if _, err := tx.Exec("UPDATE action_item_executions SET finished = ? WHERE id = ?", now, itemExecutionID); err != nil {
			return nil, errors.Wrap(err, "failed to finish item")
		}
		item.Finished = &now
	default:
		if _, err := tx.Exec("UPDATE action_item_executions SET finished = NULL WHERE id = ?", itemExecutionID); err != nil {
			return nil, errors.Wrap(err, "failed to unfinish item")
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit item toggle")
	}
	return item, nil
}

// Status reports how many of an execution's items have been finished
func (s *Store) Status(executionID string) (CompletionStatus, error) {
	var status CompletionStatus
	var exists bool
	err := s.db.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM action_plan_executions WHERE id = ?)", executionID,
	).Scan(&exists)
	if err != nil {
		return status, errors.Wrap(err, "failed to check execution existence")
	}
	if !exists {
		return status, errors.NewNotFoundError("no execution exists for id: %s", executionID)
	}

	err = s.db.QueryRow(`
		SELECT COUNT(*), COUNT(CASE WHEN finished IS NOT NULL AND finished > 0 THEN 1 END)
		FROM action_item_executions
		WHERE action_plan_execution = ?
	`, executionID).Scan(&status.Total, &status.Finished)
	if err != nil {
		return status, errors.Wrap(err, "failed to count item executions")
	}
	return status, nil
}

// Finish marks an execution finished. Every item must already be finished,
// otherwise ErrConflict. Finishing an already-finished execution is a no-op
// that keeps the original timestamp.
func (s *Store) Finish(executionID string) (*Detail, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	var finished sql.NullInt64
	err = tx.QueryRow(
		"SELECT finished FROM action_plan_executions WHERE id = ?", executionID,
	).Scan(&finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("no execution exists for id: %s", executionID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load execution")
	}

	if !finished.Valid || finished.Int64 <= 0 {
		var remaining int
		err = tx.QueryRow(`
			SELECT COUNT(*)
			FROM action_item_executions
			WHERE action_plan_execution = ? AND (finished IS NULL OR finished <= 0)
		`, executionID).Scan(&remaining)
		if err != nil {
			return nil, errors.Wrap(err, "failed to count unfinished items")
		}
		if remaining > 0 {
			return nil, errors.NewConflictError("execution %s still has %d unfinished items", executionID, remaining)
		}

		_, err = tx.Exec(
			"UPDATE action_plan_executions SET finished = ? WHERE id = ?",
			time.Now().Unix(), executionID,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to finish execution")
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit finish")
	}
	return s.Get(executionID)
}

// Reopen clears an execution's finished timestamp so items can be toggled
// again. Only allowed within ReopenWindow of finishing.
func (s *Store) Reopen(executionID string) (*Detail, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	var finished sql.NullInt64
	err = tx.QueryRow(
		"SELECT finished FROM action_plan_executions WHERE id = ?", executionID,
	).Scan(&finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("no execution exists for id: %s", executionID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load execution")
	}

	if !finished.Valid || finished.Int64 <= 0 {
		return nil, errors.NewConflictError("execution %s is not finished", executionID)
	}
	if time.Since(time.Unix(finished.Int64, 0)) > ReopenWindow {
		return nil, errors.NewConflictError("execution %s finished too long ago to reopen", executionID)
	}

	if _, err := tx.Exec("UPDATE action_plan_executions SET finished = NULL WHERE id = ?", executionID); err != nil {
		return nil, errors.Wrap(err, "failed to reopen execution")
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit reopen")
	}
	return s.Get(executionID)
}

// Delete removes an unfinished execution and its item snapshots.
// Finished executions are history and cannot be deleted.
func (s *Store) Delete(executionID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	var finished sql.NullInt64
	err = tx.QueryRow(
		"SELECT finished FROM action_plan_executions WHERE id = ?", executionID,
	).Scan(&finished)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.NewNotFoundError("no execution exists for id: %s", executionID)
	}
	if err != nil {
		return errors.Wrap(err, "failed to load execution")
	}
	if finished.Valid && finished.Int64 > 0 {
		return errors.NewConflictError("execution %s is finished and cannot be deleted", executionID)
	}

	if _, err := tx.Exec("DELETE FROM action_item_executions WHERE action_plan_execution = ?", executionID); err != nil {
		return errors.Wrap(err, "failed to delete item executions")
	}
	if _, err := tx.Exec("DELETE FROM action_plan_executions WHERE id = ?", executionID); err != nil {
		return errors.Wrap(err, "failed to delete execution")
	}

	return errors.Wrap(tx.Commit(), "failed to commit execution delete")
}

// ListOpen returns unfinished executions, most recently started first
func (s *Store) ListOpen() ([]Summary, error) {
	return s.list(`
		SELECT e.id, e.action_plan, e.started, e.finished, p.name
		FROM action_plan_executions e
		INNER JOIN action_plans p ON p.id = e.action_plan
		WHERE e.finished IS NULL OR e.finished <= 0
		ORDER BY e.started DESC
	`)
}

// ListFinished returns finished executions, most recently finished first
func (s *Store) ListFinished() ([]Summary, error) {
	return s.list(`
		SELECT e.id, e.action_plan, e.started, e.finished, p.name
		FROM action_plan_executions e
		INNER JOIN action_plans p ON p.id = e.action_plan
		WHERE e.finished IS NOT NULL AND e.finished > 0
		ORDER BY e.finished DESC
	`)
}

func (s *Store) list(query string) ([]Summary, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list executions")
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var summary Summary
		var finished sql.NullInt64
		if err := rows.Scan(&summary.ID, &summary.PlanID, &summary.Started, &finished, &summary.PlanName); err != nil {
			return nil, errors.Wrap(err, "failed to scan execution")
		}
		if finished.Valid {
			summary.Finished = &finished.Int64
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

func (s *Store) executionItems(executionID string) ([]ActionItemExecution, error) {
	rows, err := s.db.Query(`
		SELECT i.id, i.order_index, i.action_item, i.action, i.action_plan_execution, i.finished, actions.name
		FROM action_item_executions i
		INNER JOIN actions ON actions.id = i.action
		WHERE i.action_plan_execution = ?
		ORDER BY i.order_index ASC
	`, executionID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load item executions")
	}
	defer rows.Close()

	var items []ActionItemExecution
	for rows.Next() {
		var item ActionItemExecution
		var finished sql.NullInt64
		if err := rows.Scan(&item.ID, &item.OrderIndex, &item.ItemID, &item.ActionID, &item.ExecutionID, &finished, &item.ActionName); err != nil {
			return nil, errors.Wrap(err, "failed to scan item execution")
		}
		if finished.Valid {
			item.Finished = &finished.Int64
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
