// Package backup exports and restores the full planner state as a
// versioned JSON document. Actions are carried by name, not id, so a
// restore into any database reconstructs a consistent action table.
package backup

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/mplan/errors"
)

// Version is the current backup document version.
const Version = 1

// Document is the top-level backup envelope.
type Document struct {
	Version        int               `json:"version"`
	ExportedAtUnix int64             `json:"exported_at_unix"`
	ActionPlans    []PlanBackup      `json:"action_plans"`
	Executions     []ExecutionBackup `json:"action_plan_executions"`
}

// PlanBackup carries one plan with its ordered items.
type PlanBackup struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	DeletedAt *int64       `json:"deleted_at,omitempty"`
	Items     []ItemBackup `json:"items"`
}

// ItemBackup carries one plan item by position and action name.
type ItemBackup struct {
	OrderIndex int64  `json:"order_index"`
	ActionName string `json:"action_name"`
}

// ExecutionBackup carries one execution with its item snapshots.
type ExecutionBackup struct {
	ID       string                `json:"id"`
	PlanID   string                `json:"action_plan"`
	Started  int64                 `json:"started"`
	Finished *int64                `json:"finished,omitempty"`
	Items    []ItemExecutionBackup `json:"items"`
}

// ItemExecutionBackup carries one item snapshot by position and action name.
type ItemExecutionBackup struct {
	OrderIndex int64  `json:"order_index"`
	ActionName string `json:"action_name"`
	Finished   *int64 `json:"finished,omitempty"`
}

// Store reads and writes full-database backups.
type Store struct {
	db *sql.DB
}

// NewStore creates a backup store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Export captures all plans, items and executions into a Document.
// Soft-deleted plans are included so a restore is lossless.
func (s *Store) Export() (*Document, error) {
	doc := &Document{
		Version:        Version,
		ExportedAtUnix: time.Now().Unix(),
		ActionPlans:    []PlanBackup{},
		Executions:     []ExecutionBackup{},
	}

	planRows, err := s.db.Query("SELECT id, name, deleted_at FROM action_plans ORDER BY name ASC")
	if err != nil {
		return nil, errors.Wrap(err, "failed to export plans")
	}
	defer planRows.Close()

	for planRows.Next() {
		var p PlanBackup
		var deletedAt sql.NullInt64
		if err := planRows.Scan(&p.ID, &p.Name, &deletedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan plan")
		}
		if deletedAt.Valid {
			p.DeletedAt = &deletedAt.Int64
		}
		p.Items = []ItemBackup{}
		doc.ActionPlans = append(doc.ActionPlans, p)
	}
	if err := planRows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate plans")
	}

	planIndex := make(map[string]int, len(doc.ActionPlans))
	for i := range doc.ActionPlans {
		planIndex[doc.ActionPlans[i].ID] = i
	}

	itemRows, err := s.db.Query(`
		SELECT action_items.action_plan, action_items.order_index, actions.name
		FROM action_items
		INNER JOIN actions ON actions.id = action_items.action
		ORDER BY action_items.action_plan, action_items.order_index ASC
	`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to export plan items")
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var planID string
		var item ItemBackup
		if err := itemRows.Scan(&planID, &item.OrderIndex, &item.ActionName); err != nil {
			return nil, errors.Wrap(err, "failed to scan plan item")
		}
		if i, ok := planIndex[planID]; ok {
			doc.ActionPlans[i].Items = append(doc.ActionPlans[i].Items, item)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate plan items")
	}

	execRows, err := s.db.Query(`
		SELECT id, action_plan, started, finished
		FROM action_plan_executions
		ORDER BY started ASC
	`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to export executions")
	}
	defer execRows.Close()

	for execRows.Next() {
		var e ExecutionBackup
		var finished sql.NullInt64
		if err := execRows.Scan(&e.ID, &e.PlanID, &e.Started, &finished); err != nil {
			return nil, errors.Wrap(err, "failed to scan execution")
		}
		if finished.Valid {
			e.Finished = &finished.Int64
		}
		e.Items = []ItemExecutionBackup{}
		doc.Executions = append(doc.Executions, e)
	}
	if err := execRows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate executions")
	}

	execIndex := make(map[string]int, len(doc.Executions))
	for i := range doc.Executions {
		execIndex[doc.Executions[i].ID] = i
	}

	itemExecRows, err := s.db.Query(`
		SELECT i.action_plan_execution, i.order_index, i.finished, actions.name
		FROM action_item_executions i
		INNER JOIN actions ON actions.id = i.action
		ORDER BY i.action_plan_execution, i.order_index ASC
	`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to export item executions")
	}
	defer itemExecRows.Close()

	for itemExecRows.Next() {
		var execID string
		var item ItemExecutionBackup
		var finished sql.NullInt64
		if err := itemExecRows.Scan(&execID, &item.OrderIndex, &finished, &item.ActionName); err != nil {
			return nil, errors.Wrap(err, "failed to scan item execution")
		}
		if finished.Valid {
			item.Finished = &finished.Int64
		}
		if i, ok := execIndex[execID]; ok {
			doc.Executions[i].Items = append(doc.Executions[i].Items, item)
		}
	}
	if err := itemExecRows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate item executions")
	}

	return doc, nil
}

// Validate checks a document for structural problems before import
func Validate(doc *Document) error {
	if doc == nil {
		return errors.NewInvalidRequestError("backup document is empty")
	}
	if doc.Version != Version {
		return errors.NewInvalidRequestError("unsupported backup version %d, expected %d", doc.Version, Version)
	}

	planIDs := make(map[string]bool, len(doc.ActionPlans))
	for _, p := range doc.ActionPlans {
		if p.ID == "" {
			return errors.NewInvalidRequestError("backup contains a plan without an id")
		}
		if p.Name == "" {
			return errors.NewInvalidRequestError("backup plan %s has no name", p.ID)
		}
		if planIDs[p.ID] {
			return errors.NewInvalidRequestError("backup contains duplicate plan id %s", p.ID)
		}
		planIDs[p.ID] = true
		for _, item := range p.Items {
			if item.ActionName == "" {
				return errors.NewInvalidRequestError("backup plan %s has an item without an action name", p.ID)
			}
		}
	}

	execIDs := make(map[string]bool, len(doc.Executions))
	for _, e := range doc.Executions {
		if e.ID == "" {
			return errors.NewInvalidRequestError("backup contains an execution without an id")
		}
		if execIDs[e.ID] {
			return errors.NewInvalidRequestError("backup contains duplicate execution id %s", e.ID)
		}
		execIDs[e.ID] = true
		if !planIDs[e.PlanID] {
			return errors.NewInvalidRequestError("backup execution %s references unknown plan %s", e.ID, e.PlanID)
		}
		for _, item := range e.Items {
			if item.ActionName == "" {
				return errors.NewInvalidRequestError("backup execution %s has an item without an action name", e.ID)
			}
		}
	}
	return nil
}

// Import validates the document, then replaces all planner data with its
// contents in one transaction. Existing plans, items, actions and
// executions are wiped first; user accounts are untouched.
func (s *Store) Import(doc *Document) error {
	if err := Validate(doc); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	for _, table := range []string{
		"action_item_executions",
		"action_plan_executions",
		"action_items",
		"action_plans",
		"actions",
	} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return errors.Wrapf(err, "failed to clear %s", table)
		}
	}

	actions := newActionCache(tx)

	for _, p := range doc.ActionPlans {
		var deletedAt interface{}
		if p.DeletedAt != nil && *p.DeletedAt > 0 {
			deletedAt = *p.DeletedAt
		}
		if _, err := tx.Exec(
			"INSERT INTO action_plans (id, name, deleted_at) VALUES (?, ?, ?)",
			p.ID, p.Name, deletedAt,
		); err != nil {
			return errors.Wrap(err, "failed to restore plan")
		}

		for _, item := range p.Items {
			actionID, err := actions.ensure(item.ActionName)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(
				"INSERT INTO action_items (id, order_index, action_plan, action) VALUES (?, ?, ?, ?)",
				uuid.New().String(), item.OrderIndex, p.ID, actionID,
			); err != nil {
				return errors.Wrap(err, "failed to restore plan item")
			}
		}
	}

	for _, e := range doc.Executions {
		var finished interface{}
		if e.Finished != nil && *e.Finished > 0 {
			finished = *e.Finished
		}
		if _, err := tx.Exec(
			"INSERT INTO action_plan_executions (id, action_plan, started, finished) VALUES (?, ?, ?, ?)",
			e.ID, e.PlanID, e.Started, finished,
		); err != nil {
			return errors.Wrap(err, "failed to restore execution")
		}

		for _, item := range e.Items {
			actionID, err := actions.ensure(item.ActionName)
			if err != nil {
				return err
			}
			var itemFinished interface{}
			if item.Finished != nil && *item.Finished > 0 {
				itemFinished = *item.Finished
			}
			// The snapshot's source item linkage is not carried by the
			// backup format; restored snapshots stand on their own.
			if _, err := tx.Exec(`
				INSERT INTO action_item_executions (id, order_index, action_item, action, action_plan_execution, finished)
				VALUES (?, ?, '', ?, ?, ?)
			`, uuid.New().String(), item.OrderIndex, actionID, e.ID, itemFinished); err != nil {
				return errors.Wrap(err, "failed to restore item execution")
			}
		}
	}

	return errors.Wrap(tx.Commit(), "failed to commit import")
}

// actionCache resolves action names to ids within one import transaction,
// creating actions on first sight.
type actionCache struct {
	tx  *sql.Tx
	ids map[string]string
}

func newActionCache(tx *sql.Tx) *actionCache {
	return &actionCache{tx: tx, ids: make(map[string]string)}
}

func (c *actionCache) ensure(name string) (string, error) {
	if id, ok := c.ids[name]; ok {
		return id, nil
	}

	var id string
	err := c.tx.QueryRow("SELECT id FROM actions WHERE name = ? COLLATE NOCASE", name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		id = uuid.New().String()
		if _, err := c.tx.Exec("INSERT INTO actions (id, name) VALUES (?, ?)", id, name); err != nil {
			return "", errors.Wrap(err, "failed to restore action")
		}
	} else if err != nil {
		return "", errors.Wrap(err, "failed to resolve action")
	}

	c.ids[name] = id
	return id, nil
}
