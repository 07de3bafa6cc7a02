package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/mplan/errors"
	testutil "github.com/teranos/mplan/internal/testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(testutil.CreateTestDB(t))
}

func itemNames(items []ActionItem) []string {
	names := make([]string, len(items))
	for i, item := range items {
		names[i] = item.ActionName
	}
	return names
}

func itemOrder(items []ActionItem) []int64 {
	order := make([]int64, len(items))
	for i, item := range items {
		order[i] = item.OrderIndex
	}
	return order
}

func TestCreatePlan(t *testing.T) {
	store := newTestStore(t)

	p, err := store.CreatePlan("  Morning routine  ")
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "Morning routine", p.Name)
	assert.False(t, p.Deleted())

	_, err = store.CreatePlan("   ")
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestGetPlanNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetPlan("missing")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestAddItemAppendsAndInserts(t *testing.T) {
	store := newTestStore(t)
	p, err := store.CreatePlan("Server teardown")
	require.NoError(t, err)

	first, err := store.AddItem(p.ID, "", "Stop services", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), first.OrderIndex)

	// Position past the end clamps to an append.
	_, err = store.AddItem(p.ID, "", "Remove DNS records", 99)
	require.NoError(t, err)

	// Insert at the front shifts everything else up.
	_, err = store.AddItem(p.ID, "", "Announce downtime", 0)
	require.NoError(t, err)

	detail, err := store.GetPlan(p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Announce downtime", "Stop services", "Remove DNS records"}, itemNames(detail.Items))
	assert.Equal(t, []int64{0, 1, 2}, itemOrder(detail.Items))
}

func TestAddItemReusesActionByName(t *testing.T) {
	store := newTestStore(t)
	a, err := store.CreatePlan("Plan A")
	require.NoError(t, err)
	b, err := store.CreatePlan("Plan B")
	require.NoError(t, err)

	itemA, err := store.AddItem(a.ID, "", "Check Backups", 0)
	require.NoError(t, err)

	// Same name, different case: the existing action is reused with its
	// original spelling.
	itemB, err := store.AddItem(b.ID, "", "check backups", 0)
	require.NoError(t, err)
	assert.Equal(t, itemA.ActionID, itemB.ActionID)
	assert.Equal(t, "Check Backups", itemB.ActionName)

	actions, err := store.ListActions()
	require.NoError(t, err)
	assert.Len(t, actions, 1)
}

func TestAddItemByActionID(t *testing.T) {
	store := newTestStore(t)
	p, err := store.CreatePlan("Plan")
	require.NoError(t, err)

	created, err := store.AddItem(p.ID, "", "Rotate keys", 0)
	require.NoError(t, err)

	again, err := store.AddItem(p.ID, created.ActionID, "", 1)
	require.NoError(t, err)
	assert.Equal(t, created.ActionID, again.ActionID)
	assert.Equal(t, "Rotate keys", again.ActionName)

	_, err = store.AddItem(p.ID, "missing-action", "", 0)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestAddItemValidation(t *testing.T) {
	store := newTestStore(t)
	p, err := store.CreatePlan("Plan")
	require.NoError(t, err)

	_, err = store.AddItem(p.ID, "", "   ", 0)
	assert.True(t, errors.IsInvalidRequestError(err))

	_, err = store.AddItem("missing-plan", "", "Anything", 0)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestAddItemRejectsDeletedPlan(t *testing.T) {
	store := newTestStore(t)
	p, err := store.CreatePlan("Plan")
	require.NoError(t, err)
	require.NoError(t, store.DeletePlan(p.ID))

	_, err = store.AddItem(p.ID, "", "Anything", 0)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestRemoveItemCompactsOrder(t *testing.T) {
	store := newTestStore(t)
	p, err := store.CreatePlan("Plan")
	require.NoError(t, err)

	_, err = store.AddItem(p.ID, "", "one", 0)
	require.NoError(t, err)
	middle, err := store.AddItem(p.ID, "", "two", 1)
	require.NoError(t, err)
	_, err = store.AddItem(p.ID, "", "three", 2)
	require.NoError(t, err)

	require.NoError(t, store.RemoveItem(middle.ID))

	detail, err := store.GetPlan(p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "three"}, itemNames(detail.Items))
	assert.Equal(t, []int64{0, 1}, itemOrder(detail.Items))

	err = store.RemoveItem(middle.ID)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestReorderItems(t *testing.T) {
	store := newTestStore(t)
	p, err := store.CreatePlan("Plan")
	require.NoError(t, err)

	a, err := store.AddItem(p.ID, "", "a", 0)
	require.NoError(t, err)
	b, err := store.AddItem(p.ID, "", "b", 1)
	require.NoError(t, err)
	c, err := store.AddItem(p.ID, "", "c", 2)
	require.NoError(t, err)

	require.NoError(t, store.ReorderItems(p.ID, []string{c.ID, a.ID, b.ID}))

	detail, err := store.GetPlan(p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, itemNames(detail.Items))
	assert.Equal(t, []int64{0, 1, 2}, itemOrder(detail.Items))
}

func TestReorderItemsRejectsMismatchedSet(t *testing.T) {
	store := newTestStore(t)
	p, err := store.CreatePlan("Plan")
	require.NoError(t, err)

	a, err := store.AddItem(p.ID, "", "a", 0)
	require.NoError(t, err)
	b, err := store.AddItem(p.ID, "", "b", 1)
	require.NoError(t, err)

	// Missing an id.
	err = store.ReorderItems(p.ID, []string{a.ID})
	assert.True(t, errors.IsInvalidRequestError(err))

	// Unknown id.
	err = store.ReorderItems(p.ID, []string{a.ID, "bogus"})
	assert.True(t, errors.IsInvalidRequestError(err))

	// Duplicate id.
	err = store.ReorderItems(p.ID, []string{a.ID, a.ID})
	assert.True(t, errors.IsInvalidRequestError(err))

	// Failed reorder left the original order intact.
	detail, err := store.GetPlan(p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, itemNames(detail.Items))
	_ = b
}

func TestDeletePlanIsSoftAndIdempotent(t *testing.T) {
	store := newTestStore(t)
	p, err := store.CreatePlan("Plan")
	require.NoError(t, err)
	_, err = store.AddItem(p.ID, "", "thing", 0)
	require.NoError(t, err)

	require.NoError(t, store.DeletePlan(p.ID))
	require.NoError(t, store.DeletePlan(p.ID))

	plans, err := store.ListPlans()
	require.NoError(t, err)
	assert.Empty(t, plans)

	// Detail stays readable, items included.
	detail, err := store.GetPlan(p.ID)
	require.NoError(t, err)
	assert.True(t, detail.Deleted())
	assert.Len(t, detail.Items, 1)

	err = store.DeletePlan("missing")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestRenamePlanAndAction(t *testing.T) {
	store := newTestStore(t)
	p, err := store.CreatePlan("Old name")
	require.NoError(t, err)
	item, err := store.AddItem(p.ID, "", "Old action", 0)
	require.NoError(t, err)

	require.NoError(t, store.RenamePlan(p.ID, "New name"))
	require.NoError(t, store.RenameAction(item.ActionID, "New action"))

	detail, err := store.GetPlan(p.ID)
	require.NoError(t, err)
	assert.Equal(t, "New name", detail.Name)
	assert.Equal(t, "New action", detail.Items[0].ActionName)

	assert.True(t, errors.IsNotFoundError(store.RenamePlan("missing", "x")))
	assert.True(t, errors.IsNotFoundError(store.RenameAction("missing", "x")))
	assert.True(t, errors.IsInvalidRequestError(store.RenamePlan(p.ID, " ")))
}

func TestDeleteAction(t *testing.T) {
	store := newTestStore(t)
	p, err := store.CreatePlan("Plan")
	require.NoError(t, err)
	item, err := store.AddItem(p.ID, "", "Referenced", 0)
	require.NoError(t, err)

	err = store.DeleteAction(item.ActionID)
	assert.True(t, errors.IsConflictError(err))

	require.NoError(t, store.RemoveItem(item.ID))
	require.NoError(t, store.DeleteAction(item.ActionID))

	err = store.DeleteAction(item.ActionID)
	assert.True(t, errors.IsNotFoundError(err))
}
