package plan

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/mplan/errors"
)

// Sqlmock tests for driver failures: storage errors must surface as plain
// wrapped errors, never as one of the taxonomy sentinels.

func TestCreatePlanStorageFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO action_plans").
		WillReturnError(errors.New("disk I/O error"))

	store := NewStore(db)
	_, err = store.CreatePlan("Morning routine")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create plan")
	assert.False(t, errors.IsNotFoundError(err))
	assert.False(t, errors.IsInvalidRequestError(err))
	assert.False(t, errors.IsConflictError(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListPlansStorageFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, name, deleted_at").
		WillReturnError(errors.New("database is locked"))

	store := NewStore(db)
	_, err = store.ListPlans()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list plans")
	assert.False(t, errors.IsNotFoundError(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddItemRollsBackOnInsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT deleted_at FROM action_plans").
		WithArgs("plan-1").
		WillReturnRows(sqlmock.NewRows([]string{"deleted_at"}).AddRow(nil))
	mock.ExpectQuery("SELECT name FROM actions").
		WithArgs("action-1").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Stretch"))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM action_items").
		WithArgs("plan-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("UPDATE action_items").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO action_items").
		WillReturnError(errors.New("constraint failed"))
	mock.ExpectRollback()

	store := NewStore(db)
	_, err = store.AddItem("plan-1", "action-1", "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert item")

	require.NoError(t, mock.ExpectationsWereMet())
}
