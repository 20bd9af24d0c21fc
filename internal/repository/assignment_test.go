package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"wisefido-anxiety/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockAssignmentDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *AssignmentRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewAssignmentRepository(db, zap.NewNop())
	return db, mock, repo
}

func TestGetAssignment_Success(t *testing.T) {
	db, mock, repo := setupMockAssignmentDB(t)
	defer db.Close()

	assignedAt := time.Now()
	rows := sqlmock.NewRows([]string{
		"device_id", "assigned_user_id", "active_session_id", "assigned_at", "status", "version",
	}).AddRow("device-1", "user-1", "session-1", assignedAt, "active", int64(3))

	mock.ExpectQuery(`SELECT`).
		WithArgs("device-1", models.AssignmentStatusActive).
		WillReturnRows(rows)

	assignment, err := repo.GetAssignment(context.Background(), "device-1")

	require.NoError(t, err)
	require.NotNil(t, assignment)
	assert.Equal(t, "user-1", assignment.AssignedUserID)
	assert.Equal(t, "session-1", assignment.ActiveSessionID)
	assert.Equal(t, int64(3), assignment.Version)
}

func TestGetAssignment_UnassignedDeviceReturnsNil(t *testing.T) {
	db, mock, repo := setupMockAssignmentDB(t)
	defer db.Close()

	// 未分配的设备不是错误：读数直接丢弃
	mock.ExpectQuery(`SELECT`).
		WithArgs("device-9", models.AssignmentStatusActive).
		WillReturnError(sql.ErrNoRows)

	assignment, err := repo.GetAssignment(context.Background(), "device-9")

	require.NoError(t, err)
	assert.Nil(t, assignment)
}

func TestBindAssignment_ReleasesPreviousInSameTransaction(t *testing.T) {
	db, mock, repo := setupMockAssignmentDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE device_assignments`).
		WithArgs(models.AssignmentStatusReleased, "device-1", models.AssignmentStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO device_assignments`).
		WithArgs("device-1", "user-2", "session-2", sqlmock.AnyArg(), models.AssignmentStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.BindAssignment(context.Background(), "device-1", "user-2", "session-2")

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseAssignment_VersionMismatchReturnsFalse(t *testing.T) {
	db, mock, repo := setupMockAssignmentDB(t)
	defer db.Close()

	// compare-and-swap：version 不匹配时 0 行受影响
	mock.ExpectExec(`UPDATE device_assignments`).
		WithArgs(models.AssignmentStatusReleased, "device-1", models.AssignmentStatusActive, int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	released, err := repo.ReleaseAssignment(context.Background(), "device-1", 2)

	require.NoError(t, err)
	assert.False(t, released)
}

func TestReleaseAssignment_Success(t *testing.T) {
	db, mock, repo := setupMockAssignmentDB(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE device_assignments`).
		WithArgs(models.AssignmentStatusReleased, "device-1", models.AssignmentStatusActive, int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	released, err := repo.ReleaseAssignment(context.Background(), "device-1", 2)

	require.NoError(t, err)
	assert.True(t, released)
}
