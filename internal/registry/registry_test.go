package registry

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"wisefido-anxiety/internal/config"
	"wisefido-anxiety/internal/models"
	"wisefido-anxiety/internal/repository"
	"wisefido-anxiety/internal/window"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRegistry(t *testing.T) (sqlmock.Sqlmock, *window.Store, *SessionRegistry) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cfg := &config.Config{}
	cfg.Anxiety.Cache.AssignmentTTLSeconds = 5
	cfg.Anxiety.Cache.AssignmentChannel = "anxiety:assignment:changed"

	logger := zap.NewNop()
	assignmentRepo := repository.NewAssignmentRepository(db, logger)
	sessionRepo := repository.NewSessionRepository(db, logger)
	windows := window.NewStore(50)

	return mock, windows, NewSessionRegistry(cfg, assignmentRepo, sessionRepo, redisClient, windows, logger)
}

func assignmentRows(userID, sessionID string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"device_id", "assigned_user_id", "active_session_id", "assigned_at", "status", "version",
	}).AddRow("device-1", userID, sessionID, time.Now(), "active", int64(1))
}

func TestResolveActiveSession_Assigned(t *testing.T) {
	mock, _, registry := setupTestRegistry(t)

	mock.ExpectQuery(`SELECT`).
		WithArgs("device-1", models.AssignmentStatusActive).
		WillReturnRows(assignmentRows("user-1", "session-1"))

	userID, sessionID, ok, err := registry.ResolveActiveSession(context.Background(), "device-1")

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "user-1", userID)
	assert.Equal(t, "session-1", sessionID)
}

func TestResolveActiveSession_NotAssigned(t *testing.T) {
	mock, _, registry := setupTestRegistry(t)

	// 未分配：正常的丢弃路径，无错误
	mock.ExpectQuery(`SELECT`).
		WithArgs("device-1", models.AssignmentStatusActive).
		WillReturnError(sql.ErrNoRows)

	_, _, ok, err := registry.ResolveActiveSession(context.Background(), "device-1")

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolveActiveSession_CachesWithinTTL(t *testing.T) {
	mock, _, registry := setupTestRegistry(t)

	// 只期望一次查库：第二次解析命中缓存
	mock.ExpectQuery(`SELECT`).
		WithArgs("device-1", models.AssignmentStatusActive).
		WillReturnRows(assignmentRows("user-1", "session-1"))

	ctx := context.Background()

	_, _, ok, err := registry.ResolveActiveSession(ctx, "device-1")
	require.NoError(t, err)
	require.True(t, ok)

	userID, _, ok, err := registry.ResolveActiveSession(ctx, "device-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "user-1", userID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStartSession_CompletesPriorActiveSessions(t *testing.T) {
	mock, _, registry := setupTestRegistry(t)

	// 用户已有一个 active 会话：必须先结束它（单活跃不变式）
	mock.ExpectQuery(`SELECT`).
		WithArgs("user-1", models.SessionStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{
			"session_id", "user_id", "device_id", "started_at", "ended_at", "status",
		}).AddRow("session-old", "user-1", "device-1", time.Now().Add(-time.Hour), nil, "active"))

	mock.ExpectExec(`UPDATE wear_sessions`).
		WithArgs(models.SessionStatusCompleted, sqlmock.AnyArg(), "session-old", models.SessionStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectExec(`INSERT INTO wear_sessions`).
		WithArgs(sqlmock.AnyArg(), "user-1", "device-1", sqlmock.AnyArg(), models.SessionStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE device_assignments`).
		WithArgs(models.AssignmentStatusReleased, "device-1", models.AssignmentStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO device_assignments`).
		WithArgs("device-1", "user-1", sqlmock.AnyArg(), sqlmock.AnyArg(), models.AssignmentStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	sessionID, err := registry.StartSession(context.Background(), "user-1", "device-1")

	require.NoError(t, err)
	assert.NotEmpty(t, sessionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStartSession_RepairsMultipleActiveSessions(t *testing.T) {
	mock, _, registry := setupTestRegistry(t)

	// 数据完整性问题：两个 active 会话，全部确定性结束后再建新会话
	mock.ExpectQuery(`SELECT`).
		WithArgs("user-1", models.SessionStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{
			"session_id", "user_id", "device_id", "started_at", "ended_at", "status",
		}).
			AddRow("session-b", "user-1", "device-1", time.Now(), nil, "active").
			AddRow("session-a", "user-1", "device-1", time.Now().Add(-time.Hour), nil, "active"))

	mock.ExpectExec(`UPDATE wear_sessions`).
		WithArgs(models.SessionStatusCompleted, sqlmock.AnyArg(), "session-b", models.SessionStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE wear_sessions`).
		WithArgs(models.SessionStatusCompleted, sqlmock.AnyArg(), "session-a", models.SessionStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectExec(`INSERT INTO wear_sessions`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE device_assignments`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO device_assignments`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	sessionID, err := registry.StartSession(context.Background(), "user-1", "device-1")

	require.NoError(t, err)
	assert.NotEmpty(t, sessionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEndSession_ReleasesAssignmentPointingAtSession(t *testing.T) {
	mock, windows, registry := setupTestRegistry(t)

	// 会话结束后其窗口历史必须一并失效
	windows.Append("session-1", models.Reading{SessionID: "session-1", Timestamp: time.Now().Unix(), HeartRate: 75, SpO2: 97})

	mock.ExpectQuery(`SELECT`).
		WithArgs("session-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"session_id", "user_id", "device_id", "started_at", "ended_at", "status",
		}).AddRow("session-1", "user-1", "device-1", time.Now().Add(-time.Hour), nil, "active"))

	mock.ExpectExec(`UPDATE wear_sessions`).
		WithArgs(models.SessionStatusCompleted, sqlmock.AnyArg(), "session-1", models.SessionStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery(`SELECT`).
		WithArgs("device-1", models.AssignmentStatusActive).
		WillReturnRows(assignmentRows("user-1", "session-1"))

	mock.ExpectExec(`UPDATE device_assignments`).
		WithArgs(models.AssignmentStatusReleased, "device-1", models.AssignmentStatusActive, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := registry.EndSession(context.Background(), "session-1")

	require.NoError(t, err)
	assert.Equal(t, 0, windows.Size("session-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
