package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&Task{}))
	return db
}

func TestEnqueueDispatchesTask(t *testing.T) {
	q := NewQueue(newTestDB(t), 8)
	defer q.Close()

	require.NoError(t, q.Enqueue("order-1"))

	assert.Equal(t, "order-1", <-q.Tasks())

	task, err := q.GetTask("order-1")
	require.NoError(t, err)
	assert.Equal(t, TaskQueued, task.Status)
	assert.Zero(t, task.Attempts)
}

func TestEnqueueDeduplicatesByOrderID(t *testing.T) {
	q := NewQueue(newTestDB(t), 8)
	defer q.Close()

	require.NoError(t, q.Enqueue("order-1"))
	require.NoError(t, q.Enqueue("order-1"))

	<-q.Tasks()
	assert.Empty(t, q.Tasks())

	var count int64
	require.NoError(t, q.db.Model(&Task{}).Where("order_id = ?", "order-1").Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestTaskLifecycleAndAttempts(t *testing.T) {
	q := NewQueue(newTestDB(t), 8)
	defer q.Close()

	require.NoError(t, q.Enqueue("order-1"))
	require.NoError(t, q.MarkRunning("order-1"))

	attempts, err := q.RecordAttempt("order-1")
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)

	attempts, err = q.RecordAttempt("order-1")
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	require.NoError(t, q.MarkCompleted("order-1"))
	task, err := q.GetTask("order-1")
	require.NoError(t, err)
	assert.Equal(t, TaskCompleted, task.Status)
}

func TestRecoverPendingRedispatchesUnfinishedTasks(t *testing.T) {
	db := newTestDB(t)

	// First process: tasks accepted but never finished
	q1 := NewQueue(db, 8)
	require.NoError(t, q1.Enqueue("order-1"))
	require.NoError(t, q1.Enqueue("order-2"))
	require.NoError(t, q1.MarkRunning("order-1"))
	require.NoError(t, q1.Enqueue("order-3"))
	require.NoError(t, q1.MarkCompleted("order-3"))
	q1.Close()

	// Restarted process over the same storage
	q2 := NewQueue(db, 8)
	defer q2.Close()

	recovered, err := q2.RecoverPending()
	require.NoError(t, err)
	assert.Equal(t, 2, recovered)

	assert.Equal(t, "order-1", <-q2.Tasks())
	assert.Equal(t, "order-2", <-q2.Tasks())
	assert.Empty(t, q2.Tasks())
}

func TestEnqueueAfterClose(t *testing.T) {
	q := NewQueue(newTestDB(t), 8)
	q.Close()
	q.Close() // safe to call twice

	require.ErrorIs(t, q.Enqueue("order-1"), ErrQueueClosed)
}
