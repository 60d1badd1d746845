package queue

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var (
	ErrQueueFull   = errors.New("submission queue full")
	ErrQueueClosed = errors.New("submission queue closed")
)

// Task statuses
const (
	TaskQueued    = "QUEUED"
	TaskRunning   = "RUNNING"
	TaskCompleted = "COMPLETED"
	TaskFailed    = "FAILED"
)

// Task is a durable execution task for one order. The unique index on
// order_id is the deduplication guarantee: an order can only ever be queued
// once, so at most one task per order is in flight.
type Task struct {
	gorm.Model `json:"-"`
	TaskID     string    `gorm:"uniqueIndex" json:"task_id"`
	OrderID    string    `gorm:"uniqueIndex" json:"order_id"`
	Status     string    `json:"status"`
	Attempts   int       `json:"attempts"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Queue is the durable, at-least-once submission queue decoupling order
// creation from execution. Tasks are persisted as rows and dispatched to
// consumers over a bounded in-process channel; rows left QUEUED or RUNNING
// by a previous process are re-dispatched on startup.
type Queue struct {
	db    *gorm.DB
	tasks chan string

	mu     sync.Mutex
	closed bool
}

// NewQueue creates a queue over the given database with a bounded dispatch
// buffer.
func NewQueue(db *gorm.DB, capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		db:    db,
		tasks: make(chan string, capacity),
	}
}

// Enqueue persists an execution task for the order and dispatches it.
// Enqueueing an order that already has a task is a no-op.
func (q *Queue) Enqueue(orderID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	var existing Task
	err := q.db.Where("order_id = ?", orderID).First(&existing).Error
	if err == nil {
		log.Debug().Str("order_id", orderID).Msg("order already queued, skipping")
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	task := Task{
		TaskID:    uuid.New().String(),
		OrderID:   orderID,
		Status:    TaskQueued,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := q.db.Create(&task).Error; err != nil {
		return err
	}

	select {
	case q.tasks <- orderID:
	default:
		// The row stays QUEUED and is picked up by the next recovery pass.
		return ErrQueueFull
	}

	log.Info().
		Str("task_id", task.TaskID).
		Str("order_id", orderID).
		Msg("order added to submission queue")
	return nil
}

// Tasks is the consumption channel. It yields order ids and is closed by
// Close.
func (q *Queue) Tasks() <-chan string {
	return q.tasks
}

// RecoverPending re-dispatches tasks a previous process left unfinished.
// Called once at startup, before consumers start; delivery is therefore
// at-least-once across restarts.
func (q *Queue) RecoverPending() (int, error) {
	var pending []Task
	err := q.db.
		Where("status IN ?", []string{TaskQueued, TaskRunning}).
		Order("id ASC").
		Find(&pending).Error
	if err != nil {
		return 0, err
	}

	for _, task := range pending {
		select {
		case q.tasks <- task.OrderID:
		default:
			return 0, ErrQueueFull
		}
	}

	if len(pending) > 0 {
		log.Info().Int("count", len(pending)).Msg("recovered unfinished queue tasks")
	}
	return len(pending), nil
}

// MarkRunning flags the task as picked up by a consumer.
func (q *Queue) MarkRunning(orderID string) error {
	return q.setStatus(orderID, TaskRunning)
}

// MarkCompleted flags the task as finished successfully.
func (q *Queue) MarkCompleted(orderID string) error {
	return q.setStatus(orderID, TaskCompleted)
}

// MarkFailed flags the task as permanently failed.
func (q *Queue) MarkFailed(orderID string) error {
	return q.setStatus(orderID, TaskFailed)
}

// RecordAttempt increments the task's attempt counter and returns the new
// count.
func (q *Queue) RecordAttempt(orderID string) (int, error) {
	result := q.db.Model(&Task{}).
		Where("order_id = ?", orderID).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return 0, result.Error
	}

	var task Task
	if err := q.db.Where("order_id = ?", orderID).First(&task).Error; err != nil {
		return 0, err
	}
	return task.Attempts, nil
}

// GetTask returns the task row for an order.
func (q *Queue) GetTask(orderID string) (*Task, error) {
	var task Task
	if err := q.db.Where("order_id = ?", orderID).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (q *Queue) setStatus(orderID, status string) error {
	return q.db.Model(&Task{}).
		Where("order_id = ?", orderID).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
}

// Close stops intake and closes the consumption channel. In-flight consumers
// drain whatever was already dispatched.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.tasks)
}
