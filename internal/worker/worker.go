package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/solswap/swap-api/internal/orders"
	"github.com/solswap/swap-api/internal/queue"
	"github.com/solswap/swap-api/internal/types"
)

// QuoteRouter obtains and executes quotes across venues. Satisfied by
// router.Router; tests substitute stubs.
type QuoteRouter interface {
	BestQuote(ctx context.Context, inputToken, outputToken string, inputAmount float64) (*types.BestQuote, error)
	Execute(ctx context.Context, quote types.Quote) (*types.ExecutionResult, error)
}

// Executor drives a single order through the execution pipeline:
// claim ROUTING, quote, BUILDING, SUBMITTED, execute, CONFIRMED. Transient
// routing and execution failures are retried per the policy; exhaustion
// moves the order to FAILED with the last error recorded.
type Executor struct {
	orders *orders.Service
	router QuoteRouter
	policy RetryPolicy
}

// NewExecutor creates an executor over the given order service and router.
// A non-positive MaxAttempts is clamped to a single attempt.
func NewExecutor(orderService *orders.Service, router QuoteRouter, policy RetryPolicy) *Executor {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return &Executor{
		orders: orderService,
		router: router,
		policy: policy,
	}
}

// Execute runs the pipeline to a terminal status. Only a PENDING order may
// start: a missing order returns ErrNotFound and a non-PENDING one
// ErrInvalidState, both without mutating anything, so duplicate triggers on
// the same order are harmless.
//
// A FAILED outcome is not an error to the caller; the failure lives on the
// returned order.
func (e *Executor) Execute(ctx context.Context, orderID string) (*types.Order, error) {
	logger := log.With().
		Str("component", "executor").
		Str("order_id", orderID).
		Logger()

	order, err := e.orders.ClaimRouting(orderID)
	if err != nil {
		return nil, err
	}
	logger.Info().Msg("order claimed for execution")

	progress := types.StatusRouting
	var lastErr error

	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		if delay := e.policy.Backoff(attempt); delay > 0 {
			if err := wait(ctx, delay); err != nil {
				return nil, err
			}
		}

		confirmed, err := e.attempt(ctx, order, &progress)
		if err == nil {
			logger.Info().
				Str("venue", confirmed.SelectedVenue).
				Str("tx_hash", confirmed.TxHash).
				Int("attempt", attempt).
				Msg("order confirmed")
			return confirmed, nil
		}

		if ctx.Err() != nil {
			// Shutdown: abandon the attempt without a terminal write; the
			// queue re-delivers after restart.
			return nil, err
		}

		lastErr = err
		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", e.policy.MaxAttempts).
			Msg("execution attempt failed")

		if !types.IsTransient(err) {
			break
		}
	}

	logger.Error().Err(lastErr).Msg("order permanently failed")
	return e.orders.Fail(order.OrderID, lastErr.Error())
}

// attempt performs one pass of the pipeline. Bookkeeping transitions only
// fire the first time they are reached, so a retried attempt never repeats
// or rewinds a published status.
func (e *Executor) attempt(ctx context.Context, order *types.Order, progress *types.OrderStatus) (*types.Order, error) {
	best, err := e.router.BestQuote(ctx, order.InputToken, order.OutputToken, order.InputAmount)
	if err != nil {
		return nil, err
	}

	if err := e.advance(order.OrderID, types.StatusBuilding, progress); err != nil {
		return nil, err
	}
	if err := e.advance(order.OrderID, types.StatusSubmitted, progress); err != nil {
		return nil, err
	}

	result, err := e.router.Execute(ctx, best.Selected)
	if err != nil {
		return nil, err
	}

	return e.orders.Complete(order.OrderID, best.Selected.Venue, result.ExecutedAmount, result.TxHash)
}

func (e *Executor) advance(orderID string, status types.OrderStatus, progress *types.OrderStatus) error {
	if status.Rank() <= (*progress).Rank() {
		return nil
	}
	if _, err := e.orders.Transition(orderID, status); err != nil {
		return err
	}
	*progress = status
	return nil
}

// Pool consumes the submission queue with bounded concurrency, running each
// task through the executor.
type Pool struct {
	executor    *Executor
	queue       *queue.Queue
	concurrency int
	wg          sync.WaitGroup
}

// NewPool creates a worker pool with the given concurrency.
func NewPool(executor *Executor, q *queue.Queue, concurrency int) *Pool {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Pool{
		executor:    executor,
		queue:       q,
		concurrency: concurrency,
	}
}

// Start launches the consumers. They exit when the context is cancelled or
// the queue channel closes.
func (p *Pool) Start(ctx context.Context) {
	log.Info().
		Int("concurrency", p.concurrency).
		Msg("starting execution worker pool")

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.consume(ctx)
		}()
	}
}

// Wait blocks until all consumers have exited.
func (p *Pool) Wait() {
	p.wg.Wait()
	log.Info().Msg("execution worker pool stopped")
}

func (p *Pool) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case orderID, ok := <-p.queue.Tasks():
			if !ok {
				return
			}
			p.process(ctx, orderID)
		}
	}
}

func (p *Pool) process(ctx context.Context, orderID string) {
	logger := log.With().
		Str("component", "worker").
		Str("order_id", orderID).
		Logger()

	if err := p.queue.MarkRunning(orderID); err != nil {
		logger.Error().Err(err).Msg("failed to mark task running")
	}
	if _, err := p.queue.RecordAttempt(orderID); err != nil {
		logger.Error().Err(err).Msg("failed to record task attempt")
	}

	order, err := p.executor.Execute(ctx, orderID)
	switch {
	case err == nil:
		if order.Status == types.StatusFailed {
			p.finish(logger, orderID, p.queue.MarkFailed)
			return
		}
		p.finish(logger, orderID, p.queue.MarkCompleted)

	case errors.Is(err, types.ErrInvalidState):
		// Duplicate delivery of an order that already ran. At-least-once
		// queues can do this; the order was not touched.
		logger.Info().Msg("order already executed, dropping duplicate task")
		p.finish(logger, orderID, p.queue.MarkCompleted)

	case errors.Is(err, types.ErrNotFound):
		logger.Error().Msg("task references unknown order")
		p.finish(logger, orderID, p.queue.MarkFailed)

	case ctx.Err() != nil:
		// Abandoned mid-flight during shutdown; the RUNNING row is
		// recovered on the next start.
		logger.Warn().Msg("task abandoned during shutdown")

	default:
		logger.Error().Err(err).Msg("task processing failed")
		p.finish(logger, orderID, p.queue.MarkFailed)
	}
}

func (p *Pool) finish(logger zerolog.Logger, orderID string, mark func(string) error) {
	if err := mark(orderID); err != nil {
		logger.Error().Err(err).Msg("failed to update task status")
	}
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
