package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrQueueFull    = errors.New("transaction queue is full")
	ErrQueueStopped = errors.New("transaction queue is stopped")
)

// Receipt describes the outcome of one submitted transaction.
type Receipt struct {
	TxID        string    `json:"tx_id"`
	Operation   string    `json:"operation"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
	CompletedAt time.Time `json:"completed_at"`
}

type txRequest struct {
	receipt  Receipt
	apply    func() error
	resultCh chan<- txResult
}

type txResult struct {
	receipt Receipt
	err     error
}

// TxQueue applies mutating operations one at a time, in submission order.
// A single worker drains the queue so transactions never interleave.
type TxQueue struct {
	metrics      *MetricsCollector
	logger       *zap.Logger
	txCh         chan *txRequest
	shutdownCh   chan struct{}
	drainedCh    chan struct{}
	processingWg sync.WaitGroup
	stopOnce     sync.Once
}

func NewTxQueue(queueSize int, metrics *MetricsCollector, logger *zap.Logger) *TxQueue {
	return &TxQueue{
		metrics:    metrics,
		logger:     logger,
		txCh:       make(chan *txRequest, queueSize),
		shutdownCh: make(chan struct{}),
		drainedCh:  make(chan struct{}),
	}
}

// Start begins processing queued transactions
func (q *TxQueue) Start() {
	q.processingWg.Add(1)
	go q.worker()
}

// Stop waits for the transaction in flight, then fails whatever is still queued.
// Requests that slip into the queue after the drain are failed by their own
// Submit call.
func (q *TxQueue) Stop() {
	q.stopOnce.Do(func() {
		close(q.shutdownCh)
		q.processingWg.Wait()
		for {
			select {
			case req := <-q.txCh:
				req.receipt.Error = ErrQueueStopped.Error()
				req.resultCh <- txResult{receipt: req.receipt, err: ErrQueueStopped}
			default:
				close(q.drainedCh)
				return
			}
		}
	})
}

// Submit enqueues apply and waits for its receipt. The returned error is the
// error of apply itself, or a queue error when it never ran. If ctx ends
// first the transaction may still be applied later.
func (q *TxQueue) Submit(ctx context.Context, operation string, apply func() error) (Receipt, error) {
	resultCh := make(chan txResult, 1)
	req := &txRequest{
		receipt: Receipt{
			TxID:        uuid.NewString(),
			Operation:   operation,
			SubmittedAt: time.Now(),
		},
		apply:    apply,
		resultCh: resultCh,
	}

	select {
	case <-q.shutdownCh:
		return req.receipt, ErrQueueStopped
	default:
	}

	select {
	case q.txCh <- req:
	default:
		q.logger.Warn("transaction queue is full, request dropped", zap.String("operation", operation))
		return req.receipt, ErrQueueFull
	}

	return q.await(ctx, req, resultCh)
}

// await waits for req's result. Once the queue has been drained, a result is
// either already buffered or req was enqueued too late to ever run.
func (q *TxQueue) await(ctx context.Context, req *txRequest, resultCh <-chan txResult) (Receipt, error) {
	select {
	case result := <-resultCh:
		return result.receipt, result.err
	case <-q.drainedCh:
		select {
		case result := <-resultCh:
			return result.receipt, result.err
		default:
			req.receipt.Error = ErrQueueStopped.Error()
			return req.receipt, ErrQueueStopped
		}
	case <-ctx.Done():
		return req.receipt, ctx.Err()
	}
}

func (q *TxQueue) worker() {
	defer q.processingWg.Done()

	for {
		select {
		case <-q.shutdownCh:
			return
		case req := <-q.txCh:
			startTime := time.Now()
			err := req.apply()
			q.metrics.RecordOperation(req.receipt.Operation, time.Since(startTime), err)

			req.receipt.CompletedAt = time.Now()
			req.receipt.Success = err == nil
			if err != nil {
				req.receipt.Error = err.Error()
			}
			q.logger.Debug("transaction applied",
				zap.String("tx_id", req.receipt.TxID),
				zap.String("operation", req.receipt.Operation),
				zap.Bool("success", req.receipt.Success))
			req.resultCh <- txResult{receipt: req.receipt, err: err}
		}
	}
}
