package backtest

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/codebytelabs/DayTraderAI-sub002/pkg/types"
)

// WorkerPool runs replay jobs in parallel for parameter sweeps
type WorkerPool struct {
	workerCount int
	jobQueue    chan Job
	resultQueue chan JobResult
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
}

// Job is one replay task: a parameter set against one candle series
type Job struct {
	ID     string
	Symbol string
	Config Config
	Data   []types.OHLCV
}

// JobResult is the outcome of one replay job
type JobResult struct {
	ID       string
	Config   Config
	Results  *Results
	Duration time.Duration
	Error    error
}

// NewWorkerPool creates a pool; workerCount <= 0 uses one worker per CPU
func NewWorkerPool(workerCount, jobBufferSize int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		workerCount: workerCount,
		jobQueue:    make(chan Job, jobBufferSize),
		resultQueue: make(chan JobResult, jobBufferSize),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start launches the workers
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker()
	}
}

// Stop drains the queue, waits for the workers and closes the result channel
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
	close(wp.resultQueue)
	wp.cancel()
}

// SubmitJob queues one replay job
func (wp *WorkerPool) SubmitJob(job Job) error {
	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.ctx.Done():
		return wp.ctx.Err()
	}
}

// Results returns the channel completed jobs arrive on
func (wp *WorkerPool) Results() <-chan JobResult {
	return wp.resultQueue
}

func (wp *WorkerPool) worker() {
	defer wp.wg.Done()

	for {
		select {
		case job, ok := <-wp.jobQueue:
			if !ok {
				return
			}
			result := wp.processJob(job)
			select {
			case wp.resultQueue <- result:
			case <-wp.ctx.Done():
				return
			}
		case <-wp.ctx.Done():
			return
		}
	}
}

func (wp *WorkerPool) processJob(job Job) (result JobResult) {
	start := time.Now()
	result = JobResult{ID: job.ID, Config: job.Config}

	defer func() {
		if r := recover(); r != nil {
			result.Error = fmt.Errorf("replay job %s panicked: %v", job.ID, r)
			result.Duration = time.Since(start)
		}
	}()

	result.Results, result.Error = New(job.Config).Run(job.Symbol, job.Data)
	result.Duration = time.Since(start)
	return result
}
