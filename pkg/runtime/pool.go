package runtime

import (
	"context"
	"sync"

	"github.com/rustkas/beamline-worker/pkg/core"
	"github.com/rustkas/beamline-worker/pkg/flags"
	"github.com/rustkas/beamline-worker/pkg/obs"
)

// defaultMaxQueueSize bounds the pending queue when queue management is on
// and no explicit bound was configured.
const defaultMaxQueueSize = 1000

// PoolConfig parameterizes one resource pool.
type PoolConfig struct {
	Class          core.ResourceClass
	MaxConcurrency int

	// MaxQueueSize bounds the pending queue when the queue-management gate is
	// on. Zero selects the default bound; the gate off means unbounded.
	MaxQueueSize int
}

// ExecuteFunc runs one task to its terminal result.
type ExecuteFunc func(ctx context.Context, task Task) core.StepResult

// Pool is the bounded FIFO dispatcher for one resource class. It is a
// single-goroutine actor: all state (queue, load counter) lives inside the
// mailbox loop and needs no locking. Admission, completion and cancellation
// are mailbox messages processed in arrival order.
type Pool struct {
	cfg     PoolConfig
	obs     *obs.Observability
	execute ExecuteFunc
	sink    ResultSink

	mailbox chan poolMsg
	quit    chan struct{}
	wg      sync.WaitGroup
}

type poolMsg interface{ poolMsg() }

type submitMsg struct {
	task Task

	// ack is invoked inside the mailbox turn, before any dispatch, with the
	// admission decision. Publishing the acknowledgement there guarantees it
	// precedes any result for the same assignment.
	ack func(admitted bool)
}

type cancelMsg struct {
	stepID string
}

type completeMsg struct{}

func (submitMsg) poolMsg()   {}
func (cancelMsg) poolMsg()   {}
func (completeMsg) poolMsg() {}

// NewPool builds a pool. execute runs a task to completion; sink receives the
// terminal result of every dispatched or queue-cancelled task.
func NewPool(cfg PoolConfig, observability *obs.Observability, execute ExecuteFunc, sink ResultSink) *Pool {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}

	return &Pool{
		cfg:     cfg,
		obs:     observability,
		execute: execute,
		sink:    sink,
		mailbox: make(chan poolMsg, 64),
		quit:    make(chan struct{}),
	}
}

// Start launches the mailbox loop.
func (p *Pool) Start(ctx context.Context) {
	p.wg.Add(1)

	go p.run(ctx)
}

// Stop terminates the mailbox loop and waits for it to exit. In-flight
// handler invocations finish on their own; their results are discarded once
// the pool is stopped.
func (p *Pool) Stop() {
	close(p.quit)
	p.wg.Wait()
}

// Submit offers a task to the pool. ack is called exactly once with the
// admission decision: false when the bounded queue is full, true when the
// task was dispatched or enqueued.
func (p *Pool) Submit(task Task, ack func(admitted bool)) {
	select {
	case p.mailbox <- submitMsg{task: task, ack: ack}:
	case <-p.quit:
		ack(false)
	}
}

// Cancel removes queued entries for the given step ID. In-flight handler
// invocations are not interrupted; their own timeouts remain the mechanism of
// last resort.
func (p *Pool) Cancel(stepID string) {
	select {
	case p.mailbox <- cancelMsg{stepID: stepID}:
	case <-p.quit:
	}
}

func (p *Pool) run(ctx context.Context) {
	defer p.wg.Done()

	var (
		pending []Task
		load    int
	)

	gauges := func() {
		p.obs.SetQueueDepth(string(p.cfg.Class), len(pending))
		p.obs.SetActiveTasks(string(p.cfg.Class), load)
	}

	dispatch := func(task Task) {
		load++

		go func() {
			res := p.execute(ctx, task)

			select {
			case <-p.quit:
				return
			default:
			}

			p.sink(task, res)

			select {
			case p.mailbox <- completeMsg{}:
			case <-p.quit:
			}
		}()
	}

	gauges()

	for {
		select {
		case msg := <-p.mailbox:
			switch m := msg.(type) {
			case submitMsg:
				switch {
				case load < p.cfg.MaxConcurrency:
					m.ack(true)
					dispatch(m.task)
				case p.queueFull(len(pending)):
					p.obs.Logger().WarnCtx("queue full, rejecting request", m.task.Ctx, map[string]any{
						"resource_pool":  string(p.cfg.Class),
						"queue_depth":    len(pending),
						"max_queue_size": p.queueBound(),
						"reason":         "queue_full",
					})
					m.ack(false)
				default:
					m.ack(true)
					pending = append(pending, m.task)
				}

				gauges()

			case cancelMsg:
				kept := pending[:0]

				for _, task := range pending {
					if task.Ctx.StepID == m.stepID {
						p.sink(task, core.CancelledResult(core.MetadataFromContext(task.Ctx), 0))

						continue
					}

					kept = append(kept, task)
				}

				pending = kept

				gauges()

			case completeMsg:
				load--

				for load < p.cfg.MaxConcurrency && len(pending) > 0 {
					task := pending[0]
					pending = pending[1:]
					dispatch(task)
				}

				gauges()
			}

		case <-p.quit:
			return
		}
	}
}

// queueBound resolves the effective queue bound; zero means unbounded.
func (p *Pool) queueBound() int {
	if !flags.QueueManagementEnabled() {
		return 0
	}

	if p.cfg.MaxQueueSize > 0 {
		return p.cfg.MaxQueueSize
	}

	return defaultMaxQueueSize
}

func (p *Pool) queueFull(depth int) bool {
	bound := p.queueBound()

	return bound > 0 && depth >= bound
}
