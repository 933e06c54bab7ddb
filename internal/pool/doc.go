// Package pool implements sealdb's internal task scheduler: a bounded,
// dynamically-sized worker pool that runs units of work (query execution
// steps, background maintenance, administrative commands) under priority,
// deadline, and resource-budget constraints.
//
// Five independent FIFO queues, one per priority class, feed N worker
// goroutines that always prefer the highest non-empty class. Two periodic
// loops run alongside the workers: a monitor that sweeps deadline-expired
// tasks out of the queues, and an adaptive controller that grows the worker
// set under sustained backlog.
//
// The pool is deliberately simple about several things:
//   - Strict cross-class precedence with no aging: a constant stream of
//     Critical/High work can starve Background work indefinitely.
//   - The worker set only grows; a lower target is recorded but no live
//     worker is ever stopped.
//   - The resource ledger's counters are monotonic and never decay; once a
//     cap is crossed, admission keeps failing until the limits are raised.
//   - No task is retried, requeued, or cancelled once execution starts.
package pool
