// Package scheduler drives the scheduling loop.
//
// On every poll tick it walks the workspace connections, asks the schedule
// predicate whether each one is due and, if so, enqueues a sync job through
// the job creator. It also exposes manual sync and reset triggers.
//
// The scheduler only creates jobs. Running them is a worker's business.
package scheduler
