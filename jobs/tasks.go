package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockReconcile re-derives every product's cached stock from the
	// transaction log and repairs divergence.
	TaskStockReconcile = "stock:reconcile"
	// TaskLedgerIntegrity scans the ledger for duplicate invoice numbers and
	// recomputes per-contact balances.
	TaskLedgerIntegrity = "ledger:integrity"
)

// NewStockReconcileTask constructs the nightly reconcile task.
func NewStockReconcileTask() *asynq.Task {
	return asynq.NewTask(TaskStockReconcile, nil)
}

// NewLedgerIntegrityTask constructs the ledger integrity scan task.
func NewLedgerIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskLedgerIntegrity, nil)
}
