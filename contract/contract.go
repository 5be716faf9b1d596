package contract

import (
	"context"
	"reflect"
)

// Worker is a long-running unit supervised by runtime.Supervisor. A worker
// doesn't protect itself; the supervisor handles panics and restarts.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName resolves the worker's type name for logs, so workers don't
// have to carry a Name method.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
