package settlement

import (
	"adbarter/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("settlement.service",
	fx.Provide(NewService),
)

// TaskModule wires the reconcile handler into the worker's mux.
var TaskModule = fx.Module("settlement.task",
	fx.Provide(NewWorker),
	fx.Invoke(registerHandlers),
)

func registerHandlers(mux *asynq.ServeMux, w *Worker) {
	mux.HandleFunc(taskname.EligibilityReconcile, w.HandleEligibilityReconcile)
}
