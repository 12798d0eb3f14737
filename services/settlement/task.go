package settlement

import (
	"context"
	"encoding/json"
	"fmt"

	"adbarter/pkg/repository"
	"adbarter/pkg/taskname"
	"adbarter/services/account"
	"adbarter/services/website"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Worker re-derives the denormalized has_credits flag on every site a user
// owns from their authoritative balance. The flag only steers candidate
// pooling; settlement re-checks the real balance, so a stale flag is never
// a correctness problem, only a serving-quality one.
type Worker struct {
	db    *gorm.DB
	users repository.Repository[account.User]
}

func NewWorker(db *gorm.DB) *Worker {
	return &Worker{
		db:    db,
		users: repository.ProvideStore[account.User](db),
	}
}

func (w *Worker) HandleEligibilityReconcile(ctx context.Context, t *asynq.Task) error {
	var payload taskname.ReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal reconcile payload: %w: %w", err, asynq.SkipRetry)
	}

	user, err := w.users.FindOne(ctx, &account.User{ID: payload.UserID})
	if err != nil {
		return err
	}
	if user == nil {
		zap.L().Warn("reconcile for unknown user", zap.String("user_id", payload.UserID))
		return nil
	}

	eligible := user.Credits > 0

	result := w.db.WithContext(ctx).Model(&website.Website{}).
		Where("user_id = ? AND has_credits = ?", user.ID, !eligible).
		UpdateColumn("has_credits", eligible)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected > 0 {
		zap.L().Info("reconciled site eligibility",
			zap.String("user_id", user.ID),
			zap.Bool("eligible", eligible),
			zap.Int64("sites", result.RowsAffected),
			zap.String("trace_id", payload.TraceID),
		)
	}

	return nil
}
