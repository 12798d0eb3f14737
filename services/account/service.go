package account

import (
	"context"
	"encoding/json"
	"time"

	"adbarter/pkg/authz"
	"adbarter/pkg/config"
	"adbarter/pkg/db/option"
	"adbarter/pkg/errutil"
	"adbarter/pkg/repository"
	"adbarter/pkg/taskname"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	node  *snowflake.Node
	cfg   *config.Config
	authz *authz.Authorizer
	asynq *asynq.Client

	users repository.Repository[User]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Config *config.Config
	Authz  *authz.Authorizer
	Asynq  *asynq.Client `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:    p.DB,
		node:  p.Node,
		cfg:   p.Config,
		authz: p.Authz,
		asynq: p.Asynq,

		users: repository.ProvideStore[User](p.DB),
	}
}

func (s *Service) Get(ctx context.Context, userID string) (*User, error) {
	user, err := s.users.FindOne(ctx, &User{ID: userID})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errutil.NotFound("user not found", nil)
	}
	return user, nil
}

// Create registers a new account with the configured starting balance.
func (s *Service) Create(ctx context.Context, email string) (*User, error) {
	now := time.Now()
	user := &User{
		ID:        s.node.Generate().String(),
		Email:     email,
		Credits:   s.cfg.Exchange.StartingCredits,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// AddCredits applies a positive balance increment from the payment webhook.
// The increment is a single atomic column update; no read-modify-write.
func (s *Service) AddCredits(ctx context.Context, userID string, amount int64, reference string) error {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("user_id", userID),
		zap.String("reference", reference),
	)

	if amount <= 0 {
		return errutil.BadRequest("amount must be > 0", nil)
	}

	user, err := s.users.FindOne(ctx, &User{ID: userID})
	if err != nil {
		return err
	}
	if user == nil {
		return errutil.NotFound("user not found", nil)
	}

	if err := s.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", userID).
		UpdateColumn("credits", gorm.Expr("credits + ?", amount)).Error; err != nil {
		zapLog.Error("failed to credit balance", zap.Error(err))
		return err
	}

	zapLog.Info("credited balance", zap.Int64("amount", amount))

	// Balance may have crossed 0; the cached flags on their sites are
	// reconciled by the worker.
	s.enqueueReconcile(ctx, userID)

	return nil
}

// AdminAdjustCredits lets an admin move a member balance up or down. The
// balance is re-read under lock so the adjustment can never drive it
// negative.
func (s *Service) AdminAdjustCredits(ctx context.Context, actorID, targetID string, delta int64) error {
	actor, target, err := s.pair(ctx, actorID, targetID)
	if err != nil {
		return err
	}

	if !s.authz.Can(actor.Role(), authz.ObjectUser, authz.ActionAdjustCredits) || !s.authz.Outranks(actor.Role(), target.Role()) {
		return errutil.Forbidden("not allowed to adjust credits for this account", nil)
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		usersTx := s.users.WithTrx(tx)

		current, err := usersTx.FindOne(ctx, &User{ID: targetID}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if current == nil {
			return errutil.NotFound("user not found", nil)
		}

		if current.Credits+delta < 0 {
			return errutil.UnprocessableEntity("adjustment would drive balance negative", nil)
		}

		return usersTx.Update(ctx, targetID, map[string]any{
			"credits":    gorm.Expr("credits + ?", delta),
			"updated_at": time.Now(),
		})
	}); err != nil {
		return err
	}

	s.enqueueReconcile(ctx, targetID)
	return nil
}

// AdminBan suspends an account until the given time, or permanently when
// until is nil.
func (s *Service) AdminBan(ctx context.Context, actorID, targetID string, until *time.Time, reason string) error {
	actor, target, err := s.pair(ctx, actorID, targetID)
	if err != nil {
		return err
	}

	if !s.authz.Can(actor.Role(), authz.ObjectUser, authz.ActionBan) || !s.authz.Outranks(actor.Role(), target.Role()) {
		return errutil.Forbidden("not allowed to ban this account", nil)
	}

	updates := map[string]any{
		"ban_reason": reason,
		"updated_at": time.Now(),
	}
	if until == nil {
		updates["permanent_ban"] = true
	} else {
		updates["banned_until"] = *until
	}

	return s.users.Update(ctx, targetID, updates)
}

func (s *Service) AdminLiftBan(ctx context.Context, actorID, targetID string) error {
	actor, target, err := s.pair(ctx, actorID, targetID)
	if err != nil {
		return err
	}

	if !s.authz.Can(actor.Role(), authz.ObjectUser, authz.ActionBan) || !s.authz.Outranks(actor.Role(), target.Role()) {
		return errutil.Forbidden("not allowed to modify this account", nil)
	}

	return s.users.Update(ctx, targetID, map[string]any{
		"permanent_ban": false,
		"banned_until":  nil,
		"ban_reason":    "",
		"updated_at":    time.Now(),
	})
}

func (s *Service) pair(ctx context.Context, actorID, targetID string) (*User, *User, error) {
	actor, err := s.Get(ctx, actorID)
	if err != nil {
		return nil, nil, err
	}
	target, err := s.Get(ctx, targetID)
	if err != nil {
		return nil, nil, err
	}
	return actor, target, nil
}

func (s *Service) enqueueReconcile(ctx context.Context, userID string) {
	if s.asynq == nil {
		return
	}

	span := trace.SpanFromContext(ctx)
	payload, _ := json.Marshal(taskname.ReconcilePayload{
		UserID:  userID,
		TraceID: span.SpanContext().TraceID().String(),
	})

	if _, err := s.asynq.EnqueueContext(ctx, asynq.NewTask(taskname.EligibilityReconcile, payload)); err != nil {
		zap.L().Error("failed to enqueue eligibility reconcile", zap.String("user_id", userID), zap.Error(err))
	}
}
