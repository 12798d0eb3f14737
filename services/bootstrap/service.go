package bootstrap

import (
	"context"

	"adbarter/pkg/config"
	"adbarter/pkg/repository"
	"adbarter/services/account"
	"adbarter/services/analytics"
	"adbarter/services/settlement"
	"adbarter/services/website"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db     *gorm.DB
	node   *snowflake.Node
	config *config.Config
	users  repository.Repository[account.User]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Config *config.Config
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		node:   p.Node,
		config: p.Config,
		users:  repository.ProvideStore[account.User](p.DB),
	}
}

// Migrate brings the schema up to date and makes sure an owner account
// exists so admin endpoints are reachable on a fresh install.
func (s *Service) Migrate() error {
	ctx := context.Background()

	if err := s.db.AutoMigrate(
		&account.User{},
		&website.Website{},
		&analytics.DailyStat{},
		&settlement.ClickLog{},
	); err != nil {
		zap.L().Error("[bootstrap] schema migration failed", zap.Error(err))
		return err
	}

	exist, err := s.users.FindOne(ctx, &account.User{IsOwner: true})
	if err != nil {
		zap.L().Error("[bootstrap] error checking owner account", zap.Error(err))
		return err
	}
	if exist != nil {
		zap.L().Info("[bootstrap] owner account already exists", zap.String("user_id", exist.ID))
		return nil
	}

	ownerEmail := s.config.Exchange.OwnerEmail
	if ownerEmail == "" {
		zap.L().Warn("[bootstrap] no owner email configured, skipping owner creation")
		return nil
	}

	owner := &account.User{
		ID:      s.node.Generate().String(),
		Email:   ownerEmail,
		Credits: s.config.Exchange.StartingCredits,
		IsAdmin: true,
		IsOwner: true,
	}
	if err := s.users.Create(ctx, owner); err != nil {
		zap.L().Error("[bootstrap] failed to create owner account", zap.Error(err))
		return err
	}

	zap.L().Info("[bootstrap] owner account created", zap.String("email", ownerEmail))
	return nil
}
