package account

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"adbarter/pkg/authz"
	"adbarter/pkg/config"
	"adbarter/pkg/db/option"
	"adbarter/pkg/errutil"
	"adbarter/pkg/repository"
	"adbarter/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type repoMock[T any] struct {
	withTrxFn     func(tx *gorm.DB) repository.Repository[T]
	findFn        func(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	findOneFn     func(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	createFn      func(ctx context.Context, resource *T) error
	updateFn      func(ctx context.Context, resourceID string, resource any) error
	batchCreateFn func(ctx context.Context, resources []*T) error
	batchUpdateFn func(ctx context.Context, resources []*T) error
	countFn       func(ctx context.Context, query *T) (int64, error)
}

func (m *repoMock[T]) WithTrx(tx *gorm.DB) repository.Repository[T] {
	if m.withTrxFn != nil {
		return m.withTrxFn(tx)
	}
	return m
}

func (m *repoMock[T]) Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error) {
	if m.findFn != nil {
		return m.findFn(ctx, query, opts...)
	}
	return nil, nil
}

func (m *repoMock[T]) FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error) {
	if m.findOneFn != nil {
		return m.findOneFn(ctx, query, opts...)
	}
	return nil, nil
}

func (m *repoMock[T]) Create(ctx context.Context, resource *T) error {
	if m.createFn != nil {
		return m.createFn(ctx, resource)
	}
	return nil
}

func (m *repoMock[T]) Update(ctx context.Context, resourceID string, resource any) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, resourceID, resource)
	}
	return nil
}

func (m *repoMock[T]) BatchCreate(ctx context.Context, resources []*T) error {
	if m.batchCreateFn != nil {
		return m.batchCreateFn(ctx, resources)
	}
	return nil
}

func (m *repoMock[T]) BatchUpdate(ctx context.Context, resources []*T) error {
	if m.batchUpdateFn != nil {
		return m.batchUpdateFn(ctx, resources)
	}
	return nil
}

func (m *repoMock[T]) Count(ctx context.Context, query *T) (int64, error) {
	if m.countFn != nil {
		return m.countFn(ctx, query)
	}
	return 0, nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Exchange.StartingCredits = 10
	return cfg
}

func newTestService(t *testing.T) *Service {
	t.Helper()

	db := testutil.NewTestDB(t, &User{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	az, err := authz.New()
	require.NoError(t, err)

	return NewService(ServiceParams{DB: db, Node: node, Config: testConfig(), Authz: az})
}

func TestNewService(t *testing.T) {
	svc := newTestService(t)
	require.NotNil(t, svc.users)
}

func TestCreateGrantsStartingCredits(t *testing.T) {
	svc := newTestService(t)

	user, err := svc.Create(context.Background(), "member@example.com")
	require.NoError(t, err)
	require.Equal(t, int64(10), user.Credits)

	stored, err := svc.Get(context.Background(), user.ID)
	require.NoError(t, err)
	require.Equal(t, int64(10), stored.Credits)
	require.Equal(t, authz.RoleUser, stored.Role())
}

func TestGetUnknownUser(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusNotFound, be.Status())
}

func TestAddCreditsRejectsNonPositive(t *testing.T) {
	svc := &Service{users: &repoMock[User]{}}

	err := svc.AddCredits(context.Background(), "user", 0, "ref")
	require.Error(t, err)
	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusBadRequest, be.Status())
}

func TestAddCreditsIncrementsBalance(t *testing.T) {
	svc := newTestService(t)

	user, err := svc.Create(context.Background(), "member@example.com")
	require.NoError(t, err)

	require.NoError(t, svc.AddCredits(context.Background(), user.ID, 25, "charge-1"))

	stored, err := svc.Get(context.Background(), user.ID)
	require.NoError(t, err)
	require.Equal(t, int64(35), stored.Credits)
}

func TestAdminAdjustCreditsForbiddenForUser(t *testing.T) {
	svc := newTestService(t)

	actor, err := svc.Create(context.Background(), "actor@example.com")
	require.NoError(t, err)
	target, err := svc.Create(context.Background(), "target@example.com")
	require.NoError(t, err)

	err = svc.AdminAdjustCredits(context.Background(), actor.ID, target.ID, 5)
	require.Error(t, err)
	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusForbidden, be.Status())
}

func TestAdminAdjustCreditsNegativeGuard(t *testing.T) {
	svc := newTestService(t)

	admin, err := svc.Create(context.Background(), "admin@example.com")
	require.NoError(t, err)
	require.NoError(t, svc.db.Model(&User{}).Where("id = ?", admin.ID).Update("is_admin", true).Error)

	target, err := svc.Create(context.Background(), "target@example.com")
	require.NoError(t, err)

	err = svc.AdminAdjustCredits(context.Background(), admin.ID, target.ID, -11)
	require.Error(t, err)
	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusUnprocessableEntity, be.Status())

	stored, err := svc.Get(context.Background(), target.ID)
	require.NoError(t, err)
	require.Equal(t, int64(10), stored.Credits)
}

func TestAdminAdjustCreditsApplied(t *testing.T) {
	svc := newTestService(t)

	admin, err := svc.Create(context.Background(), "admin@example.com")
	require.NoError(t, err)
	require.NoError(t, svc.db.Model(&User{}).Where("id = ?", admin.ID).Update("is_admin", true).Error)

	target, err := svc.Create(context.Background(), "target@example.com")
	require.NoError(t, err)

	require.NoError(t, svc.AdminAdjustCredits(context.Background(), admin.ID, target.ID, -4))

	stored, err := svc.Get(context.Background(), target.ID)
	require.NoError(t, err)
	require.Equal(t, int64(6), stored.Credits)
}

func TestAdminCannotTouchOwner(t *testing.T) {
	svc := newTestService(t)

	admin, err := svc.Create(context.Background(), "admin@example.com")
	require.NoError(t, err)
	require.NoError(t, svc.db.Model(&User{}).Where("id = ?", admin.ID).Update("is_admin", true).Error)

	owner, err := svc.Create(context.Background(), "owner@example.com")
	require.NoError(t, err)
	require.NoError(t, svc.db.Model(&User{}).Where("id = ?", owner.ID).Update("is_owner", true).Error)

	err = svc.AdminBan(context.Background(), admin.ID, owner.ID, nil, "nope")
	require.Error(t, err)
	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusForbidden, be.Status())
}

func TestAdminBanAndLift(t *testing.T) {
	svc := newTestService(t)

	admin, err := svc.Create(context.Background(), "admin@example.com")
	require.NoError(t, err)
	require.NoError(t, svc.db.Model(&User{}).Where("id = ?", admin.ID).Update("is_admin", true).Error)

	target, err := svc.Create(context.Background(), "target@example.com")
	require.NoError(t, err)

	until := time.Now().Add(24 * time.Hour)
	require.NoError(t, svc.AdminBan(context.Background(), admin.ID, target.ID, &until, "abuse"))

	stored, err := svc.Get(context.Background(), target.ID)
	require.NoError(t, err)
	require.True(t, stored.SuspensionActive(time.Now()))
	require.False(t, stored.PermanentBan)

	require.NoError(t, svc.AdminLiftBan(context.Background(), admin.ID, target.ID))

	stored, err = svc.Get(context.Background(), target.ID)
	require.NoError(t, err)
	require.False(t, stored.SuspensionActive(time.Now()))
}
