package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"adbarter/pkg/config"
	"adbarter/pkg/db/option"
	"adbarter/pkg/errutil"
	"adbarter/pkg/rediskey"
	"adbarter/pkg/repository"
	"adbarter/pkg/taskname"
	"adbarter/services/account"
	"adbarter/services/adserve"
	"adbarter/services/analytics"
	"adbarter/services/website"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var errDuplicateLock = errors.New("click lock already held")

type Service struct {
	db    *gorm.DB
	cfg   *config.Config
	redis *redis.Client
	asynq *asynq.Client

	users repository.Repository[account.User]
	sites repository.Repository[website.Website]
	locks repository.Repository[ClickLog]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Config *config.Config
	Redis  *redis.Client `optional:"true"`
	Asynq  *asynq.Client `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:    p.DB,
		cfg:   p.Config,
		redis: p.Redis,
		asynq: p.Asynq,

		users: repository.ProvideStore[account.User](p.DB),
		sites: repository.ProvideStore[website.Website](p.DB),
		locks: repository.ProvideStore[ClickLog](p.DB),
	}
}

// Result is what a click produced: where to send the visitor, and whether
// a credit moved. The redirect happens no matter what the ledger did.
type Result struct {
	Outcome
	Destination string
}

// Process runs the full click pipeline: guard checks, then the atomic
// transfer of one credit from the advertiser's owner to the publisher's
// owner. Guard skips are normal outcomes, not errors.
func (s *Service) Process(ctx context.Context, publisherSiteID, adSiteID string, v Visitor) (*Result, error) {
	if adSiteID == adserve.PromotionSiteID {
		return &Result{
			Outcome:     Outcome{Reason: SkipPromotion},
			Destination: adserve.PromotionURL,
		}, nil
	}

	adv, err := s.sites.FindOne(ctx, &website.Website{ID: adSiteID})
	if err != nil {
		return nil, err
	}
	if adv == nil {
		return nil, errutil.NotFound("ad not found", nil)
	}

	res := &Result{Destination: "https://" + adv.Domain}

	pub, err := s.sites.FindOne(ctx, &website.Website{ID: publisherSiteID})
	if err != nil {
		return nil, err
	}
	if pub == nil {
		return nil, errutil.NotFound("website not found", nil)
	}

	if pub.UserID == adv.UserID && !s.cfg.Exchange.AllowSelfClicks {
		res.Reason = SkipSelfClick
		return res, nil
	}

	day := analytics.Day(time.Now())
	lockID := LockID(pub.ID, v.Identity, day)

	// Cheap cache check before touching the ledger. The authoritative lock
	// is the click_logs primary key inside the transaction.
	if s.lockCached(ctx, pub.ID, v.Identity, day) {
		res.Reason = SkipRateLimited
		return res, nil
	}

	out, fundedPublisher, err := s.settle(ctx, pub, adv, v, day, lockID)
	if err != nil {
		// A ledger failure never blocks the redirect.
		zap.L().Error("settlement failed",
			zap.String("publisher_site_id", pub.ID),
			zap.String("ad_site_id", adv.ID),
			zap.Error(err),
		)
		res.Reason = SkipSettleError
		return res, nil
	}
	res.Outcome = out

	if out.Settled {
		s.cacheLock(ctx, pub.ID, v.Identity, day)
		if fundedPublisher {
			s.enqueueReconcile(ctx, pub.UserID)
		}
	}
	if out.Settled || out.Reason == SkipInsufficientFunds {
		s.enqueueReconcile(ctx, adv.UserID)
	}

	return res, nil
}

// settle moves one credit inside a single transaction. Both owner rows are
// locked in id order, the balance is re-read under the lock, and the click
// lock row is inserted before commit. A duplicate lock id rolls the whole
// transfer back, so concurrent clicks that both pass the cache check still
// settle at most once. An insufficient balance commits nothing, including
// the lock row, so the visitor's next click can settle once the advertiser
// is funded again. The returned bool reports whether the credit lifted the
// publisher's owner out of a zero balance.
func (s *Service) settle(ctx context.Context, pub, adv *website.Website, v Visitor, day, lockID string) (Outcome, bool, error) {
	var (
		out    Outcome
		funded bool
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locks := s.locks.WithTrx(tx)

		advUser, pubUser, err := s.lockOwners(ctx, tx, adv.UserID, pub.UserID)
		if err != nil {
			return err
		}
		funded = pubUser.Credits <= 0

		if advUser.Credits < 1 {
			out = Outcome{Reason: SkipInsufficientFunds}
			return nil
		}

		if err := tx.Model(&account.User{}).Where("id = ?", adv.UserID).
			UpdateColumn("credits", gorm.Expr("credits - ?", 1)).Error; err != nil {
			return err
		}
		if err := tx.Model(&account.User{}).Where("id = ?", pub.UserID).
			UpdateColumn("credits", gorm.Expr("credits + ?", 1)).Error; err != nil {
			return err
		}

		if err := tx.Model(&website.Website{}).Where("id = ?", pub.ID).
			UpdateColumn("clicks", gorm.Expr("clicks + ?", 1)).Error; err != nil {
			return err
		}
		if err := tx.Model(&website.Website{}).Where("id = ?", adv.ID).
			UpdateColumn("visitors", gorm.Expr("visitors + ?", 1)).Error; err != nil {
			return err
		}

		meta, _ := json.Marshal(map[string]string{"user_agent": v.UserAgent})
		log := &ClickLog{
			ID:               lockID,
			CreatedAt:        time.Now(),
			PublisherSiteID:  pub.ID,
			AdvertiserSiteID: adv.ID,
			VisitorHash:      v.Identity,
			Day:              day,
			Device:           v.Device,
			Metadata:         datatypes.JSON(meta),
		}
		if err := locks.Create(ctx, log); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errDuplicateLock
			}
			return err
		}

		if err := analytics.Increment(tx, pub.ID, day, analytics.Delta{Clicks: 1}); err != nil {
			return err
		}

		out = Outcome{Settled: true}
		return nil
	})
	if errors.Is(err, errDuplicateLock) {
		return Outcome{Reason: SkipRateLimited}, false, nil
	}
	if err != nil {
		return Outcome{}, false, err
	}
	return out, funded, nil
}

// lockOwners takes FOR UPDATE locks on both owner rows in id order so two
// concurrent settlements touching the same pair cannot deadlock. When the
// click is a permitted self-click both ids name one row.
func (s *Service) lockOwners(ctx context.Context, tx *gorm.DB, advUserID, pubUserID string) (advUser, pubUser *account.User, err error) {
	ids := []string{advUserID}
	if pubUserID != advUserID {
		ids = append(ids, pubUserID)
	}
	sort.Strings(ids)

	users := s.users.WithTrx(tx)
	byID := make(map[string]*account.User, len(ids))
	for _, id := range ids {
		u, err := users.FindOne(ctx, &account.User{ID: id}, option.WithLockingUpdate())
		if err != nil {
			return nil, nil, err
		}
		if u == nil {
			return nil, nil, errutil.NotFound("account not found", nil)
		}
		byID[id] = u
	}

	return byID[advUserID], byID[pubUserID], nil
}

func (s *Service) lockCached(ctx context.Context, publisherSiteID, visitor, day string) bool {
	if s.redis == nil {
		return false
	}
	n, err := s.redis.Exists(ctx, rediskey.BuildClickLockKey(publisherSiteID, visitor, day)).Result()
	if err != nil {
		return false
	}
	return n > 0
}

func (s *Service) cacheLock(ctx context.Context, publisherSiteID, visitor, day string) {
	if s.redis == nil {
		return
	}
	key := rediskey.BuildClickLockKey(publisherSiteID, visitor, day)
	if err := s.redis.Set(ctx, key, "1", untilEndOfDay(time.Now())).Err(); err != nil {
		zap.L().Warn("failed to cache click lock", zap.String("key", key), zap.Error(err))
	}
}

// untilEndOfDay returns a TTL that outlives the UTC day the lock covers.
func untilEndOfDay(now time.Time) time.Duration {
	utc := now.UTC()
	next := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
	return next.Sub(utc) + time.Minute
}

func (s *Service) enqueueReconcile(ctx context.Context, userID string) {
	if s.asynq == nil {
		return
	}

	payload := taskname.ReconcilePayload{UserID: userID}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.HasTraceID() {
		payload.TraceID = sc.TraceID().String()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		zap.L().Error("failed to marshal reconcile payload", zap.Error(err))
		return
	}

	task := asynq.NewTask(taskname.EligibilityReconcile, body)
	if _, err := s.asynq.EnqueueContext(ctx, task, asynq.Queue("default")); err != nil {
		zap.L().Warn("failed to enqueue eligibility reconcile",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}
