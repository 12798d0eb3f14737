package website

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"adbarter/pkg/authz"
	"adbarter/pkg/db/option"
	"adbarter/pkg/db/pagination"
	"adbarter/pkg/dns"
	"adbarter/pkg/errutil"
	"adbarter/pkg/rediskey"
	"adbarter/pkg/repository"
	"adbarter/pkg/util"
	"adbarter/services/account"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const suspensionWindow = 24 * time.Hour

// AuthDisabler disables the underlying auth identity of a banned account.
// Failure to disable is logged, never blocks the ban.
type AuthDisabler interface {
	Disable(ctx context.Context, userID string) error
}

type Service struct {
	db    *gorm.DB
	node  *snowflake.Node
	authz *authz.Authorizer
	redis *redis.Client
	auth  AuthDisabler

	sites repository.Repository[Website]
	users repository.Repository[account.User]
}

type ServiceParams struct {
	fx.In
	DB    *gorm.DB
	Node  *snowflake.Node
	Authz *authz.Authorizer
	Redis *redis.Client `optional:"true"`
	Auth  AuthDisabler  `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:    p.DB,
		node:  p.Node,
		authz: p.Authz,
		redis: p.Redis,
		auth:  p.Auth,

		sites: repository.ProvideStore[Website](p.DB),
		users: repository.ProvideStore[account.User](p.DB),
	}
}

// NormalizeDomain reduces a raw domain string to a bare lowercase hostname
// with any leading "www." stripped. Registering "HTTP://WWW.Example.com/"
// and "example.com" must collapse to the same value.
func NormalizeDomain(raw string) (string, error) {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	if cleaned == "" {
		return "", errutil.BadRequest("domain is required", nil)
	}

	if !strings.HasPrefix(cleaned, "http://") && !strings.HasPrefix(cleaned, "https://") {
		cleaned = "https://" + cleaned
	}

	u, err := url.Parse(cleaned)
	if err != nil || u.Hostname() == "" {
		return "", errutil.BadRequest("invalid domain format", err)
	}

	return strings.TrimPrefix(u.Hostname(), "www."), nil
}

// Register enforces one-domain-per-owner network-wide and punishes repeat
// attempts to claim another member's domain. The uniqueness lookup and the
// punitive write run in one transaction with the caller's user row locked,
// so two concurrent duplicate submissions from the same account serialize.
func (s *Service) Register(ctx context.Context, userID string, input RegisterInput) (*Website, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("user_id", userID),
	)

	domain, err := NormalizeDomain(input.Domain)
	if err != nil {
		return nil, err
	}

	var (
		created   *Website
		rejection error
		permaBan  bool
	)

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		usersTx := s.users.WithTrx(tx)
		sitesTx := s.sites.WithTrx(tx)

		user, err := usersTx.FindOne(ctx, &account.User{ID: userID}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if user == nil {
			return errutil.NotFound("user not found", nil)
		}

		now := time.Now()
		if user.PermanentBan {
			rejection = errutil.Forbidden("your account is permanently suspended", nil)
			return nil
		}
		if user.BannedUntil != nil && user.BannedUntil.After(now) {
			rejection = errutil.Forbidden(fmt.Sprintf("your account is suspended until %s", user.BannedUntil.Format(time.RFC1123)), nil)
			return nil
		}

		existing, err := sitesTx.FindOne(ctx, &Website{Domain: domain}, option.WithLockingUpdate())
		if err != nil {
			return err
		}

		if existing == nil {
			created = s.newSite(userID, domain, input, now)
			return sitesTx.Create(ctx, created)
		}

		if existing.UserID == userID {
			rejection = errutil.Conflict("you have already registered this domain", nil)
			return nil
		}

		// Another account owns this domain: escalate.
		offenses := user.DuplicateDomainOffenses + 1
		updates := map[string]any{
			"duplicate_domain_offenses": offenses,
			"updated_at":                now,
		}

		if offenses >= 2 {
			permaBan = true
			updates["permanent_ban"] = true
			updates["ban_reason"] = "Duplicate domain submission (Repeat Offense)"
			rejection = errutil.Forbidden("your account has been permanently banned for repeated attempts to register existing domains", nil)
		} else {
			until := now.Add(suspensionWindow)
			updates["banned_until"] = until
			updates["ban_reason"] = "Duplicate domain submission (1st Offense)"
			rejection = errutil.Forbidden("your account has been suspended for 24 hours for attempting to register a domain that belongs to another account", nil)
		}

		return usersTx.Update(ctx, userID, updates)
	}); err != nil {
		zapLog.Error("failed to register website", zap.Error(err))
		return nil, err
	}

	if permaBan && s.auth != nil {
		if err := s.auth.Disable(ctx, userID); err != nil {
			zapLog.Error("failed to disable auth identity for banned user", zap.Error(err))
		}
	}

	if rejection != nil {
		zapLog.Warn("website registration rejected", zap.String("domain", domain), zap.Error(rejection))
		return nil, rejection
	}

	s.cacheDomain(ctx, created)
	zapLog.Info("website registered", zap.String("domain", domain), zap.String("site_id", created.ID))

	return created, nil
}

func (s *Service) newSite(userID, domain string, input RegisterInput, now time.Time) *Website {
	refresh := input.RefreshSeconds
	if refresh <= 0 {
		refresh = 30
	}

	return &Website{
		ID:               s.node.Generate().String(),
		CreatedAt:        now,
		UpdatedAt:        now,
		UserID:           userID,
		Domain:           domain,
		Category:         slug.Make(input.Category),
		Active:           false,
		HasCredits:       true,
		Status:           StatusPending,
		ShowAds:          true,
		AdTitle:          input.AdTitle,
		AdDescription:    input.AdDescription,
		WidgetColor:      input.WidgetColor,
		WidgetBgColor:    input.WidgetBgColor,
		RefreshSeconds:   refresh,
		VerificationCode: util.GenerateVerificationCode(),
	}
}

func (s *Service) Get(ctx context.Context, siteID string) (*Website, error) {
	site, err := s.sites.FindOne(ctx, &Website{ID: siteID})
	if err != nil {
		return nil, err
	}
	if site == nil {
		return nil, errutil.NotFound("website not found", nil)
	}
	return site, nil
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]*Website, error) {
	return s.sites.Find(ctx, &Website{UserID: userID})
}

// ModerationPage is one cursor page of the moderation queue.
type ModerationPage struct {
	Websites []*Website           `json:"websites"`
	PageInfo *pagination.PageInfo `json:"pageInfo"`
}

// ListModeration pages through sites for review, optionally filtered by
// status. Snowflake ids are time-ordered, so the id cursor walks the queue
// oldest first.
func (s *Service) ListModeration(ctx context.Context, actorID string, status Status, page pagination.Pagination) (*ModerationPage, error) {
	actor, err := s.users.FindOne(ctx, &account.User{ID: actorID})
	if err != nil {
		return nil, err
	}
	if actor == nil {
		return nil, errutil.NotFound("user not found", nil)
	}
	if !s.authz.Can(actor.Role(), authz.ObjectWebsite, authz.ActionModerate) {
		return nil, errutil.Forbidden("not allowed to moderate websites", nil)
	}

	if status != "" && !status.Valid() {
		return nil, errutil.BadRequest("invalid status filter", nil)
	}

	limit := page.Limit
	if limit <= 0 {
		limit = 10
	}

	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{SortBy: "id", OrderBy: "ASC", Allow: map[string]bool{"id": true}}),
		option.WithLimit(limit + 1),
	}
	if page.Cursor != "" {
		cursor, err := pagination.DecodeCursor(page.Cursor)
		if err != nil {
			return nil, errutil.BadRequest("invalid cursor", err)
		}
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "id", Operator: option.GT, Value: cursor.ID}))
	}

	rows, err := s.sites.Find(ctx, &Website{Status: status}, opts...)
	if err != nil {
		return nil, err
	}

	info := pagination.BuildCursorPageInfo(rows, int32(limit), func(w *Website) string {
		cursor, _ := pagination.EncodeCursor(pagination.Cursor{ID: w.ID})
		return cursor
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}

	return &ModerationPage{Websites: rows, PageInfo: info}, nil
}

// SetStatus is the moderation action. Approval flips the advertised-state
// on; denial or suspension flips it off.
func (s *Service) SetStatus(ctx context.Context, actorID, siteID string, status Status) error {
	if !status.Valid() || status == StatusPending {
		return errutil.BadRequest("invalid status", nil)
	}

	actor, err := s.users.FindOne(ctx, &account.User{ID: actorID})
	if err != nil {
		return err
	}
	if actor == nil {
		return errutil.NotFound("user not found", nil)
	}

	if !s.authz.Can(actor.Role(), authz.ObjectWebsite, authz.ActionModerate) {
		return errutil.Forbidden("not allowed to moderate websites", nil)
	}

	site, err := s.Get(ctx, siteID)
	if err != nil {
		return err
	}

	if err := s.sites.Update(ctx, site.ID, map[string]any{
		"status":     status,
		"active":     status == StatusApproved,
		"updated_at": time.Now(),
	}); err != nil {
		return err
	}

	zap.L().Info("website status updated",
		zap.String("site_id", site.ID),
		zap.String("status", string(status)),
		zap.String("actor_id", actorID),
	)
	return nil
}

// ToggleCampaign flips whether the owner's site is advertised. Only
// approved sites may run a campaign.
func (s *Service) ToggleCampaign(ctx context.Context, userID, siteID string) (bool, error) {
	site, err := s.owned(ctx, userID, siteID)
	if err != nil {
		return false, err
	}

	if site.Status != StatusApproved {
		return false, errutil.UnprocessableEntity("website is not approved", nil)
	}

	next := !site.Active
	if err := s.sites.Update(ctx, site.ID, map[string]any{
		"active":     next,
		"updated_at": time.Now(),
	}); err != nil {
		return false, err
	}
	return next, nil
}

// ToggleShowAds flips the publisher opt-out of displaying the widget.
func (s *Service) ToggleShowAds(ctx context.Context, userID, siteID string) (bool, error) {
	site, err := s.owned(ctx, userID, siteID)
	if err != nil {
		return false, err
	}

	next := !site.ShowAds
	if err := s.sites.Update(ctx, site.ID, map[string]any{
		"show_ads":   next,
		"updated_at": time.Now(),
	}); err != nil {
		return false, err
	}
	return next, nil
}

// VerifyOwnership checks the domain's TXT records for the site's
// verification code.
func (s *Service) VerifyOwnership(ctx context.Context, userID, siteID string) error {
	site, err := s.owned(ctx, userID, siteID)
	if err != nil {
		return err
	}

	if site.Verified {
		return nil
	}

	if err := dns.VerifyTXT(site.Domain, site.VerificationCode); err != nil {
		zap.L().Warn("DNS verification failed", zap.String("domain", site.Domain), zap.Error(err))
		return errutil.UnprocessableEntity("dns verification failed", err)
	}

	now := time.Now()
	return s.sites.Update(ctx, site.ID, map[string]any{
		"verified":    true,
		"verified_at": now,
		"updated_at":  now,
	})
}

// Delete is a moderation soft delete, freeing the domain for
// re-registration.
func (s *Service) Delete(ctx context.Context, actorID, siteID string) error {
	actor, err := s.users.FindOne(ctx, &account.User{ID: actorID})
	if err != nil {
		return err
	}
	if actor == nil {
		return errutil.NotFound("user not found", nil)
	}

	if !s.authz.Can(actor.Role(), authz.ObjectWebsite, authz.ActionDelete) {
		return errutil.Forbidden("not allowed to delete websites", nil)
	}

	site, err := s.Get(ctx, siteID)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(&Website{}, "id = ?", site.ID).Error; err != nil {
		return err
	}

	if s.redis != nil {
		if err := s.redis.Del(ctx, rediskey.BuildWebsiteDomainKey(site.Domain)).Err(); err != nil {
			zap.L().Warn("failed to drop domain cache", zap.String("domain", site.Domain), zap.Error(err))
		}
	}

	return nil
}

func (s *Service) owned(ctx context.Context, userID, siteID string) (*Website, error) {
	site, err := s.Get(ctx, siteID)
	if err != nil {
		return nil, err
	}
	if site.UserID != userID {
		return nil, errutil.Forbidden("not your website", nil)
	}
	return site, nil
}

func (s *Service) cacheDomain(ctx context.Context, site *Website) {
	if s.redis == nil || site == nil {
		return
	}
	if err := s.redis.Set(ctx, rediskey.BuildWebsiteDomainKey(site.Domain), site.ID, 0).Err(); err != nil {
		zap.L().Warn("failed to cache domain", zap.String("domain", site.Domain), zap.Error(err))
	}
}
