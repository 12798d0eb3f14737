package account

import (
	"time"

	"adbarter/pkg/authz"
)

// User is a single member identity. The same account both earns credits as
// a publisher and spends them as an advertiser.
type User struct {
	ID        string    `gorm:"column:id;primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`

	Email   string `gorm:"column:email"`
	Credits int64  `gorm:"column:credits"`

	IsAdmin bool `gorm:"column:is_admin"`
	IsOwner bool `gorm:"column:is_owner"`

	BannedUntil  *time.Time `gorm:"column:banned_until"`
	PermanentBan bool       `gorm:"column:permanent_ban"`
	BanReason    string     `gorm:"column:ban_reason"`

	DuplicateDomainOffenses int `gorm:"column:duplicate_domain_offenses"`
}

func (User) TableName() string { return "users" }

func (u *User) Role() authz.Role {
	switch {
	case u.IsOwner:
		return authz.RoleOwner
	case u.IsAdmin:
		return authz.RoleAdmin
	default:
		return authz.RoleUser
	}
}

// SuspensionActive reports whether the account is currently barred from
// guarded actions.
func (u *User) SuspensionActive(now time.Time) bool {
	if u.PermanentBan {
		return true
	}
	return u.BannedUntil != nil && u.BannedUntil.After(now)
}
