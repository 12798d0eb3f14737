package website

import (
	"time"

	"gorm.io/gorm"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusDenied    Status = "denied"
	StatusSuspended Status = "suspended"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusDenied, StatusSuspended:
		return true
	default:
		return false
	}
}

// Website is a registered member site. The same record is both a publisher
// (shows the widget, earns) and an advertiser (gets shown, spends).
type Website struct {
	ID        string         `gorm:"column:id;primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`

	UserID   string `gorm:"column:user_id;index" json:"userId"`
	Domain   string `gorm:"column:domain;index" json:"domain"`
	Category string `gorm:"column:category;index" json:"category"`

	// Active marks the site eligible to be selected as an ad. HasCredits is
	// a denormalized cache of "owner balance > 0"; the settlement engine
	// re-validates the real balance and the worker reconciles this flag.
	Active     bool   `gorm:"column:active" json:"active"`
	HasCredits bool   `gorm:"column:has_credits;index" json:"hasCredits"`
	Status     Status `gorm:"column:status" json:"status"`
	ShowAds    bool   `gorm:"column:show_ads" json:"showAds"`

	AdTitle        string `gorm:"column:ad_title" json:"adTitle"`
	AdDescription  string `gorm:"column:ad_description" json:"adDescription"`
	WidgetColor    string `gorm:"column:widget_color" json:"widgetColor"`
	WidgetBgColor  string `gorm:"column:widget_bg_color" json:"widgetBgColor"`
	RefreshSeconds int    `gorm:"column:refresh_seconds" json:"refreshSeconds"`

	Views    int64 `gorm:"column:views" json:"views"`
	Clicks   int64 `gorm:"column:clicks" json:"clicks"`
	Visitors int64 `gorm:"column:visitors" json:"visitors"`

	VerificationCode string     `gorm:"column:verification_code" json:"verificationCode"`
	Verified         bool       `gorm:"column:verified" json:"verified"`
	VerifiedAt       *time.Time `gorm:"column:verified_at" json:"verifiedAt,omitempty"`
}

func (Website) TableName() string { return "websites" }

// RegisterInput carries the owner-supplied creative and serving fields.
type RegisterInput struct {
	Domain         string `json:"domain"`
	Category       string `json:"category"`
	RefreshSeconds int    `json:"refreshSeconds"`
	AdTitle        string `json:"adTitle"`
	AdDescription  string `json:"adDescription"`
	WidgetColor    string `json:"widgetColor"`
	WidgetBgColor  string `json:"widgetBgColor"`
}
