package settlement

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// ClickLog is the append-only settlement audit row. Its id is the
// deterministic (publisher, visitor, day) composite, so the row doubles as
// the rate-limit lock: a second insert for the same triple collides on the
// primary key inside the settlement transaction.
type ClickLog struct {
	ID        string    `gorm:"column:id;primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at"`

	PublisherSiteID  string `gorm:"column:publisher_site_id;index"`
	AdvertiserSiteID string `gorm:"column:advertiser_site_id;index"`
	VisitorHash      string `gorm:"column:visitor_hash"`
	Day              string `gorm:"column:day"`

	Device   string         `gorm:"column:device"`
	Metadata datatypes.JSON `gorm:"column:metadata"`
}

func (ClickLog) TableName() string { return "click_logs" }

// LockID builds the composite click-lock key.
func LockID(publisherSiteID, visitorHash, day string) string {
	return fmt.Sprintf("%s:%s:%s", publisherSiteID, visitorHash, day)
}

// VisitorIdentity reduces the client network address to the low-cardinality
// rate-limit key. A missing address maps to one shared "unknown" identity,
// so all unknown visitors rate-limit together.
func VisitorIdentity(ip string) string {
	if ip == "" {
		return "unknown"
	}
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:])[:16]
}

type Visitor struct {
	Identity  string
	Device    string
	UserAgent string
}

type SkipReason string

const (
	SkipNone              SkipReason = ""
	SkipPromotion         SkipReason = "promotion"
	SkipSelfClick         SkipReason = "self_click"
	SkipRateLimited       SkipReason = "rate_limited"
	SkipInsufficientFunds SkipReason = "insufficient_funds"
	SkipSettleError       SkipReason = "settlement_error"
)

// Outcome reports what a click attempt did to the ledger. The redirect to
// the advertiser happens regardless.
type Outcome struct {
	Settled bool
	Reason  SkipReason
}
