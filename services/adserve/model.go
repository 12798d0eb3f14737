package adserve

import "adbarter/services/website"

// The network promotion is the terminal waterfall candidate. It has no
// owner and no balance; clicks on it never settle.
const (
	PromotionSiteID   = "NETWORK"
	PromotionDomain   = "adbarter.network"
	PromotionCategory = "network"
	PromotionURL      = "https://adbarter.network"
)

// Candidate is the selection result: either a real advertiser site or the
// built-in promotion. Modeling this as a closed variant keeps "the widget
// is never empty" a type-level fact instead of a nil check.
type Candidate interface {
	isCandidate()
}

type RealAd struct {
	Site *website.Website
}

type SystemPromotion struct{}

func (RealAd) isCandidate()          {}
func (SystemPromotion) isCandidate() {}

// Ad is the wire shape rendered by the widget.
type Ad struct {
	ID          string `json:"id"`
	Domain      string `json:"domain"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
	Promotion   bool   `json:"promotion,omitempty"`
}

type Decision struct {
	Ad             *Ad  `json:"ad"`
	Disabled       bool `json:"disabled,omitempty"`
	RefreshSeconds int  `json:"refreshSeconds"`
}

func adFromCandidate(c Candidate) *Ad {
	switch v := c.(type) {
	case RealAd:
		return &Ad{
			ID:          v.Site.ID,
			Domain:      v.Site.Domain,
			Category:    v.Site.Category,
			Description: v.Site.AdDescription,
		}
	case SystemPromotion:
		return &Ad{
			ID:        PromotionSiteID,
			Domain:    PromotionDomain,
			Category:  PromotionCategory,
			Promotion: true,
		}
	default:
		return nil
	}
}
