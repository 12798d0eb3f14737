package rediskey

import "fmt"

// Key conventions shared across services.
const (
	WebsiteDomainPrefix = "website:domain"
	ClickLockPrefix     = "clicklock"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildWebsiteDomainKey returns "website:domain:{domain}"
func BuildWebsiteDomainKey(domain string) string {
	return NamespaceKey(WebsiteDomainPrefix, domain)
}

// BuildClickLockKey returns "clicklock:{publisherSiteID}:{visitor}:{day}".
// Mirrors the deterministic click-lock row id so the cache check and the
// authoritative row share one identity.
func BuildClickLockKey(publisherSiteID, visitor, day string) string {
	return fmt.Sprintf("%s:%s:%s:%s", ClickLockPrefix, publisherSiteID, visitor, day)
}
