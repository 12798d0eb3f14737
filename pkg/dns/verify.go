package dns

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/zap"
)

var publicResolvers = []string{"1.1.1.1:53", "8.8.8.8:53"}

// VerifyTXT proves domain ownership: it succeeds when one of the domain's
// TXT records equals the given verification code. Public resolvers are
// asked first so a stale local cache cannot block a fresh record; the
// system resolver is the fallback.
func VerifyTXT(domain, code string) error {
	if strings.TrimSpace(domain) == "" {
		return fmt.Errorf("domain cannot be empty")
	}
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("verification code cannot be empty")
	}

	host := dns.Fqdn(domain)
	zap.L().Debug("verifying ownership TXT record", zap.String("host", host))

	for _, resolver := range publicResolvers {
		if err := lookupWith(host, code, resolver); err == nil {
			zap.L().Info("ownership TXT record verified",
				zap.String("domain", domain),
				zap.String("resolver", resolver),
			)
			return nil
		}
	}

	zap.L().Warn("public resolvers missed, trying system resolver", zap.String("domain", domain))
	if err := lookupSystem(host, code); err == nil {
		zap.L().Info("ownership TXT record verified via system resolver", zap.String("domain", domain))
		return nil
	}

	return fmt.Errorf("no matching TXT record found for %s", domain)
}

func lookupWith(host, code, resolver string) error {
	client := &dns.Client{Timeout: 3 * time.Second}

	msg := dns.Msg{}
	msg.SetQuestion(host, dns.TypeTXT)

	resp, _, err := client.Exchange(&msg, resolver)
	if err != nil {
		zap.L().Debug("TXT query failed", zap.String("resolver", resolver), zap.Error(err))
		return err
	}

	for _, ans := range resp.Answer {
		txt, ok := ans.(*dns.TXT)
		if !ok {
			continue
		}
		for _, record := range txt.Txt {
			if strings.TrimSpace(record) == code {
				return nil
			}
		}
	}

	return fmt.Errorf("no matching TXT record at %s", resolver)
}

func lookupSystem(host, code string) error {
	records, err := net.LookupTXT(host)
	if err != nil {
		return fmt.Errorf("system resolver TXT lookup: %w", err)
	}

	for _, r := range records {
		if strings.TrimSpace(r) == code {
			return nil
		}
	}

	return fmt.Errorf("no matching TXT record via system resolver")
}
