package probe

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// DNS classification values appended to uptime failure reasons.
const (
	dnsResolves  = "RESOLVES"
	dnsNXDomain  = "NXDOMAIN"
	dnsNoARecord = "NO_A_RECORD"
	dnsServfail  = "SERVFAIL_or_TIMEOUT"
	dnsInvalid   = "INVALID_NAME"
)

var dnsTimeout = 3 * time.Second

// classifyDNS resolves a bare hostname and names the failure mode. A site
// that is "down" because its domain no longer resolves is a very different
// incident from a 503, so the uptime probe folds this into its reason.
func classifyDNS(domain string) string {
	domain = strings.TrimSpace(domain)
	if domain == "" || strings.Contains(domain, "://") {
		return dnsInvalid
	}

	ctx, cancel := context.WithTimeout(context.Background(), dnsTimeout)
	defer cancel()
	r := &net.Resolver{} // OS resolver

	ips, err := r.LookupIP(ctx, "ip", domain)
	if err == nil && len(ips) > 0 {
		return dnsResolves
	}

	class := ""
	if err != nil {
		var de *net.DNSError
		if errors.As(err, &de) {
			if de.IsNotFound {
				class = dnsNXDomain
			} else if de.IsTemporary || de.Timeout() {
				class = dnsServfail
			}
		}
	}

	// A delegated zone without address records is a config problem, not a
	// missing domain.
	if ns, nsErr := r.LookupNS(ctx, domain); nsErr == nil && len(ns) > 0 {
		if class == dnsNXDomain || class == "" {
			return dnsNoARecord
		}
	}

	if class == "" {
		class = dnsServfail
	}
	return class
}
