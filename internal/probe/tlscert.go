package probe

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/longbark/sitewatch/internal/domain"
)

// TLSProber opens a TLS connection to the site's host on 443 and reads the
// leaf certificate's validity window. Chain verification is disabled on
// purpose: an expired certificate should still yield its dates, not a bare
// handshake failure.
type TLSProber struct {
	Timeout time.Duration
	Port    string
}

func NewTLSProber(timeout time.Duration) *TLSProber {
	return &TLSProber{Timeout: timeout, Port: "443"}
}

func (p *TLSProber) Kind() domain.CheckKind { return domain.KindTLS }

func (p *TLSProber) Check(ctx context.Context, t Target) *domain.CheckResult {
	host := extractHost(t.URL)
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: p.Timeout},
		Config: &tls.Config{
			ServerName:         host,
			InsecureSkipVerify: true,
		},
	}

	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, p.Port))
	if err != nil {
		return result(t, domain.KindTLS, dialErrorMessage(err), &domain.TLSResult{IsValid: false})
	}
	defer conn.Close()

	state := conn.(*tls.Conn).ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return result(t, domain.KindTLS, "no peer certificate presented", &domain.TLSResult{IsValid: false})
	}

	leaf := state.PeerCertificates[0]
	now := time.Now().UTC()
	validFrom := leaf.NotBefore
	validUntil := leaf.NotAfter
	days := int(validUntil.Sub(now).Hours() / 24)
	valid := !now.Before(validFrom) && !now.After(validUntil)

	errMsg := ""
	switch {
	case !valid && now.Before(validFrom):
		errMsg = "certificate not yet valid"
	case !valid:
		errMsg = "certificate expired"
	case t.SSLWarningDays > 0 && days <= t.SSLWarningDays:
		errMsg = fmt.Sprintf("certificate expires in %d days", days)
	}

	return result(t, domain.KindTLS, errMsg, &domain.TLSResult{
		IsValid:         valid,
		Subject:         leaf.Subject.CommonName,
		Issuer:          leaf.Issuer.CommonName,
		ValidFrom:       &validFrom,
		ValidUntil:      &validUntil,
		DaysUntilExpiry: days,
	})
}

// dialErrorMessage keeps the failure variants apart: DNS, refused, timeout
// and handshake problems each read differently in an alert.
func dialErrorMessage(err error) string {
	var de *net.DNSError
	if errors.As(err, &de) {
		return fmt.Sprintf("DNS resolution failed: %v", de)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return "connection timeout"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "connection timeout"
	}
	var oe *net.OpError
	if errors.As(err, &oe) && oe.Op == "dial" {
		return fmt.Sprintf("connection failed: %v", oe.Err)
	}
	return fmt.Sprintf("TLS handshake error: %v", err)
}
