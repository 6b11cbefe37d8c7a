package probe

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/longbark/sitewatch/internal/domain"
)

// tlsTarget points the prober at an httptest TLS server, overriding the port.
func tlsProberFor(t *testing.T, s *httptest.Server) (*TLSProber, Target) {
	t.Helper()
	u, err := url.Parse(s.URL)
	if err != nil {
		t.Fatalf("parse server URL: %v", err)
	}
	p := NewTLSProber(2 * time.Second)
	p.Port = u.Port()
	return p, target("https://" + u.Hostname())
}

func TestTLS_SelfSignedStillYieldsWindow(t *testing.T) {
	s := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))
	defer s.Close()

	p, tgt := tlsProberFor(t, s)
	out := p.Check(context.Background(), tgt)
	if out.Kind != domain.KindTLS || out.TLS == nil {
		t.Fatalf("bad result shape: %+v", out)
	}
	// httptest's certificate is currently valid and far from expiry, but it
	// is self-signed; skipping chain verification means we still read it.
	if out.TLS.ValidFrom == nil || out.TLS.ValidUntil == nil {
		t.Fatalf("validity window missing: %+v", out.TLS)
	}
	if !out.TLS.IsValid {
		t.Fatalf("window-valid cert should be valid: %+v, err=%q", out.TLS, out.ErrorMessage)
	}
}

func TestTLS_WarningWindow(t *testing.T) {
	s := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer s.Close()

	p, tgt := tlsProberFor(t, s)
	// Force the warning path regardless of the test cert's actual lifetime.
	tgt.SSLWarningDays = 100000
	out := p.Check(context.Background(), tgt)
	if !strings.Contains(out.ErrorMessage, "certificate expires in") {
		t.Fatalf("want expiry warning, got %q", out.ErrorMessage)
	}
	if !out.TLS.IsValid {
		t.Fatal("warning does not make the certificate invalid")
	}
}

func TestTLS_ConnectionRefused(t *testing.T) {
	// Grab a port nothing listens on.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	p := NewTLSProber(1 * time.Second)
	p.Port = strconv.Itoa(port)
	tgt := target("https://127.0.0.1")

	out := p.Check(context.Background(), tgt)
	if out.TLS.IsValid {
		t.Fatalf("unreachable host cannot have a valid cert: %+v", out.TLS)
	}
	if out.ErrorMessage == "" {
		t.Fatal("want an error message")
	}
}
