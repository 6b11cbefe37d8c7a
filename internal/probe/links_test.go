package probe

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func newLinksTestProber() *LinksProber {
	return NewLinksProber(5*time.Second, 4, 100)
}

func TestLinks_DeduplicatesAndCategorizes(t *testing.T) {
	var external *httptest.Server
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			w.WriteHeader(200)
			return
		}
		fmt.Fprintf(w, `<html><body>
			<a href="/about">About</a>
			<a href="/about/">About again</a>
			<a href="/contact#form">Contact</a>
			<a href="/pricing">Pricing</a>
			<a href="%[1]s/one">Ext</a>
			<a href="%[1]s/two">Ext2</a>
			<a href="/about">Third copy</a>
			<a href="#top">Anchor</a>
			<a href="javascript:void(0)">JS</a>
			<a href="mailto:x@y.z">Mail</a>
			<a href="tel:+123">Tel</a>
		</body></html>`, external.URL)
	}))
	defer s.Close()

	external = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))
	defer external.Close()

	out := newLinksTestProber().Check(context.Background(), target(s.URL))
	if out.ErrorMessage != "" {
		t.Fatalf("unexpected error: %s", out.ErrorMessage)
	}
	lr := out.Links
	if lr.TotalLinks != 5 {
		t.Fatalf("total = %d, want 5 (/about three ways, /contact, /pricing, two external)", lr.TotalLinks)
	}
	if lr.InternalLinks != 3 {
		t.Fatalf("internal = %d, want 3", lr.InternalLinks)
	}
	if lr.ExternalLinks != 2 {
		t.Fatalf("external = %d, want 2", lr.ExternalLinks)
	}
	if lr.BrokenLinks != 0 {
		t.Fatalf("broken = %d, want 0: %+v", lr.BrokenLinks, lr.Broken)
	}
}

func TestLinks_BrokenDetection(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, `<html><body>
				<a href="/good">ok</a>
				<a href="/gone">missing</a>
				<a href="http://127.0.0.1:1/nowhere">dead</a>
			</body></html>`)
		case "/good":
			w.WriteHeader(200)
		default:
			w.WriteHeader(404)
		}
	}))
	defer s.Close()

	out := newLinksTestProber().Check(context.Background(), target(s.URL))
	lr := out.Links
	if lr.BrokenLinks != 2 {
		t.Fatalf("broken = %d, want 2: %+v", lr.BrokenLinks, lr.Broken)
	}
	for _, b := range lr.Broken {
		switch b.URL {
		case s.URL + "/gone":
			if b.StatusCode != 404 {
				t.Fatalf("status for /gone = %d, want 404", b.StatusCode)
			}
			if !b.Internal {
				t.Fatal("/gone is on the page host")
			}
		case "http://127.0.0.1:1/nowhere":
			if b.Error == "" {
				t.Fatal("unreachable link should carry an error")
			}
			if b.Internal {
				t.Fatal("other-port link is external")
			}
		default:
			t.Fatalf("unexpected broken link %q", b.URL)
		}
	}
}

func TestLinks_HeadRejectedFallsBackToGet(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, `<a href="/headless">x</a>`)
		case "/headless":
			if r.Method == http.MethodHead {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			w.WriteHeader(200)
		}
	}))
	defer s.Close()

	out := newLinksTestProber().Check(context.Background(), target(s.URL))
	if out.Links.BrokenLinks != 0 {
		t.Fatalf("GET fallback should rescue a HEAD-rejecting link: %+v", out.Links.Broken)
	}
}

func TestLinks_PageFetchFailure(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer s.Close()

	out := newLinksTestProber().Check(context.Background(), target(s.URL))
	if out.ErrorMessage == "" {
		t.Fatal("non-200 page should set an error message")
	}
	if out.Links == nil || out.Links.TotalLinks != 0 {
		t.Fatalf("payload should stay zeroed: %+v", out.Links)
	}
}

func TestNormalizeLink(t *testing.T) {
	base, _ := url.Parse("https://example.com/blog/")
	cases := []struct {
		href string
		want string
		ok   bool
	}{
		{"/about/", "https://example.com/about", true},
		{"post#comments", "https://example.com/blog/post", true},
		{"https://example.com/", "https://example.com/", true},
		{"#top", "", false},
		{"javascript:void(0)", "", false},
		{"mailto:a@b.c", "", false},
		{"ftp://example.com/file", "", false},
	}
	for _, c := range cases {
		got, ok := normalizeLink(c.href, base)
		if ok != c.ok || got != c.want {
			t.Errorf("normalizeLink(%q) = %q, %v; want %q, %v", c.href, got, ok, c.want, c.ok)
		}
	}
}
