// Package platform knows the shape of the target site: which URLs are
// authenticated-only, which surfaces mean "logged out", and how UI affordances
// are located. Everything here is data driven so a UI change on the platform
// needs a configuration update rather than a code change.
package platform

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/xkilldash9x/sociallink/internal/config"
)

// Surface classifies a page URL.
type Surface int

const (
	SurfaceAuthenticated Surface = iota
	SurfaceLogin
	SurfaceNotFound
)

func (s Surface) String() string {
	switch s {
	case SurfaceLogin:
		return "login"
	case SurfaceNotFound:
		return "not_found"
	default:
		return "authenticated"
	}
}

var (
	loginPrefixes    = []string{"/login", "/signup", "/passport", "/auth"}
	notFoundPatterns = []string{"/404", "/not-found", "/notfound"}
	handlePattern    = regexp.MustCompile(`^/@([A-Za-z0-9._-]+)`)
	contentPattern   = regexp.MustCompile(`/(?:video|photo)/(\d+)`)
)

// Platform builds and classifies URLs for one site.
type Platform struct {
	base         *url.URL
	cookieDomain string
	probePath    string
	activityPath string
	loginPath    string
	qrLoginPath  string
}

// New validates cfg and returns a Platform.
func New(cfg config.PlatformConfig) (*Platform, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("platform: invalid base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("platform: base url %q must be absolute", cfg.BaseURL)
	}
	domain := cfg.CookieDomain
	if domain == "" {
		domain = cookieDomainFor(base.Hostname())
	}
	return &Platform{
		base:         base,
		cookieDomain: domain,
		probePath:    orDefault(cfg.ProbePath, "/setting"),
		activityPath: orDefault(cfg.ActivityPath, "/notifications"),
		loginPath:    orDefault(cfg.LoginPath, "/login"),
		qrLoginPath:  orDefault(cfg.QRLoginPath, "/login/qrcode"),
	}, nil
}

// cookieDomainFor returns the eTLD+1 of host with a leading dot so cookies
// cover every subdomain. IP hosts are returned bare; hosts without a public
// suffix fall back to dropping "www.".
func cookieDomainFor(host string) string {
	if net.ParseIP(host) != nil {
		return host
	}
	if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return "." + d
	}
	return "." + strings.TrimPrefix(host, "www.")
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	if !strings.HasPrefix(v, "/") {
		return "/" + v
	}
	return v
}

func (p *Platform) resolve(path string) string {
	u := *p.base
	u.Path = path
	return u.String()
}

// Absolute resolves href against the base URL. Unparseable input yields "".
func (p *Platform) Absolute(href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil || href == "" {
		return ""
	}
	return p.base.ResolveReference(ref).String()
}

// CookieDomain is the domain assigned to credentials that carry none.
func (p *Platform) CookieDomain() string { return p.cookieDomain }

// ProbeURL is the authenticated-only page used to confirm a session.
func (p *Platform) ProbeURL() string { return p.resolve(p.probePath) }

// ActivityURL is the notifications surface the scraper reads.
func (p *Platform) ActivityURL() string { return p.resolve(p.activityPath) }

// LoginURL is the password login surface.
func (p *Platform) LoginURL() string { return p.resolve(p.loginPath) }

// QRLoginURL is the device-handshake login surface.
func (p *Platform) QRLoginURL() string { return p.resolve(p.qrLoginPath) }

// ProfileURL returns the public profile of handle. A leading "@" is optional.
func (p *Platform) ProfileURL(handle string) string {
	return p.resolve("/@" + strings.TrimPrefix(strings.TrimSpace(handle), "@"))
}

// Classify inspects a URL without any network round trip.
func (p *Platform) Classify(raw string) Surface {
	u, err := url.Parse(raw)
	if err != nil || raw == "" {
		return SurfaceNotFound
	}
	switch u.Scheme {
	case "http", "https":
	default:
		// about:blank, chrome-error:// and friends never show an authenticated page.
		return SurfaceNotFound
	}
	path := strings.ToLower(u.Path)
	if hasPathPrefix(path, strings.ToLower(p.loginPath)) || hasPathPrefix(path, strings.ToLower(p.qrLoginPath)) {
		return SurfaceLogin
	}
	for _, prefix := range loginPrefixes {
		if hasPathPrefix(path, prefix) {
			return SurfaceLogin
		}
	}
	if strings.HasPrefix(u.Hostname(), "login.") || strings.HasPrefix(u.Hostname(), "passport.") {
		return SurfaceLogin
	}
	for _, pat := range notFoundPatterns {
		if strings.Contains(path, pat) {
			return SurfaceNotFound
		}
	}
	return SurfaceAuthenticated
}

// IsLoginSurface reports whether raw points at a login surface.
func (p *Platform) IsLoginSurface(raw string) bool {
	return p.Classify(raw) == SurfaceLogin
}

// IsAuthenticated reports whether raw points at neither a login nor a not-found surface.
func (p *Platform) IsAuthenticated(raw string) bool {
	return p.Classify(raw) == SurfaceAuthenticated
}

func hasPathPrefix(path, prefix string) bool {
	if prefix == "" || prefix == "/" {
		return false
	}
	return path == prefix || strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/")
}

// UsernameFromURL extracts the handle from a "/@handle" profile URL or path.
func UsernameFromURL(raw string) string {
	path := raw
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		path = u.Path
	}
	if m := handlePattern.FindStringSubmatch(path); m != nil {
		return m[1]
	}
	return ""
}

// ContentIDFromURL extracts the numeric id from a video or photo URL.
func ContentIDFromURL(raw string) string {
	if m := contentPattern.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	return ""
}
