// Package credentials turns pasted authentication-cookie material into
// canonical credential records.
package credentials

import (
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/xkilldash9x/sociallink/api/schemas"
)

// Normalizer parses heterogeneous cookie pastes. It is safe for concurrent use.
type Normalizer struct {
	domain string
	known  []string
	now    func() time.Time
	raw    *rawParser
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithKnownNames replaces the cookie-name dictionary used to split raw pastes.
func WithKnownNames(names []string) Option {
	return func(n *Normalizer) {
		n.known = append([]string(nil), names...)
	}
}

// WithClock sets the time source used to resolve Max-Age attributes.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		n.now = now
	}
}

// New creates a Normalizer. defaultDomain is applied to records that carry no
// domain and anchors the domain marker recognized in raw pastes.
func New(defaultDomain string, opts ...Option) *Normalizer {
	n := &Normalizer{
		domain: defaultDomain,
		known:  append([]string(nil), KnownCookieNames...),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	// Longest names first so prefixes like "sessionid" never shadow "sessionid_ss".
	sort.SliceStable(n.known, func(i, j int) bool { return len(n.known[i]) > len(n.known[j]) })
	n.raw = newRawParser(n.known, defaultDomain)
	return n
}

// Parse accepts a single pasted blob. JSON exports are tried first, then the
// tabular, raw-concatenated and header-style parsers in that order; the first
// one that yields a record wins. The raw parser runs before the header parser
// because its pattern is strict while any "a=b" text looks like a header.
// An empty result means nothing was usable.
func (n *Normalizer) Parse(blob string) []schemas.Credential {
	blob = strings.TrimSpace(strings.TrimPrefix(blob, "\ufeff"))
	if blob == "" {
		return nil
	}

	if strings.HasPrefix(blob, "[") || strings.HasPrefix(blob, "{") {
		if recs := parseJSONExport(blob); len(recs) > 0 {
			return n.NormalizeRecords(recs)
		}
	}

	parsers := []func(string) []schemas.Credential{
		parseTabular,
		n.raw.parse,
		n.parseHeader,
	}
	for _, parse := range parsers {
		if recs := parse(blob); len(recs) > 0 {
			return n.NormalizeRecords(recs)
		}
	}
	return nil
}

// ParseLines accepts an array of pasted strings, such as table rows or
// individual cookie strings.
func (n *Normalizer) ParseLines(lines []string) []schemas.Credential {
	return n.Parse(strings.Join(lines, "\n"))
}

// NormalizeRecords canonicalizes already-structured records: it defaults
// domain and path and removes duplicates (last write wins, first position
// kept). Values are taken verbatim; only the text parsers percent-decode, so
// normalizing twice is the same as normalizing once.
func (n *Normalizer) NormalizeRecords(in []schemas.Credential) []schemas.Credential {
	if len(in) == 0 {
		return nil
	}
	out := make([]schemas.Credential, 0, len(in))
	index := make(map[string]int, len(in))

	for _, c := range in {
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			continue
		}
		c.Value = strings.TrimSpace(c.Value)
		c.Domain = strings.ToLower(strings.TrimSpace(c.Domain))
		if c.Domain == "" {
			c.Domain = n.domain
		}
		c.Path = strings.TrimSpace(c.Path)
		if c.Path == "" {
			c.Path = "/"
		}
		if c.Expires <= 0 {
			c.Expires = schemas.SessionExpiry
		}
		c.SameSite = normalizeSameSite(string(c.SameSite))
		// Browsers drop SameSite=None cookies that are not Secure.
		if c.SameSite == schemas.CookieSameSiteNone {
			c.Secure = true
		}

		key := c.Key()
		if i, ok := index[key]; ok {
			out[i] = c
			continue
		}
		index[key] = len(out)
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Format renders names and values in canonical "name=value; name=value" form.
// Values are escaped with escapeValue, so Parse reads back the same pairs.
func Format(creds []schemas.Credential) string {
	parts := make([]string, 0, len(creds))
	for _, c := range creds {
		parts = append(parts, c.Name+"="+escapeValue(c.Value))
	}
	return strings.Join(parts, "; ")
}

// escapeValue percent-encodes every byte outside the RFC 6265 cookie-octet
// set, plus '%' and '/'. The output never contains a separator the header
// parser splits on, nor the path slash the raw parser anchors on.
func escapeValue(v string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(v); i++ {
		ch := v[i]
		if isCookieOctet(ch) && ch != '%' && ch != '/' {
			b.WriteByte(ch)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[ch>>4])
		b.WriteByte(hex[ch&0x0f])
	}
	return b.String()
}

func isCookieOctet(ch byte) bool {
	return ch > 0x20 && ch < 0x7f && ch != '"' && ch != ',' && ch != ';' && ch != '\\'
}

// decodeValue percent-decodes a cookie value read from pasted text. Values
// that are not valid escapes are returned untouched.
func decodeValue(v string) string {
	if !strings.Contains(v, "%") {
		return v
	}
	decoded, err := url.PathUnescape(v)
	if err != nil {
		return v
	}
	return decoded
}

func normalizeSameSite(s string) schemas.CookieSameSite {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict":
		return schemas.CookieSameSiteStrict
	case "lax":
		return schemas.CookieSameSiteLax
	case "none", "no_restriction":
		return schemas.CookieSameSiteNone
	default:
		return ""
	}
}

// parseExpiry understands ISO-8601 timestamps, RFC 1123 dates, epoch seconds
// and the literal "Session".
func parseExpiry(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "session") {
		return schemas.SessionExpiry
	}
	layouts := []string{time.RFC3339Nano, time.RFC3339, time.RFC1123, time.RFC1123Z, "Mon, 02-Jan-2006 15:04:05 MST"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Unix()
		}
	}
	if secs, ok := parseEpoch(s); ok {
		return secs
	}
	return schemas.SessionExpiry
}
