package credentials

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/sociallink/api/schemas"
)

// checkMark is how browser inspectors render a set boolean column.
const checkMark = "✓"

// -- Tabular (inspector table) --

// parseTabular reads tab-separated rows in the column order of a browser
// inspector's cookie table: name, value, domain, path, expires, size,
// httpOnly, secure, sameSite.
func parseTabular(blob string) []schemas.Credential {
	if !strings.Contains(blob, "\t") {
		return nil
	}
	var out []schemas.Credential
	for _, line := range strings.Split(blob, "\n") {
		line = strings.TrimRight(line, "\r")
		cols := strings.Split(line, "\t")
		if len(cols) < 2 {
			continue
		}
		name := strings.TrimSpace(cols[0])
		if name == "" || strings.EqualFold(name, "name") {
			continue
		}
		c := schemas.Credential{Name: name, Value: decodeValue(strings.TrimSpace(cols[1])), Expires: schemas.SessionExpiry}
		if len(cols) > 2 {
			c.Domain = cols[2]
		}
		if len(cols) > 3 {
			c.Path = cols[3]
		}
		if len(cols) > 4 {
			c.Expires = parseExpiry(cols[4])
		}
		if len(cols) > 6 {
			c.HTTPOnly = strings.TrimSpace(cols[6]) == checkMark
		}
		if len(cols) > 7 {
			c.Secure = strings.TrimSpace(cols[7]) == checkMark
		}
		if len(cols) > 8 {
			c.SameSite = schemas.CookieSameSite(cols[8])
		}
		out = append(out, c)
	}
	return out
}

// -- Header style (name=value; Attr=...) --

var cookieAttributes = map[string]bool{
	"domain": true, "path": true, "expires": true, "max-age": true,
	"secure": true, "httponly": true, "samesite": true, "priority": true,
	"partitioned": true,
}

// parseHeader reads Cookie and Set-Cookie style strings. Attributes apply to
// the cookie that precedes them.
func (n *Normalizer) parseHeader(blob string) []schemas.Credential {
	if !strings.Contains(blob, "=") {
		return nil
	}
	var out []schemas.Credential
	for _, line := range strings.Split(blob, "\n") {
		line = strings.TrimSpace(line)
		for _, prefix := range []string{"set-cookie:", "cookie:"} {
			if strings.HasPrefix(strings.ToLower(line), prefix) {
				line = strings.TrimSpace(line[len(prefix):])
			}
		}
		for _, seg := range strings.Split(line, ";") {
			seg = strings.TrimSpace(seg)
			if seg == "" {
				continue
			}
			key, val, hasEq := strings.Cut(seg, "=")
			key = strings.TrimSpace(key)
			lower := strings.ToLower(key)

			if cookieAttributes[lower] && len(out) > 0 {
				applyAttribute(&out[len(out)-1], lower, strings.TrimSpace(val), n)
				continue
			}
			if !hasEq || key == "" || strings.ContainsAny(key, " \t") {
				continue
			}
			out = append(out, schemas.Credential{
				Name:    key,
				Value:   decodeValue(strings.Trim(strings.TrimSpace(val), `"`)),
				Expires: schemas.SessionExpiry,
			})
		}
	}
	return out
}

func applyAttribute(c *schemas.Credential, attr, val string, n *Normalizer) {
	switch attr {
	case "domain":
		c.Domain = val
	case "path":
		c.Path = val
	case "expires":
		c.Expires = parseExpiry(val)
	case "max-age":
		if secs, err := strconv.ParseInt(val, 10, 64); err == nil {
			c.Expires = n.now().Unix() + secs
		}
	case "secure":
		c.Secure = true
	case "httponly":
		c.HTTPOnly = true
	case "samesite":
		c.SameSite = schemas.CookieSameSite(val)
	}
}

// -- Raw concatenated paste --

// rawParser recovers field boundaries from an inspector table copied without
// delimiters: <known name><value><domain marker><path><ISO expiry><flags>.
type rawParser struct {
	re *regexp.Regexp
}

func newRawParser(known []string, domain string) *rawParser {
	if len(known) == 0 || domain == "" {
		return &rawParser{}
	}
	names := make([]string, 0, len(known))
	for _, k := range known {
		names = append(names, regexp.QuoteMeta(k))
	}
	host := regexp.QuoteMeta(strings.TrimPrefix(domain, "."))
	pattern := `(` + strings.Join(names, "|") + `)` +
		`(.+?)` +
		`(\.(?:www\.)?` + host + `|www\.` + host + `)` +
		`(/[^\d\s]*?)` +
		`(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?Z|Session)` +
		`(?:\d+)?(` + checkMark + `)?(` + checkMark + `)?(Strict|Lax|None)?`
	return &rawParser{re: regexp.MustCompile(pattern)}
}

func (p *rawParser) parse(blob string) []schemas.Credential {
	if p.re == nil {
		return nil
	}
	blob = strings.Join(strings.Fields(blob), "")
	var out []schemas.Credential
	for _, m := range p.re.FindAllStringSubmatch(blob, -1) {
		out = append(out, schemas.Credential{
			Name:     m[1],
			Value:    decodeValue(m[2]),
			Domain:   m[3],
			Path:     m[4],
			Expires:  parseExpiry(m[5]),
			HTTPOnly: m[6] != "",
			Secure:   m[7] != "",
			SameSite: schemas.CookieSameSite(m[8]),
		})
	}
	return out
}

// -- JSON export (cookie editor extensions) --

// JSON exports carry the stored cookie value, so it is never decoded.

type jsonCookie struct {
	Name           string   `json:"name"`
	Value          string   `json:"value"`
	Domain         string   `json:"domain"`
	Path           string   `json:"path"`
	ExpirationDate *float64 `json:"expirationDate"`
	Expires        *float64 `json:"expires"`
	HTTPOnly       bool     `json:"httpOnly"`
	Secure         bool     `json:"secure"`
	Session        bool     `json:"session"`
	SameSite       string   `json:"sameSite"`
}

func parseJSONExport(blob string) []schemas.Credential {
	var cookies []jsonCookie
	if strings.HasPrefix(blob, "{") {
		var one jsonCookie
		if err := json.UnmarshalFromString(blob, &one); err != nil {
			return nil
		}
		cookies = []jsonCookie{one}
	} else if err := json.UnmarshalFromString(blob, &cookies); err != nil {
		return nil
	}

	out := make([]schemas.Credential, 0, len(cookies))
	for _, jc := range cookies {
		if jc.Name == "" {
			continue
		}
		c := schemas.Credential{
			Name:     jc.Name,
			Value:    jc.Value,
			Domain:   jc.Domain,
			Path:     jc.Path,
			Expires:  schemas.SessionExpiry,
			HTTPOnly: jc.HTTPOnly,
			Secure:   jc.Secure,
			SameSite: schemas.CookieSameSite(jc.SameSite),
		}
		exp := jc.ExpirationDate
		if exp == nil {
			exp = jc.Expires
		}
		if exp != nil && !jc.Session && *exp > 0 {
			c.Expires = int64(math.Floor(*exp))
		}
		out = append(out, c)
	}
	return out
}

func parseEpoch(s string) (int64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return 0, false
	}
	return int64(math.Floor(f)), true
}
