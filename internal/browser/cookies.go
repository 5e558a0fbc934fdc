package browser

import (
	"math"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"

	"github.com/xkilldash9x/sociallink/api/schemas"
)

// toCookieParams converts credentials into CDP cookie parameters.
func toCookieParams(creds []schemas.Credential) []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(creds))
	for _, c := range creds {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if p.Path == "" {
			p.Path = "/"
		}
		switch c.SameSite {
		case schemas.CookieSameSiteStrict:
			p.SameSite = network.CookieSameSiteStrict
		case schemas.CookieSameSiteLax:
			p.SameSite = network.CookieSameSiteLax
		case schemas.CookieSameSiteNone:
			p.SameSite = network.CookieSameSiteNone
		}
		if !c.IsSession() {
			exp := cdp.TimeSinceEpoch(time.Unix(c.Expires, 0))
			p.Expires = &exp
		}
		params = append(params, p)
	}
	return params
}

// fromCookies converts CDP cookies back into credentials.
func fromCookies(cookies []*network.Cookie) []schemas.Credential {
	creds := make([]schemas.Credential, 0, len(cookies))
	for _, c := range cookies {
		if c == nil {
			continue
		}
		cred := schemas.Credential{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  schemas.SessionExpiry,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if !c.Session && c.Expires > 0 {
			cred.Expires = int64(math.Floor(c.Expires))
		}
		switch c.SameSite {
		case network.CookieSameSiteStrict:
			cred.SameSite = schemas.CookieSameSiteStrict
		case network.CookieSameSiteLax:
			cred.SameSite = schemas.CookieSameSiteLax
		case network.CookieSameSiteNone:
			cred.SameSite = schemas.CookieSameSiteNone
		}
		creds = append(creds, cred)
	}
	return creds
}
