package observability

import (
	"net/url"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/sociallink/api/schemas"
)

const redacted = "[redacted]"

// sensitiveKeys are field keys whose values are credential material. Keys
// ending in "_token" or "_secret" are treated the same way.
var sensitiveKeys = map[string]struct{}{
	"cookie":           {},
	"cookies":          {},
	"credential_value": {},
	"credentials":      {},
	"password":         {},
	"vault_key":        {},
}

// Account tags a log line with the account it concerns.
func Account(accountID string) zap.Field {
	return zap.String("account_id", accountID)
}

// CredentialNames logs which credentials are present without their values.
func CredentialNames(creds []schemas.Credential) zap.Field {
	names := make([]string, 0, len(creds))
	for _, c := range creds {
		names = append(names, c.Name)
	}
	return zap.Strings("credential_names", names)
}

// redactCore masks sensitive fields before they reach the wrapped core.
type redactCore struct {
	zapcore.Core
}

func (c redactCore) With(fields []zapcore.Field) zapcore.Core {
	return redactCore{c.Core.With(redact(fields))}
}

func (c redactCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c redactCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(ent, redact(fields))
}

// redact returns fields with sensitive values masked. The input slice is
// never modified.
func redact(fields []zapcore.Field) []zapcore.Field {
	out := fields
	copied := false
	for i, f := range fields {
		masked, ok := mask(f)
		if !ok {
			continue
		}
		if !copied {
			out = append([]zapcore.Field(nil), fields...)
			copied = true
		}
		out[i] = masked
	}
	return out
}

func mask(f zapcore.Field) (zapcore.Field, bool) {
	key := strings.ToLower(f.Key)
	if key == "database_url" && f.Type == zapcore.StringType {
		u, err := url.Parse(f.String)
		if err != nil {
			return zap.String(f.Key, redacted), true
		}
		if _, hasPassword := u.User.Password(); !hasPassword {
			return f, false
		}
		return zap.String(f.Key, u.Redacted()), true
	}
	if _, ok := sensitiveKeys[key]; ok || strings.HasSuffix(key, "_token") || strings.HasSuffix(key, "_secret") {
		return zap.String(f.Key, redacted), true
	}
	return f, false
}
