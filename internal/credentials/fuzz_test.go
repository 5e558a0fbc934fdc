package credentials

import (
	"strings"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/google/go-cmp/cmp"

	"github.com/xkilldash9x/sociallink/api/schemas"
)

// checkCanonical asserts the properties every normalized slice must have.
func checkCanonical(t *testing.T, in int, out []schemas.Credential) {
	t.Helper()
	if len(out) > in && in >= 0 {
		t.Fatalf("normalization grew %d records into %d", in, len(out))
	}
	seen := make(map[string]bool, len(out))
	for _, c := range out {
		if c.Name == "" || c.Name != strings.TrimSpace(c.Name) {
			t.Fatalf("untrimmed or empty name %q", c.Name)
		}
		if c.Domain == "" || c.Path == "" {
			t.Fatalf("record %q missing domain or path", c.Name)
		}
		if c.Domain != strings.ToLower(c.Domain) {
			t.Fatalf("domain %q not lower-cased", c.Domain)
		}
		if c.SameSite == schemas.CookieSameSiteNone && !c.Secure {
			t.Fatalf("SameSite=None record %q is not Secure", c.Name)
		}
		if seen[c.Key()] {
			t.Fatalf("duplicate record %q", c.Key())
		}
		seen[c.Key()] = true
	}
}

func FuzzParse(f *testing.F) {
	f.Add("sessionid=abc; sid_tt=def; ttwid=hello%20world")
	f.Add("sid_tt\tABC\t.tiktok.com\t/\tSession\t20\t✓\t✓\tNone")
	f.Add(`[{"name":"sessionid","value":"v","domain":".tiktok.com"}]`)
	f.Add("ttwid1%7Cabc.tiktok.com/Session20sessionidxyz.tiktok.com/Session")
	f.Add("")
	f.Add("sid_tt=a%2541")
	f.Add("sid_tt=x%3By")
	f.Add("sid_tt=%2520")

	n := newTestNormalizer()
	f.Fuzz(func(t *testing.T, blob string) {
		first := n.Parse(blob)
		checkCanonical(t, -1, first)

		if diff := cmp.Diff(first, n.NormalizeRecords(first)); diff != "" {
			t.Fatalf("normalizing parsed records changed them (-parsed +renormalized):\n%s", diff)
		}

		// Format carries names and values only, so the round trip is
		// checked on those pairs for records it can express.
		if !formattable(first) {
			return
		}
		again := n.Parse(Format(first))
		if diff := cmp.Diff(pairs(first), pairs(again)); diff != "" {
			t.Fatalf("re-parsing %q changed pairs (-first +again):\n%s", Format(first), diff)
		}
	})
}

type pair struct{ Name, Value string }

func pairs(creds []schemas.Credential) []pair {
	out := make([]pair, 0, len(creds))
	for _, c := range creds {
		out = append(out, pair{c.Name, c.Value})
	}
	return out
}

// formattable reports whether every name is an HTTP token that is not a
// cookie attribute and no name repeats, which is what a Cookie header can
// carry without loss.
func formattable(creds []schemas.Credential) bool {
	seen := make(map[string]bool, len(creds))
	for _, c := range creds {
		if seen[c.Name] || cookieAttributes[strings.ToLower(c.Name)] || !isToken(c.Name) {
			return false
		}
		seen[c.Name] = true
	}
	return len(creds) > 0
}

func isToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch <= 0x20 || ch >= 0x7f || strings.IndexByte(`()<>@,;:\\"/[]?={}`, ch) >= 0 {
			return false
		}
	}
	return true
}

func FuzzNormalizeRecords_Structured(f *testing.F) {
	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)
		var records []schemas.Credential
		if err := consumer.CreateSlice(&records); err != nil {
			return
		}
		n := newTestNormalizer()
		once := n.NormalizeRecords(records)
		checkCanonical(t, len(records), once)
		if diff := cmp.Diff(once, n.NormalizeRecords(once)); diff != "" {
			t.Fatalf("normalizing twice changed records (-once +twice):\n%s", diff)
		}
	})
}
