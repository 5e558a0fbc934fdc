package credentials

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/sociallink/api/schemas"
)

const testDomain = ".tiktok.com"

func newTestNormalizer() *Normalizer {
	fixed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return New(testDomain, WithClock(func() time.Time { return fixed }))
}

func TestParse_TabularInspectorRow(t *testing.T) {
	n := newTestNormalizer()

	got := n.Parse("sid_tt\tABC123\t.tiktok.com\t/\t2030-01-01T00:00:00.000Z")

	require.Len(t, got, 1)
	assert.Equal(t, schemas.Credential{
		Name:    "sid_tt",
		Value:   "ABC123",
		Domain:  ".tiktok.com",
		Path:    "/",
		Expires: 1893456000,
	}, got[0])
}

func TestParse_TabularWithHeaderAndFlags(t *testing.T) {
	n := newTestNormalizer()
	blob := "Name\tValue\tDomain\tPath\tExpires / Max-Age\tSize\tHttpOnly\tSecure\tSameSite\n" +
		"sessionid\tdeadbeef\t.tiktok.com\t/\t2030-01-01T00:00:00.000Z\t41\t✓\t✓\tNone\n" +
		"ttwid\t1%7Cabc\t.tiktok.com\t/\tSession\t20\t\t✓\tLax\n"

	got := n.Parse(blob)

	require.Len(t, got, 2)
	assert.Equal(t, "sessionid", got[0].Name)
	assert.True(t, got[0].HTTPOnly)
	assert.True(t, got[0].Secure)
	assert.Equal(t, schemas.CookieSameSiteNone, got[0].SameSite)

	assert.Equal(t, "ttwid", got[1].Name)
	assert.Equal(t, "1|abc", got[1].Value, "values are percent-decoded")
	assert.Equal(t, schemas.SessionExpiry, got[1].Expires)
	assert.False(t, got[1].HTTPOnly)
	assert.Equal(t, schemas.CookieSameSiteLax, got[1].SameSite)
}

func TestParse_HeaderStyle(t *testing.T) {
	n := newTestNormalizer()

	t.Run("cookie header with many pairs", func(t *testing.T) {
		got := n.Parse("Cookie: sessionid=abc; sid_tt=def; tt_csrf_token=x%2Dy")
		require.Len(t, got, 3)
		assert.Equal(t, "x-y", got[2].Value)
		for _, c := range got {
			assert.Equal(t, testDomain, c.Domain, "missing domains default to the platform root")
			assert.Equal(t, "/", c.Path)
		}
	})

	t.Run("set-cookie attributes attach to the preceding cookie", func(t *testing.T) {
		got := n.Parse("sid_tt=ABC==; Domain=.tiktok.com; Path=/api; Secure; HttpOnly; SameSite=Lax; Max-Age=3600")
		require.Len(t, got, 1)
		c := got[0]
		assert.Equal(t, "ABC==", c.Value)
		assert.Equal(t, "/api", c.Path)
		assert.True(t, c.Secure)
		assert.True(t, c.HTTPOnly)
		assert.Equal(t, schemas.CookieSameSiteLax, c.SameSite)
		assert.Equal(t, time.Date(2025, 1, 1, 1, 0, 0, 0, time.UTC).Unix(), c.Expires)
	})

	t.Run("rfc1123 expires", func(t *testing.T) {
		got := n.Parse("sessionid=abc; Expires=Tue, 01 Jan 2030 00:00:00 GMT")
		require.Len(t, got, 1)
		assert.Equal(t, int64(1893456000), got[0].Expires)
	})
}

func TestParse_RawConcatenated(t *testing.T) {
	n := newTestNormalizer()
	blob := "sid_ttABC123.tiktok.com/2030-01-01T00:00:00.000Z38✓✓None" +
		"sessionid_ssXYZ789.tiktok.com/2030-01-01T00:00:00.000Z45✓✓NoneMedium" +
		"ttwidq1w2e3www.tiktok.com/Session20"

	got := n.Parse(blob)

	require.Len(t, got, 3)
	assert.Equal(t, "sid_tt", got[0].Name)
	assert.Equal(t, "ABC123", got[0].Value)
	assert.Equal(t, ".tiktok.com", got[0].Domain)
	assert.Equal(t, int64(1893456000), got[0].Expires)
	assert.True(t, got[0].HTTPOnly)
	assert.True(t, got[0].Secure)

	assert.Equal(t, "sessionid_ss", got[1].Name, "longer names are preferred over their prefixes")
	assert.Equal(t, "XYZ789", got[1].Value)

	assert.Equal(t, "ttwid", got[2].Name)
	assert.Equal(t, "q1w2e3", got[2].Value)
	assert.Equal(t, "www.tiktok.com", got[2].Domain)
	assert.True(t, got[2].IsSession())
}

func TestParse_JSONExport(t *testing.T) {
	n := newTestNormalizer()
	blob := `[
	  {"name":"sessionid","value":"abc","domain":".tiktok.com","path":"/","expirationDate":1893456000.5,"httpOnly":true,"secure":true,"sameSite":"no_restriction"},
	  {"name":"ttwid","value":"t","domain":".tiktok.com","path":"/","session":true,"sameSite":"unspecified"}
	]`

	got := n.Parse(blob)

	require.Len(t, got, 2)
	assert.Equal(t, int64(1893456000), got[0].Expires)
	assert.Equal(t, schemas.CookieSameSiteNone, got[0].SameSite)
	assert.True(t, got[1].IsSession())
	assert.Equal(t, schemas.CookieSameSite(""), got[1].SameSite)
}

func TestParse_NothingUsable(t *testing.T) {
	n := newTestNormalizer()
	for _, blob := range []string{"", "   ", "hello world", "[not json"} {
		assert.Empty(t, n.Parse(blob), "blob %q", blob)
	}
}

func TestParseLines(t *testing.T) {
	n := newTestNormalizer()
	got := n.ParseLines([]string{
		"sid_tt\tABC123\t.tiktok.com\t/\t2030-01-01T00:00:00.000Z",
		"sessionid\tDEF\t.tiktok.com\t/\tSession",
	})
	require.Len(t, got, 2)
	assert.Equal(t, "sessionid", got[1].Name)
}

func TestNormalizeRecords_DedupesLastWins(t *testing.T) {
	n := newTestNormalizer()
	got := n.NormalizeRecords([]schemas.Credential{
		{Name: "sid_tt", Value: "old"},
		{Name: "ttwid", Value: "t"},
		{Name: "sid_tt", Value: "new", Domain: ".TikTok.com"},
		{Name: "  ", Value: "dropped"},
	})

	require.Len(t, got, 2)
	assert.Equal(t, "sid_tt", got[0].Name, "first position is kept")
	assert.Equal(t, "new", got[0].Value, "last value wins")
	assert.Equal(t, "ttwid", got[1].Name)
}

func TestNormalizeRecords_SameSiteNoneForcesSecure(t *testing.T) {
	n := newTestNormalizer()
	got := n.NormalizeRecords([]schemas.Credential{{Name: "a", Value: "1", SameSite: "none"}})
	require.Len(t, got, 1)
	assert.True(t, got[0].Secure)
}

func TestNormalize_Idempotent(t *testing.T) {
	n := newTestNormalizer()
	inputs := []string{
		"sessionid=abc; sid_tt=def; ttwid=hello%20world",
		"a=1",
		"sid_tt=ABC123; tt_csrf_token=x-y; msToken=Zz_9",
		"sid_tt=a%2541",
		"sid_tt=x%3By",
		"sid_tt=%2520",
		"sid_tt=a%2Fb%2C%22c%22",
	}
	for _, in := range inputs {
		first := n.Parse(in)
		require.NotEmpty(t, first, in)

		again := n.Parse(Format(first))
		if diff := cmp.Diff(first, again); diff != "" {
			t.Errorf("re-parsing canonical text changed records for %q (-first +again):\n%s", in, diff)
		}
		if diff := cmp.Diff(first, n.NormalizeRecords(first)); diff != "" {
			t.Errorf("re-normalizing records changed them for %q:\n%s", in, diff)
		}
	}
}

func TestParse_DecodesEscapedValuesOnce(t *testing.T) {
	n := newTestNormalizer()
	cases := map[string]string{
		"sid_tt=a%2541": "a%41",
		"sid_tt=x%3By":  "x;y",
		"sid_tt=%2520":  "%20",
	}
	for in, want := range cases {
		first := n.Parse(in)
		require.Len(t, first, 1, in)
		assert.Equal(t, want, first[0].Value, in)
		assert.Equal(t, in, Format(first), "canonical text escapes the decoded value again")

		again := n.Parse(Format(first))
		require.Len(t, again, 1, in)
		assert.Equal(t, want, again[0].Value, "re-parsing %q decoded a second time", in)
	}
}

func TestNormalizeRecords_ValuesVerbatim(t *testing.T) {
	n := newTestNormalizer()
	in := []schemas.Credential{{Name: "sid_tt", Value: "a%2541"}, {Name: "ttwid", Value: "1%7Cabc"}}

	once := n.NormalizeRecords(in)
	require.Len(t, once, 2)
	assert.Equal(t, "a%2541", once[0].Value)
	assert.Equal(t, "1%7Cabc", once[1].Value)
	if diff := cmp.Diff(once, n.NormalizeRecords(once)); diff != "" {
		t.Errorf("normalizing twice changed records (-once +twice):\n%s", diff)
	}
}

func TestFormat_EscapesSeparators(t *testing.T) {
	got := Format([]schemas.Credential{
		{Name: "a", Value: "x;y z"},
		{Name: "b", Value: "50%/\"q\""},
		{Name: "c", Value: "line\nbreak\tand,comma"},
	})
	assert.Equal(t, "a=x%3By%20z; b=50%25%2F%22q%22; c=line%0Abreak%09and%2Ccomma", got)

	back := newTestNormalizer().Parse(got)
	require.Len(t, back, 3)
	assert.Equal(t, "x;y z", back[0].Value)
	assert.Equal(t, `50%/"q"`, back[1].Value)
	assert.Equal(t, "line\nbreak\tand,comma", back[2].Value)
}

func TestHasAuthCookie(t *testing.T) {
	assert.True(t, HasAuthCookie([]string{"ttwid", "sessionid"}))
	assert.False(t, HasAuthCookie([]string{"ttwid", "msToken"}))
}
