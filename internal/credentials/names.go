package credentials

// KnownCookieNames is the default dictionary used to split raw pastes.
var KnownCookieNames = []string{
	"sessionid",
	"sessionid_ss",
	"sid_tt",
	"sid_guard",
	"sid_ucp_v1",
	"ssid_ucp_v1",
	"uid_tt",
	"uid_tt_ss",
	"tt_csrf_token",
	"tt_chain_token",
	"ttwid",
	"msToken",
	"odin_tt",
	"passport_csrf_token",
	"passport_csrf_token_default",
	"passport_auth_status",
	"passport_auth_status_ss",
	"s_v_web_id",
	"cmpl_token",
	"multi_sids",
	"store-idc",
	"store-country-code",
	"store-country-code-src",
	"tt-target-idc",
	"tt-target-idc-sign",
	"csrf_session_id",
	"last_login_method",
	"living_user_id",
}

// AuthCookieNames are the credentials without which a session cannot authenticate.
var AuthCookieNames = []string{"sessionid", "sessionid_ss", "sid_tt"}

// HasAuthCookie reports whether any authenticating cookie is present.
func HasAuthCookie(names []string) bool {
	for _, n := range names {
		for _, a := range AuthCookieNames {
			if n == a {
				return true
			}
		}
	}
	return false
}
