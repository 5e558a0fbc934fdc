package schemas

import (
	"time"
)

// -- Credential Schemas --

// CookieSameSite defines the SameSite attribute for cookies.
type CookieSameSite string

const (
	CookieSameSiteStrict CookieSameSite = "Strict"
	CookieSameSiteLax    CookieSameSite = "Lax"
	CookieSameSiteNone   CookieSameSite = "None"
)

// SessionExpiry marks a credential that lives only as long as the browser session.
const SessionExpiry int64 = -1

// Credential is one authentication cookie with its scoping attributes.
// Records produced by the credentials package always carry a Domain and Path.
type Credential struct {
	Name     string         `json:"name"`
	Value    string         `json:"value"`
	Domain   string         `json:"domain"`
	Path     string         `json:"path"`
	Expires  int64          `json:"expires"`
	HTTPOnly bool           `json:"httpOnly"`
	Secure   bool           `json:"secure"`
	SameSite CookieSameSite `json:"sameSite,omitempty"`
}

// IsSession reports whether the credential is session scoped.
func (c Credential) IsSession() bool {
	return c.Expires <= 0
}

// Key identifies a credential for deduplication.
func (c Credential) Key() string {
	return c.Name + "|" + c.Domain + "|" + c.Path
}

// -- Interaction Schemas --

// InteractionKind classifies an observed social interaction.
type InteractionKind string

const (
	KindLike          InteractionKind = "like"
	KindComment       InteractionKind = "comment"
	KindFollow        InteractionKind = "follow"
	KindShare         InteractionKind = "share"
	KindMention       InteractionKind = "mention"
	KindDirectMessage InteractionKind = "directMessage"
)

// InteractionEvent is a single normalized item recovered from an activity surface.
// Optional fields are nil when extraction could not recover them.
type InteractionEvent struct {
	ActorHandle       string          `json:"actorHandle"`
	Kind              InteractionKind `json:"kind"`
	RelatedContentID  *string         `json:"relatedContentId,omitempty"`
	RelatedContentURL *string         `json:"relatedContentUrl,omitempty"`
	TextBody          *string         `json:"textBody,omitempty"`
	ObservedAt        time.Time       `json:"observedAt"`
	IsNewlyObserved   bool            `json:"isNewlyObserved"`
}

// -- QR Connection Schemas --

// QRState is the state of a device-handshake connection.
type QRState string

const (
	QRWaiting   QRState = "waiting"
	QRScanning  QRState = "scanning"
	QRConnected QRState = "connected"
	QRExpired   QRState = "expired"
	QRError     QRState = "error"
)

// IsTerminal reports whether no further transitions can leave the state.
func (s QRState) IsTerminal() bool {
	return s == QRConnected || s == QRExpired || s == QRError
}

// QRConnectionState is a snapshot of a device-handshake connection.
type QRConnectionState struct {
	ConnectionID string       `json:"connectionId"`
	WorkspaceID  string       `json:"workspaceId"`
	State        QRState      `json:"state"`
	Code         []byte       `json:"code,omitempty"`
	Username     string       `json:"username,omitempty"`
	Credentials  []Credential `json:"credentials,omitempty"`
	Error        string       `json:"error,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	ExpiresAt    time.Time    `json:"expiresAt"`
}

// -- Result Schemas --

// SyncResult is returned by an interaction sync for one account.
type SyncResult struct {
	AccountID      string             `json:"accountId"`
	CollectedCount int                `json:"collectedCount"`
	CreatedCount   int                `json:"createdCount"`
	Interactions   []InteractionEvent `json:"interactions"`
}

// SendResult reports the outcome of an outbound message. Recoverable failures
// are described by Reason rather than returned as errors.
type SendResult struct {
	Success    bool          `json:"success"`
	Reason     string        `json:"reason,omitempty"`
	RetryAfter time.Duration `json:"retryAfter,omitempty"`
}

// QRInitiation is returned when a device-handshake connection starts.
type QRInitiation struct {
	ConnectionID string    `json:"connectionId"`
	Code         []byte    `json:"code"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// ConnectionResult is returned when a connected handshake is claimed.
type ConnectionResult struct {
	AccountID   string       `json:"accountId"`
	Username    string       `json:"username,omitempty"`
	Credentials []Credential `json:"credentials"`
}
