package telegram

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// Launch-data validation errors. Handlers map these onto client-facing
// rejections without leaking which check failed beyond the status code.
var (
	// ErrUnauthenticated indicates required launch fields are missing or the
	// blob is not parseable as launch data.
	ErrUnauthenticated = errors.New("invalid webapp data")

	// ErrExpired indicates the embedded auth_date is older than the validity
	// window.
	ErrExpired = errors.New("auth_date is too old")

	// ErrSignatureMismatch indicates the computed signature does not match
	// the claimed hash.
	ErrSignatureMismatch = errors.New("hash mismatch")
)

// launchMaxAge is the validity window for signed launch data.
const launchMaxAge = 7 * 24 * time.Hour

// AuthenticatedLaunch is the decoded identity claim of a verified mini-app
// launch. It lives for one request; persistence happens through the ledger's
// user upsert, never here.
type AuthenticatedLaunch struct {
	TelegramID   int64   `json:"telegram_id"`
	LanguageCode string  `json:"language_code"`
	Username     *string `json:"username,omitempty"`
	FirstName    *string `json:"first_name,omitempty"`
	LastName     *string `json:"last_name,omitempty"`
	IsPremium    *bool   `json:"is_premium,omitempty"`
	PhotoURL     *string `json:"photo_url,omitempty"`
	StartParam   *string `json:"start_param,omitempty"`
}

// WebAppValidator verifies the signed key/value blob a mini-app host passes
// to prove the embedding platform's identity claim. It is pure over its
// input and the configured bot token; safe for concurrent use.
type WebAppValidator struct {
	botToken       string
	checkSignature bool

	now func() time.Time // test seam
}

// NewWebAppValidator constructs a validator. checkSignature=false skips the
// HMAC comparison (local-testing escape hatch); expiry and required-field
// checks always apply.
func NewWebAppValidator(botToken string, checkSignature bool) *WebAppValidator {
	return &WebAppValidator{
		botToken:       botToken,
		checkSignature: checkSignature,
		now:            time.Now,
	}
}

// launchUser is the wire shape of the "user" JSON field inside launch data.
type launchUser struct {
	ID           int64   `json:"id"`
	LanguageCode *string `json:"language_code"`
	Username     *string `json:"username"`
	FirstName    *string `json:"first_name"`
	LastName     *string `json:"last_name"`
	IsPremium    *bool   `json:"is_premium"`
	PhotoURL     *string `json:"photo_url"`
}

// Authenticate verifies raw (URL-encoded launch data) and returns the
// decoded identity.
//
// Verification: the claimed signature is removed from the pair set, the
// remaining pairs are serialized sorted by key as "key=value" lines, and the
// expected signature is HMAC-SHA256 over that string with a secret derived
// by HMAC-SHA256("WebAppData", botToken). auth_date participates in the
// check string; launches older than seven days are rejected before any
// signature work.
func (v *WebAppValidator) Authenticate(raw string) (*AuthenticatedLaunch, error) {
	pairs, err := url.ParseQuery(raw)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	claimed := pairs.Get("hash")
	authDateRaw := pairs.Get("auth_date")
	if claimed == "" || authDateRaw == "" {
		return nil, ErrUnauthenticated
	}
	pairs.Del("hash")

	authDate, err := strconv.ParseInt(authDateRaw, 10, 64)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	if v.now().After(time.Unix(authDate, 0).Add(launchMaxAge)) {
		return nil, ErrExpired
	}

	if v.checkSignature {
		if !hmac.Equal([]byte(checkHash(pairs, v.botToken)), []byte(claimed)) {
			return nil, ErrSignatureMismatch
		}
	}

	var user launchUser
	if err := json.Unmarshal([]byte(pairs.Get("user")), &user); err != nil || user.ID == 0 {
		return nil, ErrUnauthenticated
	}

	launch := &AuthenticatedLaunch{
		TelegramID:   user.ID,
		LanguageCode: normalizeLanguage(user.LanguageCode),
		Username:     user.Username,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		IsPremium:    user.IsPremium,
		PhotoURL:     user.PhotoURL,
	}
	if sp := pairs.Get("start_param"); sp != "" {
		launch.StartParam = &sp
	}
	return launch, nil
}

// checkHash computes the hex-encoded expected signature over the remaining
// pairs, serialized sorted lexicographically by key, one "key=value" per line.
func checkHash(pairs url.Values, botToken string) string {
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+pairs.Get(k))
	}
	checkString := strings.Join(lines, "\n")

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))

	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(checkString))
	return hex.EncodeToString(mac.Sum(nil))
}

// normalizeLanguage reduces a launch language code to its base language,
// defaulting to "en" for absent or unparseable codes.
func normalizeLanguage(code *string) string {
	if code == nil || *code == "" {
		return "en"
	}
	tag, err := language.Parse(*code)
	if err != nil {
		return "en"
	}
	base, conf := tag.Base()
	if conf == language.No {
		return "en"
	}
	return base.String()
}
