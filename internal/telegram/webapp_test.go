package telegram

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"
)

const testBotToken = "12345:TEST-TOKEN"

// signLaunch builds a signed launch blob the way the mini-app host does:
// sorted "key=value" lines, secret = HMAC-SHA256("WebAppData", botToken),
// signature = hex(HMAC-SHA256(secret, checkString)).
func signLaunch(t *testing.T, botToken string, pairs map[string]string) string {
	t.Helper()

	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+pairs[k])
	}

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))
	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(lines, "\n")))
	hash := hex.EncodeToString(mac.Sum(nil))

	vals := url.Values{}
	for k, v := range pairs {
		vals.Set(k, v)
	}
	vals.Set("hash", hash)
	return vals.Encode()
}

func freshLaunchPairs(authDate time.Time) map[string]string {
	return map[string]string{
		"auth_date":   fmt.Sprintf("%d", authDate.Unix()),
		"query_id":    "AAF1",
		"user":        `{"id":42,"first_name":"Ann","last_name":"Lee","username":"ann","language_code":"ru","is_premium":true,"photo_url":"https://t.me/a.jpg"}`,
		"start_param": "ref_77",
	}
}

func TestAuthenticate_ValidBlob(t *testing.T) {
	v := NewWebAppValidator(testBotToken, true)
	raw := signLaunch(t, testBotToken, freshLaunchPairs(time.Now()))

	launch, err := v.Authenticate(raw)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if launch.TelegramID != 42 {
		t.Fatalf("telegram_id = %d", launch.TelegramID)
	}
	if launch.LanguageCode != "ru" {
		t.Fatalf("language_code = %q", launch.LanguageCode)
	}
	if launch.Username == nil || *launch.Username != "ann" {
		t.Fatalf("username = %v", launch.Username)
	}
	if launch.FirstName == nil || *launch.FirstName != "Ann" || launch.LastName == nil || *launch.LastName != "Lee" {
		t.Fatalf("name fields = %v %v", launch.FirstName, launch.LastName)
	}
	if launch.IsPremium == nil || !*launch.IsPremium {
		t.Fatalf("is_premium = %v", launch.IsPremium)
	}
	if launch.PhotoURL == nil || *launch.PhotoURL != "https://t.me/a.jpg" {
		t.Fatalf("photo_url = %v", launch.PhotoURL)
	}
	if launch.StartParam == nil || *launch.StartParam != "ref_77" {
		t.Fatalf("start_param = %v", launch.StartParam)
	}
}

func TestAuthenticate_LanguageDefaultsToEnglish(t *testing.T) {
	v := NewWebAppValidator(testBotToken, true)
	pairs := freshLaunchPairs(time.Now())
	pairs["user"] = `{"id":7,"first_name":"Bo"}`
	launch, err := v.Authenticate(signLaunch(t, testBotToken, pairs))
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if launch.LanguageCode != "en" {
		t.Fatalf("language_code = %q, want en", launch.LanguageCode)
	}
}

func TestAuthenticate_Expired(t *testing.T) {
	v := NewWebAppValidator(testBotToken, true)
	// Validly signed, but eight days old.
	raw := signLaunch(t, testBotToken, freshLaunchPairs(time.Now().Add(-8*24*time.Hour)))
	if _, err := v.Authenticate(raw); !errors.Is(err, ErrExpired) {
		t.Fatalf("want ErrExpired, got %v", err)
	}
}

func TestAuthenticate_SignatureMismatch(t *testing.T) {
	v := NewWebAppValidator(testBotToken, true)
	raw := signLaunch(t, testBotToken, freshLaunchPairs(time.Now()))

	// Flip one character of the hex signature.
	vals, _ := url.ParseQuery(raw)
	hash := vals.Get("hash")
	flip := byte('0')
	if hash[len(hash)-1] == '0' {
		flip = '1'
	}
	vals.Set("hash", hash[:len(hash)-1]+string(flip))

	if _, err := v.Authenticate(vals.Encode()); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("want ErrSignatureMismatch, got %v", err)
	}
}

func TestAuthenticate_SignatureCheckDisabled(t *testing.T) {
	v := NewWebAppValidator(testBotToken, false)
	pairs := freshLaunchPairs(time.Now())
	vals := url.Values{}
	for k, val := range pairs {
		vals.Set(k, val)
	}
	vals.Set("hash", "definitely-not-a-signature")

	launch, err := v.Authenticate(vals.Encode())
	if err != nil {
		t.Fatalf("Authenticate with checking disabled: %v", err)
	}
	if launch.TelegramID != 42 {
		t.Fatalf("telegram_id = %d", launch.TelegramID)
	}
}

func TestAuthenticate_MissingRequiredFields(t *testing.T) {
	v := NewWebAppValidator(testBotToken, true)

	cases := map[string]string{
		"no hash":      "auth_date=123&user=%7B%22id%22%3A1%7D",
		"no auth_date": "hash=abc&user=%7B%22id%22%3A1%7D",
		"bad date":     "hash=abc&auth_date=yesterday",
		"not a query":  "%zz",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := v.Authenticate(raw); !errors.Is(err, ErrUnauthenticated) {
				t.Fatalf("want ErrUnauthenticated, got %v", err)
			}
		})
	}
}

func TestAuthenticate_BadUserJSON(t *testing.T) {
	v := NewWebAppValidator(testBotToken, true)
	pairs := freshLaunchPairs(time.Now())
	pairs["user"] = "{not-json"
	if _, err := v.Authenticate(signLaunch(t, testBotToken, pairs)); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("want ErrUnauthenticated, got %v", err)
	}
}

func TestAuthenticate_ExpiryCheckedBeforeSignature(t *testing.T) {
	v := NewWebAppValidator(testBotToken, true)
	// Stale AND tampered: expiry must win.
	pairs := freshLaunchPairs(time.Now().Add(-30 * 24 * time.Hour))
	vals := url.Values{}
	for k, val := range pairs {
		vals.Set(k, val)
	}
	vals.Set("hash", "garbage")
	if _, err := v.Authenticate(vals.Encode()); !errors.Is(err, ErrExpired) {
		t.Fatalf("want ErrExpired, got %v", err)
	}
}
