// Package initdata validates the launch parameters Telegram passes to a Mini App.
// See https://core.telegram.org/bots/webapps#validating-data-received-via-the-mini-app
package initdata

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingHash     = errors.New("init data hash is missing")
	ErrSignMismatch    = errors.New("init data signature mismatch")
	ErrMissingAuthDate = errors.New("init data auth_date is missing")
	ErrExpired         = errors.New("init data is expired")
	ErrMissingUser     = errors.New("init data user is missing")
)

type User struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

type InitData struct {
	QueryID    string
	User       User
	AuthDate   time.Time
	StartParam string
	ChatType   string
}

// Validate checks the signature and age of raw init data and parses it.
// A zero maxAge disables the age check.
func Validate(raw, botToken string, maxAge time.Duration, now time.Time) (*InitData, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, fmt.Errorf("parse init data: %w", err)
	}

	hash := values.Get("hash")
	if hash == "" {
		return nil, ErrMissingHash
	}

	if !hmac.Equal([]byte(Sign(values, botToken)), []byte(hash)) {
		return nil, ErrSignMismatch
	}

	authDateRaw := values.Get("auth_date")
	if authDateRaw == "" {
		return nil, ErrMissingAuthDate
	}
	authUnix, err := strconv.ParseInt(authDateRaw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse auth_date (value: %s): %w", authDateRaw, err)
	}
	authDate := time.Unix(authUnix, 0)

	if maxAge > 0 && now.Sub(authDate) > maxAge {
		return nil, fmt.Errorf("%w (auth_date: %s)", ErrExpired, authDate.UTC().Format(time.RFC3339))
	}

	data := &InitData{
		QueryID:    values.Get("query_id"),
		AuthDate:   authDate,
		StartParam: values.Get("start_param"),
		ChatType:   values.Get("chat_type"),
	}

	userRaw := values.Get("user")
	if userRaw == "" {
		return nil, ErrMissingUser
	}
	if err := json.Unmarshal([]byte(userRaw), &data.User); err != nil {
		return nil, fmt.Errorf("parse init data user: %w", err)
	}
	if data.User.ID == 0 {
		return nil, ErrMissingUser
	}

	return data, nil
}

// Sign computes the hex hash Telegram would put into the hash field of values.
func Sign(values url.Values, botToken string) string {
	pairs := make([]string, 0, len(values))
	for key := range values {
		if key == "hash" {
			continue
		}
		pairs = append(pairs, key+"="+values.Get(key))
	}
	slices.Sort(pairs)

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))

	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(pairs, "\n")))

	return hex.EncodeToString(mac.Sum(nil))
}
