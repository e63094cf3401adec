package user

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/classnote/classnote/core"
)

var (
	salt = []byte("classnote.core.user.password_reset")
	// token timestamps count seconds from this date, which keeps them short in base36
	tokenEpoch = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)

	// errors
	errInvalidToken = errors.New("invalid token")
	errTokenExpired = errors.New("token expired")
)

// EncodeUID base64 encodes given User ID
func EncodeUID(usr User) string {
	return base64.RawURLEncoding.EncodeToString([]byte(usr.ID))
}

func decodeUID(uid string) (string, error) {
	idBytes, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return "", err
	}
	return string(idBytes), nil
}

// resetTokens issues password reset tokens shaped "<base36 timestamp>-<signature>".
// The signature covers the state a reset changes (password hash and last login),
// and the account email and status, so a token dies once used or once the account moves on.
type resetTokens struct {
	key     []byte
	timeout time.Duration
}

func newResetTokens(conf *core.Config) resetTokens {
	key := sha256.Sum256(append(append([]byte{}, salt...), conf.SecretKey...))
	return resetTokens{key: key[:], timeout: conf.Server.PasswordResetTimeoutDelta}
}

func makeToken(usr User, conf *core.Config) string {
	return newResetTokens(conf).make(usr, nowFunc())
}

func verifyToken(usr User, token string, conf *core.Config) error {
	return newResetTokens(conf).check(usr, token, nowFunc())
}

func (rt resetTokens) make(usr User, at time.Time) string {
	ts := int64(at.Sub(tokenEpoch) / time.Second)
	return rt.withTimestamp(usr, ts)
}

func (rt resetTokens) check(usr User, token string, now time.Time) error {
	tsPart, sig, ok := strings.Cut(token, "-")
	if !ok || tsPart == "" || sig == "" {
		return errInvalidToken
	}
	ts, err := strconv.ParseInt(tsPart, 36, 64)
	if err != nil || ts < 0 {
		return errInvalidToken
	}
	if !hmac.Equal([]byte(rt.withTimestamp(usr, ts)), []byte(token)) {
		return errInvalidToken
	}
	issued := tokenEpoch.Add(time.Duration(ts) * time.Second)
	if now.Sub(issued) > rt.timeout {
		return errTokenExpired
	}
	return nil
}

func (rt resetTokens) withTimestamp(usr User, ts int64) string {
	tsPart := strconv.FormatInt(ts, 36)

	h := hmac.New(sha256.New, rt.key)
	h.Write([]byte(usr.ID))
	h.Write(usr.PasswordHash)
	h.Write([]byte(strings.ToLower(usr.Email)))
	h.Write([]byte(strconv.FormatBool(usr.IsActive)))
	if !usr.LastLogin.IsZero() {
		h.Write([]byte(usr.LastLogin.UTC().Format(time.RFC3339)))
	}
	h.Write([]byte(tsPart))
	return tsPart + "-" + base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
