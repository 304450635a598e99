package export

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// downloadSigner issues HMAC-signed, expiring tokens for export downloads.
// The secret is generated per process, so tokens do not survive restarts.
type downloadSigner struct {
	secret []byte
	ttl    time.Duration
}

func newDownloadSigner(ttl time.Duration) *downloadSigner {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &downloadSigner{secret: []byte(uuid.New().String()), ttl: ttl}
}

func (s *downloadSigner) Sign(jobID uuid.UUID, now time.Time) string {
	expires := now.Add(s.ttl).Unix()
	payload := fmt.Sprintf("%s:%d", jobID.String(), expires)
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	signature := hex.EncodeToString(mac.Sum(nil))
	raw := fmt.Sprintf("%s:%s", payload, signature)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func (s *downloadSigner) Verify(jobID uuid.UUID, token string, now time.Time) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("missing download token")
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return fmt.Errorf("decode token: %w", err)
	}
	parts := strings.Split(string(decoded), ":")
	if len(parts) != 3 {
		return errors.New("invalid token format")
	}
	if parts[0] != jobID.String() {
		return errors.New("token does not match export job")
	}
	expires, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid token expiration: %w", err)
	}
	if now.Unix() > expires {
		return errors.New("download token expired")
	}
	payload := fmt.Sprintf("%s:%s", parts[0], parts[1])
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	expected := mac.Sum(nil)
	provided, err := hex.DecodeString(parts[2])
	if err != nil {
		return fmt.Errorf("invalid token signature: %w", err)
	}
	if !hmac.Equal(expected, provided) {
		return errors.New("invalid download token")
	}
	return nil
}
