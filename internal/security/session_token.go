package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// TokenPrefix marks opaque session tokens so they are recognizable in headers and leaks.
const TokenPrefix = "sst_"

// tokenEntropyBytes is the number of random bytes in a token (256 bits).
const tokenEntropyBytes = 32

// encodedTokenLen is the length of the base64url (unpadded) body of a token.
var encodedTokenLen = base64.RawURLEncoding.EncodedLen(tokenEntropyBytes)

// ErrMalformedToken is returned by CheckTokenShape for strings that cannot be a session token.
var ErrMalformedToken = errors.New("malformed session token")

// TokenGenerator issues unguessable session tokens. The zero value reads from crypto/rand.
type TokenGenerator struct {
	// Rand overrides the entropy source; tests only.
	Rand io.Reader
}

// NewToken returns a fresh token: TokenPrefix followed by 32 random bytes, base64url-encoded.
// Tokens are single-purpose lookup secrets and carry no claims.
func (g TokenGenerator) NewToken() (string, error) {
	r := g.Rand
	if r == nil {
		r = rand.Reader
	}
	b := make([]byte, tokenEntropyBytes)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return TokenPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}

// CheckTokenShape reports ErrMalformedToken unless token has the prefix and an exact-length
// base64url body. It does not say anything about whether the token exists.
func CheckTokenShape(token string) error {
	body, ok := strings.CutPrefix(token, TokenPrefix)
	if !ok || len(body) != encodedTokenLen {
		return ErrMalformedToken
	}
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return ErrMalformedToken
		}
	}
	return nil
}

// HashToken returns the hex-encoded BLAKE2b-256 digest of token. Sessions are stored and looked
// up by this digest so a database leak does not leak usable tokens.
func HashToken(token string) string {
	h := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// TokenHashEqual performs a constant-time comparison of token's digest with storedHash.
func TokenHashEqual(token, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashToken(token)), []byte(storedHash)) == 1
}

// RedactToken returns a log-safe prefix of token (never the full secret).
func RedactToken(token string) string {
	body := strings.TrimPrefix(token, TokenPrefix)
	if len(body) > 6 {
		body = body[:6]
	}
	return TokenPrefix + body + "…"
}
