package bridge

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
)

// TokenCookieName is the name of the handshake token cookie.
const TokenCookieName = "__tabsync_token"

// validateToken validates a handshake token using the Double Submit
// Cookie pattern. If TokenSecret is set, the HMAC signature is also
// checked.
func (b *Bridge) validateToken(r *http.Request, token string) bool {
	if len(b.config.TokenSecret) == 0 {
		return true // token validation disabled
	}

	if token == "" {
		return false
	}

	// Double Submit Cookie: the handshake token must match the cookie
	cookie, err := r.Cookie(TokenCookieName)
	if err != nil || cookie.Value == "" {
		return false
	}
	if !hmac.Equal([]byte(token), []byte(cookie.Value)) {
		return false
	}

	decoded, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return false
	}

	// Token format: 16-byte nonce + 32-byte HMAC-SHA256 signature
	if len(decoded) != 48 {
		return false
	}
	nonce := decoded[:16]
	providedSig := decoded[16:]

	h := hmac.New(sha256.New, b.config.TokenSecret)
	h.Write(nonce)
	expectedSig := h.Sum(nil)

	return hmac.Equal(providedSig, expectedSig)
}

// GenerateToken generates a cryptographically secure handshake token.
// With a TokenSecret configured the token is HMAC-signed. Set it as a
// cookie with SetTokenCookie and hand it to the page for the client
// hello.
func (b *Bridge) GenerateToken() string {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		// SECURITY: weak tokens are dangerous; refuse to run.
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}

	if len(b.config.TokenSecret) == 0 {
		return base64.URLEncoding.EncodeToString(nonce)
	}

	h := hmac.New(sha256.New, b.config.TokenSecret)
	h.Write(nonce)
	sig := h.Sum(nil)

	token := make([]byte, len(nonce)+len(sig))
	copy(token[:len(nonce)], nonce)
	copy(token[len(nonce):], sig)

	return base64.URLEncoding.EncodeToString(token)
}

// SetTokenCookie sets the handshake token cookie on the response. Not
// HttpOnly: the page script reads it back to build the client hello.
func (b *Bridge) SetTokenCookie(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookieName,
		Value:    token,
		Path:     "/",
		Secure:   r.TLS != nil,
		HttpOnly: false,
		SameSite: http.SameSiteLaxMode,
	})
}
