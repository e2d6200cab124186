// ABOUTME: Tagged auth token value distinguishing Bearer from Basic schemes.
// ABOUTME: Replaces scheme inference from token shape with an explicit kind.

package registry

import (
	"encoding/base64"
	"fmt"
)

// TokenKind is the HTTP Authorization scheme a token is valid for
type TokenKind string

const (
	TokenKindBearer TokenKind = "Bearer"
	TokenKindBasic  TokenKind = "Basic"
)

// Token is a registry access token together with the scheme it must be sent
// under. Keeping the kind explicit avoids guessing Basic vs Bearer from the
// token's shape.
type Token struct {
	Kind  TokenKind
	Value string
}

// AuthorizationHeader renders the token as an Authorization header value.
func (t Token) AuthorizationHeader() string {
	return string(t.Kind) + " " + t.Value
}

// String redacts the token value in logs.
func (t Token) String() string {
	return fmt.Sprintf("%s [REDACTED]", t.Kind)
}

// EncodeBasicAuth builds the base64 user:password value of a Basic token.
func EncodeBasicAuth(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}
