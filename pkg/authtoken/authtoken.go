package authtoken

import (
	"crypto/sha256"
	"fmt"
	"time"

	"adbarter/pkg/config"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"go.uber.org/fx"
)

var Module = fx.Module("authtoken", fx.Provide(NewVerifier))

// Verifier validates signed ID tokens issued by the auth collaborator and
// extracts the subject user id.
type Verifier struct {
	key []byte
}

func NewVerifier(cfg *config.Config) *Verifier {
	// HS256 requires a 256-bit key; hashing the configured secret keeps
	// shorter secrets usable.
	key := sha256.Sum256([]byte(cfg.Auth.TokenSecret))
	return &Verifier{key: key[:]}
}

func (v *Verifier) Verify(raw string) (string, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}

	var claims jwt.Claims
	if err := tok.Claims(v.key, &claims); err != nil {
		return "", fmt.Errorf("verify token: %w", err)
	}

	if err := claims.Validate(jwt.Expected{Time: time.Now()}); err != nil {
		return "", fmt.Errorf("validate claims: %w", err)
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("token has no subject")
	}

	return claims.Subject, nil
}

// Sign issues a token for the given user id. Used by tests and local
// tooling; production tokens come from the auth collaborator.
func (v *Verifier) Sign(userID string, ttl time.Duration) (string, error) {
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: v.key}, nil)
	if err != nil {
		return "", err
	}

	now := time.Now()
	claims := jwt.Claims{
		Subject:  userID,
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(ttl)),
	}

	return jwt.Signed(signer).Claims(claims).Serialize()
}
