package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/xenking/cafe-orders/internal/domain/user"
)

type actorKey struct{}

// WithActor returns a context carrying the authenticated caller.
func WithActor(ctx context.Context, a user.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the authenticated caller stored in ctx.
func ActorFrom(ctx context.Context) (user.Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(user.Actor)
	return a, ok
}

// Authenticator resolves the caller from an HS256 bearer token. The token
// subject names the user; the role always comes from the user store.
type Authenticator struct {
	secret []byte
	users  user.Repository
	parser *jwt.Parser
}

// NewAuthenticator creates an Authenticator verifying tokens with secret.
func NewAuthenticator(secret []byte, users user.Repository) *Authenticator {
	return &Authenticator{
		secret: secret,
		users:  users,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(30*time.Second),
		),
	}
}

// Middleware rejects requests without a valid token and stores the caller
// in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := a.authenticate(r)
		if err != nil {
			zctx.From(r.Context()).Debug("Unauthorized", zap.Error(err))
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

func (a *Authenticator) authenticate(r *http.Request) (user.Actor, error) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || raw == "" {
		return user.Actor{}, errors.New("missing bearer token")
	}

	var claims jwt.RegisteredClaims
	if _, err := a.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}); err != nil {
		return user.Actor{}, errors.Wrap(err, "parse token")
	}
	if claims.Subject == "" {
		return user.Actor{}, errors.New("token has no subject")
	}

	u, err := a.users.GetByID(r.Context(), claims.Subject)
	if err != nil {
		return user.Actor{}, errors.Wrap(err, "resolve user")
	}
	return user.Actor{UserID: u.ID, Role: u.Role}, nil
}

// IssueToken signs an HS256 token for userID valid for ttl.
func IssueToken(secret []byte, userID string, now time.Time, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}
