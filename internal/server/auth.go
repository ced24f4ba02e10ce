package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/nclexprep/internal/clock"
	obscontext "github.com/smallbiznis/nclexprep/internal/observability/context"
	"github.com/smallbiznis/nclexprep/internal/payment/checkout"
	paymentdomain "github.com/smallbiznis/nclexprep/internal/payment/domain"
)

const (
	contextUserIDKey    = "user_id"
	contextUserEmailKey = "user_email"
)

// identityClaims are the bearer token claims issued by the auth service.
type identityClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type tokenVerifier struct {
	secret []byte
	parser *jwt.Parser
}

func newTokenVerifier(secret string, clk clock.Clock) *tokenVerifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if clk != nil {
		opts = append(opts, jwt.WithTimeFunc(clk.Now))
	}
	return &tokenVerifier{
		secret: []byte(strings.TrimSpace(secret)),
		parser: jwt.NewParser(opts...),
	}
}

func (v *tokenVerifier) Verify(raw string) (checkout.Identity, error) {
	if v == nil || len(v.secret) == 0 || raw == "" {
		return checkout.Identity{}, paymentdomain.ErrUnauthorized
	}

	var claims identityClaims
	if _, err := v.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}); err != nil {
		return checkout.Identity{}, paymentdomain.ErrUnauthorized
	}

	identity := checkout.Identity{
		UserID: strings.TrimSpace(claims.Subject),
		Email:  strings.TrimSpace(claims.Email),
	}
	if identity.UserID == "" || identity.Email == "" {
		return checkout.Identity{}, paymentdomain.ErrUnauthorized
	}
	return identity, nil
}

// AuthRequired resolves the caller from an HS256 bearer token.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := s.tokens.Verify(bearerToken(c.GetHeader("Authorization")))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextUserIDKey, identity.UserID)
		c.Set(contextUserEmailKey, identity.Email)
		c.Request = c.Request.WithContext(obscontext.WithUserID(c.Request.Context(), identity.UserID))
		c.Next()
	}
}

func identityFromContext(c *gin.Context) checkout.Identity {
	return checkout.Identity{
		UserID: c.GetString(contextUserIDKey),
		Email:  c.GetString(contextUserEmailKey),
	}
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
