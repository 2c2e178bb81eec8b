package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"xdao.co/titlegate/titles"
)

const issuer = "titlegate"

// User is a login account. PasswordHash is a bcrypt hash.
type User struct {
	Username     string
	PasswordHash string
	Org          string
}

// Claims are carried in every bearer token.
type Claims struct {
	Org string `json:"org"`
	jwt.RegisteredClaims
}

// Authenticator checks passwords and issues and verifies HS256 tokens.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	users  map[string]User
	// dummy keeps unknown-user logins as slow as wrong-password ones. Its
	// cost is the highest among the configured hashes, at least DefaultCost.
	dummy []byte
}

func NewAuthenticator(secret string, ttl time.Duration, users []User) (*Authenticator, error) {
	if secret == "" {
		return nil, errors.New("httpapi: empty JWT secret")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	byName := make(map[string]User, len(users))
	cost := bcrypt.DefaultCost
	for _, u := range users {
		byName[u.Username] = u
		if c, err := bcrypt.Cost([]byte(u.PasswordHash)); err == nil && c > cost {
			cost = c
		}
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("titlegate-dummy"), cost)
	if err != nil {
		return nil, err
	}
	return &Authenticator{secret: []byte(secret), ttl: ttl, users: byName, dummy: dummy}, nil
}

// Check returns the user when password matches.
func (a *Authenticator) Check(username, password string) (User, bool) {
	u, ok := a.users[username]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(a.dummy, []byte(password))
		return User{}, false
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return User{}, false
	}
	return u, true
}

func (a *Authenticator) Issue(u User) (string, error) {
	now := time.Now()
	claims := Claims{
		Org: u.Org,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   u.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "ValidationFailed", "username and password are required")
		return
	}
	u, ok := h.auth.Check(req.Username, req.Password)
	if !ok {
		h.log.Warn("login failed", "username", req.Username, "ip", c.ClientIP())
		respondError(c, http.StatusUnauthorized, "unauthorized", "invalid credentials")
		return
	}
	token, err := h.auth.Issue(u)
	if err != nil {
		h.log.Error("issue token failed", "username", u.Username, "error", err)
		respondError(c, http.StatusInternalServerError, "Unknown", "internal error")
		return
	}
	h.log.Info("login", "username", u.Username, "org", u.Org)
	c.JSON(http.StatusOK, gin.H{"token": token})
}

const (
	ctxSubject = "subject"
	ctxOrg     = "org"
)

// requireAuth rejects requests without a valid bearer token and records the
// caller on the request context.
func (h *handler) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			respondError(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token")
			return
		}
		claims, err := h.auth.Verify(token)
		if err != nil {
			h.log.Debug("token rejected", "requestId", requestID(c), "error", err)
			respondError(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token")
			return
		}
		c.Set(ctxSubject, claims.Subject)
		c.Set(ctxOrg, claims.Org)
		ctx := titles.WithCaller(c.Request.Context(), titles.Caller{Subject: claims.Subject, Org: claims.Org})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
