// Package session implements the login gate: credential checks, the
// per-session context, signed session tokens and the registry of active
// visits that makes logout finalize a visit at most once.
package session

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Role string

const (
	RoleGeneral Role = "general"
	RoleAdmin   Role = "admin"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrNotActive          = errors.New("session is not active")
)

// generalPassword is the accepted shape of a general user's password; the
// value must also fall inside the configured numeric range.
var generalPassword = regexp.MustCompile(`^[0-9]{4}$`)

// Session is the context of one authenticated browser session. For general
// users VisitID identifies the visit row written at logout.
type Session struct {
	VisitID   string
	UserName  string
	Role      Role
	StartTime time.Time
}

func (s Session) IsAdmin() bool   { return s.Role == RoleAdmin }
func (s Session) IsGeneral() bool { return s.Role == RoleGeneral }

// Credentials holds the plain-text admin login and the general password
// range.
type Credentials struct {
	AdminUser     string
	AdminPassword string
	PassMin       int
	PassMax       int
}

// Check returns the role the name/password pair authenticates as.
func (c Credentials) Check(name, password string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidCredentials
	}
	if c.AdminUser != "" && name == c.AdminUser {
		if c.AdminPassword != "" && subtle.ConstantTimeCompare([]byte(password), []byte(c.AdminPassword)) == 1 {
			return RoleAdmin, nil
		}
		return "", ErrInvalidCredentials
	}
	if !generalPassword.MatchString(password) {
		return "", ErrInvalidCredentials
	}
	n, err := strconv.Atoi(password)
	if err != nil || n < c.PassMin || n > c.PassMax {
		return "", ErrInvalidCredentials
	}
	return RoleGeneral, nil
}

type claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// Manager issues session tokens and tracks which sessions are active.
type Manager struct {
	secret []byte
	creds  Credentials
	ttl    time.Duration
	now    func() time.Time

	mu     sync.Mutex
	active map[string]Session
}

type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithTokenTTL bounds how long a session token stays valid.
func WithTokenTTL(d time.Duration) Option {
	return func(m *Manager) { m.ttl = d }
}

// NewManager signs tokens with secret. An empty secret is replaced by a
// random one, so tokens do not survive a restart; neither do active
// sessions.
func NewManager(secret string, creds Credentials, opts ...Option) *Manager {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		_, _ = rand.Read(key)
	}
	m := &Manager{
		secret: key,
		creds:  creds,
		ttl:    24 * time.Hour,
		now:    time.Now,
		active: make(map[string]Session),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Start authenticates and registers a new session.
func (m *Manager) Start(name, password string) (Session, error) {
	role, err := m.creds.Check(name, password)
	if err != nil {
		return Session{}, err
	}
	s := Session{
		VisitID:   uuid.NewString(),
		UserName:  strings.TrimSpace(name),
		Role:      role,
		StartTime: m.now().UTC().Truncate(time.Second),
	}
	m.mu.Lock()
	// Sessions whose token has expired can never log out.
	for id, old := range m.active {
		if s.StartTime.Sub(old.StartTime) > m.ttl {
			delete(m.active, id)
		}
	}
	m.active[s.VisitID] = s
	m.mu.Unlock()
	return s, nil
}

// End unregisters a session and reports whether it was still active. Only
// the first End for a visit returns true.
func (m *Manager) End(visitID string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.active[visitID]
	if ok {
		delete(m.active, visitID)
	}
	return s, ok
}

// Active returns the registered session for visitID.
func (m *Manager) Active(visitID string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.active[visitID]
	return s, ok
}

// Token signs s into an HS256 JWT.
func (m *Manager) Token(s Session) (string, error) {
	c := claims{
		Role: s.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        s.VisitID,
			Subject:   s.UserName,
			IssuedAt:  jwt.NewNumericDate(s.StartTime),
			ExpiresAt: jwt.NewNumericDate(s.StartTime.Add(m.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
}

// Resolve validates a token and returns its session if it is still
// active. A valid token for an ended session yields ErrNotActive.
func (m *Manager) Resolve(token string) (Session, error) {
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		return Session{}, ErrInvalidToken
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid || c.ID == "" {
		return Session{}, ErrInvalidToken
	}
	s, ok := m.Active(c.ID)
	if !ok {
		return Session{}, ErrNotActive
	}
	return s, nil
}
