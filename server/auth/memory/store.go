package memory

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/cyp0633/librecur/server/auth"
	"github.com/cyp0633/librecur/server/storage"
)

// User represents a user in the memory store
type User struct {
	Username string
	// digest of the password; equal lengths keep the comparison constant-time
	digest [sha256.Size]byte
}

// Store implements an in-memory authentication store
type Store struct {
	mu     sync.RWMutex
	users  map[string]User // map[username]User
	logger *slog.Logger
}

// New creates a new in-memory authentication store
func New(opts ...Option) *Store {
	s := &Store{
		users:  make(map[string]User),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	// Apply options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Option represents a configuration option for the Store
type Option func(*Store)

// WithLogger sets the logger for the store
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithUsers seeds the store with username to password pairs
func WithUsers(users map[string]string) Option {
	return func(s *Store) {
		for name, password := range users {
			s.users[name] = User{Username: name, digest: sha256.Sum256([]byte(password))}
		}
	}
}

// AddUser adds a new user to the store
func (s *Store) AddUser(username, password string) error {
	if username == "" || strings.Contains(username, "/") {
		return fmt.Errorf("invalid username: %q", username)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[username]; exists {
		s.logger.Warn("failed to add user: already exists",
			"username", username)
		return fmt.Errorf("user already exists: %s", username)
	}

	s.users[username] = User{
		Username: username,
		digest:   sha256.Sum256([]byte(password)),
	}

	s.logger.Info("user added successfully",
		"username", username)

	return nil
}

// Users returns the number of registered users
func (s *Store) Users() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// Authenticate implements auth.Authenticator
func (s *Store) Authenticate(ctx context.Context, creds auth.Credentials) (*auth.Principal, error) {
	s.mu.RLock()
	user, exists := s.users[creds.Username]
	s.mu.RUnlock()

	given := sha256.Sum256([]byte(creds.Password))
	if !exists || subtle.ConstantTimeCompare(user.digest[:], given[:]) != 1 {
		s.logger.Info("authentication failed",
			"username", creds.Username,
			"known_user", exists)
		return nil, &auth.Error{
			Type:    auth.ErrInvalidCredentials,
			Message: "invalid username or password",
		}
	}

	s.logger.Debug("authentication successful",
		"username", creds.Username)

	return &auth.Principal{ID: creds.Username}, nil
}

// ValidateAccess implements auth.Authenticator. Principals may only reach
// schedules under their own /u/<id> tree; paths outside any user tree are
// open to every authenticated principal.
func (s *Store) ValidateAccess(ctx context.Context, principal *auth.Principal, path string) error {
	if principal == nil {
		s.logger.Info("access validation failed: no principal")
		return &auth.Error{
			Type:    auth.ErrUnauthorized,
			Message: "authentication required",
		}
	}

	// Strip any base URI prefix from the path before parsing
	idx := strings.Index(path, "/u/")
	if idx == -1 {
		return nil
	}
	resourcePath, err := storage.ParseResourcePath(path[idx:])
	if err != nil {
		// Unknown layouts are left for the handler to reject
		return nil
	}

	if resourcePath.UserID != principal.ID {
		s.logger.Warn("access validation failed: forbidden",
			"username", principal.ID,
			"requested_user", resourcePath.UserID,
			"path", path)
		return &auth.Error{
			Type:    auth.ErrForbidden,
			Message: fmt.Sprintf("access denied to resource: %s", path),
		}
	}

	s.logger.Debug("access validation successful",
		"username", principal.ID,
		"path", path)

	return nil
}
