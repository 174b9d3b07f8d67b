package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinicdesk/clinicdesk/internal/platform/store"
)

// Service authenticates users against the record store and keeps the single
// session pointer up to date.
type Service struct {
	store  store.Store
	tokens *TokenIssuer
	logger zerolog.Logger
}

func NewService(st store.Store, tokens *TokenIssuer, logger zerolog.Logger) *Service {
	return &Service{store: st, tokens: tokens, logger: logger}
}

// HashPassword bcrypt-hashes a password for storage.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// verifyPassword accepts a bcrypt hash or, for legacy hand-written records, a
// plaintext password. The second return reports whether the stored value
// needs upgrading to a hash.
func verifyPassword(stored, candidate string) (ok, needsUpgrade bool) {
	if err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(candidate)); err == nil {
		return true, false
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) == 1 {
		return true, true
	}
	return false, false
}

// DecodeUsers unmarshals a users collection, skipping records that no longer
// parse rather than failing the whole read.
func DecodeUsers(docs []json.RawMessage, logger zerolog.Logger) []User {
	users := make([]User, 0, len(docs))
	for _, doc := range docs {
		var u User
		if err := json.Unmarshal(doc, &u); err != nil {
			logger.Warn().Err(err).Msg("skipping malformed user record")
			continue
		}
		users = append(users, u)
	}
	return users
}

// Login checks the email/password pair against the stored users, persists the
// session pointer and issues a bearer token. Lookup is an exact email match.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	docs, err := s.store.Get(ctx, store.Users)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	users := DecodeUsers(docs, s.logger)

	for _, u := range users {
		if u.Email != email {
			continue
		}
		ok, needsUpgrade := verifyPassword(u.Password, password)
		if !ok {
			return nil, ErrInvalidCredentials
		}
		if needsUpgrade {
			if err := s.upgradePassword(ctx, u.ID, password); err != nil {
				s.logger.Warn().Err(err).Str("user_id", u.ID).Msg("password upgrade failed")
			}
		}

		session := u.SessionUser()
		doc, err := store.MarshalDoc(session)
		if err != nil {
			return nil, fmt.Errorf("encode session: %w", err)
		}
		if err := s.store.SetValue(ctx, store.SessionUserKey, doc); err != nil {
			return nil, fmt.Errorf("persist session: %w", err)
		}

		token, err := s.tokens.Issue(session)
		if err != nil {
			return nil, err
		}
		s.logger.Info().Str("user_id", u.ID).Str("role", u.Role).Msg("user logged in")
		return &Session{User: session, Token: token}, nil
	}
	return nil, ErrInvalidCredentials
}

// upgradePassword replaces a plaintext stored password with its hash.
func (s *Service) upgradePassword(ctx context.Context, userID, password string) error {
	hashed, err := HashPassword(password)
	if err != nil {
		return err
	}
	return s.store.Update(ctx, func(tx *store.Tx) error {
		docs, err := tx.Get(store.Users)
		if err != nil {
			return err
		}
		out := make([]json.RawMessage, 0, len(docs))
		for _, doc := range docs {
			var u User
			if err := json.Unmarshal(doc, &u); err != nil {
				out = append(out, doc)
				continue
			}
			if u.ID == userID {
				u.Password = hashed
				upgraded, err := store.MarshalDoc(u)
				if err != nil {
					return err
				}
				out = append(out, upgraded)
				continue
			}
			out = append(out, doc)
		}
		tx.Set(store.Users, out)
		return nil
	})
}

// Logout clears the session pointer. Logging out when nobody is logged in is
// a no-op.
func (s *Service) Logout(ctx context.Context) error {
	if err := s.store.DeleteValue(ctx, store.SessionUserKey); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Current returns the persisted session user, if any.
func (s *Service) Current(ctx context.Context) (*SessionUser, error) {
	raw, err := s.store.GetValue(ctx, store.SessionUserKey)
	if errors.Is(err, store.ErrValueNotFound) {
		return nil, ErrNotAuthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var session SessionUser
	if err := json.Unmarshal(raw, &session); err != nil {
		s.logger.Warn().Err(err).Msg("session pointer malformed, treating as logged out")
		return nil, ErrNotAuthenticated
	}
	return &session, nil
}
