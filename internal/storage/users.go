package storage

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"clipstream/internal/models"
)

const (
	passwordHashSaltLength = 16
	passwordHashKeyLength  = 32
	passwordHashIterations = 120000
)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser registers a new account. Email and channel name must be unique;
// the channel name doubles as the public handle shown on videos and comments.
func (s *Storage) CreateUser(ctx context.Context, params CreateUserParams) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	email := normalizeEmail(params.Email)
	if email == "" {
		return models.User{}, errors.New("email is required")
	}
	if len(params.Password) < 8 {
		return models.User{}, errors.New("password must be at least 8 characters")
	}
	displayName := strings.TrimSpace(params.DisplayName)
	if displayName == "" {
		return models.User{}, errors.New("display name is required")
	}
	channelName := strings.TrimSpace(params.ChannelName)
	if channelName == "" {
		channelName = displayName
	}

	hashed, err := hashPassword(params.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}
	id, err := generateID()
	if err != nil {
		return models.User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.data.Users {
		if normalizeEmail(existing.Email) == email {
			return models.User{}, ErrEmailInUse
		}
		if strings.EqualFold(existing.ChannelName, channelName) {
			return models.User{}, ErrChannelNameInUse
		}
	}

	now := time.Now().UTC()
	user := models.User{
		ID:           id,
		Email:        email,
		PasswordHash: hashed,
		DisplayName:  displayName,
		AvatarURL:    strings.TrimSpace(params.AvatarURL),
		ChannelName:  channelName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	updatedData := cloneDataset(s.data)
	updatedData.Users[id] = user
	if err := s.persistDataset(updatedData); err != nil {
		return models.User{}, err
	}
	s.data = updatedData

	return user, nil
}

// AuthenticateUser verifies credentials and returns the matching user.
func (s *Storage) AuthenticateUser(ctx context.Context, email, password string) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	if password == "" {
		return models.User{}, errors.New("password is required")
	}

	s.mu.RLock()
	var user models.User
	found := false
	normalized := normalizeEmail(email)
	for _, candidate := range s.data.Users {
		if normalizeEmail(candidate.Email) == normalized {
			user = candidate
			found = true
			break
		}
	}
	s.mu.RUnlock()

	if !found {
		return models.User{}, ErrInvalidCredentials
	}
	if err := verifyPassword(user.PasswordHash, password); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (s *Storage) GetUser(ctx context.Context, id string) (models.User, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.data.Users[id]
	return user, ok, nil
}

// GetUsers returns the users matching ids, keyed by id. Unknown ids are
// silently absent from the result so callers can substitute placeholders.
func (s *Storage) GetUsers(ctx context.Context, ids []string) (map[string]models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make(map[string]models.User, len(ids))
	for _, id := range ids {
		if user, ok := s.data.Users[id]; ok {
			users[id] = user
		}
	}
	return users, nil
}

func (s *Storage) UpdateUser(ctx context.Context, id string, update UserUpdate) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.data.Users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}

	if update.ChannelName != nil {
		channelName := strings.TrimSpace(*update.ChannelName)
		if channelName == "" {
			return models.User{}, errors.New("channel name cannot be empty")
		}
		for otherID, other := range s.data.Users {
			if otherID != id && strings.EqualFold(other.ChannelName, channelName) {
				return models.User{}, ErrChannelNameInUse
			}
		}
		user.ChannelName = channelName
	}
	if update.DisplayName != nil {
		displayName := strings.TrimSpace(*update.DisplayName)
		if displayName == "" {
			return models.User{}, errors.New("display name cannot be empty")
		}
		user.DisplayName = displayName
	}
	if update.AvatarURL != nil {
		user.AvatarURL = strings.TrimSpace(*update.AvatarURL)
	}
	if update.ChannelDescription != nil {
		user.ChannelDescription = strings.TrimSpace(*update.ChannelDescription)
	}
	user.UpdatedAt = time.Now().UTC()

	updatedData := cloneDataset(s.data)
	updatedData.Users[id] = user
	if err := s.persistDataset(updatedData); err != nil {
		return models.User{}, err
	}
	s.data = updatedData

	return user, nil
}

func hashPassword(password string) (string, error) {
	salt := make([]byte, passwordHashSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	derived := pbkdf2.Key([]byte(password), salt, passwordHashIterations, passwordHashKeyLength, sha256.New)
	encodedSalt := base64.RawStdEncoding.EncodeToString(salt)
	encodedKey := base64.RawStdEncoding.EncodeToString(derived)
	return fmt.Sprintf("pbkdf2$sha256$%d$%s$%s", passwordHashIterations, encodedSalt, encodedKey), nil
}

func verifyPassword(encodedHash, candidate string) error {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 5 {
		return fmt.Errorf("verify password: invalid hash format")
	}
	if parts[0] != "pbkdf2" || parts[1] != "sha256" {
		return fmt.Errorf("verify password: unsupported hash identifier")
	}
	iterations, err := strconv.Atoi(parts[2])
	if err != nil || iterations <= 0 {
		return fmt.Errorf("verify password: invalid iteration count")
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return fmt.Errorf("verify password: decode salt: %w", err)
	}
	storedKey, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return fmt.Errorf("verify password: decode hash: %w", err)
	}
	derived := pbkdf2.Key([]byte(candidate), salt, iterations, len(storedKey), sha256.New)
	if len(derived) != len(storedKey) || subtle.ConstantTimeCompare(derived, storedKey) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}
