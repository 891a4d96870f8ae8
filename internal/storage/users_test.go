package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestCreateUserDefaultsAndHash(t *testing.T) {
	store := newTestStore(t)

	user, err := store.CreateUser(context.Background(), CreateUserParams{
		Email:       "Viewer@Example.com",
		Password:    "correct horse battery",
		DisplayName: "Viewer",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.Email != "viewer@example.com" {
		t.Fatalf("email = %q, want lowercased", user.Email)
	}
	if user.ChannelName != "Viewer" {
		t.Fatalf("channel name = %q, want display name default", user.ChannelName)
	}
	if !strings.HasPrefix(user.PasswordHash, "pbkdf2$sha256$") {
		t.Fatalf("password hash %q missing pbkdf2 prefix", user.PasswordHash)
	}
	if strings.Contains(user.PasswordHash, "correct horse battery") {
		t.Fatalf("password stored in the clear")
	}
}

func TestCreateUserValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.CreateUser(ctx, CreateUserParams{Password: "long enough", DisplayName: "x"}); err == nil {
		t.Fatalf("expected error for missing email")
	}
	if _, err := store.CreateUser(ctx, CreateUserParams{Email: "a@b.com", Password: "short", DisplayName: "x"}); err == nil {
		t.Fatalf("expected error for short password")
	}
}

func TestCreateUserUniqueness(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	createTestUser(t, store, "first")

	if _, err := store.CreateUser(ctx, CreateUserParams{
		Email:       "FIRST@example.com",
		Password:    "another password",
		DisplayName: "Duplicate",
	}); !errors.Is(err, ErrEmailInUse) {
		t.Fatalf("error = %v, want ErrEmailInUse", err)
	}

	if _, err := store.CreateUser(ctx, CreateUserParams{
		Email:       "second@example.com",
		Password:    "another password",
		DisplayName: "Second",
		ChannelName: "first",
	}); !errors.Is(err, ErrChannelNameInUse) {
		t.Fatalf("error = %v, want ErrChannelNameInUse", err)
	}
}

func TestAuthenticateUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, store, "viewer")

	authed, err := store.AuthenticateUser(ctx, "viewer@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("AuthenticateUser: %v", err)
	}
	if authed.ID != user.ID {
		t.Fatalf("authenticated wrong user %q", authed.ID)
	}

	if _, err := store.AuthenticateUser(ctx, "viewer@example.com", "wrong password!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password error = %v, want ErrInvalidCredentials", err)
	}
	if _, err := store.AuthenticateUser(ctx, "nobody@example.com", "whatever password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email error = %v, want ErrInvalidCredentials", err)
	}
}

func TestUpdateUserPartial(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, store, "viewer")
	createTestUser(t, store, "taken")

	display := "Renamed"
	updated, err := store.UpdateUser(ctx, user.ID, UserUpdate{DisplayName: &display})
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if updated.DisplayName != "Renamed" {
		t.Fatalf("display name = %q, want Renamed", updated.DisplayName)
	}
	if updated.ChannelName != "viewer" {
		t.Fatalf("channel name = %q changed by unrelated update", updated.ChannelName)
	}

	conflict := "taken"
	if _, err := store.UpdateUser(ctx, user.ID, UserUpdate{ChannelName: &conflict}); !errors.Is(err, ErrChannelNameInUse) {
		t.Fatalf("error = %v, want ErrChannelNameInUse", err)
	}

	if _, err := store.UpdateUser(ctx, "missing", UserUpdate{DisplayName: &display}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestGetUsersOmitsMissing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	first := createTestUser(t, store, "first")
	second := createTestUser(t, store, "second")

	users, err := store.GetUsers(ctx, []string{first.ID, "missing", second.ID})
	if err != nil {
		t.Fatalf("GetUsers: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("users = %d, want 2", len(users))
	}
	if _, ok := users["missing"]; ok {
		t.Fatalf("missing id present in result")
	}
}
