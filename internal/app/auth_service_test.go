package app

import (
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"pdfchat/internal/model"
	"pdfchat/internal/pkg/jwtutil"
)

type fakeUserStore struct {
	users map[string]*model.User // keyed by email
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[string]*model.User{}}
}

func (s *fakeUserStore) Create(user *model.User) error {
	if user.ID == "" {
		user.ID = "user-" + user.Email
	}
	s.users[user.Email] = user
	return nil
}

func (s *fakeUserStore) GetByEmail(email string) (*model.User, error) {
	return s.users[email], nil
}

func (s *fakeUserStore) GetByID(id string) (*model.User, error) {
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}

func newAuthService() (*AuthService, *fakeUserStore) {
	store := newFakeUserStore()
	return NewAuthService(store, "test-secret", time.Hour), store
}

func TestRegisterAndLogin(t *testing.T) {
	svc, store := newAuthService()

	result, err := svc.Register(RegisterInput{
		Email:    "A@Example.com",
		Name:     "Alice",
		Password: "password123",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if result.User.Email != "a@example.com" {
		t.Fatalf("email not normalized: %q", result.User.Email)
	}
	if result.User.PasswordHash == "password123" {
		t.Fatal("password stored in plaintext")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(result.User.PasswordHash), []byte("password123")); err != nil {
		t.Fatalf("stored hash does not match password: %v", err)
	}

	claims, err := jwtutil.ParseToken("test-secret", result.Token)
	if err != nil {
		t.Fatalf("register token invalid: %v", err)
	}
	if claims.UserID != result.User.ID {
		t.Fatalf("token not bound to user: %q vs %q", claims.UserID, result.User.ID)
	}

	login, err := svc.Login(LoginInput{Email: "a@example.com", Password: "password123"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if login.User.ID != result.User.ID {
		t.Fatal("login returned a different user")
	}
	if len(store.users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(store.users))
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newAuthService()

	input := RegisterInput{Email: "a@example.com", Name: "Alice", Password: "password123"}
	if _, err := svc.Register(input); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if _, err := svc.Register(input); !errors.Is(err, ErrEmailExists) {
		t.Fatalf("expected ErrEmailExists, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newAuthService()

	cases := []RegisterInput{
		{Email: "", Name: "n", Password: "password123"},
		{Email: "a@b.com", Name: "", Password: "password123"},
		{Email: "a@b.com", Name: "n", Password: ""},
		{Email: "a@b.com", Name: "n", Password: "short"},
	}
	for i, input := range cases {
		if _, err := svc.Register(input); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("case %d: expected ErrInvalidInput, got %v", i, err)
		}
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _ := newAuthService()
	if _, err := svc.Register(RegisterInput{Email: "a@b.com", Name: "n", Password: "password123"}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if _, err := svc.Login(LoginInput{Email: "a@b.com", Password: "wrong-password"}); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	svc, _ := newAuthService()
	if _, err := svc.Login(LoginInput{Email: "nobody@b.com", Password: "password123"}); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
}
