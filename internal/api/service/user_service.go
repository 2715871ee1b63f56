package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ctchen222/popug-auth/internal/api/models"
	"ctchen222/popug-auth/internal/api/repository"
	"ctchen222/popug-auth/internal/auth"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("service.user")
	meter  = otel.Meter("service.user")
)

var (
	// ErrUsernameTaken is returned when registering an existing username.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrInvalidCredentials is returned for an unknown user or a wrong
	// password. The two cases are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrPasswordTooLong is returned for passwords the hasher cannot accept.
	ErrPasswordTooLong = auth.ErrPasswordTooLong
)

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
	VerifyMissing(password string) bool
}

// TokenCodec issues and verifies bearer tokens.
type TokenCodec interface {
	Encode(username string) (string, error)
	Decode(token string) (string, error)
}

// UserCache is an optional read-through cache of user records.
type UserCache interface {
	Get(ctx context.Context, username string) (*models.User, error)
	Set(ctx context.Context, user *models.User) error
}

//go:generate mockgen -source=user_service.go -destination=mocks/mock_user_service.go -package=mocks UserService

// UserService defines the interface for user-related business logic.
type UserService interface {
	Register(ctx context.Context, req *models.RegisterRequest) error
	Login(ctx context.Context, req *models.LoginRequest) (string, error)
	Authenticate(ctx context.Context, token string) (string, error)
}

type userService struct {
	uow    repository.UnitOfWork
	hasher PasswordHasher
	tokens TokenCodec
	cache  UserCache

	registrations metric.Int64Counter
	logins        metric.Int64Counter
}

// Option configures optional collaborators of the user service.
type Option func(*userService)

// WithCache enables the user cache for logins.
func WithCache(c UserCache) Option {
	return func(s *userService) {
		s.cache = c
	}
}

// NewUserService creates a new UserService.
func NewUserService(uow repository.UnitOfWork, hasher PasswordHasher, tokens TokenCodec, opts ...Option) UserService {
	s := &userService{
		uow:    uow,
		hasher: hasher,
		tokens: tokens,
	}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	s.registrations, err = meter.Int64Counter("auth.registrations",
		metric.WithDescription("Registration attempts by outcome"))
	if err != nil {
		otel.Handle(err)
	}
	s.logins, err = meter.Int64Counter("auth.logins",
		metric.WithDescription("Login attempts by outcome"))
	if err != nil {
		otel.Handle(err)
	}
	return s
}

// Register hashes the password and stores a new user. The hash is computed
// before the unit of work starts so no connection is held during bcrypt.
// Uniqueness is left to the store: the insert is the first statement of the
// transaction, so a concurrent duplicate surfaces as a constraint violation
// instead of a stale read.
func (s *userService) Register(ctx context.Context, req *models.RegisterRequest) (err error) {
	ctx, span := tracer.Start(ctx, "UserService.Register")
	defer span.End()
	span.SetAttributes(attribute.String("user.name", req.Username))
	defer func() { s.count(ctx, s.registrations, err) }()

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return err
	}

	err = s.uow.Do(ctx, func(users repository.UserRepository) error {
		return users.CreateUser(ctx, &models.User{
			Username:     req.Username,
			PasswordHash: hash,
		})
	})
	if errors.Is(err, repository.ErrUsernameTaken) {
		return ErrUsernameTaken
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "register failed")
		return err
	}

	slog.InfoContext(ctx, "user registered", "user.name", req.Username)
	return nil
}

// Login verifies the credentials and returns a signed token on success.
func (s *userService) Login(ctx context.Context, req *models.LoginRequest) (token string, err error) {
	ctx, span := tracer.Start(ctx, "UserService.Login")
	defer span.End()
	span.SetAttributes(attribute.String("user.name", req.Username))
	defer func() { s.count(ctx, s.logins, err) }()

	user, err := s.findUser(ctx, req.Username)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "user lookup failed")
		return "", err
	}

	if user == nil {
		s.hasher.VerifyMissing(req.Password)
		return "", ErrInvalidCredentials
	}
	if !s.hasher.Verify(req.Password, user.PasswordHash) {
		return "", ErrInvalidCredentials
	}

	token, err = s.tokens.Encode(user.Username)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "token signing failed")
		return "", err
	}
	return token, nil
}

// Authenticate returns the username embedded in a valid token.
func (s *userService) Authenticate(ctx context.Context, token string) (string, error) {
	_, span := tracer.Start(ctx, "UserService.Authenticate")
	defer span.End()

	username, err := s.tokens.Decode(token)
	if err != nil {
		return "", err
	}
	span.SetAttributes(attribute.String("user.name", username))
	return username, nil
}

// findUser consults the cache first and fills it on a miss. Cache failures
// are logged and never fail the login.
func (s *userService) findUser(ctx context.Context, username string) (*models.User, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, username)
		if err != nil {
			slog.WarnContext(ctx, "user cache read failed", "user.name", username, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	var user *models.User
	err := s.uow.Do(ctx, func(users repository.UserRepository) error {
		var err error
		user, err = users.GetUserByUsername(ctx, username)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if s.cache != nil && user != nil {
		if err := s.cache.Set(ctx, user); err != nil {
			slog.WarnContext(ctx, "user cache write failed", "user.name", username, "error", err)
		}
	}
	return user, nil
}

func (s *userService) count(ctx context.Context, counter metric.Int64Counter, err error) {
	if counter == nil {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome(err))))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrUsernameTaken):
		return "conflict"
	case errors.Is(err, ErrInvalidCredentials):
		return "unauthorized"
	case errors.Is(err, ErrPasswordTooLong):
		return "invalid"
	default:
		return "error"
	}
}
