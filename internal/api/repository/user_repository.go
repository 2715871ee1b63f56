package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"ctchen222/popug-auth/internal/api/models"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("repository.user")

// ErrUsernameTaken is returned when the store rejects a duplicate username.
var ErrUsernameTaken = errors.New("username already taken")

// SQLite extended result code for a UNIQUE constraint violation.
const sqliteConstraintUnique = 2067

//go:generate mockgen -source=user_repository.go -destination=mocks/mock_user_repository.go -package=mocks

// UserRepository defines the interface for user data operations.
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

type sqliteUserRepository struct {
	q sqlx.ExtContext
}

// NewUserRepository creates a SQLite-based UserRepository on top of q,
// which is normally the transaction of a unit of work.
func NewUserRepository(q sqlx.ExtContext) UserRepository {
	return &sqliteUserRepository{q: q}
}

// CreateUser inserts a new user and sets user.ID to the assigned id.
func (r *sqliteUserRepository) CreateUser(ctx context.Context, user *models.User) error {
	ctx, span := tracer.Start(ctx, "UserRepository.CreateUser")
	defer span.End()
	span.SetAttributes(attribute.String("user.name", user.Username))

	query := `INSERT INTO users (username, password_hash) VALUES (?, ?)`
	res, err := r.q.ExecContext(ctx, query, user.Username, user.PasswordHash)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUsernameTaken
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read user id: %w", err)
	}
	user.ID = id
	return nil
}

// GetUserByUsername retrieves a user from the database by their username.
func (r *sqliteUserRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "UserRepository.GetUserByUsername")
	defer span.End()
	span.SetAttributes(attribute.String("user.name", username))

	var user models.User
	query := `SELECT id, username, password_hash FROM users WHERE username = ?`
	err := sqlx.GetContext(ctx, r.q, &user, query, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // No user found is not an application error
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}
	return &user, nil
}

// isUniqueViolation recognises the driver's constraint error by its extended
// code, falling back to the message text.
func isUniqueViolation(err error) bool {
	var coded interface{ Code() int }
	if errors.As(err, &coded) && coded.Code() == sqliteConstraintUnique {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
