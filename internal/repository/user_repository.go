package repository

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/glaucoscan/internal/logging"
)

// UserRepository provides persistence APIs for accounts.
type UserRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewUserRepository creates a new repository instance.
func NewUserRepository(db *gorm.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{db: db, logger: logger.Named("user_repository")}
}

// Create inserts a new user. Email uniqueness is checked before username,
// so a request clashing on both reports ErrDuplicateEmail.
func (r *UserRepository) Create(ctx context.Context, user *User) error {
	db := r.db.WithContext(ctx)

	taken, err := r.exists(db, "email = ?", user.Email)
	if err != nil {
		return logging.NewOperationError("repository.create_user", "", err)
	}
	if taken {
		return ErrDuplicateEmail
	}
	taken, err = r.exists(db, "username = ?", user.Username)
	if err != nil {
		return logging.NewOperationError("repository.create_user", "", err)
	}
	if taken {
		return ErrDuplicateUsername
	}

	if err := db.Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// lost a race with a concurrent registration
			if taken, _ := r.exists(db, "email = ?", user.Email); taken {
				return ErrDuplicateEmail
			}
			return ErrDuplicateUsername
		}
		r.logger.Error("failed to insert user", zap.Error(err), zap.String("username", user.Username))
		return logging.NewOperationError("repository.create_user", "", err)
	}
	return nil
}

// FindByID loads a user by primary key.
func (r *UserRepository) FindByID(ctx context.Context, id uint) (*User, error) {
	var user User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, translateNotFound("repository.find_user_by_id", err)
	}
	return &user, nil
}

// FindByUsername loads a user by exact username.
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	if err := r.db.WithContext(ctx).First(&user, "username = ?", username).Error; err != nil {
		return nil, translateNotFound("repository.find_user_by_username", err)
	}
	return &user, nil
}

// List returns every user ordered by id.
func (r *UserRepository) List(ctx context.Context) ([]User, error) {
	var users []User
	if err := r.db.WithContext(ctx).Order("id").Find(&users).Error; err != nil {
		return nil, logging.NewOperationError("repository.list_users", "", err)
	}
	return users, nil
}

func (r *UserRepository) exists(db *gorm.DB, query string, args ...interface{}) (bool, error) {
	var count int64
	if err := db.Model(&User{}).Where(query, args...).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func translateNotFound(operation string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return logging.NewOperationError(operation, "", err)
}
