package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/glaucoscan/internal/metrics"
	"github.com/example/glaucoscan/internal/password"
	"github.com/example/glaucoscan/internal/repository"
)

// DateLayout is the accepted date-of-birth format.
const DateLayout = "2006-01-02"

var (
	// ErrInvalidCredentials covers both an unknown username and a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidInput is returned for registration data that fails validation.
	ErrInvalidInput = errors.New("invalid registration data")
)

// UserRepository defines the account persistence the use cases need.
type UserRepository interface {
	Create(ctx context.Context, user *repository.User) error
	FindByID(ctx context.Context, id uint) (*repository.User, error)
	FindByUsername(ctx context.Context, username string) (*repository.User, error)
	List(ctx context.Context) ([]repository.User, error)
}

// Registration is the data submitted by the registration form.
type Registration struct {
	Username    string
	Password    string
	Name        string
	Email       string
	DateOfBirth string
}

// AccountUseCase implements registration, authentication and user listings.
type AccountUseCase struct {
	users   UserRepository
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewAccountUseCase constructs a new use case instance. m may be nil.
func NewAccountUseCase(users UserRepository, m *metrics.Metrics, logger *zap.Logger) *AccountUseCase {
	return &AccountUseCase{
		users:   users,
		metrics: m,
		logger:  logger.Named("account_usecase"),
		now:     time.Now,
	}
}

// Register validates the form, hashes the password and stores a new patient.
// Duplicates surface as repository.ErrDuplicateEmail or repository.ErrDuplicateUsername.
func (uc *AccountUseCase) Register(ctx context.Context, reg Registration) (*repository.User, error) {
	user, err := uc.newUser(reg, repository.RolePatient)
	if err != nil {
		return nil, err
	}
	if err := uc.users.Create(ctx, user); err != nil {
		return nil, err
	}
	uc.metrics.ObserveRegistration()
	uc.logger.Info("user registered", zap.Uint("user_id", user.ID), zap.String("username", user.Username))
	return user, nil
}

// EnsureAdmin creates the administrator account when it does not exist yet.
func (uc *AccountUseCase) EnsureAdmin(ctx context.Context, reg Registration) (*repository.User, error) {
	existing, err := uc.users.FindByUsername(ctx, reg.Username)
	if err == nil {
		if existing.Role != repository.RoleAdmin {
			return nil, fmt.Errorf("account %q exists and is not an administrator", reg.Username)
		}
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	if reg.DateOfBirth == "" {
		reg.DateOfBirth = uc.now().UTC().Format(DateLayout)
	}
	user, err := uc.newUser(reg, repository.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if err := uc.users.Create(ctx, user); err != nil {
		return nil, err
	}
	uc.logger.Info("administrator account created", zap.Uint("user_id", user.ID))
	return user, nil
}

// Authenticate returns the user matching username and password. The role a
// client asks for plays no part: the stored role is authoritative.
func (uc *AccountUseCase) Authenticate(ctx context.Context, username, pass string) (*repository.User, error) {
	user, err := uc.users.FindByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, repository.ErrNotFound) {
		uc.metrics.ObserveLogin(false)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := password.Compare(user.PasswordHash, pass); err != nil {
		uc.metrics.ObserveLogin(false)
		if !errors.Is(err, password.ErrMismatch) {
			uc.logger.Warn("stored password hash is unusable", zap.Uint("user_id", user.ID), zap.Error(err))
		}
		return nil, ErrInvalidCredentials
	}
	uc.metrics.ObserveLogin(true)
	return user, nil
}

// GetUser loads one user.
func (uc *AccountUseCase) GetUser(ctx context.Context, id uint) (*repository.User, error) {
	return uc.users.FindByID(ctx, id)
}

// ListUsers returns every registered user.
func (uc *AccountUseCase) ListUsers(ctx context.Context) ([]repository.User, error) {
	return uc.users.List(ctx)
}

func (uc *AccountUseCase) newUser(reg Registration, role string) (*repository.User, error) {
	reg.Username = strings.TrimSpace(reg.Username)
	reg.Name = strings.TrimSpace(reg.Name)
	reg.Email = strings.TrimSpace(reg.Email)

	switch {
	case reg.Username == "" || len(reg.Username) > 20:
		return nil, fmt.Errorf("%w: username must be 1 to 20 characters", ErrInvalidInput)
	case reg.Password == "" || len(reg.Password) > 72:
		return nil, fmt.Errorf("%w: password must be 1 to 72 characters", ErrInvalidInput)
	case reg.Name == "" || len(reg.Name) > 100:
		return nil, fmt.Errorf("%w: name must be 1 to 100 characters", ErrInvalidInput)
	case len(reg.Email) > 120:
		return nil, fmt.Errorf("%w: email is too long", ErrInvalidInput)
	}
	if addr, err := mail.ParseAddress(reg.Email); err != nil || addr.Address != reg.Email {
		return nil, fmt.Errorf("%w: email address is malformed", ErrInvalidInput)
	}
	dob, err := time.Parse(DateLayout, strings.TrimSpace(reg.DateOfBirth))
	if err != nil {
		return nil, fmt.Errorf("%w: date of birth must be YYYY-MM-DD", ErrInvalidInput)
	}

	hash, err := password.Hash(reg.Password)
	if err != nil {
		return nil, err
	}
	return &repository.User{
		Username:     reg.Username,
		PasswordHash: hash,
		Name:         reg.Name,
		Email:        reg.Email,
		DateOfBirth:  dob,
		Role:         role,
	}, nil
}
