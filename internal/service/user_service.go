package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"clubhub/internal/domain"
	"clubhub/internal/repository"
)

// UserService coordina registro, login y consulta de usuarios.
type UserService struct {
	logger *zap.Logger
	users  repository.UserRepository
	logins *LoginThrottle
	now    func() time.Time
}

func NewUserService(logger *zap.Logger, users repository.UserRepository, logins *LoginThrottle) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if logins == nil {
		logins = NewMemoryLoginThrottle(10*time.Minute, 5, 20)
	}
	return &UserService{
		logger: logger,
		users:  users,
		logins: logins,
		now:    time.Now,
	}
}

// SignUpInput es el cuerpo aceptado por el registro.
type SignUpInput struct {
	Name            string `json:"name" validate:"required,min=3"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=6"`
	Department      string `json:"department" validate:"required,oneof=CEC CCT CCE CCP CBSA CCH CCHM"`
	Role            string `json:"role" validate:"omitempty,oneof=student admin"`
	ProfileImageURL string `json:"profileImageUrl" validate:"omitempty,url"`
}

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrRateLimited        = errors.New("rate limited")
	ErrInvalidCredentials = errors.New("invalid credentials")
	errUsersNotConfigured = errors.New("user service not configured")
)

func (s *UserService) SignUp(ctx context.Context, input SignUpInput) (domain.User, error) {
	if s == nil || s.users == nil {
		return domain.User{}, errUsersNotConfigured
	}
	input.Name = strings.TrimSpace(input.Name)
	input.Email = normalizeEmail(input.Email)
	input.Department = strings.ToUpper(strings.TrimSpace(input.Department))
	input.Role = strings.ToLower(strings.TrimSpace(input.Role))
	input.ProfileImageURL = strings.TrimSpace(input.ProfileImageURL)
	if err := validateStruct(input); err != nil {
		return domain.User{}, err
	}
	if input.Role == "" {
		input.Role = domain.RoleStudent
	}

	if _, err := s.users.GetByEmail(ctx, input.Email); err == nil {
		return domain.User{}, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return domain.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}

	now := s.now().UTC()
	user := domain.User{
		ID:              uuid.NewString(),
		Name:            input.Name,
		Email:           input.Email,
		PasswordHash:    string(hash),
		Department:      input.Department,
		Role:            input.Role,
		ProfileImageURL: input.ProfileImageURL,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return domain.User{}, ErrEmailTaken
		}
		return domain.User{}, err
	}
	s.logger.Info("user signed up", zap.String("user_id", user.ID), zap.String("department", user.Department))
	return user, nil
}

// Authenticate valida credenciales. Los intentos se limitan por email y por IP.
func (s *UserService) Authenticate(ctx context.Context, email, password, clientIP string) (domain.User, error) {
	if s == nil || s.users == nil {
		return domain.User{}, errUsersNotConfigured
	}

	email = normalizeEmail(email)
	if email == "" || password == "" {
		return domain.User{}, ErrInvalidCredentials
	}
	if err := s.logins.Check(ctx, email, clientIP); err != nil {
		s.logger.Warn("login rate limited", zap.String("email", email), zap.String("client_ip", clientIP), zap.Error(err))
		return domain.User{}, err
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	if user.PasswordHash == "" {
		return domain.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return domain.User{}, ErrInvalidCredentials
	}
	s.logins.Succeeded(ctx, email)
	return user, nil
}

func (s *UserService) GetByID(ctx context.Context, id string) (domain.User, error) {
	if s == nil || s.users == nil {
		return domain.User{}, errUsersNotConfigured
	}
	user, err := s.users.GetByID(ctx, strings.TrimSpace(id))
	if errors.Is(err, repository.ErrNotFound) {
		return domain.User{}, ErrUserNotFound
	}
	return user, err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
