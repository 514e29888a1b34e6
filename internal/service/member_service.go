package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/athenaeum-io/athenaeum/internal/domain"
	"github.com/athenaeum-io/athenaeum/internal/repository"
)

// MemberService manages the patrons of the library.
type MemberService struct {
	users  repository.UserRepository
	logger zerolog.Logger
}

// NewMemberService creates a new MemberService.
func NewMemberService(users repository.UserRepository, logger zerolog.Logger) *MemberService {
	return &MemberService{
		users:  users,
		logger: logger.With().Str("service", "member").Logger(),
	}
}

// =============================================================================
// Input/Output Structs
// =============================================================================

// RegisterUserInput contains the data needed to register a user.
type RegisterUserInput struct {
	Name  string
	Email string

	// Password is optional; users provisioned through an external
	// identity provider have none.
	Password string
}

// RegisterUserOutput contains the newly registered user.
type RegisterUserOutput struct {
	User *domain.User
}

// GetOrRegisterUserOutput contains the resolved user and whether it
// was created by this call.
type GetOrRegisterUserOutput struct {
	User    *domain.User
	Created bool
}

// GetUserInput contains the data needed to get a user.
type GetUserInput struct {
	UserID uuid.UUID
}

// GetUserOutput contains the requested user.
type GetUserOutput struct {
	User *domain.User
}

// AuthenticateInput contains the credentials to verify.
type AuthenticateInput struct {
	Email    string
	Password string
}

// AuthenticateOutput contains the authenticated user.
type AuthenticateOutput struct {
	User *domain.User
}

// ListUsersOutput contains all users ordered by name.
type ListUsersOutput struct {
	Users []*domain.User
}

// =============================================================================
// Service Methods
// =============================================================================

// RegisterUser registers a new patron. The email must be unused; the
// password, when given, is stored as a bcrypt hash.
func (s *MemberService) RegisterUser(ctx context.Context, input RegisterUserInput) (*RegisterUserOutput, error) {
	name := strings.TrimSpace(input.Name)
	if len(name) < 1 || len(name) > 128 {
		return nil, ErrInvalidName
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if !isValidEmail(email) {
		return nil, ErrInvalidEmail
	}

	var hash string
	if input.Password != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to hash password")
			return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
		}
		hash = string(hashed)
	}

	user := domain.NewUser(name, email, hash)

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrUserAlreadyExists) {
			return nil, domain.ErrUserAlreadyExists
		}
		s.logger.Error().Err(err).Str("email", email).Msg("failed to create user")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Info().
		Str("user_id", user.ID.String()).
		Str("email", email).
		Msg("user registered")

	return &RegisterUserOutput{User: user}, nil
}

// GetOrRegisterUser resolves a user by email, registering one when the
// address is unknown. Two callers racing on the same fresh address both
// get the same user: the loser of the insert race re-reads the winner's
// row.
func (s *MemberService) GetOrRegisterUser(ctx context.Context, input RegisterUserInput) (*GetOrRegisterUserOutput, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if !isValidEmail(email) {
		return nil, ErrInvalidEmail
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return &GetOrRegisterUserOutput{User: user, Created: false}, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		s.logger.Error().Err(err).Str("email", email).Msg("failed to get user by email")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	out, err := s.RegisterUser(ctx, input)
	if err == nil {
		return &GetOrRegisterUserOutput{User: out.User, Created: true}, nil
	}
	if !errors.Is(err, domain.ErrUserAlreadyExists) {
		return nil, err
	}

	// Lost the insert race; the row exists now.
	user, err = s.users.GetByEmail(ctx, email)
	if err != nil {
		s.logger.Error().Err(err).Str("email", email).Msg("failed to get user after insert race")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return &GetOrRegisterUserOutput{User: user, Created: false}, nil
}

// GetUser returns a user by ID.
func (s *MemberService) GetUser(ctx context.Context, input GetUserInput) (*GetUserOutput, error) {
	user, err := s.users.GetByID(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrUserNotFound
		}
		s.logger.Error().Err(err).Str("user_id", input.UserID.String()).Msg("failed to get user")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	return &GetUserOutput{User: user}, nil
}

// Authenticate verifies a user's credentials. The same error comes
// back for an unknown email and a wrong password, so callers cannot
// probe which addresses are registered.
func (s *MemberService) Authenticate(ctx context.Context, input AuthenticateInput) (*AuthenticateOutput, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrUserNotFound
		}
		s.logger.Error().Err(err).Str("email", email).Msg("failed to get user by email")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if user.PasswordHash == "" {
		return nil, domain.ErrUserNotFound
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, domain.ErrUserNotFound
	}

	return &AuthenticateOutput{User: user}, nil
}

// ListUsers returns all users ordered by name.
func (s *MemberService) ListUsers(ctx context.Context) (*ListUsersOutput, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list users")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	return &ListUsersOutput{Users: users}, nil
}

// UserExists checks whether a user with the ID exists.
func (s *MemberService) UserExists(ctx context.Context, id uuid.UUID) (bool, error) {
	exists, err := s.users.Exists(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", id.String()).Msg("failed to check user existence")
		return false, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return exists, nil
}

// isValidEmail does a minimal structural check on an email address.
func isValidEmail(email string) bool {
	if len(email) < 3 || len(email) > 254 {
		return false
	}
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	return !strings.Contains(email[at+1:], "@")
}
