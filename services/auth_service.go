package services

import (
	"context"
	"log/slog"
	"time"

	"dm-lab/auth"
	"dm-lab/blobstore"
	"dm-lab/domain"
	"dm-lab/errors"
	"dm-lab/repositories"
)

// AuthService covers the account surface: signup, login, profile updates
// and the contact list backing the sidebar.
type AuthService struct {
	log           *slog.Logger
	users         repositories.IUserRepository
	blobs         blobstore.IBlobStore
	authenticator auth.Authenticator
	storeTimeout  time.Duration
}

func NewAuthService(log *slog.Logger, users repositories.IUserRepository,
	blobs blobstore.IBlobStore, authenticator auth.Authenticator,
	storeTimeout time.Duration) *AuthService {
	return &AuthService{
		log:           log,
		users:         users,
		blobs:         blobs,
		authenticator: authenticator,
		storeTimeout:  storeTimeout,
	}
}

// Signup creates an account and returns the user plus a session token.
func (a *AuthService) Signup(ctx context.Context, req auth.SignupRequest) (domain.User, string, error) {
	if err := auth.ValidateSignup(req); err != nil {
		a.log.Debug("Signup rejected", "error", err)
		return domain.User{}, "", errors.ErrInvalidSignup
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return domain.User{}, "", err
	}

	storeCtx, cancel := context.WithTimeout(ctx, a.storeTimeout)
	defer cancel()
	user, err := a.users.CreateUser(storeCtx, req.FullName, req.Email, hash)
	if err != nil {
		return domain.User{}, "", err
	}

	token, err := a.authenticator.Issue(user.ID)
	if err != nil {
		a.log.Error("Token generation failed", "error", err)
		return domain.User{}, "", errors.ErrTokenGeneration
	}
	a.log.Info("Account created", "user", user.ID)
	return user, token, nil
}

// Login verifies credentials and returns the user plus a session token.
// Unknown email and wrong password are indistinguishable to the caller.
func (a *AuthService) Login(ctx context.Context, email, password string) (domain.User, string, error) {
	storeCtx, cancel := context.WithTimeout(ctx, a.storeTimeout)
	defer cancel()

	stored, err := a.users.GetUserByEmail(storeCtx, email)
	if err != nil {
		return domain.User{}, "", errors.ErrInvalidCredentials
	}

	ok, err := auth.ComparePassword(password, stored.PasswordHash)
	if err != nil || !ok {
		return domain.User{}, "", errors.ErrInvalidCredentials
	}

	token, err := a.authenticator.Issue(stored.ID)
	if err != nil {
		a.log.Error("Token generation failed", "error", err)
		return domain.User{}, "", errors.ErrTokenGeneration
	}

	user, err := a.users.GetUserByID(storeCtx, stored.ID)
	if err != nil {
		return domain.User{}, "", err
	}
	return user, token, nil
}

// Check resolves a token's identity to the full account.
func (a *AuthService) Check(ctx context.Context, userID string) (domain.User, error) {
	storeCtx, cancel := context.WithTimeout(ctx, a.storeTimeout)
	defer cancel()
	return a.users.GetUserByID(storeCtx, userID)
}

// UpdateProfilePic uploads the new picture and points the account at it.
func (a *AuthService) UpdateProfilePic(ctx context.Context, userID, imageBase64 string) (domain.User, error) {
	if imageBase64 == "" {
		return domain.User{}, errors.ErrEmptyProfilePic
	}
	url, err := a.blobs.UploadBase64(ctx, imageBase64)
	if err != nil {
		a.log.Error("Profile picture upload failed", "error", err)
		return domain.User{}, errors.ErrMediaUploadFailed
	}

	storeCtx, cancel := context.WithTimeout(ctx, a.storeTimeout)
	defer cancel()
	if err := a.users.UpdateProfilePic(storeCtx, userID, url); err != nil {
		return domain.User{}, err
	}
	return a.users.GetUserByID(storeCtx, userID)
}

// Contacts lists every other account, the sidebar's data source.
func (a *AuthService) Contacts(ctx context.Context, userID string) ([]domain.User, error) {
	storeCtx, cancel := context.WithTimeout(ctx, a.storeTimeout)
	defer cancel()
	users, err := a.users.ListUsersExcept(storeCtx, userID)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []domain.User{}
	}
	return users, nil
}
