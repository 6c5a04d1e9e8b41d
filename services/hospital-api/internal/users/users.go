// Package users handles accounts: registration, login, profiles and admin management
// of users and their custom roles.
package users

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/access"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/model"
	"golang.org/x/crypto/bcrypt"
)

const MinPasswordLength = 6

var (
	ErrNotFound           = errors.New("user not found")
	ErrEmailTaken         = errors.New("email is already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrLocked             = errors.New("account is locked")
	ErrWrongPassword      = errors.New("current password is incorrect")
	ErrRoleNotFound       = errors.New("role not found")
	ErrRoleExists         = errors.New("role name already exists")
	ErrAvatarDisabled     = errors.New("avatar upload is not configured")
)

// ValidationError is a rejected field value.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

type Filter struct {
	Search   string
	RoleType model.RoleType
	Limit    int
	Offset   int
}

// Store persists users and roles. Get populates the user's role.
type Store interface {
	Create(ctx context.Context, u *model.User) error
	ByEmail(ctx context.Context, email string) (model.User, error)
	Get(ctx context.Context, id string) (model.User, error)
	List(ctx context.Context, f Filter) ([]model.User, int, error)
	UpdateProfile(ctx context.Context, u model.User) error
	UpdateAccess(ctx context.Context, u model.User) error
	SetPassword(ctx context.Context, id, hash string) error
	SetAvatar(ctx context.Context, id string, avatar model.Avatar) error
	Delete(ctx context.Context, id string) error

	ListRoles(ctx context.Context) ([]model.Role, error)
	Role(ctx context.Context, id string) (model.Role, error)
	CreateRole(ctx context.Context, r *model.Role) error
	UpdateRole(ctx context.Context, r *model.Role) error
}

// TokenIssuer signs an access token for a user.
type TokenIssuer func(u model.User) (token string, expiresAt time.Time, err error)

type AvatarUploader interface {
	Upload(ctx context.Context, userID string, r io.Reader, size int64, previous *model.Avatar) (model.Avatar, error)
}

type Service struct {
	store   Store
	issue   TokenIssuer
	avatars AvatarUploader
	logger  *slog.Logger
	cost    int
}

func NewService(store Store, issue TokenIssuer, avatars AvatarUploader, logger *slog.Logger) *Service {
	return &Service{store: store, issue: issue, avatars: avatars, logger: logger, cost: bcrypt.DefaultCost}
}

// WithHashCost lowers the bcrypt cost, for tests.
func (s *Service) WithHashCost(cost int) *Service {
	s.cost = cost
	return s
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
	Gender   string `json:"gender"`
	Address  string `json:"address"`
}

// Session is what register and login hand back.
type Session struct {
	User      model.User `json:"user"`
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (Session, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return Session{}, invalid("name is required")
	}
	email := NormalizeEmail(req.Email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return Session{}, invalid("a valid email is required")
	}
	if len(req.Password) < MinPasswordLength {
		return Session{}, invalid("password must be at least %d characters", MinPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return Session{}, err
	}
	u := model.User{
		Name:         name,
		Email:        email,
		Phone:        strings.TrimSpace(req.Phone),
		Gender:       strings.TrimSpace(req.Gender),
		Address:      strings.TrimSpace(req.Address),
		PasswordHash: string(hash),
		RoleType:     model.RoleUser,
	}
	if err := s.store.Create(ctx, &u); err != nil {
		return Session{}, err
	}
	s.logger.Info("user registered", "user_id", u.ID)
	return s.session(u)
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	u, err := s.store.ByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return Session{}, ErrInvalidCredentials
	}
	if u.IsLocked {
		return Session{}, ErrLocked
	}
	return s.session(u)
}

func (s *Service) session(u model.User) (Session, error) {
	token, exp, err := s.issue(u)
	if err != nil {
		return Session{}, err
	}
	return Session{User: u, Token: token, ExpiresAt: exp}, nil
}

func (s *Service) Profile(ctx context.Context, id string) (model.User, error) {
	return s.store.Get(ctx, id)
}

type ProfilePatch struct {
	Name        *string `json:"name"`
	Phone       *string `json:"phone"`
	Gender      *string `json:"gender"`
	DateOfBirth *string `json:"dateOfBirth"`
	Address     *string `json:"address"`
}

func (s *Service) UpdateProfile(ctx context.Context, id string, p ProfilePatch) (model.User, error) {
	u, err := s.store.Get(ctx, id)
	if err != nil {
		return model.User{}, err
	}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return model.User{}, invalid("name must not be empty")
		}
		u.Name = name
	}
	if p.Phone != nil {
		u.Phone = strings.TrimSpace(*p.Phone)
	}
	if p.Gender != nil {
		u.Gender = strings.TrimSpace(*p.Gender)
	}
	if p.Address != nil {
		u.Address = strings.TrimSpace(*p.Address)
	}
	if p.DateOfBirth != nil {
		if raw := strings.TrimSpace(*p.DateOfBirth); raw == "" {
			u.DateOfBirth = nil
		} else {
			dob, err := time.Parse(time.DateOnly, raw)
			if err != nil {
				return model.User{}, invalid("invalid dateOfBirth %q, expected YYYY-MM-DD", raw)
			}
			u.DateOfBirth = &dob
		}
	}
	if err := s.store.UpdateProfile(ctx, u); err != nil {
		return model.User{}, err
	}
	return u, nil
}

func (s *Service) ChangePassword(ctx context.Context, id, current, next string) error {
	u, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)) != nil {
		return ErrWrongPassword
	}
	if len(next) < MinPasswordLength {
		return invalid("password must be at least %d characters", MinPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.cost)
	if err != nil {
		return err
	}
	if err := s.store.SetPassword(ctx, id, string(hash)); err != nil {
		return err
	}
	s.logger.Info("password changed", "user_id", id)
	return nil
}

// UploadAvatar stores a new picture and replaces the previous one.
func (s *Service) UploadAvatar(ctx context.Context, id string, r io.Reader, size int64) (model.Avatar, error) {
	if s.avatars == nil {
		return model.Avatar{}, ErrAvatarDisabled
	}
	u, err := s.store.Get(ctx, id)
	if err != nil {
		return model.Avatar{}, err
	}
	avatar, err := s.avatars.Upload(ctx, id, r, size, u.Avatar)
	if err != nil {
		return model.Avatar{}, err
	}
	if err := s.store.SetAvatar(ctx, id, avatar); err != nil {
		return model.Avatar{}, err
	}
	return avatar, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]model.User, int, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.RoleType != "" && !f.RoleType.Valid() {
		return nil, 0, invalid("invalid roleType %q", f.RoleType)
	}
	return s.store.List(ctx, f)
}

// AccessPatch is the admin edit of what an account is and may do.
type AccessPatch struct {
	RoleType   *model.RoleType `json:"roleType"`
	Role       *string         `json:"role"`
	IsVerified *bool           `json:"isVerified"`
	IsLocked   *bool           `json:"isLocked"`
}

func (s *Service) UpdateAccess(ctx context.Context, id, actorID string, p AccessPatch) (model.User, error) {
	u, err := s.store.Get(ctx, id)
	if err != nil {
		return model.User{}, err
	}
	if p.RoleType != nil {
		if !p.RoleType.Valid() {
			return model.User{}, invalid("invalid roleType %q", *p.RoleType)
		}
		if id == actorID && *p.RoleType != u.RoleType {
			return model.User{}, invalid("you cannot change your own roleType")
		}
		u.RoleType = *p.RoleType
	}
	if p.Role != nil {
		if roleID := strings.TrimSpace(*p.Role); roleID == "" {
			u.Role = model.Ref[model.Role]{}
		} else {
			role, err := s.store.Role(ctx, roleID)
			if err != nil {
				return model.User{}, err
			}
			u.Role = model.Populated(role)
		}
	}
	if p.IsVerified != nil {
		u.IsVerified = *p.IsVerified
	}
	if p.IsLocked != nil {
		if id == actorID && *p.IsLocked {
			return model.User{}, invalid("you cannot lock your own account")
		}
		u.IsLocked = *p.IsLocked
	}
	if err := s.store.UpdateAccess(ctx, u); err != nil {
		return model.User{}, err
	}
	s.logger.Info("user access updated", "user_id", id, "actor_id", actorID, "role_type", u.RoleType, "locked", u.IsLocked)
	return u, nil
}

func (s *Service) Delete(ctx context.Context, id, actorID string) error {
	if id == actorID {
		return invalid("you cannot delete your own account")
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("user deleted", "user_id", id, "actor_id", actorID)
	return nil
}

func (s *Service) Roles(ctx context.Context) ([]model.Role, error) {
	return s.store.ListRoles(ctx)
}

type RolePatch struct {
	Name        *string   `json:"name"`
	Description *string   `json:"description"`
	Permissions *[]string `json:"permissions"`
	IsActive    *bool     `json:"isActive"`
}

func (p RolePatch) apply(r *model.Role) error {
	if p.Name != nil {
		r.Name = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		r.Description = strings.TrimSpace(*p.Description)
	}
	if p.IsActive != nil {
		r.IsActive = *p.IsActive
	}
	if p.Permissions != nil {
		if unknown := access.UnknownCodes(*p.Permissions); len(unknown) > 0 {
			return invalid("unknown permission codes: %s", strings.Join(unknown, ", "))
		}
		codes := make([]string, 0, len(*p.Permissions))
		for _, c := range *p.Permissions {
			codes = append(codes, strings.TrimSpace(c))
		}
		r.Permissions = codes
	}
	if r.Name == "" {
		return invalid("role name is required")
	}
	return nil
}

func (s *Service) CreateRole(ctx context.Context, p RolePatch) (model.Role, error) {
	r := model.Role{IsActive: true, Permissions: []string{}}
	if err := p.apply(&r); err != nil {
		return model.Role{}, err
	}
	if err := s.store.CreateRole(ctx, &r); err != nil {
		return model.Role{}, err
	}
	return r, nil
}

func (s *Service) UpdateRole(ctx context.Context, id string, p RolePatch) (model.Role, error) {
	r, err := s.store.Role(ctx, id)
	if err != nil {
		return model.Role{}, err
	}
	if err := p.apply(&r); err != nil {
		return model.Role{}, err
	}
	if err := s.store.UpdateRole(ctx, &r); err != nil {
		return model.Role{}, err
	}
	return r, nil
}
