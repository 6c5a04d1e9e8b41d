package users

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/access"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/model"
	"golang.org/x/crypto/bcrypt"
)

type memStore struct {
	Store
	users map[string]model.User
	roles map[string]model.Role
}

func newMemStore() *memStore {
	return &memStore{users: map[string]model.User{}, roles: map[string]model.Role{}}
}

func (m *memStore) Create(_ context.Context, u *model.User) error {
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return ErrEmailTaken
		}
	}
	u.ID = fmt.Sprintf("u%d", len(m.users)+1)
	m.users[u.ID] = *u
	return nil
}

func (m *memStore) ByEmail(_ context.Context, email string) (model.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, ErrNotFound
}

func (m *memStore) Get(_ context.Context, id string) (model.User, error) {
	u, ok := m.users[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return u, nil
}

func (m *memStore) UpdateProfile(_ context.Context, u model.User) error {
	m.users[u.ID] = u
	return nil
}

func (m *memStore) UpdateAccess(_ context.Context, u model.User) error {
	m.users[u.ID] = u
	return nil
}

func (m *memStore) SetPassword(_ context.Context, id, hash string) error {
	u := m.users[id]
	u.PasswordHash = hash
	m.users[id] = u
	return nil
}

func (m *memStore) SetAvatar(_ context.Context, id string, a model.Avatar) error {
	u := m.users[id]
	u.Avatar = &a
	m.users[id] = u
	return nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *memStore) Role(_ context.Context, id string) (model.Role, error) {
	r, ok := m.roles[id]
	if !ok {
		return model.Role{}, ErrRoleNotFound
	}
	return r, nil
}

func (m *memStore) CreateRole(_ context.Context, r *model.Role) error {
	r.ID = fmt.Sprintf("r%d", len(m.roles)+1)
	m.roles[r.ID] = *r
	return nil
}

func issueStub(u model.User) (string, time.Time, error) {
	return "token-" + u.ID, time.Unix(0, 0), nil
}

func newService(store Store, avatars AvatarUploader) *Service {
	return NewService(store, issueStub, avatars, slog.New(slog.NewTextHandler(io.Discard, nil))).WithHashCost(bcrypt.MinCost)
}

func register(t *testing.T, svc *Service, email string) Session {
	t.Helper()
	sess, err := svc.Register(context.Background(), RegisterRequest{Name: "Lan", Email: email, Password: "secret1"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return sess
}

func TestRegisterNormalizesAndHashes(t *testing.T) {
	store := newMemStore()
	svc := newService(store, nil)

	sess := register(t, svc, "  Lan@Example.COM ")
	if sess.Token != "token-"+sess.User.ID {
		t.Fatalf("token = %q", sess.Token)
	}
	u := store.users[sess.User.ID]
	if u.Email != "lan@example.com" || u.RoleType != model.RoleUser {
		t.Fatalf("stored user = %+v", u)
	}
	if u.PasswordHash == "secret1" || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("secret1")) != nil {
		t.Fatalf("password not hashed")
	}

	if _, err := svc.Register(context.Background(), RegisterRequest{Name: "Lan", Email: "LAN@example.com", Password: "secret1"}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("duplicate email err = %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := newService(newMemStore(), nil)
	cases := []RegisterRequest{
		{Name: "", Email: "a@b.co", Password: "secret1"},
		{Name: "A", Email: "not-an-email", Password: "secret1"},
		{Name: "A", Email: "a@b.co", Password: "123"},
	}
	for _, req := range cases {
		var ve *ValidationError
		if _, err := svc.Register(context.Background(), req); !errors.As(err, &ve) {
			t.Fatalf("Register(%+v) err = %v, want ValidationError", req, err)
		}
	}
}

func TestLogin(t *testing.T) {
	store := newMemStore()
	svc := newService(store, nil)
	sess := register(t, svc, "lan@example.com")

	if _, err := svc.Login(context.Background(), "LAN@example.com", "secret1"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := svc.Login(context.Background(), "lan@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password err = %v", err)
	}
	if _, err := svc.Login(context.Background(), "nobody@example.com", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email err = %v", err)
	}

	u := store.users[sess.User.ID]
	u.IsLocked = true
	store.users[u.ID] = u
	if _, err := svc.Login(context.Background(), "lan@example.com", "secret1"); !errors.Is(err, ErrLocked) {
		t.Fatalf("locked err = %v", err)
	}
	// A locked account does not reveal itself to a wrong password.
	if _, err := svc.Login(context.Background(), "lan@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("locked wrong password err = %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	store := newMemStore()
	svc := newService(store, nil)
	id := register(t, svc, "lan@example.com").User.ID

	if err := svc.ChangePassword(context.Background(), id, "nope", "newsecret"); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("wrong current err = %v", err)
	}
	if err := svc.ChangePassword(context.Background(), id, "secret1", "short"); err == nil {
		t.Fatalf("expected short password to be rejected")
	}
	if err := svc.ChangePassword(context.Background(), id, "secret1", "newsecret"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := svc.Login(context.Background(), "lan@example.com", "newsecret"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	store := newMemStore()
	svc := newService(store, nil)
	id := register(t, svc, "lan@example.com").User.ID

	dob, phone := "1990-04-30", " 0901 "
	u, err := svc.UpdateProfile(context.Background(), id, ProfilePatch{DateOfBirth: &dob, Phone: &phone})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if u.Phone != "0901" || u.DateOfBirth == nil || u.DateOfBirth.Format(time.DateOnly) != dob || u.Name != "Lan" {
		t.Fatalf("profile = %+v", u)
	}
	bad := "30/04/1990"
	if _, err := svc.UpdateProfile(context.Background(), id, ProfilePatch{DateOfBirth: &bad}); err == nil {
		t.Fatalf("expected bad date to be rejected")
	}
}

func TestUpdateAccessGuardsSelf(t *testing.T) {
	store := newMemStore()
	svc := newService(store, nil)
	admin := register(t, svc, "admin@example.com").User.ID
	target := register(t, svc, "doc@example.com").User.ID

	doctor, locked := model.RoleDoctor, true
	if _, err := svc.UpdateAccess(context.Background(), admin, admin, AccessPatch{RoleType: &doctor}); err == nil {
		t.Fatalf("expected self demotion to be rejected")
	}
	if _, err := svc.UpdateAccess(context.Background(), admin, admin, AccessPatch{IsLocked: &locked}); err == nil {
		t.Fatalf("expected self lock to be rejected")
	}
	if err := svc.Delete(context.Background(), admin, admin); err == nil {
		t.Fatalf("expected self delete to be rejected")
	}

	role, err := svc.CreateRole(context.Background(), RolePatch{Name: ptr("Front desk"), Permissions: &[]string{access.PaymentsManage}})
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	u, err := svc.UpdateAccess(context.Background(), target, admin, AccessPatch{RoleType: &doctor, Role: &role.ID})
	if err != nil {
		t.Fatalf("UpdateAccess: %v", err)
	}
	if u.RoleType != model.RoleDoctor || u.Role.ID() != role.ID || !u.Role.IsPopulated() {
		t.Fatalf("user = %+v", u)
	}
	missing := "r404"
	if _, err := svc.UpdateAccess(context.Background(), target, admin, AccessPatch{Role: &missing}); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("missing role err = %v", err)
	}
}

func TestCreateRoleRejectsUnknownCodes(t *testing.T) {
	svc := newService(newMemStore(), nil)
	_, err := svc.CreateRole(context.Background(), RolePatch{Name: ptr("x"), Permissions: &[]string{"coupons.manage", "fly.plane"}})
	if err == nil || !strings.Contains(err.Error(), "fly.plane") {
		t.Fatalf("err = %v", err)
	}
}

type fakeUploader struct {
	previous *model.Avatar
}

func (f *fakeUploader) Upload(_ context.Context, userID string, r io.Reader, _ int64, previous *model.Avatar) (model.Avatar, error) {
	f.previous = previous
	b, _ := io.ReadAll(r)
	return model.Avatar{Key: "avatars/" + userID + "/" + string(b), URL: "http://cdn/" + string(b)}, nil
}

func TestUploadAvatar(t *testing.T) {
	store := newMemStore()
	if _, err := newService(store, nil).UploadAvatar(context.Background(), "u1", nil, 0); !errors.Is(err, ErrAvatarDisabled) {
		t.Fatalf("disabled err = %v", err)
	}

	up := &fakeUploader{}
	svc := newService(store, up)
	id := register(t, svc, "lan@example.com").User.ID
	if _, err := svc.UploadAvatar(context.Background(), id, bytes.NewReader([]byte("a.png")), 5); err != nil {
		t.Fatalf("first upload: %v", err)
	}
	if _, err := svc.UploadAvatar(context.Background(), id, bytes.NewReader([]byte("b.png")), 5); err != nil {
		t.Fatalf("second upload: %v", err)
	}
	if up.previous == nil || up.previous.URL != "http://cdn/a.png" {
		t.Fatalf("previous avatar passed = %+v", up.previous)
	}
	if got := store.users[id].Avatar; got == nil || got.URL != "http://cdn/b.png" {
		t.Fatalf("stored avatar = %+v", got)
	}
}

func ptr[T any](v T) *T { return &v }
