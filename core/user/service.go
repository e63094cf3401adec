package user

import (
	"context"
	"net/mail"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/classnote/classnote/core"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("user not found")
	ErrEmailExists    = errors.New("a user with this email already exists")
	ErrUsernameExists = errors.New("a user with this username already exists")
	ErrNotGuest       = errors.New("only accounts pending approval can be approved")

	nowFunc = time.Now // mockable
)

type (
	Repository interface {
		// CheckUsernameUniqueness ignores empty values.
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name, User.Username or User.Email.
		QueryUsers(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
		DeleteUsers(ctx context.Context, ids ...string) error
		CountUsersByRole(ctx context.Context) ([]RoleCount, error)
	}

	Service interface {
		CheckUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error
		Create(ctx context.Context, nu NewUser) (User, error)
		SignUp(ctx context.Context, nt NewTeacher) (User, error)
		EmailExists(ctx context.Context, email string) (bool, error)
		Approve(ctx context.Context, id string) (User, error)
		Query(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		GetByUsernameOrEmail(ctx context.Context, uname string) (User, error)
		GetByLogin(ctx context.Context, login string) (User, error)
		Update(ctx context.Context, id string, uu UpdateUser) (User, error)
		Save(ctx context.Context, usr User) (User, error)
		SetLastLogin(ctx context.Context, usr User) (User, error)
		SetPassword(ctx context.Context, usr User, pwd string) (User, error)
		Delete(ctx context.Context, ids ...string) error
		CountByRole(ctx context.Context) ([]RoleCount, error)
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, data ResetUserPassword) error
	}

	service struct {
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
		// background runs work the request must not wait for
		background func(func())
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) Service {
	return &service{repo: repo, mailSvc: mailSvc, conf: conf, background: func(f func()) { go f() }}
}

func (svc *service) CheckUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUsernameUniqueness(ctx, uname, email, exclUsers...); err != nil {
		var field string
		switch err {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := nowFunc().UTC()
	usr := User{
		Name:       nu.Name,
		Username:   nu.Username,
		Email:      nu.Email,
		Phone:      nu.Phone,
		SchoolCode: nu.SchoolCode,
		Subject:    nu.Subject,
		IsActive:   true,
		Roles:      nu.Roles,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

// SignUp registers a teacher account. It stays a guest until an admin approves it.
func (svc *service) SignUp(ctx context.Context, nt NewTeacher) (User, error) {
	now := nowFunc().UTC()
	usr := User{
		Name:       nt.Name,
		Username:   nt.Email,
		Email:      nt.Email,
		Phone:      nt.Phone,
		SchoolCode: nt.SchoolCode,
		Subject:    nt.Subject,
		IsActive:   true,
		Roles:      []string{RoleGuest},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := usr.SetPassword(nt.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, errors.Wrap(err, "creating user")
	}

	admins, err := svc.repo.QueryUsers(ctx, QueryFilter{Roles: []string{RoleAdmin}, IsActive: boolPtr(true)})
	if err != nil {
		return User{}, errors.Wrap(err, "querying admins")
	}
	svc.sendSignUpMail(usr, admins)
	return usr, nil
}

func (svc *service) EmailExists(ctx context.Context, email string) (bool, error) {
	email = core.CleanString(email, true /* lower */)
	if email == "" {
		return false, nil
	}
	if _, err := svc.repo.GetUser(ctx, GetFilter{Email: email}); err != nil {
		if errors.Cause(err) == ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Approve promotes a guest account to a teacher one.
func (svc *service) Approve(ctx context.Context, id string) (User, error) {
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		return User{}, err
	}
	if !usr.IsGuest() {
		return User{}, core.NewValidationError(ErrNotGuest)
	}

	roles := make([]string, 0, len(usr.Roles))
	for _, role := range usr.Roles {
		if role != RoleGuest {
			roles = append(roles, role)
		}
	}
	usr.Roles = append(roles, RoleTeacher)
	usr.UpdatedAt = nowFunc().UTC()
	if usr, err = svc.repo.UpdateUser(ctx, usr); err != nil {
		return User{}, errors.Wrap(err, "updating user")
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Your account has been approved",
		TemplateName: "teacher_approved",
		TemplateData: map[string]interface{}{"Name": usr.Name},
	})
	return usr, nil
}

func (svc *service) Query(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]User, error) {
	ordering = core.CleanOrderings(ordering, "name", "username", "email", "is_active", "created_at", "updated_at", "last_login")
	return svc.repo.QueryUsers(ctx, filter, ordering...)
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: core.CleanString(uname, true /* lower */)})
}

// GetByLogin finds the account matching login by username or email. A login without a domain
// also matches the emails starting with "<login>@"; the oldest such account wins.
func (svc *service) GetByLogin(ctx context.Context, login string) (User, error) {
	login = core.CleanString(login, true /* lower */)
	if login == "" {
		return User{}, ErrNotFound
	}

	usr, err := svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: login})
	if err == nil || errors.Cause(err) != ErrNotFound || strings.Contains(login, "@") {
		return usr, err
	}

	users, err := svc.repo.QueryUsers(
		ctx,
		QueryFilter{EmailPrefix: login + "@"},
		core.DBOrdering{Field: "created_at", Ascending: true},
	)
	if err != nil {
		return User{}, errors.Wrap(err, "querying users by email prefix")
	}
	if len(users) == 0 {
		return User{}, ErrNotFound
	}
	return users[0], nil
}

func (svc *service) Update(ctx context.Context, id string, uu UpdateUser) (User, error) {
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		return User{}, err
	}

	usr.Name = uu.Name
	usr.Username = uu.Username
	usr.Email = uu.Email
	if uu.Phone != nil {
		usr.Phone = *uu.Phone
	}
	if uu.SchoolCode != nil {
		usr.SchoolCode = *uu.SchoolCode
	}
	if uu.Subject != nil {
		usr.Subject = *uu.Subject
	}
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	if uu.Roles != nil {
		usr.Roles = uu.Roles
	}
	if uu.Password != "" {
		if err = usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "setting password")
		}
	}
	usr.UpdatedAt = nowFunc().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

// Save persists usr as is.
func (svc *service) Save(ctx context.Context, usr User) (User, error) {
	usr.UpdatedAt = nowFunc().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = nowFunc().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) SetPassword(ctx context.Context, usr User, pwd string) (User, error) {
	if err := usr.SetPassword(pwd); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = nowFunc().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteUsers(ctx, ids...)
}

func (svc *service) CountByRole(ctx context.Context) ([]RoleCount, error) {
	counts, err := svc.repo.CountUsersByRole(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(counts, func(i, j int) bool { return RolePriority(counts[i].Role) > RolePriority(counts[j].Role) })
	return counts, nil
}

func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrNotFound
	}
	svc.background(func() { svc.sendPasswordResetMail(usr) })
	return nil
}

func (svc *service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	invalidErr := core.NewValidationError(errInvalidToken, core.FieldError{Field: "token", Error: "invalid or expired token"})

	id, err := decodeUID(data.UID)
	if err != nil {
		return invalidErr
	}
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return invalidErr
		}
		return err
	}
	if err = verifyToken(usr, data.Token, svc.conf); err != nil {
		return invalidErr
	}
	_, err = svc.SetPassword(ctx, usr, data.Password)
	return err
}

func (svc *service) sendPasswordResetMail(usr User) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Password reset",
		TemplateName: "password_reset",
		TemplateData: map[string]interface{}{
			"Name":  usr.Name,
			"UID":   EncodeUID(usr),
			"Token": makeToken(usr, svc.conf),
		},
	})
}

func (svc *service) sendSignUpMail(usr User, admins []User) {
	if len(admins) == 0 {
		return
	}
	to := make([]mail.Address, 0, len(admins))
	for _, admin := range admins {
		if admin.Email != "" {
			to = append(to, mail.Address{Name: admin.Name, Address: admin.Email})
		}
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           to,
		Subject:      "New teacher account pending approval",
		TemplateName: "teacher_signup",
		TemplateData: map[string]interface{}{
			"Name":       usr.Name,
			"Email":      usr.Email,
			"SchoolName": usr.SchoolCode,
			"Subject":    usr.Subject,
		},
	})
}

func boolPtr(b bool) *bool { return &b }
