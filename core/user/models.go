package user

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/classnote/classnote/core"
)

// Roles
const (
	// Admin
	RoleAdmin          = "admin:"
	RoleAdminOwner     = "admin:owner"
	RoleAdminPrincipal = "admin:principal"

	// Teacher
	RoleTeacher = "teacher:"

	// Student
	RoleStudent = "student:"

	// Guest: teacher accounts waiting for an admin approval
	RoleGuest = "guest:"
)

var (
	AdminRoles   = []string{RoleAdmin, RoleAdminOwner, RoleAdminPrincipal}
	TeacherRoles = []string{RoleTeacher}
	StudentRoles = []string{RoleStudent}
	GuestRoles   = []string{RoleGuest}
	AllRoles     = getAllRoles()

	rolePriorities = map[string]int{
		// Admins: 30 - 21
		RoleAdminOwner:     30,
		RoleAdminPrincipal: 29,
		RoleAdmin:          21,

		// Teachers: 20 - 11
		RoleTeacher: 11,

		// Students: 10 - 1
		RoleStudent: 1,

		RoleGuest: 0,
	}

	Roles = []Role{
		{Name: "Guest", Value: RoleGuest},
		{Name: "Student", Value: RoleStudent},
		{Name: "Teacher", Value: RoleTeacher},
		{Name: "Admin", Value: RoleAdmin},
		{Name: "Admin Principal", Value: RoleAdminPrincipal},
		{Name: "Admin Owner", Value: RoleAdminOwner},
	}
)

func getAllRoles() []string {
	all := make([]string, 0, 6)
	all = append(all, AdminRoles...)
	all = append(all, TeacherRoles...)
	all = append(all, StudentRoles...)
	all = append(all, GuestRoles...)
	return all
}

func RolePriority(role string) int {
	return rolePriorities[role]
}

func MaxRolePriority(roles []string) int {
	var max int
	for _, role := range roles {
		if RolePriority(role) > max {
			max = RolePriority(role)
		}
	}
	return max
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	SchoolCode   string    `json:"school_code"`
	Subject      string    `json:"subject"`
	IsActive     bool      `json:"is_active"`
	Roles        []string  `json:"roles"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`           // UTC
	UpdatedAt    time.Time `json:"updated_at"`           // UTC
	LastLogin    time.Time `json:"last_login,omitempty"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) RoleStartsWith(prefix string) bool {
	for _, role := range u.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (u *User) IsAdmin() bool {
	return u.RoleStartsWith(RoleAdmin)
}

func (u *User) IsTeacher() bool {
	return u.RoleStartsWith(RoleTeacher)
}

func (u *User) IsStudent() bool {
	return u.RoleStartsWith(RoleStudent)
}

// IsGuest reports whether the account is still waiting for approval.
func (u *User) IsGuest() bool {
	return u.RoleStartsWith(RoleGuest) && !(u.IsAdmin() || u.IsTeacher() || u.IsStudent())
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string   `json:"name" validate:"required"`
	Username        string   `json:"username" validate:"omitempty,min=4,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	Phone           string   `json:"phone" validate:"omitempty,phone"`
	SchoolCode      string   `json:"school_code" validate:"omitempty,max=20"`
	Subject         string   `json:"subject" validate:"omitempty,max=100"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Phone = core.CleanString(nu.Phone)
	nu.SchoolCode = core.CleanString(nu.SchoolCode)
	nu.Subject = core.CleanString(nu.Subject)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Username, nu.Email)
}

// NewTeacher is the public sign-up form. The email is the login; the account waits for an admin approval.
type NewTeacher struct {
	Email           string `json:"email" validate:"required,email"`
	Name            string `json:"name" validate:"required,notblank,max=100"`
	Phone           string `json:"phone" validate:"required,phone"`
	SchoolCode      string `json:"school_code" validate:"required,max=20"`
	Subject         string `json:"subject" validate:"required,max=100"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (nt *NewTeacher) Validate(ctx context.Context, validate *validator.Validate, svc Service) error {
	nt.Email = core.CleanString(nt.Email, true /* lower */)
	nt.Name = core.CleanString(nt.Name)
	nt.Phone = core.CleanString(nt.Phone)
	nt.SchoolCode = core.CleanString(nt.SchoolCode)
	nt.Subject = core.CleanString(nt.Subject)

	if err := validate.Struct(nt); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, "", nt.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name            string   `json:"name"`
	Username        string   `json:"username" validate:"omitempty,min=4,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	Phone           *string  `json:"phone" validate:"omitempty,phone"`
	SchoolCode      *string  `json:"school_code" validate:"omitempty,max=20"`
	Subject         *string  `json:"subject" validate:"omitempty,max=100"`
	IsActive        *bool    `json:"is_active"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
	Password        string   `json:"password" validate:"omitempty"`
	PasswordConfirm string   `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(ctx context.Context, origUsr User, validate *validator.Validate, svc Service) error {
	name := core.CleanString(uu.Name)
	if name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}

	uname := core.CleanString(uu.Username, true /* lower */)
	if uname != "" {
		uu.Username = uname
	} else {
		uu.Username = origUsr.Username
	}

	email := core.CleanString(uu.Email, true /* lower */)
	if email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}

	for _, fld := range []*string{uu.Phone, uu.SchoolCode, uu.Subject} {
		if fld != nil {
			*fld = core.CleanString(*fld)
		}
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, uu.Username, uu.Email, origUsr)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

// GetFilter selects a single User. Only the first non-empty field is used.
type GetFilter struct {
	ID              string
	Username        string
	Email           string
	UsernameOrEmail string
}

type QueryFilter struct {
	Search         string   `query:"search"`
	Roles          []string `query:"role"`
	IsActive       *bool    `query:"is_active"`
	SchoolCode     string   `query:"school"`
	RawCreatedFrom string   `query:"created_from"`
	RawCreatedTo   string   `query:"created_to"`

	// set by the services only
	Name        string    `query:"-"` // exact match
	EmailPrefix string    `query:"-"` // e.g. "hong@"
	CreatedFrom time.Time `query:"-"`
	CreatedTo   time.Time `query:"-"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.IsActive == nil && qf.SchoolCode == "" &&
		qf.Name == "" && qf.EmailPrefix == "" && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

// Clean normalizes the filter and parses its RFC 3339 dates.
func (qf *QueryFilter) Clean() error {
	qf.Search = core.CleanString(qf.Search)
	qf.SchoolCode = core.CleanString(qf.SchoolCode)

	var err error
	if qf.RawCreatedFrom != "" {
		if qf.CreatedFrom, err = time.Parse(time.RFC3339, qf.RawCreatedFrom); err != nil {
			return core.NewValidationError(errors.Wrap(err, "parsing created_from"),
				core.FieldError{Field: "created_from", Error: "invalid date"})
		}
	}
	if qf.RawCreatedTo != "" {
		if qf.CreatedTo, err = time.Parse(time.RFC3339, qf.RawCreatedTo); err != nil {
			return core.NewValidationError(errors.Wrap(err, "parsing created_to"),
				core.FieldError{Field: "created_to", Error: "invalid date"})
		}
	}
	return nil
}

// RoleCount is the number of users holding a role.
type RoleCount struct {
	Role  string `json:"role" db:"role"`
	Count int    `json:"count" db:"count"`
}
