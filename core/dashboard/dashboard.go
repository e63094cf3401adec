// Package dashboard builds the landing page summary of each kind of user.
package dashboard

import (
	"context"

	"github.com/pkg/errors"

	"github.com/classnote/classnote/core"
	"github.com/classnote/classnote/core/activity"
	"github.com/classnote/classnote/core/student"
	"github.com/classnote/classnote/core/user"
)

const pendingNotice = "Your account is waiting for an administrator's approval."

type (
	Summary struct {
		Role    string          `json:"role"`
		Teacher *TeacherSummary `json:"teacher,omitempty"`
		Admin   *AdminSummary   `json:"admin,omitempty"`
		Student *StudentSummary `json:"student,omitempty"`
		Notice  string          `json:"notice,omitempty"`
	}

	TeacherSummary struct {
		Students         int `json:"students"`
		Activities       int `json:"activities"`
		ActiveActivities int `json:"active_activities"`
		AwaitingAnalysis int `json:"awaiting_analysis"` // submitted answers without AI result
	}

	AdminSummary struct {
		PendingApprovals []user.User      `json:"pending_approvals"`
		Roles            []user.RoleCount `json:"roles"`
	}

	StudentSummary struct {
		Activities []activity.StudentActivity `json:"activities"`
		Pending    int                        `json:"pending"` // activities not completed yet
	}

	Service interface {
		Summary(ctx context.Context, usr user.User) (Summary, error)
	}

	service struct {
		usrSvc user.Service
		stdSvc student.Service
		actSvc activity.Service
	}
)

var _ Service = (*service)(nil)

func NewService(usrSvc user.Service, stdSvc student.Service, actSvc activity.Service) Service {
	return &service{usrSvc: usrSvc, stdSvc: stdSvc, actSvc: actSvc}
}

// Summary picks the view of the highest role of usr: admin, then teacher, then student.
func (svc *service) Summary(ctx context.Context, usr user.User) (Summary, error) {
	var (
		sum = Summary{}
		err error
	)
	switch {
	case usr.IsAdmin():
		sum.Role = user.RoleAdmin
		sum.Admin, err = svc.admin(ctx)
	case usr.IsTeacher():
		sum.Role = user.RoleTeacher
		sum.Teacher, err = svc.teacher(ctx, usr)
	case usr.IsStudent():
		sum.Role = user.RoleStudent
		sum.Student, err = svc.student(ctx, usr)
	default:
		sum.Role = user.RoleGuest
		sum.Notice = pendingNotice
	}
	if err != nil {
		return Summary{}, err
	}
	return sum, nil
}

func (svc *service) admin(ctx context.Context) (*AdminSummary, error) {
	guests, err := svc.usrSvc.Query(ctx, user.QueryFilter{Roles: user.GuestRoles}, core.DBOrdering{Field: "created_at", Ascending: true})
	if err != nil {
		return nil, errors.Wrap(err, "querying guests")
	}
	pending := make([]user.User, 0, len(guests))
	for _, g := range guests {
		if g.IsGuest() {
			pending = append(pending, g)
		}
	}

	roles, err := svc.usrSvc.CountByRole(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "counting users")
	}
	return &AdminSummary{PendingApprovals: pending, Roles: roles}, nil
}

func (svc *service) teacher(ctx context.Context, usr user.User) (*TeacherSummary, error) {
	students, err := svc.stdSvc.List(ctx, usr.ID)
	if err != nil {
		return nil, errors.Wrap(err, "listing students")
	}
	acts, err := svc.actSvc.List(ctx, usr.ID, activity.QueryFilter{})
	if err != nil {
		return nil, errors.Wrap(err, "listing activities")
	}
	noResult := false
	answers, err := svc.actSvc.TeacherAnswers(ctx, usr.ID, activity.AnswerFilter{HasAIResult: &noResult})
	if err != nil {
		return nil, errors.Wrap(err, "listing answers")
	}

	sum := &TeacherSummary{Students: len(students), Activities: len(acts)}
	for _, act := range acts {
		if act.IsActive {
			sum.ActiveActivities++
		}
	}
	for _, ans := range answers {
		if ans.Content != "" {
			sum.AwaitingAnalysis++
		}
	}
	return sum, nil
}

func (svc *service) student(ctx context.Context, usr user.User) (*StudentSummary, error) {
	acts, err := svc.actSvc.ListForStudent(ctx, usr)
	if err != nil {
		return nil, errors.Wrap(err, "listing activities")
	}
	sum := &StudentSummary{Activities: acts}
	for _, act := range acts {
		if !act.Completed {
			sum.Pending++
		}
	}
	return sum, nil
}
