package user

import "github.com/classnote/classnote/core"

// NewServiceMock returns a Service that sends its password reset emails before returning,
// so tests can inspect them right away.
func NewServiceMock(repo Repository, mailSvc core.EmailService, conf *core.Config) Service {
	return &service{
		repo:       repo,
		mailSvc:    mailSvc,
		conf:       conf,
		background: func(f func()) { f() },
	}
}
