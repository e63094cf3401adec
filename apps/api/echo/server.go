package echoapi

import (
	"context"
	"net/http"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/classnote/classnote/core"
	"github.com/classnote/classnote/core/activity"
	"github.com/classnote/classnote/core/dashboard"
	"github.com/classnote/classnote/core/generator"
	"github.com/classnote/classnote/core/prompt"
	"github.com/classnote/classnote/core/school"
	"github.com/classnote/classnote/core/student"
	"github.com/classnote/classnote/core/sysconfig"
	"github.com/classnote/classnote/core/user"
)

type (
	Deps struct {
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator
		Codec      core.SpreadsheetCodec

		UserSvc      user.Service
		SchoolSvc    school.Service
		StudentSvc   student.Service
		ActivitySvc  activity.Service
		PromptSvc    prompt.Service
		ConfigSvc    sysconfig.Service
		GeneratorSvc generator.Service
		DashboardSvc dashboard.Service

		DisableReqLogs bool
	}

	Server interface {
		http.Handler
		Start()
		Shutdown(ctx context.Context) error
		Close() error
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
	}

	server struct {
		addr     string
		app      *echo.Echo
		deps     *Deps
		auth     *authenticator
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ Server = (*server)(nil)

// NewServer builds the API. Errors of a running server are sent to Errors; a core shutdown error
// caught by the error handler is sent to shutdown.
func NewServer(addr string, shutdown chan os.Signal, deps *Deps) Server {
	if shutdown == nil {
		shutdown = make(chan os.Signal, 1)
	}
	s := &server{
		addr:     addr,
		app:      echo.New(),
		deps:     deps,
		auth:     newAuthenticator(deps.Conf, deps.UserSvc),
		errors:   make(chan error, 1),
		shutdown: shutdown,
	}
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  []string{conf.FrontendBaseURL},
		ExposeHeaders: []string{echo.HeaderContentDisposition},
	}))
	s.app.Use(middleware.BodyLimit(bodyLimit(conf.Server.MaxUploadSize)))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)

	g := s.app.Group("/api")
	jwt := middleware.JWTWithConfig(s.auth.jwtConfig)

	registerUserAPI(g, jwt, s.auth, s.deps)
	registerSchoolAPI(g, s.deps)
	registerStudentAPI(g, jwt, s.auth, s.deps)
	registerActivityAPI(g, jwt, s.auth, s.deps)
	registerMyAPI(g, jwt, s.auth, s.deps)
	registerAdminAPI(g, jwt, s.auth, s.deps)
	registerPromptAPI(g, jwt, s.auth, s.deps)
	registerConfigAPI(g, jwt, s.auth, s.deps)
	registerGeneratorAPI(g, jwt, s.auth, s.deps)
	registerDashboardAPI(g, jwt, s.auth, s.deps)
}

func (s *server) Start() {
	if err := s.app.Start(s.addr); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	return s.app.Close()
}

func (s *server) Errors() <-chan error {
	return s.errors
}

func (s *server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *server) signalShutdown() {
	select {
	case s.shutdown <- os.Interrupt:
	default:
	}
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}

// bodyLimit formats the upload limit for the BodyLimit middleware; the multipart envelope gets 1M extra.
func bodyLimit(size int64) string {
	const mb = 1 << 20
	if size <= 0 {
		size = 10 * mb
	}
	return itoa(size/mb+1) + "M"
}
