package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	echoapi "github.com/classnote/classnote/apps/api/echo"
	"github.com/classnote/classnote/core"
	"github.com/classnote/classnote/core/activity"
	"github.com/classnote/classnote/core/dashboard"
	"github.com/classnote/classnote/core/generator"
	"github.com/classnote/classnote/core/prompt"
	"github.com/classnote/classnote/core/school"
	"github.com/classnote/classnote/core/student"
	"github.com/classnote/classnote/core/sysconfig"
	"github.com/classnote/classnote/core/user"
	aisvc "github.com/classnote/classnote/services/ai"
	emailsvc "github.com/classnote/classnote/services/email"
	logsvc "github.com/classnote/classnote/services/logger"
	sessionsvc "github.com/classnote/classnote/services/session"
	"github.com/classnote/classnote/services/spreadsheet"
	"github.com/classnote/classnote/storage/database"
	sqlxrepos "github.com/classnote/classnote/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	sugar, err := logsvc.NewZapLogger(conf)
	if err != nil {
		log.Fatalf("setting up zap: %v", err)
	}
	logger := logsvc.NewRollbarLogger(sugar.Named("api"), conf)
	logger.Enable(!(conf.Debug || conf.TestMode) && conf.RollbarToken != "")
	defer logger.Sync()

	dbLogger := logsvc.NewRollbarLogger(sugar.Named("db"), conf)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	// set up the wizard store
	var store core.SessionStore
	if conf.Redis.Address != "" {
		client, err := sessionsvc.NewRedisClient(context.Background(), conf)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up redis: %v", err), err)
		}
		defer client.Close()
		store = sessionsvc.NewRedisStore(client, conf)
	} else {
		logger.Warn("REDIS_ADDRESS not set: generator wizards are kept in memory")
		store = sessionsvc.NewMemoryStore()
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	activity.InitValidators(validate, translator)

	codec := spreadsheet.NewCodec()
	cfgSvc := sysconfig.NewService(sqlxrepos.NewConfigRepository(db))
	ai := aisvc.NewProvider(cfgSvc, conf)

	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), mailSvc, conf)
	schSvc := school.NewService(db, sqlxrepos.NewSchoolRepository(db), usrSvc, logger)
	stdSvc := student.NewService(db, sqlxrepos.NewStudentRepository(db), usrSvc, validate, conf, logger)
	actSvc := activity.NewService(db, sqlxrepos.NewActivityRepository(db), stdSvc, ai)
	promptSvc := prompt.NewService(sqlxrepos.NewPromptRepository(db))
	genSvc := generator.NewService(store, codec, promptSvc, ai, conf, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	core.ParseEmailTemplates(conf, logger)

	user.LoadCommonPasswords(logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	server := echoapi.NewServer(conf.Server.Host, shutdown, &echoapi.Deps{
		Conf:         conf,
		Logger:       logger,
		Validate:     validate,
		Translator:   translator,
		Codec:        codec,
		UserSvc:      usrSvc,
		SchoolSvc:    schSvc,
		StudentSvc:   stdSvc,
		ActivitySvc:  actSvc,
		PromptSvc:    promptSvc,
		ConfigSvc:    cfgSvc,
		GeneratorSvc: genSvc,
		DashboardSvc: dashboard.NewService(usrSvc, stdSvc, actSvc),
	})

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(context.Background(), db, "up"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
