package main

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/classnote/classnote/core"
	"github.com/classnote/classnote/core/prompt"
	"github.com/classnote/classnote/core/school"
	"github.com/classnote/classnote/core/student"
	"github.com/classnote/classnote/core/user"
	emailsvc "github.com/classnote/classnote/services/email"
	logsvc "github.com/classnote/classnote/services/logger"
	"github.com/classnote/classnote/services/spreadsheet"
	"github.com/classnote/classnote/storage/database"
	sqlxrepos "github.com/classnote/classnote/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	sugar, err := logsvc.NewZapLogger(conf)
	if err != nil {
		log.Fatalf("setting up zap: %v", err)
	}
	logger := logsvc.NewRollbarLogger(sugar.Named("admin"), conf)
	logger.Enable(!(conf.Debug || conf.TestMode) && conf.RollbarToken != "")
	defer logger.Sync()

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	defer db.Close()

	enLocale := en.New()
	translator, _ := ut.New(enLocale, enLocale).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), emailsvc.NewConsoleService(conf, logger), conf)

	// start CLI
	cli := commandLine{
		db:        db,
		out:       os.Stdout,
		codec:     spreadsheet.NewCodec(),
		usrSvc:    usrSvc,
		schSvc:    school.NewService(db, sqlxrepos.NewSchoolRepository(db), usrSvc, logger),
		stdSvc:    student.NewService(db, sqlxrepos.NewStudentRepository(db), usrSvc, validate, conf, logger),
		promptSvc: prompt.NewService(sqlxrepos.NewPromptRepository(db)),
	}
	if err := cli.run(os.Args); err != nil {
		logger.Error(fmt.Sprintf("error: %v", err), err)
		logger.Sync()
		os.Exit(1)
	}
}
