// Package testutil holds the helpers shared by the tests of the services, the repositories and the API.
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/classnote/classnote/core"
	"github.com/classnote/classnote/core/activity"
	"github.com/classnote/classnote/core/student"
	"github.com/classnote/classnote/core/user"
	"github.com/classnote/classnote/storage/database"
)

// DatabaseURLEnv names the variable holding the DSN of a disposable PostgreSQL database.
const DatabaseURLEnv = "TEST_DATABASE_URL"

// resetTables lists the tables truncated by ResetDB, children first.
var resetTables = []string{
	"answer", "question", "activity_target", "activity", "student",
	"prompt_template", "prompt_category", "system_config", "subject", "school", `"user"`,
}

// NewValidator returns a validator with every custom validation of the domain registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	enLocale := en.New()
	translator, _ := ut.New(enLocale, enLocale).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	activity.InitValidators(validate, translator)
	return validate, translator
}

// OpenDB connects to $TEST_DATABASE_URL and runs the migrations. The test is skipped when the variable is unset.
func OpenDB(t *testing.T) *sqlx.DB {
	t.Helper()

	dsn := os.Getenv(DatabaseURLEnv)
	if dsn == "" {
		t.Skipf("%s not set, skipping database tests", DatabaseURLEnv)
	}
	db, err := database.OpenURL(dsn)
	if err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	if err = database.Migrate(context.Background(), db, "up"); err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	t.Cleanup(func() {
		ResetDB(t, db)
		_ = db.Close()
	})
	ResetDB(t, db)
	return db
}

// ResetDB empties all tables.
func ResetDB(t *testing.T, db *sqlx.DB) {
	t.Helper()

	for _, table := range resetTables {
		if _, err := db.Exec("TRUNCATE TABLE " + table + " CASCADE"); err != nil {
			t.Fatalf("ResetDB() failed: %v", err)
		}
	}
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateStudent(t *testing.T, repo student.Repository, teacherID string, grade, classNo, number int, name, email string) student.Student {
	t.Helper()

	st, err := repo.CreateStudent(context.Background(), student.Student{
		TeacherID: teacherID,
		Grade:     grade,
		ClassNo:   classNo,
		Number:    number,
		Name:      name,
		Email:     email,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return st
}
