// Package dummydb implements the repositories in memory. Used by the tests and for local demos.
package dummydb

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/classnote/classnote/core"
	"github.com/classnote/classnote/core/activity"
	"github.com/classnote/classnote/core/prompt"
	"github.com/classnote/classnote/core/school"
	"github.com/classnote/classnote/core/student"
	"github.com/classnote/classnote/core/sysconfig"
	"github.com/classnote/classnote/core/user"
)

type (
	DB struct {
		user     *userTable
		school   *schoolTable
		student  *studentTable
		activity *activityTable
		prompt   *promptTable
		config   *configTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	schoolTable struct {
		sync.RWMutex
		schools  map[string]school.School
		subjects []school.Subject
	}

	studentTable struct {
		sync.RWMutex
		table map[string]student.Student
	}

	activityTable struct {
		sync.RWMutex
		activities map[string]activity.Activity // without questions
		questions  map[string]activity.Question
		answers    map[string]activity.Answer
	}

	promptTable struct {
		sync.RWMutex
		categories map[string]prompt.Category
		templates  map[string]prompt.Template
	}

	configTable struct {
		sync.RWMutex
		table map[string]sysconfig.Entry
	}
)

func Open() (*DB, error) {
	db := &DB{
		user:    &userTable{table: make(map[string]*user.User)},
		school:  &schoolTable{schools: make(map[string]school.School)},
		student: &studentTable{table: make(map[string]student.Student)},
		activity: &activityTable{
			activities: make(map[string]activity.Activity),
			questions:  make(map[string]activity.Question),
			answers:    make(map[string]activity.Answer),
		},
		prompt: &promptTable{
			categories: make(map[string]prompt.Category),
			templates:  make(map[string]prompt.Template),
		},
		config: &configTable{table: make(map[string]sysconfig.Entry)},
	}
	return db, nil
}

func newID() string {
	return uuid.New().String()
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// sortItems orders items by the keys of the requested fields. Unknown fields give "" and are ignored.
func sortItems[T any](items []T, ordering []core.DBOrdering, key func(item T, field string) string) {
	if len(ordering) == 0 {
		return
	}
	sort.SliceStable(items, func(i, j int) bool {
		for _, ord := range ordering {
			a, b := key(items[i], ord.Field), key(items[j], ord.Field)
			if a == b {
				continue
			}
			if ord.Ascending {
				return a < b
			}
			return a > b
		}
		return false
	})
}

func timeKey(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000")
}

func boolKey(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func inRange(t, from, to time.Time) bool {
	return (from.IsZero() || !t.Before(from)) && (to.IsZero() || !t.After(to))
}
