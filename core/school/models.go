package school

import (
	"github.com/classnote/classnote/core"
)

// School levels
const (
	LevelElementary = "ELEMENTARY"
	LevelMiddle     = "MIDDLE"
	LevelHigh       = "HIGH"
)

// OtherSubject is used when an activity is created by a teacher without a subject.
const OtherSubject = "기타"

// DefaultSubjects is the subject catalog created by InitSubjects.
var DefaultSubjects = []string{
	"국어", "수학", "영어", "일반사회", "역사", "지리", "윤리",
	"물리", "화학", "생물", "지구과학",
	"체육", "음악", "미술", "한문",
	"일본어", "독일어", "프랑스어", "중국어",
	"기술", "가정", "정보",
	"보건", "사서", "영양", "특수", "전문상담",
	"기계", "전자", "상업",
	OtherSubject,
}

// spreadsheet headers of the NEIS school list
var (
	officeHeaders = []string{"교육청", "시도교육청", "office"}
	nameHeaders   = []string{"학교명", "name", "school"}
	codeHeaders   = []string{"나이스 학교코드", "나이스학교코드", "학교코드", "code"}
)

// School is identified by its NEIS code.
type School struct {
	Code   string `json:"code" db:"code"`
	Office string `json:"office" db:"office"`
	Name   string `json:"name" db:"name"`
	Level  string `json:"level" db:"level"`
}

type Subject struct {
	ID   int    `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// ImportResult is the outcome of importing a school list.
type ImportResult struct {
	Created int             `json:"created"`
	Skipped int             `json:"skipped"` // already known
	Errors  []core.RowError `json:"errors"`
}

// SubjectsResult is the outcome of InitSubjects.
type SubjectsResult struct {
	Created    []string         `json:"created"`
	Normalized int              `json:"normalized"` // users whose subject got trimmed
	Unknown    []UnknownSubject `json:"unknown"`    // users whose subject is not in the catalog
}

type UnknownSubject struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
}
