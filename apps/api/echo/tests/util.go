package tests

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/classnote/classnote/apps/api/echo"
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
	dummydb "github.com/classnote/classnote/storage/database/dummy"
	"github.com/classnote/classnote/tests"
)

const testPassword = "Pa$$w0rd-42"

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

// env is a server backed by the in-memory repositories.
type env struct {
	app     Server
	conf    *core.Config
	mail    *emailsvc.ConsoleServiceMock
	ai      *aisvc.Fake
	usrRepo user.Repository
	stdRepo student.Repository
	schRepo school.Repository
}

func setup(t *testing.T) *env {
	t.Helper()

	db, err := dummydb.Open()
	require.NoError(t, err)

	conf := core.NewTestConfig()
	logger := logsvc.NopLogger{}
	validate, translator := testutil.NewValidator()

	e := &env{
		conf:    conf,
		mail:    emailsvc.NewConsoleServiceMock(conf, logger),
		ai:      &aisvc.Fake{},
		usrRepo: dummydb.NewUserRepository(db),
		stdRepo: dummydb.NewStudentRepository(db),
		schRepo: dummydb.NewSchoolRepository(db),
	}
	codec := spreadsheet.NewCodec()

	usrSvc := user.NewServiceMock(e.usrRepo, e.mail, conf)
	stdSvc := student.NewService(nil, e.stdRepo, usrSvc, validate, conf, logger)
	actSvc := activity.NewService(nil, dummydb.NewActivityRepository(db), stdSvc, e.ai)
	promptSvc := prompt.NewService(dummydb.NewPromptRepository(db))

	e.app = NewServer(
		"",  /* addr */
		nil, /* shutdown */
		&Deps{
			Conf:           conf,
			Logger:         logger,
			Validate:       validate,
			Translator:     translator,
			Codec:          codec,
			UserSvc:        usrSvc,
			SchoolSvc:      school.NewService(nil, e.schRepo, usrSvc, logger),
			StudentSvc:     stdSvc,
			ActivitySvc:    actSvc,
			PromptSvc:      promptSvc,
			ConfigSvc:      sysconfig.NewService(dummydb.NewConfigRepository(db)),
			GeneratorSvc:   generator.NewService(sessionsvc.NewMemoryStore(), codec, promptSvc, e.ai, conf, logger),
			DashboardSvc:   dashboard.NewService(usrSvc, stdSvc, actSvc),
			DisableReqLogs: true,
		},
	)
	return e
}

func (e *env) createUser(t *testing.T, name, email string, roles ...string) user.User {
	return testutil.CreateUser(t, e.usrRepo, name, "", email, testPassword, roles, true /* isActive */)
}

func (e *env) createStudent(t *testing.T, teacher user.User, grade, classNo, number int, name, email string) student.Student {
	return testutil.CreateStudent(t, e.stdRepo, teacher.ID, grade, classNo, number, name, email)
}

// do serves the request and returns the recorder.
func (e *env) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.app.ServeHTTP(rec, req)
	return rec
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// newUploadRequest posts content as the multipart "file" field.
func newUploadRequest(t *testing.T, path, token, filename string, content []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func getToken(t *testing.T, conf *core.Config, usr user.User) string {
	claims := GetUserClaims(usr, conf)
	token, err := GenerateToken(claims, conf)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func unmarshall(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("unmarshall() failed: %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, e *env, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			e.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
