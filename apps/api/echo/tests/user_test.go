package tests

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/classnote/classnote/apps/api/echo"
	"github.com/classnote/classnote/core/user"
	"github.com/classnote/classnote/tests"
)

func Test_userApi_login(t *testing.T) {
	e := setup(t)

	now := time.Now()
	hong := testutil.CreateUser(t, e.usrRepo, "Hong", "", "hong@school.kr", testPassword, []string{user.RoleTeacher}, true, now)
	// same local part, created later: "hong" keeps logging into the first account
	testutil.CreateUser(t, e.usrRepo, "Hong 2", "", "hong@other.kr", testPassword, []string{user.RoleTeacher}, true, now.Add(time.Hour))
	testutil.CreateUser(t, e.usrRepo, "Gone", "", "gone@school.kr", testPassword, []string{user.RoleTeacher}, false)

	authFailed := marshallObj(t, httpErr{Error: "authentication failed"})
	login := func(uname, pwd string) []byte {
		return marshallObj(t, echoapi.LoginRequest{Username: uname, Password: pwd})
	}

	tests := []struct {
		name     string
		body     []byte
		wantCode int
		wantData []byte
		wantSub  string
	}{
		{name: "unknown user", body: login("nobody@school.kr", testPassword), wantCode: http.StatusBadRequest, wantData: authFailed},
		{name: "wrong password", body: login("hong@school.kr", "nope"), wantCode: http.StatusBadRequest, wantData: authFailed},
		{
			name: "deactivated", body: login("gone@school.kr", testPassword),
			wantCode: http.StatusForbidden, wantData: marshallObj(t, httpErr{Error: "account deactivated"}),
		},
		{name: "full email", body: login("HONG@school.kr", testPassword), wantCode: http.StatusOK, wantSub: hong.ID},
		{name: "email local part", body: login("hong", testPassword), wantCode: http.StatusOK, wantSub: hong.ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/api/users/login", tt.body)
			e.app.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantData != nil {
				checkCodeAndData(t, httpTest{wantCode: tt.wantCode, wantData: tt.wantData}, rec)
			}
			if tt.wantSub == "" {
				return
			}
			var resp echoapi.LoginResponse
			unmarshall(t, rec, &resp)
			claims := new(echoapi.Claims)
			_, err := jwt.ParseWithClaims(resp.Token, claims, func(*jwt.Token) (interface{}, error) {
				return []byte(e.conf.SecretKey), nil
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantSub, claims.Subject)
			assert.True(t, claims.IsTeacher)
		})
	}
}

func Test_userApi_signUpAndApprove(t *testing.T) {
	e := setup(t)
	admin := e.createUser(t, "Admin", "admin@school.kr", user.RoleAdmin)

	body := marshallObj(t, user.NewTeacher{
		Email:           "New.Teacher@school.kr",
		Name:            "Kim",
		Phone:           "010-1234-5678",
		SchoolCode:      "B100000001",
		Subject:         "국어",
		Password:        "Zq7#vLm2pX",
		PasswordConfirm: "Zq7#vLm2pX",
	})
	req, rec := newRequest(http.MethodPost, "/api/users/signup", body)
	e.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var guest user.User
	unmarshall(t, rec, &guest)
	assert.Equal(t, "new.teacher@school.kr", guest.Email)
	assert.Equal(t, []string{user.RoleGuest}, guest.Roles)

	// the admins are notified
	sent := e.mail.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, admin.Email, sent[0].To[0].Address)

	// signing up twice fails
	req, rec = newRequest(http.MethodPost, "/api/users/signup", body)
	e.app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	runHTTPTests(t, e, []httpTest{
		{
			name: "check-email (taken)", method: http.MethodGet, path: "/api/users/check-email?email=new.teacher@school.kr",
			wantCode: http.StatusOK, wantData: marshallObj(t, echoapi.CheckEmailResponse{Exists: true}),
		},
		{
			name: "check-email (free)", method: http.MethodGet, path: "/api/users/check-email?email=free@school.kr",
			wantCode: http.StatusOK, wantData: marshallObj(t, echoapi.CheckEmailResponse{Exists: false}),
		},
		{
			name: "guest is pending", method: http.MethodGet, path: "/api/students", token: getToken(t, e.conf, guest),
			wantCode: http.StatusForbidden, wantData: marshallObj(t, httpErr{Error: "account pending approval"}),
		},
		{
			name: "only admins approve", method: http.MethodPost, path: "/api/users/" + guest.ID + "/approve",
			token: getToken(t, e.conf, guest), wantCode: http.StatusForbidden,
		},
	})

	e.mail.Reset()
	req, rec = newAuthRequest(http.MethodPost, "/api/users/"+guest.ID+"/approve", getToken(t, e.conf, admin))
	e.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var teacher user.User
	unmarshall(t, rec, &teacher)
	assert.Equal(t, []string{user.RoleTeacher}, teacher.Roles)
	require.Len(t, e.mail.Sent(), 1)
	assert.Equal(t, guest.Email, e.mail.Sent()[0].To[0].Address)

	// approving twice fails
	req, rec = newAuthRequest(http.MethodPost, "/api/users/"+guest.ID+"/approve", getToken(t, e.conf, admin))
	e.app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// the same token now opens the teacher pages
	req, rec = newAuthRequest(http.MethodGet, "/api/students", getToken(t, e.conf, guest))
	e.app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func Test_userApi_query(t *testing.T) {
	e := setup(t)

	path := func(search, ordering string, isActive *bool, roles ...string) string {
		v := make(url.Values)
		if search != "" {
			v.Add("search", search)
		}
		if ordering != "" {
			v.Add("ordering", ordering)
		}
		if isActive != nil {
			v.Add("is_active", strconv.FormatBool(*isActive))
		}
		for _, r := range roles {
			v.Add("role", r)
		}
		return "/api/users?" + v.Encode()
	}
	bPtr := func(b bool) *bool { return &b }

	now := time.Now()
	admin := testutil.CreateUser(t, e.usrRepo, "Admin", "admin", "admin@school.kr", "", []string{user.RoleAdmin}, true, now)
	teacher := testutil.CreateUser(t, e.usrRepo, "Teacher", "", "teacher@school.kr", "", []string{user.RoleTeacher}, true, now.Add(time.Hour))
	guest := testutil.CreateUser(t, e.usrRepo, "Guest", "", "guest@school.kr", "", []string{user.RoleGuest}, true, now.Add(2*time.Hour))
	student := testutil.CreateUser(t, e.usrRepo, "Student", "", "student@school.kr", "", []string{user.RoleStudent}, false, now.Add(3*time.Hour))

	adminToken := getToken(t, e.conf, admin)
	tests := []httpTest{
		{name: "Auth required", path: "/api/users", wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{
			name: "Admin required", path: "/api/users", token: getToken(t, e.conf, teacher),
			wantCode: http.StatusForbidden, wantData: marshallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "Get all", path: path("", "created_at", nil), token: adminToken, wantData: marshallObj(t, []user.User{admin, teacher, guest, student})},
		{name: "role=guest:", path: path("", "", nil, user.RoleGuest), token: adminToken, wantData: marshallObj(t, []user.User{guest})},
		{name: "is_active=false", path: path("", "", bPtr(false)), token: adminToken, wantData: marshallObj(t, []user.User{student})},
		{name: "search=TEACH", path: path("TEACH", "", nil), token: adminToken, wantData: marshallObj(t, []user.User{teacher})},
		{
			name: "order by -created_at", path: path("", "-created_at", nil), token: adminToken,
			wantData: marshallObj(t, []user.User{student, guest, teacher, admin}),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodGet
		if tests[i].wantCode == 0 {
			tests[i].wantCode = http.StatusOK
		}
	}
	runHTTPTests(t, e, tests)
}

func Test_userApi_refreshToken(t *testing.T) {
	e := setup(t)

	naughty := e.createUser(t, "N Dog", "ndog@school.kr", user.RoleStudent)
	naughty.IsActive = false
	naughty, err := e.usrRepo.UpdateUser(context.Background(), naughty)
	require.NoError(t, err)
	student := e.createUser(t, "Hero", "hero@school.kr", user.RoleStudent)

	// older than the refresh threshold
	origIat := time.Now().Add(-2 * e.conf.Server.JWTRefreshExpirationDelta).Unix()
	unrefreshableToken, err := echoapi.GenerateToken(echoapi.GetUserClaims(student, e.conf, origIat), e.conf)
	require.NoError(t, err)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{
			name: "Inactive user not allowed", token: getToken(t, e.conf, naughty),
			wantCode: http.StatusForbidden, wantData: marshallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name: "Refresh period expired", token: unrefreshableToken,
			wantCode: http.StatusForbidden, wantData: marshallObj(t, httpErr{Error: "refresh has expired"}),
		},
		{name: "Token refreshed", token: getToken(t, e.conf, student), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, "/api/users/token-refresh", tt.token)
			e.app.ServeHTTP(rec, req)

			// cannot guess new token.. just check that it's not empty
			if tt.wantCode == http.StatusOK {
				require.Equal(t, tt.wantCode, rec.Code)
				var resp echoapi.LoginResponse
				unmarshall(t, rec, &resp)
				assert.NotEmpty(t, resp.Token)
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_passwordReset(t *testing.T) {
	e := setup(t)
	student := e.createUser(t, "Hero", "hero@school.kr", user.RoleStudent)

	successData := marshallObj(t, echoapi.SuccessResponse{Success: "If the email address supplied is associated with an active account on this system, " +
		"an email will arrive in your inbox shortly with instructions to reset your password."})
	runHTTPTests(t, e, []httpTest{
		{
			name: "invalid email", method: http.MethodPost, path: "/api/users/password-reset",
			body:     marshallObj(t, echoapi.PasswordResetRequest{Email: "lol"}),
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, echoapi.PasswordResetRequest{Email: "email must be a valid email address"}),
		},
		{
			name: "unknown email", method: http.MethodPost, path: "/api/users/password-reset",
			body: marshallObj(t, echoapi.PasswordResetRequest{Email: "lol@school.kr"}), wantCode: http.StatusOK, wantData: successData,
		},
	})
	assert.Empty(t, e.mail.Sent())

	req, rec := newRequest(http.MethodPost, "/api/users/password-reset", marshallObj(t, echoapi.PasswordResetRequest{Email: student.Email}))
	e.app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: successData}, rec)

	sent := e.mail.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].TextContent, student.Name)
	m := regexp.MustCompile(`uid=([^&\s]+)&token=(\S+)`).FindStringSubmatch(sent[0].TextContent)
	require.Len(t, m, 3, sent[0].TextContent)

	confirm := func(token, pwd string) []byte {
		return marshallObj(t, user.ResetUserPassword{UID: m[1], Token: token, Password: pwd, PasswordConfirm: pwd})
	}
	runHTTPTests(t, e, []httpTest{
		{
			name: "weak password", method: http.MethodPost, path: "/api/users/password-reset-confirm", body: confirm(m[2], "12345678"),
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, map[string]string{"password": "password cannot be entirely numeric"}),
		},
		{
			name: "invalid token", method: http.MethodPost, path: "/api/users/password-reset-confirm", body: confirm("HE4TS-sig", "LolC@t123"),
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, map[string]string{"token": "invalid or expired token"}),
		},
		{
			name: "valid token", method: http.MethodPost, path: "/api/users/password-reset-confirm", body: confirm(m[2], "LolC@t123"),
			wantCode: http.StatusOK, wantData: marshallObj(t, echoapi.SuccessResponse{Success: "Password has been reset with the new password."}),
		},
	})

	req, rec = newRequest(http.MethodPost, "/api/users/login", marshallObj(t, echoapi.LoginRequest{Username: "hero", Password: "LolC@t123"}))
	e.app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
