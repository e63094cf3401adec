package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classnote/classnote/core/prompt"
	"github.com/classnote/classnote/core/sysconfig"
	"github.com/classnote/classnote/core/user"
)

func Test_promptApi_tree(t *testing.T) {
	e := setup(t)
	admin := e.createUser(t, "Admin", "admin@school.kr", user.RoleAdmin)
	teacher := e.createUser(t, "Teacher", "teacher@school.kr", user.RoleTeacher)
	token := getToken(t, e.conf, admin)

	create := func(nc prompt.NewCategory) prompt.Category {
		t.Helper()
		req, rec := newAuthRequest(http.MethodPost, "/api/prompts/categories", token, marshallObj(t, nc))
		e.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var cat prompt.Category
		unmarshall(t, rec, &cat)
		return cat
	}
	root := create(prompt.NewCategory{Name: "교과"})
	sub := create(prompt.NewCategory{Name: "국어", ParentID: root.ID})
	leaf := create(prompt.NewCategory{Name: "문학", ParentID: sub.ID})

	req, rec := newAuthRequest(http.MethodPost, "/api/prompts/templates", token, marshallObj(t, prompt.NewTemplate{
		CategoryID: leaf.ID, Title: "시 감상", Content: "작품을 감상하고 세특을 작성하시오",
	}))
	e.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var tmpl prompt.Template
	unmarshall(t, rec, &tmpl)

	runHTTPTests(t, e, []httpTest{
		{name: "teachers cannot edit", method: http.MethodGet, path: "/api/prompts/categories", token: getToken(t, e.conf, teacher), wantCode: http.StatusForbidden},
		{
			name: "unknown parent", method: http.MethodPost, path: "/api/prompts/categories", token: token,
			body: marshallObj(t, prompt.NewCategory{Name: "x", ParentID: "nope"}), wantCode: http.StatusBadRequest,
		},
		{
			name: "cycle", method: http.MethodPut, path: "/api/prompts/categories/" + root.ID, token: token,
			body: marshallObj(t, prompt.NewCategory{Name: "교과", ParentID: leaf.ID}), wantCode: http.StatusBadRequest,
		},
		{name: "has children", method: http.MethodDelete, path: "/api/prompts/categories/" + sub.ID, token: token, wantCode: http.StatusBadRequest},
		{
			name: "template without category", method: http.MethodPost, path: "/api/prompts/templates", token: token,
			body: marshallObj(t, prompt.NewTemplate{Title: "t", Content: "c"}), wantCode: http.StatusBadRequest,
		},
		{
			name: "teachers read templates", method: http.MethodGet, path: "/api/prompts/templates/" + tmpl.ID,
			token: getToken(t, e.conf, teacher), wantCode: http.StatusOK, wantData: marshallObj(t, tmpl),
		},
	})

	req, rec = newAuthRequest(http.MethodGet, "/api/prompts/categories", token)
	e.app.ServeHTTP(rec, req)
	var tree []prompt.TreeNode
	unmarshall(t, rec, &tree)
	require.Len(t, tree, 3)
	assert.Equal(t, 0, tree[0].Depth)
	assert.Equal(t, 2, tree[2].Depth)
	assert.Equal(t, "교과 > 국어 > 문학", tree[2].Path)

	req, rec = newAuthRequest(http.MethodGet, "/api/prompts/menu", getToken(t, e.conf, teacher))
	e.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var menu []prompt.MenuNode
	unmarshall(t, rec, &menu)
	require.Len(t, menu, 1)
	require.Len(t, menu[0].Children, 1)
	require.Len(t, menu[0].Children[0].Children, 1)
	assert.Equal(t, []prompt.TemplateItem{{ID: tmpl.ID, Title: tmpl.Title}}, menu[0].Children[0].Children[0].Templates)

	req, rec = newAuthRequest(http.MethodGet, "/api/prompts/diagnose", token)
	e.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var diag prompt.Diagnosis
	unmarshall(t, rec, &diag)
	assert.Equal(t, []string{"교과"}, diag.Roots)
	assert.Len(t, diag.Categories, 3)

	// deleting the leaf removes its templates
	runHTTPTests(t, e, []httpTest{
		{name: "delete leaf", method: http.MethodDelete, path: "/api/prompts/categories/" + leaf.ID, token: token, wantCode: http.StatusNoContent},
		{name: "template gone", method: http.MethodGet, path: "/api/prompts/templates/" + tmpl.ID, token: token, wantCode: http.StatusNotFound},
	})
}

func Test_configApi(t *testing.T) {
	e := setup(t)
	owner := e.createUser(t, "Owner", "owner@school.kr", user.RoleAdminOwner)
	admin := e.createUser(t, "Admin", "admin@school.kr", user.RoleAdmin)
	token := getToken(t, e.conf, owner)

	runHTTPTests(t, e, []httpTest{
		{name: "plain admins forbidden", method: http.MethodGet, path: "/api/config", token: getToken(t, e.conf, admin), wantCode: http.StatusForbidden},
		{name: "key required", method: http.MethodPut, path: "/api/config", token: token, body: marshallObj(t, sysconfig.SetEntry{Value: "x"}), wantCode: http.StatusBadRequest},
		{
			name: "set secret", method: http.MethodPut, path: "/api/config", token: token,
			body:     marshallObj(t, sysconfig.SetEntry{Key: "gemini_api_key", Value: "abcdefgh1234"}),
			wantCode: http.StatusOK,
		},
		{
			name: "set provider", method: http.MethodPut, path: "/api/config", token: token,
			body:     marshallObj(t, sysconfig.SetEntry{Key: "AI_PROVIDER", Value: "openai"}),
			wantCode: http.StatusOK,
		},
	})

	req, rec := newAuthRequest(http.MethodGet, "/api/config?search=gemini", token)
	e.app.ServeHTTP(rec, req)
	var entries []sysconfig.Entry
	unmarshall(t, rec, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, sysconfig.KeyGeminiAPIKey, entries[0].Key)
	assert.Equal(t, "********1234", entries[0].Value)

	runHTTPTests(t, e, []httpTest{
		{name: "delete", method: http.MethodDelete, path: "/api/config/ai_provider", token: token, wantCode: http.StatusNoContent},
		{name: "delete (gone)", method: http.MethodDelete, path: "/api/config/ai_provider", token: token, wantCode: http.StatusNotFound},
	})
}

func Test_dashboardApi(t *testing.T) {
	e := setup(t)
	admin := e.createUser(t, "Admin", "admin@school.kr", user.RoleAdmin)
	teacher := e.createUser(t, "Teacher", "teacher@school.kr", user.RoleTeacher)
	guest := e.createUser(t, "Guest", "guest@school.kr", user.RoleGuest)
	pupil := e.createUser(t, "Pupil", "pupil@school.kr", user.RoleStudent)
	e.createStudent(t, teacher, 1, 1, 1, "Pupil", pupil.Email)

	summary := func(usr user.User) map[string]interface{} {
		t.Helper()
		req, rec := newAuthRequest(http.MethodGet, "/api/dashboard", getToken(t, e.conf, usr))
		e.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var sum map[string]interface{}
		unmarshall(t, rec, &sum)
		return sum
	}

	sum := summary(admin)
	assert.Equal(t, user.RoleAdmin, sum["role"])
	pending := sum["admin"].(map[string]interface{})["pending_approvals"].([]interface{})
	require.Len(t, pending, 1)
	assert.Equal(t, guest.ID, pending[0].(map[string]interface{})["id"])

	sum = summary(teacher)
	assert.Equal(t, user.RoleTeacher, sum["role"])
	assert.EqualValues(t, 1, sum["teacher"].(map[string]interface{})["students"])

	sum = summary(pupil)
	assert.Equal(t, user.RoleStudent, sum["role"])
	assert.EqualValues(t, 0, sum["student"].(map[string]interface{})["pending"])

	sum = summary(guest)
	assert.Equal(t, user.RoleGuest, sum["role"])
	assert.NotEmpty(t, sum["notice"])

	req, rec := newRequest(http.MethodGet, "/api/dashboard")
	e.app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
