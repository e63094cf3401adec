package tests

import (
	"bytes"
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classnote/classnote/core/generator"
	"github.com/classnote/classnote/core/user"
	"github.com/classnote/classnote/services/spreadsheet"
)

const generatorCSV = "번호,이름,활동 내용\n1,홍길동,토론 대회 참가\n2,김철수,과학 탐구 보고서\n"

func Test_generatorApi_wizard(t *testing.T) {
	e := setup(t)
	teacher := e.createUser(t, "Teacher", "teacher@school.kr", user.RoleTeacher)
	other := e.createUser(t, "Other", "other@school.kr", user.RoleTeacher)
	token := getToken(t, e.conf, teacher)

	rec := e.do(newUploadRequest(t, "/api/generator", token, "세특.csv", []byte(generatorCSV)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var prev generator.Preview
	unmarshall(t, rec, &prev)
	assert.Equal(t, 2, prev.Total)
	assert.Equal(t, generator.StepUploaded, prev.Step)
	base := "/api/generator/" + prev.ID

	runHTTPTests(t, e, []httpTest{
		{name: "owner only", method: http.MethodGet, path: base, token: getToken(t, e.conf, other), wantCode: http.StatusNotFound},
		{name: "not configured", method: http.MethodPost, path: base + "/rows/0", token: token, wantCode: http.StatusBadRequest},
		{
			name: "unknown column", method: http.MethodPost, path: base + "/configure", token: token, wantCode: http.StatusBadRequest,
			body: marshallObj(t, generator.Settings{InputColumns: []string{"nope"}, OutputColumn: "세특", Prompt: "써줘"}),
		},
		{
			name: "prompt required", method: http.MethodPost, path: base + "/configure", token: token, wantCode: http.StatusBadRequest,
			body: marshallObj(t, generator.Settings{InputColumns: []string{"활동 내용"}, OutputColumn: "세특"}),
		},
	})

	req, rec := newAuthRequest(http.MethodPost, base+"/configure", token, marshallObj(t, generator.Settings{
		InputColumns: []string{"이름", "활동 내용"},
		OutputColumn: "세특",
		Prompt:       "학생부 세특 문장을 작성하시오",
	}))
	e.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var wiz generator.Wizard
	unmarshall(t, rec, &wiz)
	assert.Equal(t, generator.StepConfigured, wiz.Step)

	req, rec = newAuthRequest(http.MethodPost, base+"/rows/1", token)
	e.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out generator.RowOutput
	unmarshall(t, rec, &out)
	assert.Equal(t, 1, out.Index)
	assert.NotEmpty(t, out.Output)

	for _, idx := range []string{"2", "-1", "x"} {
		req, rec = newAuthRequest(http.MethodPost, base+"/rows/"+idx, token)
		e.app.ServeHTTP(rec, req)
		assert.NotEqual(t, http.StatusOK, rec.Code, "row "+idx)
	}

	// the processed row is skipped
	req, rec = newAuthRequest(http.MethodPost, base+"/process-all", token)
	e.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res generator.ProcessResult
	unmarshall(t, rec, &res)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 2, e.ai.Calls())

	req, rec = newAuthRequest(http.MethodGet, base+"/download", token)
	e.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")

	table, err := spreadsheet.NewCodec().ReadTable("out.xlsx", bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, []string{"번호", "이름", "활동 내용", "세특"}, table.Headers)
	require.Len(t, table.Rows, 2)
	for i, row := range table.Rows {
		assert.NotEmpty(t, table.Cell(row, 3), "row "+strconv.Itoa(i))
	}

	runHTTPTests(t, e, []httpTest{
		{name: "discard", method: http.MethodDelete, path: base, token: token, wantCode: http.StatusNoContent},
		{name: "discarded", method: http.MethodGet, path: base, token: token, wantCode: http.StatusNotFound},
	})
}

func Test_generatorApi_upload(t *testing.T) {
	e := setup(t)
	teacher := e.createUser(t, "Teacher", "teacher@school.kr", user.RoleTeacher)
	token := getToken(t, e.conf, teacher)

	runHTTPTests(t, e, []httpTest{
		{name: "no file", method: http.MethodPost, path: "/api/generator", token: token, wantCode: http.StatusBadRequest},
	})

	rec := e.do(newUploadRequest(t, "/api/generator", token, "notes.txt", []byte("hello")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(newUploadRequest(t, "/api/generator", token, "empty.csv", []byte("a,b\n")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
