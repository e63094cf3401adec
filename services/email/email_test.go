package emailsvc

import (
	"bytes"
	"errors"
	"net/http"
	"net/mail"
	"os"
	"testing"
	"time"

	"github.com/sendgrid/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classnote/classnote/core"
	logsvc "github.com/classnote/classnote/services/logger"
)

func TestMain(m *testing.M) {
	core.ParseEmailTemplates(core.NewTestConfig(), logsvc.NopLogger{})
	os.Exit(m.Run())
}

func approvedMessage() *core.EmailMessage {
	return &core.EmailMessage{
		To:           []mail.Address{{Name: "김선생", Address: "kim@test.kr"}},
		Subject:      "계정 승인",
		TemplateName: "teacher_approved",
		TemplateData: map[string]interface{}{"Name": "김선생"},
	}
}

func TestConsoleService_Deliver(t *testing.T) {
	conf := core.NewTestConfig()
	var out bytes.Buffer
	svc := newConsoleService(conf, logsvc.NopLogger{}, &out)

	require.True(t, svc.deliver(approvedMessage()))
	printed := out.String()
	assert.Contains(t, printed, "Subject: =?utf-8?q?")
	assert.Contains(t, printed, "text/plain; charset=utf-8")
	assert.Contains(t, printed, "text/html; charset=utf-8")
	assert.Contains(t, printed, "Hello 김선생")
	assert.Contains(t, printed, conf.FrontendBaseURL+"/login")
	assert.NotContains(t, printed, "Cc:")

	out.Reset()
	assert.False(t, svc.deliver(&core.EmailMessage{Subject: "no recipients", BodyStr: "hi"}))
	assert.False(t, svc.deliver(&core.EmailMessage{To: approvedMessage().To, TemplateName: "unknown"}))
	assert.Empty(t, out.String())
}

func TestConsoleServiceMock(t *testing.T) {
	svc := NewConsoleServiceMock(core.NewTestConfig(), logsvc.NopLogger{})
	svc.SendMessages(approvedMessage(), &core.EmailMessage{Subject: "empty"})

	sent := svc.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "kim@test.kr", sent[0].To[0].Address)
	assert.NotEmpty(t, sent[0].HTMLContent)

	svc.Reset()
	assert.Empty(t, svc.Sent())
}

func TestSendgridService_Prepare(t *testing.T) {
	conf := core.NewTestConfig()
	svc := NewSendgridService(conf, logsvc.NopLogger{}).(*sendgridService)

	msg := approvedMessage()
	msg.Bcc = []mail.Address{{Address: "audit@test.kr"}}
	require.NoError(t, msg.Render())

	m := svc.prepare(msg)
	assert.Equal(t, []string{"teacher_approved"}, m.Categories)
	require.Len(t, m.Personalizations, 1)
	p := m.Personalizations[0]
	assert.Equal(t, "["+conf.AppName+"] 계정 승인", p.Subject)
	assert.Equal(t, "kim@test.kr", p.To[0].Address)
	assert.Equal(t, "audit@test.kr", p.BCC[0].Address)
	assert.Equal(t, "TEST", p.CustomArgs["env"])
	require.Len(t, m.Content, 2)
	assert.Equal(t, "text/plain", m.Content[0].Type)
}

func TestSendgridService_Send(t *testing.T) {
	origAPI, origBackoff := sendgridAPI, retryBackoff
	defer func() { sendgridAPI, retryBackoff = origAPI, origBackoff }()
	retryBackoff = time.Millisecond

	svc := NewSendgridService(core.NewTestConfig(), logsvc.NopLogger{}).(*sendgridService)
	msg := approvedMessage()
	require.NoError(t, msg.Render())

	tests := []struct {
		name      string
		responses []int
		apiErr    error
		wantCalls int
		wantErr   bool
	}{
		{name: "accepted", responses: []int{http.StatusAccepted}, wantCalls: 1},
		{name: "rate limited then accepted", responses: []int{http.StatusTooManyRequests, http.StatusAccepted}, wantCalls: 2},
		{name: "bad request is final", responses: []int{http.StatusBadRequest}, wantCalls: 1, wantErr: true},
		{name: "server errors exhaust the attempts", responses: []int{500, 502, 503}, wantCalls: 3, wantErr: true},
		{name: "transport error", apiErr: errors.New("connection reset"), wantCalls: 3, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			sendgridAPI = func(req rest.Request) (*rest.Response, error) {
				calls++
				assert.Equal(t, rest.Post, req.Method)
				if tt.apiErr != nil {
					return nil, tt.apiErr
				}
				return &rest.Response{StatusCode: tt.responses[calls-1]}, nil
			}

			err := svc.send(msg)
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
