package generator_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classnote/classnote/core"
	"github.com/classnote/classnote/core/generator"
	"github.com/classnote/classnote/core/prompt"
	aisvc "github.com/classnote/classnote/services/ai"
	logsvc "github.com/classnote/classnote/services/logger"
	sessionsvc "github.com/classnote/classnote/services/session"
	"github.com/classnote/classnote/services/spreadsheet"
	dummydb "github.com/classnote/classnote/storage/database/dummy"
)

const csvData = "번호,이름,활동 내용,비고\n1,홍길동,토론 대회 참가,성실함\n2,김철수,과학 탐구 보고서,\n3,이영희,영어 발표,리더십\n"

type fixture struct {
	svc       generator.Service
	ai        *aisvc.Fake
	store     *sessionsvc.MemoryStore
	promptSvc prompt.Service
}

func setup(t *testing.T) fixture {
	t.Helper()
	db, err := dummydb.Open()
	require.NoError(t, err)

	conf := core.NewTestConfig()
	f := fixture{
		ai:        &aisvc.Fake{},
		store:     sessionsvc.NewMemoryStore(),
		promptSvc: prompt.NewService(dummydb.NewPromptRepository(db)),
	}
	f.svc = generator.NewService(f.store, spreadsheet.NewCodec(), f.promptSvc, f.ai, conf, logsvc.NopLogger{})
	return f
}

func upload(t *testing.T, f fixture, owner string) generator.Preview {
	t.Helper()
	prev, err := f.svc.Upload(context.Background(), owner, `C:\docs\2학년 세특.csv`, strings.NewReader(csvData))
	require.NoError(t, err)
	return prev
}

func TestUpload(t *testing.T) {
	f := setup(t)
	prev := upload(t, f, "teacher-1")

	assert.NotEmpty(t, prev.ID)
	assert.Equal(t, "2학년 세특.csv", prev.Filename)
	assert.Equal(t, []string{"번호", "이름", "활동 내용", "비고"}, prev.Headers)
	assert.Equal(t, 3, prev.Total)
	assert.Len(t, prev.Rows, 3)
	assert.Equal(t, generator.StepUploaded, prev.Step)

	_, err := f.svc.Upload(context.Background(), "teacher-1", "empty.csv", strings.NewReader("a,b\n"))
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, generator.ErrEmpty, vErr.Err)
}

func TestOwnerScope(t *testing.T) {
	f := setup(t)
	prev := upload(t, f, "teacher-1")

	_, err := f.svc.Get(context.Background(), "teacher-2", prev.ID)
	assert.Equal(t, generator.ErrNotFound, err)

	_, err = f.svc.Get(context.Background(), "teacher-1", "unknown")
	assert.Equal(t, generator.ErrNotFound, err)

	wiz, err := f.svc.Get(context.Background(), "teacher-1", prev.ID)
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", wiz.OwnerID)
}

func TestConfigureAndProcess(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	prev := upload(t, f, "teacher-1")

	// not configured yet
	_, err := f.svc.ProcessRow(ctx, "teacher-1", prev.ID, 0)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), generator.ErrNotConfigured.Error()))

	_, err = f.svc.Configure(ctx, "teacher-1", prev.ID, generator.Settings{
		InputColumns: []string{"활동 내용", "없는 열"},
		OutputColumn: "세특",
		Prompt:       "세부능력 특기사항을 작성하세요.",
	})
	require.Error(t, err)

	wiz, err := f.svc.Configure(ctx, "teacher-1", prev.ID, generator.Settings{
		InputColumns: []string{"활동 내용", "비고"},
		OutputColumn: "세특",
		Prompt:       "세부능력 특기사항을 작성하세요.",
		MaxChars:     10,
	})
	require.NoError(t, err)
	assert.Equal(t, generator.StepConfigured, wiz.Step)

	f.ai.Reply = func(_, prompt string) (string, error) {
		return "  열정적으로 토론에 참여하여 논리적인 주장을 펼침  ", nil
	}
	out, err := f.svc.ProcessRow(ctx, "teacher-1", prev.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Index)
	assert.Equal(t, "열정적으로 토론에", out.Output) // cut at MaxChars

	require.Equal(t, 1, f.ai.Calls())
	sent := f.ai.Prompts[0]
	assert.True(t, strings.HasPrefix(sent, "세부능력 특기사항을 작성하세요."))
	assert.Contains(t, sent, "활동 내용: 토론 대회 참가")
	assert.Contains(t, sent, "비고: 성실함")
	assert.NotContains(t, sent, "홍길동")
	assert.Contains(t, sent, "10자 이내")

	_, err = f.svc.ProcessRow(ctx, "teacher-1", prev.ID, 3)
	require.Error(t, err)

	// the remaining rows only
	f.ai.Reply = func(_, prompt string) (string, error) {
		if strings.Contains(prompt, "영어 발표") {
			return "", errors.New("quota exceeded")
		}
		return "탐구함", nil
	}
	res, err := f.svc.ProcessAll(ctx, "teacher-1", prev.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 4, res.Errors[0].Line)

	wiz, err = f.svc.Get(ctx, "teacher-1", prev.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"열정적으로 토론에", "탐구함", ""}, wiz.Outputs)
	assert.Equal(t, 2, wiz.Done())
}

func TestProcessRow_Concurrent(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	prev := upload(t, f, "teacher-1")

	settings := generator.Settings{InputColumns: []string{"활동 내용"}, OutputColumn: "세특", Prompt: "작성하세요."}
	_, err := f.svc.Configure(ctx, "teacher-1", prev.ID, settings)
	require.NoError(t, err)

	// each row gets its activity back, once every row has started
	var started sync.WaitGroup
	started.Add(3)
	f.ai.Reply = func(_, prompt string) (string, error) {
		started.Done()
		started.Wait()
		for _, line := range strings.Split(prompt, "\n") {
			if strings.HasPrefix(line, "활동 내용: ") {
				return strings.TrimPrefix(line, "활동 내용: "), nil
			}
		}
		return "", errors.New("no activity")
	}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.ProcessRow(ctx, "teacher-1", prev.ID, i)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	wiz, err := f.svc.Get(ctx, "teacher-1", prev.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"토론 대회 참가", "과학 탐구 보고서", "영어 발표"}, wiz.Outputs)

	// the same output column keeps the outputs, a new one drops them
	wiz, err = f.svc.Configure(ctx, "teacher-1", prev.ID, generator.Settings{InputColumns: []string{"비고"}, OutputColumn: "세특", Prompt: "다시"})
	require.NoError(t, err)
	assert.Equal(t, 3, wiz.Done())

	settings.OutputColumn = "행동특성"
	_, err = f.svc.Configure(ctx, "teacher-1", prev.ID, settings)
	require.NoError(t, err)
	wiz, err = f.svc.Get(ctx, "teacher-1", prev.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"", "", ""}, wiz.Outputs)
}

func TestConfigureWithTemplate(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	prev := upload(t, f, "teacher-1")

	cat, err := f.promptSvc.CreateCategory(ctx, prompt.NewCategory{Name: "교과"})
	require.NoError(t, err)
	tmpl, err := f.promptSvc.CreateTemplate(ctx, prompt.NewTemplate{CategoryID: cat.ID, Title: "국어", Content: "국어 교과 세특을 작성하세요."})
	require.NoError(t, err)

	settings := generator.Settings{InputColumns: []string{"활동 내용"}, OutputColumn: "세특", TemplateID: tmpl.ID}
	wiz, err := f.svc.Configure(ctx, "teacher-1", prev.ID, settings)
	require.NoError(t, err)
	assert.Equal(t, "국어 교과 세특을 작성하세요.", wiz.Settings.Prompt)

	_, err = f.svc.Configure(ctx, "teacher-1", prev.ID, generator.Settings{InputColumns: []string{"이름"}, OutputColumn: "세특", TemplateID: "missing"})
	require.Error(t, err)
}

func TestDownload(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	prev := upload(t, f, "teacher-1")

	_, err := f.svc.Configure(ctx, "teacher-1", prev.ID, generator.Settings{
		InputColumns: []string{"활동 내용"},
		OutputColumn: "세특",
		Prompt:       "작성하세요.",
	})
	require.NoError(t, err)
	_, err = f.svc.ProcessAll(ctx, "teacher-1", prev.ID)
	require.NoError(t, err)

	file, err := f.svc.Download(ctx, "teacher-1", prev.ID)
	require.NoError(t, err)
	assert.Equal(t, "2학년 세특_AI.xlsx", file.Name)

	table, err := spreadsheet.NewCodec().ReadTable(file.Name, strings.NewReader(string(file.Content)))
	require.NoError(t, err)
	assert.Equal(t, []string{"번호", "이름", "활동 내용", "비고", "세특"}, table.Headers)
	require.Len(t, table.Rows, 3)
	assert.Equal(t, "AI: 작성하세요.", table.Rows[0][4])

	require.NoError(t, f.svc.Discard(ctx, "teacher-1", prev.ID))
	_, err = f.svc.Download(ctx, "teacher-1", prev.ID)
	assert.Equal(t, generator.ErrNotFound, err)
}

func TestWizardExpires(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	prev := upload(t, f, "teacher-1")

	// the store keeps the wizard for the configured TTL only
	data, err := f.store.Get(ctx, "generator:wizard:"+prev.ID)
	require.NoError(t, err)
	require.NoError(t, f.store.Set(ctx, "generator:wizard:"+prev.ID, data, time.Nanosecond))
	time.Sleep(time.Millisecond)

	_, err = f.svc.Get(ctx, "teacher-1", prev.ID)
	assert.Equal(t, generator.ErrNotFound, err)
}

func TestBuildPrompt(t *testing.T) {
	table := core.Table{Headers: []string{"이름", "활동", "비고"}}
	got := generator.BuildPrompt(table, []string{"홍길동", "독서 토론", ""}, generator.Settings{
		InputColumns: []string{"활동", "비고"},
		Prompt:       "작성하세요.",
		MaxChars:     300,
	})
	assert.Equal(t, "작성하세요.\n\n[학생 정보]\n활동: 독서 토론\n\n공백 포함 300자 이내로 작성하세요.", got)
}
