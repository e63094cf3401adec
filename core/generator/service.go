package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/classnote/classnote/core"
	"github.com/classnote/classnote/core/prompt"
)

const (
	maxRows      = 500
	previewRows  = 5
	sessionKey   = "generator:wizard:"
	outputSuffix = "_AI"

	systemPrompt = "당신은 학교생활기록부의 교과 세부능력 및 특기사항 작성을 돕는 교사입니다. " +
		"주어진 학생 정보만을 근거로 관찰 중심의 문장을 작성하고, 명사형 종결(~함, ~임)을 사용하세요. " +
		"학생 이름이나 과장된 표현은 쓰지 마세요."
)

var (
	ErrNotFound      = core.NewNotFoundError("wizard not found or expired, please upload the file again")
	ErrEmpty         = errors.New("the file has no data rows")
	ErrTooManyRows   = fmt.Errorf("the file cannot have more than %d rows", maxRows)
	ErrNotConfigured = errors.New("configure the generation first")
	ErrRowIndex      = errors.New("row index out of range")
	ErrUnknownColumn = errors.New("unknown column")

	nowFunc = time.Now // mockable
)

type (
	Service interface {
		Upload(ctx context.Context, ownerID, filename string, r io.Reader) (Preview, error)
		Get(ctx context.Context, ownerID, id string) (Wizard, error)
		Configure(ctx context.Context, ownerID, id string, settings Settings) (Wizard, error)
		ProcessRow(ctx context.Context, ownerID, id string, index int) (RowOutput, error)
		ProcessAll(ctx context.Context, ownerID, id string) (ProcessResult, error)
		Download(ctx context.Context, ownerID, id string) (File, error)
		Discard(ctx context.Context, ownerID, id string) error
	}

	service struct {
		store     core.SessionStore
		codec     core.SpreadsheetCodec
		promptSvc prompt.Service
		ai        core.TextGeneratorProvider
		conf      *core.Config
		logger    core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(
	store core.SessionStore,
	codec core.SpreadsheetCodec,
	promptSvc prompt.Service,
	ai core.TextGeneratorProvider,
	conf *core.Config,
	logger core.Logger,
) Service {
	return &service{store: store, codec: codec, promptSvc: promptSvc, ai: ai, conf: conf, logger: logger}
}

func (svc *service) Upload(ctx context.Context, ownerID, filename string, r io.Reader) (Preview, error) {
	filename = SanitizeFilename(filename)
	table, err := svc.codec.ReadTable(filename, r)
	if err != nil {
		return Preview{}, core.NewValidationError(err, core.FieldError{Field: "file", Error: err.Error()})
	}
	switch {
	case len(table.Rows) == 0:
		return Preview{}, core.NewValidationError(ErrEmpty, core.FieldError{Field: "file", Error: ErrEmpty.Error()})
	case len(table.Rows) > maxRows:
		return Preview{}, core.NewValidationError(ErrTooManyRows, core.FieldError{Field: "file", Error: ErrTooManyRows.Error()})
	}

	wiz := Wizard{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Filename:  filename,
		Headers:   table.Headers,
		Rows:      table.Rows,
		Outputs:   make([]string, len(table.Rows)),
		Step:      StepUploaded,
		CreatedAt: nowFunc().UTC(),
	}
	if err = svc.save(ctx, wiz); err != nil {
		return Preview{}, err
	}
	return newPreview(wiz), nil
}

func (svc *service) Get(ctx context.Context, ownerID, id string) (Wizard, error) {
	data, err := svc.store.Get(ctx, sessionKey+id)
	if err != nil {
		if errors.Cause(err) == core.ErrSessionMissing {
			return Wizard{}, ErrNotFound
		}
		return Wizard{}, errors.Wrap(err, "loading wizard")
	}

	var wiz Wizard
	if err = json.Unmarshal(data, &wiz); err != nil {
		return Wizard{}, errors.Wrap(err, "decoding wizard")
	}
	if wiz.OwnerID != ownerID {
		return Wizard{}, ErrNotFound
	}

	fields, err := svc.store.Fields(ctx, outputsKey(wiz))
	if err != nil {
		return Wizard{}, errors.Wrap(err, "loading outputs")
	}
	wiz.Outputs = make([]string, len(wiz.Rows))
	for field, val := range fields {
		if i, err := strconv.Atoi(field); err == nil && i >= 0 && i < len(wiz.Outputs) {
			wiz.Outputs[i] = string(val)
		}
	}
	return wiz, nil
}

func (svc *service) Configure(ctx context.Context, ownerID, id string, settings Settings) (Wizard, error) {
	wiz, err := svc.Get(ctx, ownerID, id)
	if err != nil {
		return Wizard{}, err
	}

	table := wiz.table()
	var fieldErrs []core.FieldError
	for _, col := range settings.InputColumns {
		if table.ColumnIndex(col) < 0 {
			fieldErrs = append(fieldErrs, core.FieldError{Field: "input_columns", Error: fmt.Sprintf("unknown column: %s", col)})
		}
	}
	if len(fieldErrs) > 0 {
		return Wizard{}, core.NewValidationError(ErrUnknownColumn, fieldErrs...)
	}

	if settings.TemplateID != "" {
		tmpl, err := svc.promptSvc.GetTemplate(ctx, settings.TemplateID)
		if err != nil {
			if core.IsNotFound(err) {
				return Wizard{}, core.NewValidationError(err, core.FieldError{Field: "template_id", Error: err.Error()})
			}
			return Wizard{}, errors.Wrap(err, "getting template")
		}
		settings.Prompt = tmpl.Content
	}

	// a new output column restarts the generation
	var staleOutputs string
	if wiz.Settings != nil && wiz.Settings.OutputColumn != settings.OutputColumn {
		staleOutputs = outputsKey(wiz)
		wiz.Run++
		wiz.Outputs = make([]string, len(wiz.Rows))
	}
	wiz.Settings = &settings
	wiz.Step = StepConfigured
	if err = svc.save(ctx, wiz); err != nil {
		return Wizard{}, err
	}
	if staleOutputs != "" {
		if err = svc.store.Delete(ctx, staleOutputs); err != nil {
			svc.logger.Warn("generator: dropping stale outputs", err)
		}
	}
	return wiz, nil
}

func (svc *service) ProcessRow(ctx context.Context, ownerID, id string, index int) (RowOutput, error) {
	wiz, err := svc.configured(ctx, ownerID, id)
	if err != nil {
		return RowOutput{}, err
	}
	if index < 0 || index >= len(wiz.Rows) {
		return RowOutput{}, core.NewValidationError(ErrRowIndex, core.FieldError{Field: "index", Error: ErrRowIndex.Error()})
	}

	gen, err := svc.ai.TextGenerator(ctx)
	if err != nil {
		return RowOutput{}, err
	}
	out, err := svc.generate(ctx, gen, wiz, index)
	if err != nil {
		return RowOutput{}, err
	}

	if err = svc.saveOutput(ctx, wiz, index, out); err != nil {
		return RowOutput{}, err
	}
	return RowOutput{Index: index, Output: out}, nil
}

// ProcessAll generates the rows that have no output yet, a few at a time.
// A failing row is reported and does not stop the others. Each output is stored as soon as it is generated.
func (svc *service) ProcessAll(ctx context.Context, ownerID, id string) (ProcessResult, error) {
	wiz, err := svc.configured(ctx, ownerID, id)
	if err != nil {
		return ProcessResult{}, err
	}
	gen, err := svc.ai.TextGenerator(ctx)
	if err != nil {
		return ProcessResult{}, err
	}

	res := ProcessResult{Errors: []core.RowError{}}
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(svc.concurrency())
	for i := range wiz.Rows {
		if wiz.Outputs[i] != "" {
			res.Skipped++
			continue
		}
		i := i
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			out, err := svc.generate(ctx, gen, wiz, i)
			if err == nil {
				// kept even when the request is cancelled meanwhile
				if err := svc.saveOutput(context.WithoutCancel(ctx), wiz, i, out); err != nil {
					return err
				}
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				svc.logger.Warn(fmt.Sprintf("generator: row %d failed", i), err)
				res.Errors = append(res.Errors, core.RowError{Line: i + 2, Reason: err.Error()})
				return nil
			}
			res.Processed++
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return ProcessResult{}, err
	}
	return res, nil
}

func (svc *service) Download(ctx context.Context, ownerID, id string) (File, error) {
	wiz, err := svc.configured(ctx, ownerID, id)
	if err != nil {
		return File{}, err
	}

	out := core.Table{
		Headers: append(append([]string{}, wiz.Headers...), wiz.Settings.OutputColumn),
		Rows:    make([][]string, len(wiz.Rows)),
	}
	for i, row := range wiz.Rows {
		out.Rows[i] = append(append([]string{}, row...), wiz.Outputs[i])
	}

	var buf bytes.Buffer
	if err = svc.codec.WriteXLSX(&buf, "AI", out); err != nil {
		return File{}, errors.Wrap(err, "writing xlsx")
	}
	return File{Name: OutputFilename(wiz.Filename), Content: buf.Bytes()}, nil
}

func (svc *service) Discard(ctx context.Context, ownerID, id string) error {
	wiz, err := svc.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	return errors.Wrap(svc.store.Delete(ctx, sessionKey+id, outputsKey(wiz)), "discarding wizard")
}

func (svc *service) configured(ctx context.Context, ownerID, id string) (Wizard, error) {
	wiz, err := svc.Get(ctx, ownerID, id)
	if err != nil {
		return Wizard{}, err
	}
	if wiz.Step < StepConfigured || wiz.Settings == nil {
		return Wizard{}, core.NewValidationError(ErrNotConfigured)
	}
	return wiz, nil
}

func (svc *service) generate(ctx context.Context, gen core.TextGenerator, wiz Wizard, index int) (string, error) {
	out, err := gen.Generate(ctx, systemPrompt, BuildPrompt(wiz.table(), wiz.Rows[index], *wiz.Settings))
	if err != nil {
		return "", errors.Wrap(err, "generating text")
	}
	out = strings.TrimSpace(out)
	if limit := wiz.Settings.MaxChars; limit > 0 && utf8.RuneCountInString(out) > limit {
		out = strings.TrimSpace(string([]rune(out)[:limit]))
	}
	return out, nil
}

// save stores the wizard without its outputs, which live in a hash of their own.
func (svc *service) save(ctx context.Context, wiz Wizard) error {
	wiz.Outputs = nil
	data, err := json.Marshal(wiz)
	if err != nil {
		return errors.Wrap(err, "encoding wizard")
	}
	return errors.Wrap(svc.store.Set(ctx, sessionKey+wiz.ID, data, svc.conf.Redis.WizardTTL), "saving wizard")
}

func (svc *service) saveOutput(ctx context.Context, wiz Wizard, index int, out string) error {
	err := svc.store.SetField(ctx, outputsKey(wiz), strconv.Itoa(index), []byte(out), svc.conf.Redis.WizardTTL)
	return errors.Wrap(err, "saving output")
}

// outputsKey is the hash holding the outputs of the current run, one field per row index.
func outputsKey(wiz Wizard) string {
	return sessionKey + wiz.ID + ":outputs:" + strconv.Itoa(wiz.Run)
}

func (svc *service) concurrency() int {
	if svc.conf.AI.MaxConcurrency > 0 {
		return svc.conf.AI.MaxConcurrency
	}
	return 1
}

// BuildPrompt appends the selected columns of row, one "column: value" line each, and the length limit
// to the instruction.
func BuildPrompt(table core.Table, row []string, settings Settings) string {
	var b strings.Builder
	b.WriteString(settings.Prompt)
	b.WriteString("\n\n[학생 정보]\n")
	for _, col := range settings.InputColumns {
		idx := table.ColumnIndex(col)
		if val := table.Cell(row, idx); val != "" {
			fmt.Fprintf(&b, "%s: %s\n", table.Headers[idx], val)
		}
	}
	if settings.MaxChars > 0 {
		fmt.Fprintf(&b, "\n공백 포함 %d자 이내로 작성하세요.", settings.MaxChars)
	}
	return strings.TrimSpace(b.String())
}

func newPreview(wiz Wizard) Preview {
	n := previewRows
	if len(wiz.Rows) < n {
		n = len(wiz.Rows)
	}
	return Preview{
		ID:       wiz.ID,
		Filename: wiz.Filename,
		Headers:  wiz.Headers,
		Rows:     wiz.Rows[:n],
		Total:    len(wiz.Rows),
		Done:     wiz.Done(),
		Step:     wiz.Step,
	}
}
