package generator

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/classnote/classnote/core"
)

// wizard steps
const (
	StepUploaded   = 1
	StepConfigured = 2
)

// Wizard is the state of a report-card generation, kept in the session store between requests.
type Wizard struct {
	ID        string     `json:"id"`
	OwnerID   string     `json:"owner_id"`
	Filename  string     `json:"filename"`
	Headers   []string   `json:"headers"`
	Rows      [][]string `json:"rows"`
	Outputs   []string   `json:"outputs"`
	Settings  *Settings  `json:"settings,omitempty"`
	Step      int        `json:"step"`
	CreatedAt time.Time  `json:"created_at"`

	// Run counts the restarts of the generation; outputs of earlier runs are dropped.
	Run int `json:"run"`
}

// Done counts the rows that already have an output.
func (w Wizard) Done() int {
	var n int
	for _, out := range w.Outputs {
		if out != "" {
			n++
		}
	}
	return n
}

func (w Wizard) table() core.Table {
	return core.Table{Headers: w.Headers, Rows: w.Rows}
}

// Settings is the second step of the wizard.
// Prompt holds the instruction sent to the AI; when TemplateID is set, it is replaced by the template content.
type Settings struct {
	InputColumns []string `json:"input_columns" validate:"required,min=1,dive,required"`
	OutputColumn string   `json:"output_column" validate:"required,notblank,max=100"`
	TemplateID   string   `json:"template_id"`
	Prompt       string   `json:"prompt" validate:"required_without=TemplateID,max=4000"`
	MaxChars     int      `json:"max_chars" validate:"min=0,max=5000"`
}

func (s *Settings) Validate(validate *validator.Validate) error {
	for i, col := range s.InputColumns {
		s.InputColumns[i] = core.CleanString(col)
	}
	s.OutputColumn = core.CleanString(s.OutputColumn)
	s.TemplateID = core.CleanString(s.TemplateID)
	s.Prompt = core.CleanString(s.Prompt)
	return validate.Struct(s)
}

// Preview is what the client shows after the upload.
type Preview struct {
	ID       string     `json:"id"`
	Filename string     `json:"filename"`
	Headers  []string   `json:"headers"`
	Rows     [][]string `json:"rows"`
	Total    int        `json:"total"`
	Done     int        `json:"done"`
	Step     int        `json:"step"`
}

type RowOutput struct {
	Index  int    `json:"index"`
	Output string `json:"output"`
}

type ProcessResult struct {
	Processed int             `json:"processed"`
	Skipped   int             `json:"skipped"`
	Errors    []core.RowError `json:"errors"`
}

// File is a generated spreadsheet ready to be served.
type File struct {
	Name    string
	Content []byte
}
