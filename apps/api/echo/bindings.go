package echoapi

import (
	"io"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/classnote/classnote/core"
)

var (
	orderingParam = "ordering"
	fileField     = "file"

	errFileMissing = errors.New("a file is required")
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// uploadedFile opens the multipart "file" field. The caller closes the reader.
func uploadedFile(ctx echo.Context) (string, io.ReadCloser, error) {
	fh, err := ctx.FormFile(fileField)
	if err != nil {
		return "", nil, core.NewValidationError(errors.Wrap(err, "reading form file"),
			core.FieldError{Field: fileField, Error: errFileMissing.Error()})
	}
	f, err := fh.Open()
	if err != nil {
		return "", nil, errors.Wrap(err, "opening form file")
	}
	return fh.Filename, f, nil
}

// readTable decodes the uploaded spreadsheet.
func readTable(ctx echo.Context, codec core.SpreadsheetCodec) (core.Table, error) {
	name, f, err := uploadedFile(ctx)
	if err != nil {
		return core.Table{}, err
	}
	defer f.Close()

	table, err := codec.ReadTable(name, f)
	if err != nil {
		return core.Table{}, core.NewValidationError(err, core.FieldError{Field: fileField, Error: err.Error()})
	}
	return table, nil
}

func intParam(ctx echo.Context, name string) (int, error) {
	n, err := strconv.Atoi(ctx.Param(name))
	if err != nil {
		return 0, errHttpNotFound
	}
	return n, nil
}

type (
	SuccessResponse struct {
		Success string `json:"success"`
	}

	IDsRequest struct {
		IDs []string `json:"ids" query:"id"`
	}
)
