package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"plain", "세특.xlsx", "세특.xlsx"},
		{"windows path", `C:\Users\teacher\2학년 3반.csv`, "2학년 3반.csv"},
		{"unix path", "../../etc/passwd", "passwd"},
		{"forbidden chars", `a<b>c:"d|e?f*.csv`, "abcdef.csv"},
		{"control chars", "da\x00ta\n.xlsx", "data.xlsx"},
		{"dots and spaces", " ..hidden.csv. ", "hidden.csv"},
		{"empty", "", "data"},
		{"only separators", "///", "data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.in))
		})
	}
}

func TestOutputFilename(t *testing.T) {
	assert.Equal(t, "세특_AI.xlsx", OutputFilename("세특.csv"))
	assert.Equal(t, "report_AI.xlsx", OutputFilename("report.xlsx"))
	assert.Equal(t, "data_AI.xlsx", OutputFilename(""))
	assert.Equal(t, "noext_AI.xlsx", OutputFilename("noext"))
}

func TestContentDisposition(t *testing.T) {
	assert.Equal(t, `attachment; filename="report_AI.xlsx"`, ContentDisposition("report_AI.xlsx"))
	assert.Equal(t,
		`attachment; filename="__ 1_AI.xlsx"; filename*=UTF-8''%EC%84%B8%ED%8A%B9%201_AI.xlsx`,
		ContentDisposition("세특 1_AI.xlsx"),
	)
}
