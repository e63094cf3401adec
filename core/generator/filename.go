package generator

import (
	"path/filepath"
	"strings"
	"unicode"
)

const defaultFilename = "data"

// SanitizeFilename keeps the base name of an uploaded file and removes the characters
// that are not allowed in file names on common platforms.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || strings.ContainsRune(`<>:"|?*`, r) {
			return -1
		}
		return r
	}, name)
	name = strings.Trim(name, " .")
	if name == "" {
		return defaultFilename
	}
	return name
}

// OutputFilename is the name of the generated file: "<base>_AI.xlsx".
func OutputFilename(uploaded string) string {
	name := SanitizeFilename(uploaded)
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if base == "" {
		base = defaultFilename
	}
	return base + outputSuffix + ".xlsx"
}

// ContentDisposition builds an attachment header value. Non-ASCII names get an ASCII fallback
// plus the RFC 5987 filename* parameter.
func ContentDisposition(filename string) string {
	ascii := true
	for _, r := range filename {
		if r > unicode.MaxASCII {
			ascii = false
			break
		}
	}
	fallback := strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII || r == '"' || r == '\\' || unicode.IsControl(r) {
			return '_'
		}
		return r
	}, filename)

	if ascii {
		return `attachment; filename="` + fallback + `"`
	}
	return `attachment; filename="` + fallback + `"; filename*=UTF-8''` + encodeRFC5987(filename)
}

// encodeRFC5987 percent-encodes everything but attr-char.
func encodeRFC5987(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAttrChar(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isAttrChar(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}
