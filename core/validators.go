package core

import (
	"reflect"
	"regexp"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// customValidator pairs a validation tag with its check and error text.
type customValidator struct {
	tag  string
	text string
	fn   validator.Func
}

var (
	alphaNumUnderRegex = regexp.MustCompile(`^\w+$`)
	// domestic numbers: 02-123-4567, 031-1234-5678, 010-1234-5678, dashes optional
	phoneRegex     = regexp.MustCompile(`^0\d{1,2}-?\d{3,4}-?\d{4}$`)
	configKeyRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.]*$`)

	customValidators = []customValidator{
		{
			tag:  "alphanum_",
			text: "only alphanumeric characters and underscores are allowed",
			fn:   regexValidation(alphaNumUnderRegex),
		},
		{
			tag:  "notblank",
			text: "this field cannot be blank",
			fn:   func(fl validator.FieldLevel) bool { return strings.TrimSpace(fl.Field().String()) != "" },
		},
		{
			tag:  "phone",
			text: "this is not a valid phone number",
			fn:   regexValidation(phoneRegex),
		},
		{
			tag:  "configkey",
			text: "keys start with a letter and only hold letters, digits, dots and underscores",
			fn:   regexValidation(configKeyRegex),
		},
	}

	// built-in tags whose default english text reads badly in the UI
	requiredText       = "this field is required"
	overriddenRequired = []string{"required", "required_with"}
)

// InitValidators instantiates the validator for use.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// field errors are keyed by json name, that's what the frontend knows
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	for _, cv := range customValidators {
		_ = validate.RegisterValidation(cv.tag, cv.fn)
		RegisterCustomTranslation(validate, translator, cv.tag, cv.text)
	}
	for _, tag := range overriddenRequired {
		RegisterCustomTranslation(validate, translator, tag, requiredText, true)
	}
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

func regexValidation(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}
}
