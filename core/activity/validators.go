package activity

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/classnote/classnote/core"
)

var (
	absenceTag  = "absence"
	absenceText = "invalid absence type"
)

// InitValidators registers the activity validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(absenceTag, absenceValidation)
	core.RegisterCustomTranslation(validate, translator, absenceTag, absenceText)
}

func absenceValidation(fl validator.FieldLevel) bool {
	return core.StringInSlice(fl.Field().String(), AbsenceTypes)
}
