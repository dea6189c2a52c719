package validator

import (
	"github.com/go-playground/validator/v10"

	"github.com/johnquangdev/clinical-scribe/internal/domain/entities"
)

// CustomValidator implements echo.Validator using go-playground/validator
type CustomValidator struct {
	v *validator.Validate
}

// New creates a new CustomValidator instance with the domain tags registered:
// speaker (patient, doctor, unknown) and section (a clinical record section).
func New() *CustomValidator {
	v := validator.New()
	_ = v.RegisterValidation("speaker", func(fl validator.FieldLevel) bool {
		return entities.Speaker(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("section", func(fl validator.FieldLevel) bool {
		return entities.Section(fl.Field().String()).Valid()
	})
	return &CustomValidator{v: v}
}

// Validate performs struct validation
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.v.Struct(i)
}

// Var validates a single value against a tag
func (cv *CustomValidator) Var(field interface{}, tag string) error {
	return cv.v.Var(field, tag)
}
