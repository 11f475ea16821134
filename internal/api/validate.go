package api

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"classalarm/internal/alarm"
)

type requestValidator struct {
	validate *validator.Validate
}

func newValidator() *requestValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// lead_choice accepts only the configured alarm lead times.
	_ = v.RegisterValidation("lead_choice", func(fl validator.FieldLevel) bool {
		return alarm.ValidLead(int(fl.Field().Int()))
	})
	return &requestValidator{validate: v}
}

func (v *requestValidator) Validate(i any) error {
	return v.validate.Struct(i)
}
