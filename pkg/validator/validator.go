package validator

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/scheduling-api/pkg/errors"
)

// Validator checks request structs against their `validate` tags.
type Validator interface {
	Validate(interface{}) error
	ValidateField(field string, value interface{}, rules string) error
}

type structValidator struct {
	validate *validator.Validate
}

func New() Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report fields by their wire names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return &structValidator{validate: v}
}

func (v *structValidator) Validate(obj interface{}) error {
	if err := v.validate.Struct(obj); err != nil {
		return translate(err)
	}
	return nil
}

func (v *structValidator) ValidateField(field string, value interface{}, rules string) error {
	if err := v.validate.Var(value, rules); err != nil {
		fields := map[string]string{}
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields[field] = message(field, fe)
			}
		}
		return errors.Validation(fmt.Sprintf("invalid %s", field), fields)
	}
	return nil
}

func translate(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.NewBadRequest(err.Error(), err)
	}

	fields := make(map[string]string, len(verrs))
	var first string
	for _, fe := range verrs {
		name := fieldPath(fe)
		fields[name] = message(name, fe)
		if first == "" {
			first = fields[name]
		}
	}
	return errors.Validation(first, fields)
}

// fieldPath drops the top-level struct name: "CreateBookingRequest.requesterDetails.email"
// becomes "requesterDetails.email".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func message(name string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", name)
	case "email":
		return fmt.Sprintf("%s must be a valid email", name)
	case "uuid":
		return fmt.Sprintf("%s must be a valid UUID", name)
	case "max":
		return fmt.Sprintf("%s must not exceed %s characters", name, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters long", name, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", name, fe.Param())
	}
	return fmt.Sprintf("%s failed %s validation", name, fe.Tag())
}
