package asset

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("imagefile", func(fl validator.FieldLevel) bool {
		return IsBareFileName(fl.Field().String())
	})
	return v
}

// IsBareFileName reports whether name is a usable file name with no directory
// component.
func IsBareFileName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) {
		return false
	}
	return utf8.ValidString(name)
}

// Validate checks the struct-level invariants of an asset.
func Validate(a Asset) error {
	if a == nil {
		return fmt.Errorf("asset is nil")
	}
	if err := validate.Struct(a); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			return formatValidationError(a.Kind(), verrs[0])
		}
		return fmt.Errorf("%s: validation failed: %w", a.Kind(), err)
	}
	return nil
}

func formatValidationError(kind Kind, fe validator.FieldError) error {
	return fmt.Errorf("%s %s: validation failed on '%s' tag (value: %v)",
		kind, fe.Namespace(), fe.Tag(), fe.Value())
}
