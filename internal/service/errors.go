package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"filesync-server/internal/domain"

	"github.com/go-playground/validator/v10"
)

// newValidator reports fields by their json names so validation errors
// match what clients sent.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return domain.NewValidation(fe.Field(), fmt.Sprintf("failed %q check", fe.Tag()))
	}
	return domain.NewValidation("", err.Error())
}
