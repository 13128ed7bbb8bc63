package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/gustavlms/gustav/errors"
)

var (
	validate *validator.Validate
	once     sync.Once
)

func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateStruct checks `validate:"..."` struct tags and reports every
// failing field in one InvalidConfig error.
func ValidateStruct(s any) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.InvalidConfig("config", err.Error())
	}

	fields := make([]string, 0, len(validationErrors))
	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		fields = append(fields, e.Namespace())
		messages = append(messages, fmt.Sprintf("%s failed %q", e.Namespace(), e.Tag()))
	}

	return errors.InvalidConfig("config", strings.Join(messages, "; ")).
		WithDetail("fields", fields)
}
