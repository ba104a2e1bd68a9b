package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var instance = validator.New(validator.WithRequiredStructEnabled())

// Struct validates a struct against its `validate` tags and returns a
// single flattened error listing every failed field.
func Struct(s interface{}) error {
	err := instance.Struct(s)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}

	fields := make([]string, 0, len(ve))
	for _, fe := range ve {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid fields: %s", strings.Join(fields, ", "))
}
