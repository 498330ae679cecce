// Package validate wraps go-playground/validator with gatebot's custom tags
// and readable error messages.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// OfferKeyPattern is the accepted shape of an offer key.
var OfferKeyPattern = regexp.MustCompile(`^[a-z0-9_]{2,50}$`)

// ErrInvalid is wrapped by every error returned from Struct.
var ErrInvalid = errors.New("validation failed")

var (
	once sync.Once
	v    *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		v = validator.New(validator.WithRequiredStructEnabled())
		_ = v.RegisterValidation("offerkey", func(fl validator.FieldLevel) bool {
			return OfferKeyPattern.MatchString(fl.Field().String())
		})
		_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
			return validDuration(fl.Field().String())
		})
	})
	return v
}

// OfferKey reports whether key is a well-formed offer key.
func OfferKey(key string) bool { return OfferKeyPattern.MatchString(key) }

// Struct validates s and joins all field problems into one error.
func Struct(s any) error {
	err := instance().Struct(s)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		msgs := make([]string, 0, len(ve))
		for _, fe := range ve {
			msgs = append(msgs, fieldError(fe))
		}
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
	}
	return err
}

func fieldError(fe validator.FieldError) string {
	field := strings.ToLower(fe.Namespace())
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "offerkey":
		return field + " must match " + OfferKeyPattern.String()
	case "duration":
		return field + " must be a Go duration (e.g. 1s, 5m)"
	case "gt", "gte":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "url":
		return field + " must be a valid URL"
	case "hostname_port":
		return field + " must be host:port"
	default:
		return fmt.Sprintf("%s failed validation (%s)", field, fe.Tag())
	}
}
