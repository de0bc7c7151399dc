package domain

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// validate is safe for concurrent use and caches struct metadata.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report json field names so errors line up with the wire format.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		switch name {
		case "-":
			return ""
		case "":
			return fld.Name
		}
		return name
	})
	return v
}

// validateStruct runs the struct tags of s and converts the first failure
// into a *ValidationError.
func validateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return NewValidationError(fe.Field(), describeTag(fe))
	}
	return NewValidationError("", err.Error())
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "gte":
		return "must be >= " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}

// nonNegative rejects negative risk magnitudes.
func nonNegative(field string, d decimal.Decimal) error {
	if d.IsNegative() {
		return NewValidationError(field, "must be non-negative")
	}
	return nil
}

// finite rejects NaN and ±Inf, which neither JSON nor NUMERIC columns carry.
func finite(field string, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return NewValidationError(field, "must be a finite number")
	}
	return nil
}

// decimalOrZero returns *d, or zero when the field was omitted.
func decimalOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

// NormalizeTime converts t to UTC at microsecond precision, the resolution of
// a postgres timestamptz, so a record reads back exactly as it was written.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func stampOrNow(t *time.Time, now time.Time) time.Time {
	if t == nil || t.IsZero() {
		return NormalizeTime(now)
	}
	return NormalizeTime(*t)
}
