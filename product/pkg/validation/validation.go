// Package validation checks visitor customizations against the
// personalization options of a product.
package validation

import (
	"regexp"
	"strings"
	"unicode/utf8"

	cartResponse "github.com/Alturino/makelocal/cart/pkg/response"
	inErrors "github.com/Alturino/makelocal/internal/errors"
	"github.com/Alturino/makelocal/product/pkg/response"
)

const (
	FieldText    = "text"
	FieldColorID = "colorId"
)

type Result struct {
	Valid  bool                        `json:"valid"`
	Errors []*inErrors.ValidationError `json:"errors"`
}

// FieldError returns the message of the first error on field.
func (r Result) FieldError(field string) (string, bool) {
	for _, err := range r.Errors {
		if err.Field == field {
			return err.Message, true
		}
	}
	return "", false
}

func invalid(field string, format string, args ...any) *inErrors.ValidationError {
	return inErrors.NewValidationError(inErrors.CodeInvalidCustomization, field, format, args...)
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

// ValidateTextInput returns nil when text satisfies cfg. Lengths count
// characters, not bytes.
func ValidateTextInput(text string, cfg response.TextInputConfig) *inErrors.ValidationError {
	if strings.TrimSpace(text) == "" {
		if cfg.Required {
			return invalid(FieldText, "%s is required", cfg.Label)
		}
		return nil
	}

	length := utf8.RuneCountInString(text)
	if length < cfg.MinLength {
		return invalid(FieldText, "%s must be at least %d character%s", cfg.Label, cfg.MinLength, plural(cfg.MinLength))
	}
	if cfg.MaxLength > 0 && length > cfg.MaxLength {
		return invalid(FieldText, "%s must be at most %d character%s", cfg.Label, cfg.MaxLength, plural(cfg.MaxLength))
	}

	if cfg.Validation != "" {
		pattern, err := regexp.Compile(cfg.Validation)
		if err != nil {
			return invalid(FieldText, "Validation error occurred")
		}
		if !pattern.MatchString(text) {
			if cfg.ErrorMessage != "" {
				return invalid(FieldText, "%s", cfg.ErrorMessage)
			}
			return invalid(FieldText, "%s contains invalid characters", cfg.Label)
		}
	}
	return nil
}

func ValidateColorSelection(colorID string, cfg response.ColorSelectConfig) *inErrors.ValidationError {
	if colorID == "" {
		if cfg.Required {
			return invalid(FieldColorID, "%s is required", cfg.Label)
		}
		return nil
	}
	for _, option := range cfg.Options {
		if option.ID != colorID {
			continue
		}
		if !option.IsAvailable() {
			return invalid(FieldColorID, "%s is currently unavailable", option.Name)
		}
		return nil
	}
	return invalid(FieldColorID, "Selected color is not valid")
}

// ValidateProductConfiguration checks every personalization option product
// declares. A nil customizations is treated as empty.
func ValidateProductConfiguration(product response.Product, customizations *cartResponse.Customizations) Result {
	var chosen cartResponse.Customizations
	if customizations != nil {
		chosen = *customizations
	}

	result := Result{Errors: []*inErrors.ValidationError{}}
	if cfg := product.Personalization.TextInput; cfg != nil {
		if err := ValidateTextInput(chosen.Text, *cfg); err != nil {
			result.Errors = append(result.Errors, err)
		}
	}
	if cfg := product.Personalization.ColorSelect; cfg != nil {
		if err := ValidateColorSelection(chosen.ColorID, *cfg); err != nil {
			result.Errors = append(result.Errors, err)
		}
	}
	result.Valid = len(result.Errors) == 0
	return result
}
