package jobs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"subburn/internal/services"
)

// Style holds caption rendering parameters. It is fixed for the life of a job.
type Style struct {
	FontFamily  string `json:"font_type" validate:"required,max=64"`
	FontSize    int    `json:"font_size" validate:"gte=12,lte=72"`
	FontColor   string `json:"font_color" validate:"required,len=7,hexcolor"`
	StrokeColor string `json:"stroke_color" validate:"required,len=7,hexcolor"`
	StrokeWidth int    `json:"stroke_width" validate:"gte=0,lte=10"`
	Padding     int    `json:"padding" validate:"gte=0,lte=50"`
}

// DefaultStyle returns the caption style used when a request sets nothing.
func DefaultStyle() Style {
	return Style{
		FontFamily:  "Arial",
		FontSize:    24,
		FontColor:   "#FFFFFF",
		StrokeColor: "#000000",
		StrokeWidth: 2,
		Padding:     10,
	}
}

// Validate checks the style ranges and colour formats.
func (s Style) Validate() error {
	return Validate(s)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate runs struct tag validation on v and converts failures into a
// single ErrValidation error naming every offending field.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return services.Wrap(services.ErrValidation, "", "validate", err.Error(), nil)
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, describeFieldError(fe))
	}
	return services.Wrap(services.ErrValidation, "", "validate", strings.Join(parts, "; "), nil)
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	if idx := strings.Index(field, "."); idx >= 0 {
		field = field[idx+1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "gte":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "len", "hexcolor":
		return fmt.Sprintf("%s must be a #RRGGBB colour, got %q", field, fmt.Sprint(fe.Value()))
	case "url", "http_url":
		return fmt.Sprintf("%s must be a valid URL", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
