package workflow

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ValidationError maps field names to messages.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

type discountInput struct {
	Title       string `json:"title" validate:"required,max=150"`
	Description string `json:"description" validate:"max=2000"`
}

type detailsInput struct {
	Name       string          `json:"name" validate:"required,min=2,max=150"`
	Tagline    string          `json:"tagline" validate:"max=255"`
	Address    string          `json:"address" validate:"required,max=255"`
	Latitude   *float64        `json:"latitude" validate:"required,min=-90,max=90"`
	Longitude  *float64        `json:"longitude" validate:"required,min=-180,max=180"`
	Phone      string          `json:"phone" validate:"max=50"`
	Email      string          `json:"email" validate:"omitempty,email,max=200"`
	Website    string          `json:"website" validate:"omitempty,url,max=255"`
	Categories []string        `json:"categories" validate:"required,min=1,dive,oneof=cafe restaurant bar bakery hotel shop service"`
	Discounts  []discountInput `json:"discounts" validate:"dive"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// validateDetails is the DETAILS guard.
func validateDetails(d Draft) error {
	in := detailsInput{
		Name:       strings.TrimSpace(d.Name),
		Tagline:    d.Tagline,
		Address:    strings.TrimSpace(d.Address),
		Latitude:   d.Latitude,
		Longitude:  d.Longitude,
		Phone:      d.Phone,
		Email:      strings.TrimSpace(d.Email),
		Website:    strings.TrimSpace(d.Website),
		Categories: d.Categories.List(),
	}
	for _, disc := range d.Discounts {
		in.Discounts = append(in.Discounts, discountInput(disc))
	}

	fields := map[string]string{}
	if err := getValidator().Struct(in); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		for _, fe := range verrs {
			fields[fieldPath(fe)] = message(fe)
		}
	}
	if d.Categories.Kind == SelectionSingle && len(d.Categories.Values) > 1 {
		fields["categories"] = "exactly one category is allowed"
	}
	if err := d.MediaSet().Validate(); err != nil {
		fields["media"] = err.Error()
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		switch fe.Kind() {
		case reflect.String:
			return fmt.Sprintf("must have at least %s characters", fe.Param())
		case reflect.Slice:
			return fmt.Sprintf("must have at least %s entries", fe.Param())
		}
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must have at most %s characters", fe.Param())
		}
		return "must be at most " + fe.Param()
	}
	return "is invalid"
}
