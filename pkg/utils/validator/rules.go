package validator

import (
	"reflect"

	"github.com/go-playground/validator/v10"
)

// Custom validation tags
const (
	TagLastUser = "lastuser" // Message slice whose last element has Role "user"
	TagRating   = "rating"   // Feedback rating: good or bad
)

// registerCustomRules registers all custom validation rules.
func (v *Validator) registerCustomRules() {
	_ = v.validate.RegisterValidation(TagLastUser, validateLastUser)
	_ = v.validate.RegisterValidation(TagRating, validateRating)
}

// validateLastUser accepts a non-empty slice of structs (or struct pointers)
// whose last element has a string field Role equal to "user".
func validateLastUser(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() != reflect.Slice && field.Kind() != reflect.Array {
		return false
	}
	if field.Len() == 0 {
		return false
	}

	last := reflect.Indirect(field.Index(field.Len() - 1))
	if last.Kind() != reflect.Struct {
		return false
	}
	role := last.FieldByName("Role")
	return role.IsValid() && role.Kind() == reflect.String && role.String() == "user"
}

// validateRating accepts "good" and "bad". Empty is left to required.
func validateRating(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "", "good", "bad":
		return true
	}
	return false
}
