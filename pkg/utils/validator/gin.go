package validator

import (
	"reflect"

	"github.com/gin-gonic/gin/binding"
)

// ginValidator adapts Validator to gin's binding.StructValidator.
type ginValidator struct {
	v *Validator
}

var _ binding.StructValidator = ginValidator{}

// ValidateStruct validates structs, pointers to structs and slices of them.
func (g ginValidator) ValidateStruct(obj any) error {
	if obj == nil {
		return nil
	}

	value := reflect.ValueOf(obj)
	switch value.Kind() {
	case reflect.Ptr:
		if value.IsNil() {
			return nil
		}
		if value.Elem().Kind() != reflect.Struct {
			return g.ValidateStruct(value.Elem().Interface())
		}
		return g.v.Validate(obj)
	case reflect.Struct:
		return g.v.Validate(obj)
	case reflect.Slice, reflect.Array:
		for i := 0; i < value.Len(); i++ {
			if err := g.ValidateStruct(value.Index(i).Interface()); err != nil {
				return err
			}
		}
	}
	return nil
}

// Engine returns the underlying *validator.Validate.
func (g ginValidator) Engine() any {
	return g.v.Engine()
}

// RegisterGin makes gin's ShouldBind* use v, so binding tags get the custom
// rules and translated messages.
func RegisterGin(v *Validator) {
	binding.Validator = ginValidator{v: v}
}
