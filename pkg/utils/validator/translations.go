package validator

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
)

// registerCustomTranslations registers messages for the custom rules and the
// built-in tags the request types use.
func (v *Validator) registerCustomTranslations() {
	if trans := v.GetTranslator(LangEN); trans != nil {
		for tag, message := range map[string]string{
			TagLastUser: "{0} must end with a user message",
			TagRating:   "{0} must be either good or bad",
		} {
			registerTranslation(v.validate, trans, tag, message)
		}
	}

	if trans, ok := v.trans[LangBN]; ok {
		for tag, message := range map[string]string{
			TagLastUser: "{0} এর শেষ বার্তাটি ব্যবহারকারীর হতে হবে",
			TagRating:   "{0} অবশ্যই good অথবা bad হতে হবে",
			"required":  "{0} আবশ্যক",
			"oneof":     "{0} এর মান গ্রহণযোগ্য নয়",
			"min":       "{0} খুব ছোট",
			"max":       "{0} খুব বড়",
			"gte":       "{0} খুব ছোট",
			"lte":       "{0} খুব বড়",
		} {
			registerTranslation(v.validate, trans, tag, message)
		}
	}
}

// registerTranslation registers a single translation.
func registerTranslation(validate *validator.Validate, trans ut.Translator, tag, message string) {
	_ = validate.RegisterTranslation(tag, trans,
		func(ut ut.Translator) error {
			return ut.Add(tag, message, true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			t, _ := ut.T(tag, fe.Field())
			return t
		},
	)
}
