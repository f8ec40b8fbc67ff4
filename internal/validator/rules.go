package validator

import "github.com/go-playground/validator/v10"

func registerFn(tag string, fn func(fl validator.FieldLevel) bool) func(v *validator.Validate) {
	return func(v *validator.Validate) {
		_ = v.RegisterValidation(tag, fn)
	}
}

func NewProductValidationRules() []ValidationRule {
	return []ValidationRule{
		{
			Rule: registerFn("notblank", notBlankValidator),
		},
	}
}

func NewWebhookValidationRules() []ValidationRule {
	return []ValidationRule{
		{
			Rule: registerFn("event_type", eventTypeValidator),
		},
	}
}

// Default returns a validator with every console rule registered.
func Default() *Validator {
	v := NewValidator()
	v.Register(NewProductValidationRules()...)
	v.Register(NewWebhookValidationRules()...)
	return v
}
