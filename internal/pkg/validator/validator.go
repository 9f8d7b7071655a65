package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()

	// Use JSON tag names in error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	registerCustomValidations()
}

func oneOf(values ...string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		v := fl.Field().String()
		for _, allowed := range values {
			if v == allowed {
				return true
			}
		}
		return false
	}
}

func registerCustomValidations() {
	validate.RegisterValidation("relation", oneOf("owner", "editor", "viewer"))
	validate.RegisterValidation("share_relation", oneOf("editor", "viewer"))
	validate.RegisterValidation("credit_package", oneOf("small", "medium", "large"))
	validate.RegisterValidation("plan", oneOf("free", "pro", "business"))
	validate.RegisterValidation("grant_type", oneOf("PURCHASE", "REFUND", "BONUS"))
	validate.RegisterValidation("source_type", oneOf("FREE", "EVENT", "SUBSCRIPTION", "PURCHASE"))
}

// Validate validates a struct and returns a map of field errors
func Validate(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"_": err.Error()}
	}

	errors := make(map[string]string)
	for _, err := range verrs {
		field := err.Field()
		switch err.Tag() {
		case "required":
			errors[field] = "This field is required"
		case "email":
			errors[field] = "Invalid email format"
		case "min":
			errors[field] = "Value is too short (min: " + err.Param() + ")"
		case "max":
			errors[field] = "Value is too long (max: " + err.Param() + ")"
		case "gte":
			errors[field] = "Value must be at least " + err.Param()
		case "lte":
			errors[field] = "Value must be at most " + err.Param()
		case "url":
			errors[field] = "Invalid URL format"
		case "relation":
			errors[field] = "Invalid relation. Must be: owner, editor, or viewer"
		case "share_relation":
			errors[field] = "Invalid relation. Must be: editor or viewer"
		case "credit_package":
			errors[field] = "Invalid package. Must be: small, medium, or large"
		case "plan":
			errors[field] = "Invalid plan. Must be: free, pro, or business"
		case "grant_type":
			errors[field] = "Invalid type. Must be: PURCHASE, REFUND, or BONUS"
		case "source_type":
			errors[field] = "Invalid source. Must be: FREE, EVENT, SUBSCRIPTION, or PURCHASE"
		default:
			errors[field] = "Invalid value"
		}
	}

	return errors
}

// ValidateVar validates a single variable
func ValidateVar(field interface{}, tag string) error {
	return validate.Var(field, tag)
}
