package auth

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// SignInForm is the login input.
type SignInForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SignUpForm is the registration input.
type SignUpForm struct {
	Username        string `json:"username" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=7"`
	ConfirmPassword string `json:"confirmPassword" validate:"eqfield=Password"`
}

// ProfileForm is the account settings input.
type ProfileForm struct {
	Name  string `json:"name" validate:"min=2,max=30"`
	Email string `json:"email" validate:"required,email"`
}

// messages maps "Struct.Field.tag" to the text shown to the user.
var messages = map[string]string{
	"SignInForm.Email.required":          "Please enter your email",
	"SignInForm.Email.email":             "Invalid email address",
	"SignInForm.Password.required":       "Please enter your password",
	"SignUpForm.Username.required":       "Please enter your username",
	"SignUpForm.Email.required":          "Please enter your email",
	"SignUpForm.Email.email":             "Invalid email address",
	"SignUpForm.Password.required":       "Please enter your password",
	"SignUpForm.Password.min":            "Password must be at least 7 characters long",
	"SignUpForm.ConfirmPassword.eqfield": "Passwords don't match.",
	"ProfileForm.Name.min":               "Name must be at least 2 characters.",
	"ProfileForm.Name.max":               "Name must not be longer than 30 characters.",
	"ProfileForm.Email.required":         "Please provide an email address.",
	"ProfileForm.Email.email":            "Please enter a valid email address.",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidationError lists the rejected fields of a form, keyed by JSON name.
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
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return strings.Join(parts, "; ")
}

// Validate checks a form and returns a *ValidationError describing every
// invalid field.
func Validate(form any) error {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &ValidationError{Fields: map[string]string{}}
	for _, fe := range verrs {
		msg, ok := messages[fe.StructNamespace()+"."+fe.Tag()]
		if !ok {
			msg = fmt.Sprintf("failed %s validation", fe.Tag())
		}
		out.Fields[fe.Field()] = msg
	}
	return out
}
