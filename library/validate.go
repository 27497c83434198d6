package library

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator"

	"librarydesk/credential"
)

var phonePattern = regexp.MustCompile(`^[\d\s\-\+\(\)]{7,20}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("libemail", func(fl validator.FieldLevel) bool {
		return credential.ValidateEmail(fl.Field().String())
	})
	_ = v.RegisterValidation("libphone", func(fl validator.FieldLevel) bool {
		return ValidatePhone(fl.Field().String())
	})
	return v
}

// BookInput carries the editable fields of a book.
type BookInput struct {
	Title    string `validate:"required,min=2,max=255"`
	Author   string `validate:"required,min=2,max=255"`
	ISBN     string `validate:"omitempty,max=20"`
	Category string `validate:"max=50"`
	Year     int    `validate:"omitempty,min=1000,max=9999"`
	Copies   int    `validate:"min=1"`
}

func (in *BookInput) normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	in.ISBN = strings.TrimSpace(in.ISBN)
	in.Category = strings.TrimSpace(in.Category)
}

// Validate trims in and reports every rule it breaks.
func (in *BookInput) Validate() error {
	in.normalize()
	return translate(validate.Struct(in))
}

// BorrowerInput carries the editable fields of a borrower.
type BorrowerInput struct {
	Name    string `validate:"required,min=2,max=100"`
	Email   string `validate:"required,libemail,max=100"`
	Phone   string `validate:"omitempty,libphone"`
	Address string `validate:"max=255"`
}

func (in *BorrowerInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Address = strings.TrimSpace(in.Address)
}

// Validate trims in and reports every rule it breaks.
func (in *BorrowerInput) Validate() error {
	in.normalize()
	return translate(validate.Struct(in))
}

// ValidatePhone accepts an empty phone or 7-20 digits, spaces and +-() signs.
func ValidatePhone(phone string) bool {
	return phone == "" || phonePattern.MatchString(phone)
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	problems := make([]string, 0, len(verrs))
	seen := make(map[string]bool)
	for _, fe := range verrs {
		msg := fieldMessage(fe)
		if !seen[msg] {
			seen[msg] = true
			problems = append(problems, msg)
		}
	}
	return &ValidationError{Problems: problems}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Field() {
	case "Title", "Author", "Name":
		if fe.Tag() == "max" {
			return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
		}
		return fe.Field() + " must be at least 2 characters"
	case "Copies":
		return "Copies must be at least 1"
	case "Year":
		return "Year must be between 1000 and 9999"
	case "Email":
		return "Valid email is required"
	case "Phone":
		return "Invalid phone number"
	}
	return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
}
