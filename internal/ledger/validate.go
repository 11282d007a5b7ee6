package ledger

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	mustRegister(v, "category", func(fl validator.FieldLevel) bool {
		return IsCategory(fl.Field().String())
	})
	mustRegister(v, "urgency", func(fl validator.FieldLevel) bool {
		switch Urgency(fl.Field().String()) {
		case UrgencyNonUrgent, UrgencyUrgent, UrgencyVeryUrgent:
			return true
		}
		return false
	})
	mustRegister(v, "role", func(fl validator.FieldLevel) bool {
		return Role(fl.Field().String()).Valid()
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}

// Validate checks a tagged input struct and reports the first violation as a *ValidationError.
func Validate(input any) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
		first := fieldErrors[0]
		return &ValidationError{Field: first.Field(), Reason: violationReason(first)}
	}
	return &ValidationError{Field: "input", Reason: err.Error()}
}

func violationReason(fieldError validator.FieldError) string {
	switch fieldError.Tag() {
	case "required":
		return "is required"
	case "max":
		return "exceeds " + fieldError.Param() + " characters"
	case "min":
		return "must be at least " + fieldError.Param() + " characters"
	case "email":
		return "must be an email address"
	case "category":
		return "must be one of " + strings.Join(Categories, ", ")
	case "urgency":
		return "must be non_urgent, urgent or very_urgent"
	case "role":
		return "must be restaurant or association"
	default:
		return "failed " + fieldError.Tag() + " check"
	}
}

// AnnouncementInput carries the caller-editable fields of an announcement.
type AnnouncementInput struct {
	OfferedItem    string    `json:"offered_item" validate:"required,max=255"`
	Quantity       string    `json:"quantity" validate:"required,max=64"`
	Category       string    `json:"category" validate:"required,category"`
	Description    string    `json:"description" validate:"max=2000"`
	ExpirationDate time.Time `json:"expiration_date" validate:"required"`
}

func (in AnnouncementInput) normalized() AnnouncementInput {
	in.OfferedItem = strings.TrimSpace(in.OfferedItem)
	in.Quantity = strings.TrimSpace(in.Quantity)
	in.Category = strings.TrimSpace(in.Category)
	in.Description = strings.TrimSpace(in.Description)
	in.ExpirationDate = in.ExpirationDate.UTC()
	return in
}

func (in AnnouncementInput) validate(now time.Time) error {
	if err := Validate(in); err != nil {
		return err
	}
	if !in.ExpirationDate.After(now) {
		return &ValidationError{Field: "expiration_date", Reason: "must be later than the current date"}
	}
	return nil
}

// NeedInput carries the caller-editable fields of a need.
type NeedInput struct {
	RequestedItem  string  `json:"requested_item" validate:"required,max=255"`
	Quantity       string  `json:"quantity" validate:"required,max=64"`
	Category       string  `json:"category" validate:"required,category"`
	Urgency        Urgency `json:"urgency" validate:"required,urgency"`
	TargetAudience string  `json:"target_audience" validate:"max=512"`
}

func (in NeedInput) normalized() NeedInput {
	in.RequestedItem = strings.TrimSpace(in.RequestedItem)
	in.Quantity = strings.TrimSpace(in.Quantity)
	in.Category = strings.TrimSpace(in.Category)
	in.Urgency = Urgency(strings.TrimSpace(string(in.Urgency)))
	in.TargetAudience = strings.TrimSpace(in.TargetAudience)
	return in
}

// ProfileInput carries the editable contact fields of an actor profile.
type ProfileInput struct {
	DisplayName string `json:"display_name" validate:"required,max=255"`
	Phone       string `json:"phone" validate:"max=64"`
	Address     string `json:"address" validate:"max=512"`
}

func (in ProfileInput) normalized() ProfileInput {
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Address = strings.TrimSpace(in.Address)
	return in
}

type pickupInput struct {
	PickupAt time.Time `json:"pickup_at" validate:"required"`
	Quantity string    `json:"committed_quantity" validate:"required,max=64"`
}

func validatePickup(pickupAt, now time.Time) error {
	if pickupAt.IsZero() {
		return &ValidationError{Field: "pickup_at", Reason: "is required"}
	}
	if !pickupAt.After(now) {
		return &ValidationError{Field: "pickup_at", Reason: "must be in the future"}
	}
	return nil
}
