package campaign

import (
	"regexp"
	"strings"

	"github.com/mcoot/dicefunnel/internal/model"
)

var (
	emailPattern      = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern      = regexp.MustCompile(`^\+?[0-9]{10,15}$`)
	customerGIDSuffix = regexp.MustCompile(`Customer/(\d+)$`)
	numericID         = regexp.MustCompile(`^\d+$`)
	phoneSeparators   = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
)

// NormalizePhone strips common separators and checks the result looks like a phone number
func NormalizePhone(raw string) (string, error) {
	phone := phoneSeparators.Replace(strings.TrimSpace(raw))
	if phone == "" {
		return "", model.NewValidationError("phone", "is required")
	}
	if !phonePattern.MatchString(phone) {
		return "", model.NewValidationError("phone", "must be 10 to 15 digits")
	}
	return phone, nil
}

// ValidateEntry checks and normalizes the entry form fields
func ValidateEntry(name, phone, email string) (model.Candidate, error) {
	c := model.Candidate{
		Name:  strings.TrimSpace(name),
		Email: strings.TrimSpace(email),
	}
	if c.Name == "" || strings.TrimSpace(phone) == "" || c.Email == "" {
		return c, model.NewValidationError("", "name, email and phone number required")
	}
	if !emailPattern.MatchString(c.Email) {
		return c, model.NewValidationError("email", "invalid email format")
	}
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return c, err
	}
	c.Phone = normalized
	return c, nil
}

// ParseCustomerID accepts a bare numeric id or a gid://.../Customer/<id> reference
func ParseCustomerID(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if numericID.MatchString(ref) {
		return ref, nil
	}
	if m := customerGIDSuffix.FindStringSubmatch(ref); m != nil {
		return m[1], nil
	}
	return "", model.NewValidationError("customerId", "must be a numeric id or Customer gid")
}
