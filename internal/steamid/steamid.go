// Package steamid validates the Steam account identifiers used as privilege keys.
package steamid

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Tag is the validator tag registered by RegisterValidation.
const Tag = "steamid"

var (
	legacyPattern = regexp.MustCompile(`^STEAM_[0-5]:[01]:\d+$`)
	id64Pattern   = regexp.MustCompile(`^7656119\d{10}$`)
)

// Normalize trims surrounding whitespace.
func Normalize(id string) string {
	return strings.TrimSpace(id)
}

// Validate reports whether id is a legacy STEAM_X:Y:Z identifier or a 17 digit
// SteamID64 in the individual-account range.
func Validate(id string) bool {
	id = Normalize(id)
	if id == "" {
		return false
	}
	return legacyPattern.MatchString(id) || id64Pattern.MatchString(id)
}

// RegisterValidation installs the steamid tag on v.
func RegisterValidation(v *validator.Validate) error {
	return v.RegisterValidation(Tag, func(fl validator.FieldLevel) bool {
		return Validate(fl.Field().String())
	})
}
