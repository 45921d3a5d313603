package discord

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/JeremyFirst/Ds-Bot-2.0/internal/shared"
)

// JSON error codes returned by the Discord API.
const (
	codeUnknownChannel    = 10003
	codeUnknownGuild      = 10004
	codeUnknownMember     = 10007
	codeUnknownMessage    = 10008
	codeUnknownRole       = 10011
	codeUnknownUser       = 10013
	codeCannotMessageUser = 50007
)

// classify wraps err with shared.ErrNotFound or shared.ErrForbidden when the
// REST response says so. Other errors are wrapped as they are.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var rest *discordgo.RESTError
	if !errors.As(err, &rest) {
		return fmt.Errorf("discord: %s: %w", op, err)
	}
	code := 0
	if rest.Message != nil {
		code = rest.Message.Code
	}
	switch code {
	case codeUnknownChannel, codeUnknownGuild, codeUnknownMember, codeUnknownMessage, codeUnknownRole, codeUnknownUser:
		return fmt.Errorf("discord: %s: %w: %w", op, shared.ErrNotFound, err)
	case codeCannotMessageUser:
		return fmt.Errorf("discord: %s: %w: %w", op, shared.ErrForbidden, err)
	}
	if rest.Response != nil {
		switch rest.Response.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("discord: %s: %w: %w", op, shared.ErrNotFound, err)
		case http.StatusForbidden:
			return fmt.Errorf("discord: %s: %w: %w", op, shared.ErrForbidden, err)
		}
	}
	return fmt.Errorf("discord: %s: %w", op, err)
}
