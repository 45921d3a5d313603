package app

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/JeremyFirst/Ds-Bot-2.0/internal/announcement"
)

// Settings is the YAML file describing guild layout and privilege groups.
type Settings struct {
	Discord    DiscordSettings   `yaml:"discord"`
	Privileges PrivilegeSettings `yaml:"privileges"`
}

// DiscordSettings lists the guild's staff roles and channels.
type DiscordSettings struct {
	GuildID          string         `yaml:"guild_id" validate:"omitempty,number"`
	StaffChannelID   string         `yaml:"staff_channel_id" validate:"required,number"`
	CommandChannelID string         `yaml:"command_channel_id" validate:"omitempty,number"`
	HighStaffRoles   []string       `yaml:"high_staff_roles" validate:"required,min=1,dive,number"`
	AdminRoles       []RoleSettings `yaml:"admin_roles" validate:"required,min=1,dive"`
}

// RoleSettings is one staff role shown in the announcement.
type RoleSettings struct {
	RoleID   string `yaml:"role_id" validate:"required,number"`
	Name     string `yaml:"name" validate:"required"`
	Priority int    `yaml:"priority"`
}

// PrivilegeSettings lists the in-game groups recognised in pinfo output.
type PrivilegeSettings struct {
	Groups []GroupSettings `yaml:"groups" validate:"required,min=1,dive"`
}

// GroupSettings is a privilege group, optionally bound to a role. In YAML it
// is either a plain name or a mapping with name and role_id.
type GroupSettings struct {
	Name   string `yaml:"name" validate:"required"`
	RoleID string `yaml:"role_id" validate:"omitempty,number"`
}

// UnmarshalYAML accepts both the scalar and the mapping form.
func (g *GroupSettings) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		g.Name = strings.TrimSpace(node.Value)
		return nil
	}
	type plain GroupSettings
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*g = GroupSettings(p)
	g.Name = strings.TrimSpace(g.Name)
	return nil
}

// LoadSettings reads and validates the settings file at path.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("settings: read %s: %w", path, err)
	}
	return ParseSettings(data)
}

// ParseSettings decodes and validates a settings document.
func ParseSettings(data []byte) (*Settings, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var s Settings
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("settings: decode: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks required values and rejects duplicates.
func (s *Settings) Validate() error {
	if err := validator.New().Struct(s); err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	var errs []error
	roles := make(map[string]bool)
	for _, r := range s.Discord.AdminRoles {
		if roles[r.RoleID] {
			errs = append(errs, fmt.Errorf("duplicate admin role %s", r.RoleID))
		}
		roles[r.RoleID] = true
	}
	groups := make(map[string]bool)
	for _, g := range s.Privileges.Groups {
		key := strings.ToLower(g.Name)
		if groups[key] {
			errs = append(errs, fmt.Errorf("duplicate privilege group %q", g.Name))
		}
		groups[key] = true
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	return nil
}

// StaffRoles returns the admin roles in file order.
func (s *Settings) StaffRoles() []announcement.StaffRole {
	out := make([]announcement.StaffRole, len(s.Discord.AdminRoles))
	for i, r := range s.Discord.AdminRoles {
		out[i] = announcement.StaffRole{RoleID: r.RoleID, Name: r.Name, Priority: r.Priority}
	}
	return out
}

// GroupNames returns privilege group labels in file order, which is the
// parser's tie-break order.
func (s *Settings) GroupNames() []string {
	out := make([]string, len(s.Privileges.Groups))
	for i, g := range s.Privileges.Groups {
		out[i] = g.Name
	}
	return out
}

// GroupRoles returns the explicit group to role mapping.
func (s *Settings) GroupRoles() map[string]string {
	out := make(map[string]string)
	for _, g := range s.Privileges.Groups {
		if g.RoleID != "" {
			out[g.Name] = g.RoleID
		}
	}
	return out
}
