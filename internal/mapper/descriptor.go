package mapper

import (
	"slices"
	"sync"

	"github.com/project-kessel/userclaims/internal/service"
)

// PropertyType is the kind of value a config property takes
type PropertyType string

const (
	// PropertyTypeString is a free-text value
	PropertyTypeString PropertyType = "String"
	// PropertyTypeBoolean is an on/off switch
	PropertyTypeBoolean PropertyType = "boolean"
	// PropertyTypeList is one value picked from Options
	PropertyTypeList PropertyType = "List"
)

// ConfigProperty describes one configuration option of a mapper
type ConfigProperty struct {
	Name         string       `json:"name" yaml:"name"`
	Label        string       `json:"label" yaml:"label"`
	HelpText     string       `json:"help_text" yaml:"help_text"`
	Type         PropertyType `json:"type" yaml:"type"`
	DefaultValue any          `json:"default_value,omitempty" yaml:"default_value,omitempty"`
	Options      []string     `json:"options,omitempty" yaml:"options,omitempty"`
}

// Descriptor describes a mapper implementation: how it is identified,
// displayed and configured, and which token types it can contribute to.
type Descriptor struct {
	ID          string              `json:"id" yaml:"id"`
	Category    string              `json:"category" yaml:"category"`
	DisplayType string              `json:"display_type" yaml:"display_type"`
	HelpText    string              `json:"help_text" yaml:"help_text"`
	Properties  []ConfigProperty    `json:"properties" yaml:"properties"`
	TokenTypes  []service.TokenType `json:"token_types" yaml:"token_types"`
}

// ProviderID implements service.MapperDescriptor
func (d Descriptor) ProviderID() string {
	return d.ID
}

// Capabilities implements service.MapperDescriptor
func (d Descriptor) Capabilities() service.TokenTypeSet {
	return service.NewTokenTypeSet(d.TokenTypes...)
}

// Property returns the named config property
func (d Descriptor) Property(name string) (ConfigProperty, bool) {
	i := slices.IndexFunc(d.Properties, func(p ConfigProperty) bool { return p.Name == name })
	if i < 0 {
		return ConfigProperty{}, false
	}
	return d.Properties[i], true
}

func (d Descriptor) clone() Descriptor {
	d.Properties = slices.Clone(d.Properties)
	for i := range d.Properties {
		d.Properties[i].Options = slices.Clone(d.Properties[i].Options)
	}
	d.TokenTypes = slices.Clone(d.TokenTypes)
	return d
}

// DirectoryProviderID identifies the directory claim mapper
const DirectoryProviderID = "oidc-user-directory-mapper"

var directoryDescriptor = sync.OnceValue(func() Descriptor {
	return Descriptor{
		ID:          DirectoryProviderID,
		Category:    "Token mapper",
		DisplayType: "User Directory Mapper",
		HelpText:    "Adds user directory data to the claim",
		Properties: []ConfigProperty{
			{
				Name:     "claim.name",
				Label:    "Token Claim Name",
				HelpText: `Name of the claim to insert into the token. This can be a fully qualified name like 'address.street'. In this case, a nested json object will be created. To prevent nesting and use dot literally, escape the dot with backslash (\.).`,
				Type:     PropertyTypeString,
			},
			{
				Name:         "access.token.claim",
				Label:        "Add to access token",
				HelpText:     "Indicates if the claim should be added to the access token.",
				Type:         PropertyTypeBoolean,
				DefaultValue: true,
			},
			{
				Name:         "id.token.claim",
				Label:        "Add to ID token",
				HelpText:     "Indicates if the claim should be added to the ID token.",
				Type:         PropertyTypeBoolean,
				DefaultValue: true,
			},
			{
				Name:         "userinfo.token.claim",
				Label:        "Add to userinfo",
				HelpText:     "Indicates if the claim should be added to the userinfo.",
				Type:         PropertyTypeBoolean,
				DefaultValue: true,
			},
			{
				Name:         "data.source",
				Label:        "Data source",
				HelpText:     "Name of the data source the user record is fetched from.",
				Type:         PropertyTypeString,
				DefaultValue: DefaultDataSource,
			},
			{
				Name:         "claim.value.format",
				Label:        "Claim value format",
				HelpText:     "Write the user record as a JSON object, or as its lines concatenated into one string.",
				Type:         PropertyTypeList,
				DefaultValue: string(ValueFormatObject),
				Options:      []string{string(ValueFormatObject), string(ValueFormatString)},
			},
			{
				Name:         "user.id.header",
				Label:        "User id header",
				HelpText:     "Request header carrying the user identifier. The first value is used.",
				Type:         PropertyTypeString,
				DefaultValue: DefaultUserIDHeader,
			},
		},
		TokenTypes: []service.TokenType{
			service.TokenTypeAccessToken,
			service.TokenTypeIDToken,
			service.TokenTypeUserInfo,
		},
	}
})

// DirectoryDescriptor returns the directory claim mapper descriptor.
// The descriptor is built once; each call returns a copy.
func DirectoryDescriptor() Descriptor {
	return directoryDescriptor().clone()
}
