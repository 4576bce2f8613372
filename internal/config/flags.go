package config

import (
	"reflect"
	"strings"

	"github.com/spf13/pflag"
)

// flagField describes a scalar config field exposed as a command-line flag
type flagField struct {
	configPath string // e.g., "directory.base_url"
	flagName   string // e.g., "directory-base-url"
	usage      string
	kind       reflect.Kind
}

// collectFlagFields walks the Config struct and returns every scalar field
// reachable through struct and pointer-to-struct fields. Slices and maps
// are configured through files or the environment only.
func collectFlagFields() []flagField {
	var fields []flagField
	walkConfigType(reflect.TypeOf(Config{}), "", &fields)
	return fields
}

func walkConfigType(t reflect.Type, parentPath string, fields *[]flagField) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		tag := field.Tag.Get("koanf")
		if tag == "" || tag == "-" {
			continue
		}

		// Inline structs contribute their fields at the parent level
		if strings.Contains(tag, "squash") {
			walkConfigType(field.Type, parentPath, fields)
			continue
		}

		configPath := tag
		if parentPath != "" {
			configPath = parentPath + "." + tag
		}

		fieldType := field.Type
		if fieldType.Kind() == reflect.Pointer {
			fieldType = fieldType.Elem()
		}

		switch {
		case fieldType.Kind() == reflect.Struct:
			walkConfigType(fieldType, configPath, fields)
		case isScalarKind(fieldType.Kind()):
			*fields = append(*fields, flagField{
				configPath: configPath,
				flagName:   configPathToFlagName(configPath),
				usage:      field.Tag.Get("usage"),
				kind:       fieldType.Kind(),
			})
		}
	}
}

func isScalarKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.String, reflect.Bool,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// configPathToFlagName converts a config path to a flag name
// Examples:
//   - "server.grpc_port" -> "server-grpc-port"
//   - "issuer_url" -> "issuer-url"
func configPathToFlagName(configPath string) string {
	return strings.NewReplacer(".", "-", "_", "-").Replace(configPath)
}

// RegisterFlags registers command-line flags for all scalar config fields
func RegisterFlags(flagSet *pflag.FlagSet) {
	for _, field := range collectFlagFields() {
		if flagSet.Lookup(field.flagName) != nil {
			continue
		}

		switch field.kind {
		case reflect.String:
			flagSet.String(field.flagName, "", field.usage)
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			flagSet.Int(field.flagName, 0, field.usage)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			flagSet.Uint(field.flagName, 0, field.usage)
		case reflect.Bool:
			flagSet.Bool(field.flagName, false, field.usage)
		case reflect.Float32, reflect.Float64:
			flagSet.Float64(field.flagName, 0, field.usage)
		}
	}
}

// GetFlagMapping returns the mapping from flag names to config paths,
// e.g. {"server-grpc-port": "server.grpc_port"}
func GetFlagMapping() map[string]string {
	mapping := make(map[string]string)
	for _, field := range collectFlagFields() {
		mapping[field.flagName] = field.configPath
	}
	return mapping
}
