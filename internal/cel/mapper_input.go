package cel

import (
	"context"
	"encoding/json"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/project-kessel/userclaims/internal/service"
)

// MapperInputLibrary creates a CEL library with custom functions for accessing mapper input data.
//
// This provides compile-time declarations for:
//   - datasource(name) - function to fetch data from a named data source
//   - subject, token_type, request - variables containing identity and request data
//
// Pass nil for sources to create a test/validation environment.
func MapperInputLibrary(ctx context.Context, sources *service.ScopedDataSources, dsInput *service.DataSourceInput) cel.EnvOption {
	return cel.Lib(&mapperInputLib{
		ctx:     ctx,
		sources: sources,
		dsInput: dsInput,
		cache:   make(map[string]any),
	})
}

type mapperInputLib struct {
	ctx     context.Context
	sources *service.ScopedDataSources
	dsInput *service.DataSourceInput
	cache   map[string]any
}

func (lib *mapperInputLib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		cel.Function("datasource",
			cel.Overload("datasource_string",
				[]*cel.Type{cel.StringType},
				cel.DynType,
				cel.UnaryBinding(lib.fetchDatasource),
			),
		),
		cel.Variable("subject", cel.StringType),
		cel.Variable("token_type", cel.StringType),
		cel.Variable("request", cel.DynType),
	}
}

func (lib *mapperInputLib) ProgramOptions() []cel.ProgramOption {
	return []cel.ProgramOption{}
}

// fetchDatasource implements the datasource() CEL function.
// Non-200 results evaluate to null; JSON bodies are decoded and text bodies
// are returned as strings.
func (lib *mapperInputLib) fetchDatasource(arg ref.Val) ref.Val {
	name, ok := arg.Value().(string)
	if !ok {
		return types.NewErr("datasource argument must be a string")
	}

	if cached, ok := lib.cache[name]; ok {
		return types.DefaultTypeAdapter.NativeToValue(cached)
	}

	// No data sources (validation mode)
	if lib.sources == nil {
		return types.NullValue
	}

	result, err := lib.sources.Fetch(lib.ctx, name, lib.dsInput)
	if err != nil {
		return types.WrapErr(err)
	}

	if result == nil || !result.OK() {
		return types.NullValue
	}

	var data any
	switch result.ContentType {
	case service.ContentTypeJSON:
		if err := json.Unmarshal(result.Data, &data); err != nil {
			return types.WrapErr(err)
		}
	case service.ContentTypeText:
		data = string(result.Data)
	default:
		return types.NewErr("unsupported content type %q", result.ContentType)
	}

	lib.cache[name] = data
	return types.DefaultTypeAdapter.NativeToValue(data)
}

// ConvertCELValue converts a CEL ref.Val to a Go native value
func ConvertCELValue(val ref.Val) any {
	nativeVal := val.Value()

	// CEL's internal map representation
	if m, ok := nativeVal.(map[ref.Val]ref.Val); ok {
		result := make(map[string]any)
		for k, v := range m {
			if keyStr, ok := k.Value().(string); ok {
				result[keyStr] = ConvertCELValue(v)
			}
		}
		return result
	}

	if slice, ok := nativeVal.([]ref.Val); ok {
		result := make([]any, len(slice))
		for i, item := range slice {
			result[i] = ConvertCELValue(item)
		}
		return result
	}

	if slice, ok := nativeVal.([]any); ok {
		result := make([]any, len(slice))
		for i, item := range slice {
			if refVal, ok := item.(ref.Val); ok {
				result[i] = ConvertCELValue(refVal)
			} else {
				result[i] = item
			}
		}
		return result
	}

	if m, ok := nativeVal.(map[string]any); ok {
		result := make(map[string]any)
		for k, v := range m {
			if refVal, ok := v.(ref.Val); ok {
				result[k] = ConvertCELValue(refVal)
			} else {
				result[k] = v
			}
		}
		return result
	}

	if nativeVal == nil || val == types.NullValue {
		return nil
	}

	return nativeVal
}
