package cel

import (
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/project-kessel/userclaims/internal/claims"
)

// HelpersLibrary provides string helpers for shaping directory payloads:
//
//	join_lines(s)     - s with line terminators removed
//	or_default(v, d)  - v, or d when v is null
func HelpersLibrary() cel.EnvOption {
	return cel.Lib(helpersLib{})
}

type helpersLib struct{}

func (helpersLib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		cel.Function("join_lines",
			cel.Overload("join_lines_string",
				[]*cel.Type{cel.StringType},
				cel.StringType,
				cel.UnaryBinding(func(arg ref.Val) ref.Val {
					s, ok := arg.Value().(string)
					if !ok {
						return types.NewErr("join_lines argument must be a string")
					}
					return types.String(claims.JoinLines(s))
				}),
			),
		),
		cel.Function("or_default",
			cel.Overload("or_default_dyn_dyn",
				[]*cel.Type{cel.DynType, cel.DynType},
				cel.DynType,
				cel.BinaryBinding(func(value, fallback ref.Val) ref.Val {
					if value == types.NullValue {
						return fallback
					}
					return value
				}),
			),
		),
	}
}

func (helpersLib) ProgramOptions() []cel.ProgramOption {
	return []cel.ProgramOption{}
}
