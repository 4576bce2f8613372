package lua

import (
	"encoding/json"

	lua "github.com/yuin/gopher-lua"
)

// JSONService provides JSON encoding/decoding functionality to Lua scripts
type JSONService struct{}

// NewJSONService creates a new JSON service
func NewJSONService() *JSONService {
	return &JSONService{}
}

// Register adds the JSON service to the Lua state
// Usage in Lua:
//
//	local user = json.decode(response.body)
//	local str = json.encode({name = user.name})
func (s *JSONService) Register(L *lua.LState) {
	mod := L.NewTable()

	L.SetField(mod, "encode", L.NewFunction(s.luaJSONEncode))
	L.SetField(mod, "decode", L.NewFunction(s.luaJSONDecode))

	L.SetGlobal("json", mod)
}

// luaJSONEncode encodes a Lua value to JSON string
// Args: value (any)
// Returns: json_string or (nil, error)
func (s *JSONService) luaJSONEncode(L *lua.LState) int {
	jsonBytes, err := json.Marshal(LuaToGo(L.Get(1)))
	if err != nil {
		return pushError(L, "failed to encode JSON: %v", err)
	}

	L.Push(lua.LString(string(jsonBytes)))
	return 1
}

// luaJSONDecode decodes a JSON string to a Lua value
// Args: json_string (string)
// Returns: value or (nil, error)
func (s *JSONService) luaJSONDecode(L *lua.LState) int {
	jsonStr := L.CheckString(1)

	var goValue any
	if err := json.Unmarshal([]byte(jsonStr), &goValue); err != nil {
		return pushError(L, "failed to decode JSON: %v", err)
	}

	L.Push(GoToLua(L, goValue))
	return 1
}

// LuaToGo converts a Lua value to a Go value.
// Tables with a positive length become arrays, other tables become objects.
func LuaToGo(lv lua.LValue) any {
	switch v := lv.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LString:
		return string(v)
	case lua.LNumber:
		return float64(v)
	case *lua.LTable:
		if maxn := v.MaxN(); maxn > 0 {
			arr := make([]any, 0, maxn)
			for i := 1; i <= maxn; i++ {
				arr = append(arr, LuaToGo(v.RawGetInt(i)))
			}
			return arr
		}
		obj := make(map[string]any)
		v.ForEach(func(key, value lua.LValue) {
			if key.Type() == lua.LTString {
				obj[key.String()] = LuaToGo(value)
			}
		})
		return obj
	default:
		return nil
	}
}

// GoToLua converts a Go value to a Lua value.
// Unsupported types become nil.
func GoToLua(L *lua.LState, value any) lua.LValue {
	switch v := value.(type) {
	case nil:
		return lua.LNil
	case string:
		return lua.LString(v)
	case int:
		return lua.LNumber(v)
	case int64:
		return lua.LNumber(v)
	case float64:
		return lua.LNumber(v)
	case bool:
		return lua.LBool(v)
	case map[string]any:
		tbl := L.NewTable()
		for key, val := range v {
			L.SetField(tbl, key, GoToLua(L, val))
		}
		return tbl
	case map[string]string:
		tbl := L.NewTable()
		for key, val := range v {
			L.SetField(tbl, key, lua.LString(val))
		}
		return tbl
	case []any:
		tbl := L.NewTable()
		for i, val := range v {
			tbl.RawSetInt(i+1, GoToLua(L, val))
		}
		return tbl
	case []string:
		tbl := L.NewTable()
		for i, val := range v {
			tbl.RawSetInt(i+1, lua.LString(val))
		}
		return tbl
	default:
		return lua.LNil
	}
}
