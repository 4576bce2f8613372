package datasource

import (
	"context"
	"fmt"
	"time"

	lua "github.com/yuin/gopher-lua"

	luaservices "github.com/project-kessel/userclaims/internal/lua"
	"github.com/project-kessel/userclaims/internal/service"
)

// LuaDataSource executes a Lua script to fetch data
// The script has access to http, config, and json services.
// It serves directories that do not follow the GET /user/{id} shape.
type LuaDataSource struct {
	name         string
	script       string
	configSource luaservices.ConfigSource
	httpConfig   luaservices.HTTPServiceConfig
}

// LuaDataSourceConfig configures a Lua data source
type LuaDataSourceConfig struct {
	// Name identifies this data source
	Name string

	// Script is the Lua script to execute
	// The script should define a function called 'fetch' that takes an input table
	// and returns nil or a result table with 'status', 'body' and 'content_type' fields
	//
	// Example:
	//   function fetch(input)
	//     local response = http.get(config.get("base_url") .. "/v2/users?id=" .. input.user_id)
	//     if response == nil then
	//       return nil
	//     end
	//     return {status = response.status, body = response.body, content_type = "application/json"}
	//   end
	Script string

	// ConfigSource provides configuration values available to the script via config.get()
	// If nil, an empty MapConfigSource will be used
	ConfigSource luaservices.ConfigSource

	// HTTPConfig provides HTTP service configuration including timeout, fixtures, etc.
	// If nil, default HTTP config (30s timeout, no fixtures) will be used
	HTTPConfig *luaservices.HTTPServiceConfig
}

// NewLuaDataSource creates a new Lua data source
func NewLuaDataSource(config LuaDataSourceConfig) (*LuaDataSource, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("data source name is required")
	}
	if config.Script == "" {
		return nil, fmt.Errorf("script is required")
	}

	if config.ConfigSource == nil {
		config.ConfigSource = luaservices.NewMapConfigSource(nil)
	}

	// Validate that the script has a fetch function
	L := lua.NewState()
	defer L.Close()

	if err := L.DoString(config.Script); err != nil {
		return nil, fmt.Errorf("failed to load script: %w", err)
	}

	if L.GetGlobal("fetch").Type() != lua.LTFunction {
		return nil, fmt.Errorf("script must define a 'fetch' function")
	}

	httpConfig := luaservices.HTTPServiceConfig{Timeout: 30 * time.Second}
	if config.HTTPConfig != nil {
		httpConfig = *config.HTTPConfig
	}

	return &LuaDataSource{
		name:         config.Name,
		script:       config.Script,
		configSource: config.ConfigSource,
		httpConfig:   httpConfig,
	}, nil
}

// Name returns the data source name
func (ds *LuaDataSource) Name() string {
	return ds.name
}

// Fetch executes the Lua script to fetch data
func (ds *LuaDataSource) Fetch(ctx context.Context, input *service.DataSourceInput) (*service.DataSourceResult, error) {
	// Each fetch gets its own Lua state; states are not safe for concurrent use
	L := lua.NewState()
	defer L.Close()
	L.SetContext(ctx)

	luaservices.NewHTTPServiceWithConfig(ds.httpConfig).WithContext(ctx).Register(L)
	luaservices.NewConfigService(ds.configSource).Register(L)
	luaservices.NewJSONService().Register(L)

	if err := L.DoString(ds.script); err != nil {
		return nil, fmt.Errorf("failed to load script: %w", err)
	}

	if err := L.CallByParam(lua.P{
		Fn:      L.GetGlobal("fetch"),
		NRet:    1,
		Protect: true,
	}, ds.inputToLuaTable(L, input)); err != nil {
		return nil, fmt.Errorf("script execution failed: %w", err)
	}

	ret := L.Get(-1)
	L.Pop(1)

	switch v := ret.(type) {
	case *lua.LNilType:
		// Data source has nothing to contribute
		return nil, nil
	case *lua.LTable:
		return luaTableToResult(v)
	default:
		return nil, fmt.Errorf("fetch function must return a table or nil, got %s", ret.Type())
	}
}

// inputToLuaTable converts a DataSourceInput to a Lua table
func (ds *LuaDataSource) inputToLuaTable(L *lua.LState, input *service.DataSourceInput) *lua.LTable {
	tbl := L.NewTable()
	if input == nil {
		return tbl
	}

	L.SetField(tbl, "user_id", lua.LString(input.UserID))

	if attrs := input.RequestAttributes; attrs != nil {
		reqTbl := L.NewTable()
		L.SetField(reqTbl, "method", lua.LString(attrs.Method))
		L.SetField(reqTbl, "path", lua.LString(attrs.Path))
		L.SetField(reqTbl, "ip_address", lua.LString(attrs.IPAddress))
		L.SetField(reqTbl, "user_agent", lua.LString(attrs.UserAgent))
		L.SetField(reqTbl, "headers", luaservices.GoToLua(L, attrs.FlatHeaders()))
		if len(attrs.Additional) > 0 {
			L.SetField(reqTbl, "additional", luaservices.GoToLua(L, attrs.Additional))
		}
		L.SetField(tbl, "request", reqTbl)
	}

	return tbl
}

// luaTableToResult converts a Lua table to a DataSourceResult
func luaTableToResult(tbl *lua.LTable) (*service.DataSourceResult, error) {
	body := tbl.RawGetString("body")
	if body.Type() == lua.LTNil {
		// 'data' is accepted as an alias of 'body'
		body = tbl.RawGetString("data")
	}

	var data []byte
	switch v := body.(type) {
	case lua.LString:
		data = []byte(string(v))
	case *lua.LNilType:
		// Status-only results, such as a 404, carry no body
	default:
		return nil, fmt.Errorf("'body' field must be a string, got %s", body.Type())
	}

	status := 200
	if n, ok := tbl.RawGetString("status").(lua.LNumber); ok {
		status = int(n)
	}

	contentType := service.ContentTypeJSON
	if ct, ok := tbl.RawGetString("content_type").(lua.LString); ok {
		contentType = service.DataSourceContentType(ct)
	}

	return &service.DataSourceResult{
		StatusCode:  status,
		Data:        data,
		ContentType: contentType,
	}, nil
}
