package lua

import (
	"testing"

	"github.com/stretchr/testify/assert"
	lua "github.com/yuin/gopher-lua"
)

func TestJSONService(t *testing.T) {
	t.Run("decode then read fields", func(t *testing.T) {
		got := runScript(t, `
			local user = json.decode('{"name":"Ada","roles":["admin","dev"],"address":{"city":"London"}}')
			return user.name .. "|" .. user.roles[2] .. "|" .. user.address.city
		`, NewJSONService())

		assert.Equal(t, "Ada|dev|London", got)
	})

	t.Run("encode object", func(t *testing.T) {
		got := runScript(t, `return json.encode({name = "Ada", active = true})`, NewJSONService())
		assert.JSONEq(t, `{"name":"Ada","active":true}`, got)
	})

	t.Run("encode array", func(t *testing.T) {
		got := runScript(t, `return json.encode({"a", "b"})`, NewJSONService())
		assert.Equal(t, `["a","b"]`, got)
	})

	t.Run("decode error", func(t *testing.T) {
		got := runScript(t, `
			local value, err = json.decode("{not json")
			return err
		`, NewJSONService())
		assert.Contains(t, got, "failed to decode JSON")
	})
}

func TestConfigService(t *testing.T) {
	source := NewMapConfigSource(map[string]any{
		"directory_url": "http://service:8087",
		"timeout":       5,
		"tags":          []any{"a", "b"},
	})

	got := runScript(t, `
		local keys = config.keys()
		return config.get("directory_url") .. "|" ..
			config.get("timeout") .. "|" ..
			config.get("missing", "fallback") .. "|" ..
			tostring(config.has("tags")) .. "|" ..
			tostring(config.has("missing")) .. "|" ..
			table.concat(keys, ",")
	`, NewConfigService(source))

	assert.Equal(t, "http://service:8087|5|fallback|true|false|directory_url,tags,timeout", got)
}

func TestGoToLuaRoundTrip(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	value := map[string]any{
		"name":    "Ada",
		"age":     float64(36),
		"admin":   true,
		"roles":   []any{"dev"},
		"headers": map[string]string{"Userid": "42"},
	}

	back := LuaToGo(GoToLua(L, value))

	assert.Equal(t, map[string]any{
		"name":    "Ada",
		"age":     float64(36),
		"admin":   true,
		"roles":   []any{"dev"},
		"headers": map[string]any{"Userid": "42"},
	}, back)
}
