package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string         `json:"name"`
	Hist  map[string]int `json:"hist"`
	Flags []string       `json:"flags"`
}

func TestMarshalLine(t *testing.T) {
	v := sample{Name: "a<b>&c", Hist: map[string]int{"z": 1, "a": 2}, Flags: []string{"x"}}

	for _, c := range []Codec{JSON{}, GoJSON{}} {
		t.Run(c.Name(), func(t *testing.T) {
			line, err := MarshalLine(c, v)
			require.NoError(t, err)
			assert.Equal(t, `{"name":"a<b>&c","hist":{"a":2,"z":1},"flags":["x"]}`+"\n", string(line))

			var got sample
			require.NoError(t, c.Unmarshal(line, &got))
			assert.Equal(t, v, got)
		})
	}
}

func TestMarshalLineRejectsNilCodec(t *testing.T) {
	line, err := MarshalLine(nil, map[string]string{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, "{\"k\":\"v\"}\n", string(line))
}

func TestByName(t *testing.T) {
	c, ok := ByName("json")
	require.True(t, ok)
	assert.Equal(t, "json", c.Name())

	c, ok = ByName("go-json")
	require.True(t, ok)
	assert.Equal(t, "go-json", c.Name())

	_, ok = ByName("msgpack")
	assert.False(t, ok)
}

func TestMarshalIndent(t *testing.T) {
	out, err := MarshalIndent(GoJSON{}, map[string]int{"b": 1, "a": 2})
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": 2,\n  \"b\": 1\n}", string(out))
}
