package main

import (
	"bytes"
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pagecorpus/model"
)

func TestParseVector(t *testing.T) {
	vec, err := parseVector("1, 0.5,-2")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0.5, -2}, vec)

	_, err = parseVector("1,x")
	assert.Error(t, err)
}

func TestParsePageKey(t *testing.T) {
	key, err := parsePageKey("w2_2022.pdf", "3")
	require.NoError(t, err)
	assert.Equal(t, model.PageKey{Document: "w2_2022.pdf", Page: 3}, key)

	_, err = parsePageKey("w2_2022.pdf", "0")
	assert.Error(t, err)

	_, err = parsePageKey("w2_2022.pdf", "one")
	assert.Error(t, err)
}

func TestOutputTo(t *testing.T) {
	data := map[string]int{"pages": 2}

	var buf bytes.Buffer
	require.NoError(t, outputTo(&buf, "json", data))
	assert.JSONEq(t, `{"pages":2}`, buf.String())

	buf.Reset()
	require.NoError(t, outputTo(&buf, "yaml", data))
	assert.Equal(t, "pages: 2\n", buf.String())

	assert.Error(t, outputTo(&buf, "xml", data))
}

func TestCommandEmbedder(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs sh")
	}

	e, err := newCommandEmbedder([]string{"sh", "-c", `echo "[1, 0, 0.25]"`})
	require.NoError(t, err)

	vec, err := e.Embed(context.Background(), "page.png")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0.25}, vec)

	e, err = newCommandEmbedder([]string{"sh", "-c", "echo boom >&2; exit 3"})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "page.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	e, err = newCommandEmbedder([]string{"sh", "-c", "echo not-json"})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "page.png")
	assert.ErrorContains(t, err, "decode vector")

	_, err = newCommandEmbedder(nil)
	assert.Error(t, err)
}
