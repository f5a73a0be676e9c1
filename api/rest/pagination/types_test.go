package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseParamsDefaults(t *testing.T) {
	params := ParseParams("", "", 20, 100)

	assert.Equal(t, 20, params.Limit)
	assert.Equal(t, 0, params.Offset)
}

func TestParseParamsClampsLimit(t *testing.T) {
	params := ParseParams("500", "10", 20, 100)

	assert.Equal(t, 100, params.Limit)
	assert.Equal(t, 10, params.Offset)
}

func TestParseParamsRejectsGarbage(t *testing.T) {
	params := ParseParams("abc", "-5", 20, 100)

	assert.Equal(t, 20, params.Limit)
	assert.Equal(t, 0, params.Offset)
}

func TestWindowBounds(t *testing.T) {
	params := Params{Limit: 10, Offset: 95}

	start, end := params.Window(100)
	assert.Equal(t, 95, start)
	assert.Equal(t, 100, end)

	start, end = params.Window(50)
	assert.Equal(t, 50, start)
	assert.Equal(t, 50, end)
}

func TestMetaHasMore(t *testing.T) {
	meta := NewMeta(Params{Limit: 10, Offset: 0}, 25)
	assert.True(t, meta.HasMore)

	meta = NewMeta(Params{Limit: 10, Offset: 20}, 25)
	assert.False(t, meta.HasMore)
}
