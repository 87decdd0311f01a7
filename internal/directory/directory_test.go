package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic_DisplayName(t *testing.T) {
	d := NewStatic(map[string]string{" emp-1 ": " Nusrat Jahan ", "emp-2": ""})
	ctx := context.Background()

	name, ok := d.DisplayName(ctx, "emp-1")
	assert.True(t, ok)
	assert.Equal(t, "Nusrat Jahan", name)

	_, ok = d.DisplayName(ctx, "emp-2")
	assert.False(t, ok)

	_, ok = d.DisplayName(ctx, "unknown")
	assert.False(t, ok)
}

func TestLookup(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, Lookup(ctx, nil, "emp-1"))

	d := NewStatic(map[string]string{"emp-1": "Nusrat Jahan"})
	name := Lookup(ctx, d, "emp-1")
	require.NotNil(t, name)
	assert.Equal(t, "Nusrat Jahan", *name)
	assert.Nil(t, Lookup(ctx, d, "emp-9"))
}
