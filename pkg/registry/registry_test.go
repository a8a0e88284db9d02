package registry_test

import (
	"testing"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/pkg/process"
	"github.com/aretw0/weft/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := registry.NewRegistry()
	r.Register("noop", func() weft.Program { return weft.Program{Main: process.Null{}} })
	r.Register("named", func() weft.Program { return weft.Program{Name: "custom", Main: process.Null{}} })

	assert.Equal(t, []string{"named", "noop"}, r.Names())

	p, err := r.Program("noop")
	require.NoError(t, err)
	assert.Equal(t, "noop", p.Name, "programs default to their registered name")

	p, err = r.Program("named")
	require.NoError(t, err)
	assert.Equal(t, "custom", p.Name)

	_, err = r.Program("missing")
	assert.ErrorContains(t, err, "program not found: missing")
}

func TestRegistry_FreshProgramPerLookup(t *testing.T) {
	r := registry.NewRegistry()
	r.Register("seq", func() weft.Program { return weft.Program{Main: process.Seq(process.Null{})} })

	a, err := r.Program("seq")
	require.NoError(t, err)
	b, err := r.Program("seq")
	require.NoError(t, err)
	assert.NotSame(t, a.Main, b.Main)
}
