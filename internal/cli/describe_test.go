package cli_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/aretw0/weft/internal/cli"
	"github.com/aretw0/weft/internal/demo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescribeProgram(t *testing.T) {
	out := cli.DescribeProgram(demo.Booking())

	assert.Contains(t, out, "# booking\n")
	assert.Contains(t, out, "| `book` | request_response | void { seats: int } | int | SoldOut |")
	assert.Contains(t, out, "## Session starters\n\n- `book`\n")
	assert.Contains(t, out, "```mermaid\ngraph TD\n")

	counter := cli.DescribeProgram(demo.Counter())
	assert.Contains(t, counter, "| `start` | request_response | void | void |  |")
	assert.Contains(t, counter, "| `add` | one_way | int |  |  |")
}

func TestDescribe(t *testing.T) {
	t.Run("Plain", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, cli.Describe(&buf, demo.Calculator(), nil))
		assert.Equal(t, cli.DescribeProgram(demo.Calculator()), buf.String())
	})

	t.Run("Rendered", func(t *testing.T) {
		var buf bytes.Buffer
		render := func(md string) (string, error) { return "rendered:" + md[:11], nil }
		require.NoError(t, cli.Describe(&buf, demo.Calculator(), render))
		assert.Equal(t, "rendered:# calculato", buf.String())
	})

	t.Run("RenderError", func(t *testing.T) {
		render := func(string) (string, error) { return "", errors.New("boom") }
		err := cli.Describe(&bytes.Buffer{}, demo.Calculator(), render)
		assert.ErrorContains(t, err, "boom")
	})
}
