package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCUPSOutput(t *testing.T) {
	output := `printer Kitchen-1 is idle.  enabled since Fri 14 Mar 2026
printer Cashier is idle.  enabled since Fri 14 Mar 2026
printer Old-Epson disabled since Tue 01 Oct 2024 -
system default destination: Cashier
`

	printers := parseCUPSOutput(output)
	require.Len(t, printers, 3)

	assert.Equal(t, "Kitchen-1", printers[0].Name)
	assert.Equal(t, "online", printers[0].Status)
	assert.False(t, printers[0].IsDefault)

	assert.Equal(t, "Cashier", printers[1].Name)
	assert.True(t, printers[1].IsDefault)

	assert.Equal(t, "Old-Epson", printers[2].Name)
	assert.Equal(t, "offline", printers[2].Status)
}

func TestParseCUPSOutputEmpty(t *testing.T) {
	assert.Empty(t, parseCUPSOutput("lpstat: No destinations added.\n"))
}
