package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLaneString(t *testing.T) {
	assert.Equal(t, "high", High.String())
	assert.Equal(t, "mid", Mid.String())
	assert.Equal(t, "low", Low.String())
	assert.Equal(t, "unknown", Lane(99).String())
}
