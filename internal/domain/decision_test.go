package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyAction(t *testing.T) {
	assert.Equal(t, ActionRaised, ClassifyAction(100, 150))
	assert.Equal(t, ActionLowered, ClassifyAction(150, 100))
	assert.Equal(t, ActionHold, ClassifyAction(100, 100))
}
