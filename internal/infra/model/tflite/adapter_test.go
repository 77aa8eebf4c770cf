package tflite

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreFromOutputSingleLogit(t *testing.T) {
	assert.InDelta(t, 0.5, scoreFromOutput([]float32{0}), 1e-9)
	assert.Greater(t, scoreFromOutput([]float32{4}), 0.98)
	assert.Less(t, scoreFromOutput([]float32{-4}), 0.02)
}

func TestScoreFromOutputTwoClasses(t *testing.T) {
	// equal logits split evenly
	assert.InDelta(t, 0.5, scoreFromOutput([]float32{1.5, 1.5}), 1e-9)

	// fake is index 1
	assert.Greater(t, scoreFromOutput([]float32{0, 2}), 0.8)
	assert.Less(t, scoreFromOutput([]float32{2, 0}), 0.2)
}

func TestScoreFromOutputLargeLogits(t *testing.T) {
	// logits past the Exp overflow point must still produce a finite
	// probability, not NaN
	s := scoreFromOutput([]float32{1000, 1002})
	assert.False(t, math.IsNaN(s))
	assert.InDelta(t, sigmoid(2), s, 1e-6)

	s = scoreFromOutput([]float32{-1000, 1000})
	assert.False(t, math.IsNaN(s))
	assert.InDelta(t, 1.0, s, 1e-9)
}

func TestScoreFromOutputEmpty(t *testing.T) {
	assert.Zero(t, scoreFromOutput(nil))
}
