package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoiseDeterministic(t *testing.T) {
	a := NewNoise(42)
	b := NewNoise(42)

	for i := 0; i < 10; i++ {
		x, y := float64(i)*0.37, float64(i)*1.13
		assert.Equal(t, a.Noise2D(x, y), b.Noise2D(x, y), "одинаковый сид даёт одинаковый шум")
	}
}

func TestNoiseRange(t *testing.T) {
	n := NewNoise(7)
	for i := 0; i < 100; i++ {
		v := n.Noise3D(float64(i)*0.1, float64(i)*0.07, float64(i)*0.05)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
	assert.Equal(t, int64(7), n.Seed())
}
