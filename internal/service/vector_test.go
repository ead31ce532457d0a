package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCentroidEmpty(t *testing.T) {
	assert.Nil(t, Centroid(nil))
	assert.Nil(t, Centroid([][]float32{}))
}

func TestCentroidSingleVector(t *testing.T) {
	assert.Equal(t, []float32{0.5, -1, 2}, Centroid([][]float32{{0.5, -1, 2}}))
}

func TestCentroidMean(t *testing.T) {
	centroid := Centroid([][]float32{
		{1, 3},
		{3, 5},
	})
	assert.Equal(t, []float32{2, 4}, centroid)
}
