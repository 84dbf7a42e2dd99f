package onnx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewImageTensor(t *testing.T) {
	data := make([]float32, 3*4*5)
	tensor, err := NewImageTensor(data, 3, 4, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 4, 5}, tensor.Shape)
	assert.Equal(t, 60, tensor.Elements())
	assert.NoError(t, tensor.Verify())
}

func TestNewImageTensorErrors(t *testing.T) {
	_, err := NewImageTensor(nil, 3, 4, 5)
	assert.Error(t, err)
	_, err = NewImageTensor(make([]float32, 10), 3, 4, 5)
	assert.Error(t, err)
}

func TestValidateNCHW(t *testing.T) {
	assert.NoError(t, ValidateNCHW([]int64{1, 3, 48, 144}))
	assert.Error(t, ValidateNCHW([]int64{1, 3, 48}))
	assert.Error(t, ValidateNCHW([]int64{1, 3, 0, 144}))
}

func TestTensorVerifyMismatch(t *testing.T) {
	tensor := Tensor{Data: make([]float32, 5), Shape: []int64{1, 2, 3}}
	assert.Error(t, tensor.Verify())
}
