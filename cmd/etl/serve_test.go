package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duck-etl/internal/config"
	"duck-etl/internal/middleware"
)

func TestNewTokenValidator(t *testing.T) {
	v, err := newTokenValidator(context.Background(), &config.Config{})
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = newTokenValidator(context.Background(), &config.Config{JWTSecret: "s3cret"})
	require.NoError(t, err)
	assert.IsType(t, &middleware.HS256Validator{}, v)
}
