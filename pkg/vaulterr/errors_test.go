package vaulterr

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_IsMatchesSentinelOfCode(t *testing.T) {
	err := NotFound("delete asset", "1234")

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrConflict))
	assert.Equal(t, "delete asset 1234: not found", err.Error())
}

func TestError_WrapsCause(t *testing.T) {
	err := IO("remove", "/data/x", os.ErrPermission)

	assert.True(t, errors.Is(err, ErrIO))
	assert.True(t, errors.Is(err, os.ErrPermission))
	assert.Contains(t, err.Error(), "remove /data/x")
}

func TestIO_NilErrorStaysNil(t *testing.T) {
	assert.NoError(t, IO("remove", "/data/x", nil))
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", Conflictf("export", "/tmp/out", "directory is not empty"))

	code, ok := CodeOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodeConflict, code)

	code, ok = CodeOf(fmt.Errorf("plain: %w", ErrPathEscape))
	require.True(t, ok)
	assert.Equal(t, CodePathEscape, code)

	_, ok = CodeOf(errors.New("unrelated"))
	assert.False(t, ok)
}
