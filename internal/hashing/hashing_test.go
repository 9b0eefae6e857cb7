// SPDX-License-Identifier: MIT

package hashing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.WriteFile(p, []byte("hello"), 0o644))

	sum, err := File(p)
	require.NoError(t, err)
	// sha256("hello")
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", sum)

	_, err = File(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestObjectStableAcrossFieldOrder(t *testing.T) {
	type ab struct {
		A int `json:"a"`
		B int `json:"b"`
	}
	type ba struct {
		B int `json:"b"`
		A int `json:"a"`
	}

	h1, err := Object(ab{A: 1, B: 2})
	require.NoError(t, err)
	h2, err := Object(ba{A: 1, B: 2})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	h3, err := Object(ab{A: 1, B: 3})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestObjectRejectsUnencodable(t *testing.T) {
	_, err := Object(func() {})
	assert.Error(t, err)
}

func TestString(t *testing.T) {
	assert.Len(t, String("x"), 64)
	assert.Equal(t, String("x"), String("x"))
	assert.NotEqual(t, String("x"), String("y"))
}
