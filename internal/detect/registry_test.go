// SPDX-License-Identifier: MIT

package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRejectsDuplicateKind(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&Color{}))

	err := reg.Register(&Color{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registered twice")
}

func TestRegistryMustRegisterPanicsOnDuplicate(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(&Audio{})
	assert.Panics(t, func() { reg.MustRegister(&Audio{}) })
}

func TestRegistryGetAndKinds(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(&Motion{})
	reg.MustRegister(&Audio{})
	reg.MustRegister(&Color{})

	d, ok := reg.Get(KindAudio)
	require.True(t, ok)
	assert.Equal(t, KindAudio, d.Kind())

	_, ok = reg.Get(KindFaces)
	assert.False(t, ok)

	assert.Equal(t, []Kind{KindAudio, KindColor, KindMotion}, reg.Kinds())
}
