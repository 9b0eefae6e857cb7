// SPDX-License-Identifier: MIT

package prep

import (
	"context"
	"image/jpeg"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyntheticPrepare(t *testing.T) {
	s := DefaultSynthetic()
	man, err := s.Prepare(context.Background(), "vid1", "", t.TempDir(), 1)
	require.NoError(t, err)

	assert.Equal(t, "vid1", man.VideoID)
	assert.NotEmpty(t, man.SHA256)
	assert.Equal(t, "synthetic", man.Probe.Container)
	assert.Equal(t, 320, man.Probe.Width)
	assert.Equal(t, 25.0, man.Probe.FPS)
	require.Len(t, man.Shots, 3)

	for i, shot := range man.Shots {
		require.Len(t, shot.FramePaths, 4, "shot %d", i)
		for _, p := range shot.FramePaths {
			f, err := os.Open(p)
			require.NoError(t, err)
			img, err := jpeg.Decode(f)
			require.NoError(t, f.Close())
			require.NoError(t, err, p)
			assert.Equal(t, 320, img.Bounds().Dx())
			assert.Equal(t, 240, img.Bounds().Dy())
		}
		assert.Equal(t, man.AudioPath, shot.AudioPath)
		if i == 0 {
			assert.Empty(t, shot.PrevLastFramePath)
		} else {
			assert.Equal(t, man.Shots[i-1].FramePaths[3], shot.PrevLastFramePath)
		}
	}

	require.NotEmpty(t, man.AudioPath)
	info, err := os.Stat(man.AudioPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(44))
}

func TestSyntheticWithoutAudio(t *testing.T) {
	s := DefaultSynthetic()
	s.WithAudio = false
	man, err := s.Prepare(context.Background(), "vid1", "", t.TempDir(), 1)
	require.NoError(t, err)
	assert.Empty(t, man.AudioPath)
	assert.Empty(t, man.Shots[0].AudioPath)
}

func TestSyntheticDeterministicHash(t *testing.T) {
	s := DefaultSynthetic()
	a, err := s.Prepare(context.Background(), "vid1", "", t.TempDir(), 1)
	require.NoError(t, err)
	b, err := s.Prepare(context.Background(), "vid1", "", t.TempDir(), 1)
	require.NoError(t, err)
	assert.Equal(t, a.SHA256, b.SHA256)
}

func TestSyntheticCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := DefaultSynthetic().Prepare(ctx, "vid1", "", t.TempDir(), 1)
	assert.ErrorIs(t, err, context.Canceled)
}
