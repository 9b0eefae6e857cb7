// SPDX-License-Identifier: MIT

package detect

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framely/eyes/internal/config"
)

func flatGray(w, h int, v float64) *grayImage {
	g := &grayImage{pix: make([]float64, w*h), w: w, h: h}
	for i := range g.pix {
		g.pix[i] = v
	}
	return g
}

func patternGray(w, h int, phase float64) *grayImage {
	g := &grayImage{pix: make([]float64, w*h), w: w, h: h}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g.pix[y*w+x] = 0.5 + 0.4*math.Sin(phase+float64(x)*0.3+float64(y)*0.2)
		}
	}
	return g
}

func TestClassifyTransition(t *testing.T) {
	same := patternGray(64, 48, 0)

	assert.Equal(t, "none", classifyTransition(same, same, ssim(same, same)))

	other := patternGray(64, 48, 2.5)
	assert.Equal(t, "cut", classifyTransition(same, other, 0.1))

	// Mid-similarity with a big brightness shift reads as a fade.
	dark := flatGray(64, 48, 0.05)
	bright := flatGray(64, 48, 0.6)
	assert.Equal(t, "fade", classifyTransition(dark, bright, 0.5))

	// Mid-similarity without a brightness shift is a dissolve.
	a := patternGray(64, 48, 0)
	b := patternGray(64, 48, 0.6)
	assert.Equal(t, "dissolve", classifyTransition(a, b, 0.5))
}

func TestTransitionsFirstShotSkipped(t *testing.T) {
	cfg := config.Default()
	d := &Transitions{}
	shot := &Shot{ShotID: "s0", FramePaths: []string{"unused.jpg"}}

	res, err := d.Detect(context.Background(), shot, &cfg)
	require.NoError(t, err)
	assert.Nil(t, res.Transition)
	assert.Equal(t, ReasonNoAdjacentShot, res.Provenance.SkippedReason)
}

func TestSSIMIdenticalIsOne(t *testing.T) {
	g := patternGray(32, 32, 1)
	assert.InDelta(t, 1.0, ssim(g, g), 1e-6)
}

func TestSSIMDissimilarIsLow(t *testing.T) {
	a := flatGray(32, 32, 0.1)
	b := patternGray(32, 32, 0.3)
	assert.Less(t, ssim(a, b), 0.9)
}
