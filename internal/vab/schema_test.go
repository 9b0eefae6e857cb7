// SPDX-License-Identifier: MIT

package vab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validBundle() *Bundle {
	return &Bundle{
		SchemaVersion: SchemaVersion,
		Status:        Status{State: StateOK, Reasons: []string{}},
		Video:         VideoMeta{VideoID: "vid1", SHA256: "abc"},
		Global: GlobalStats{
			TotalFrames: 100,
			DurationS:   4,
			FPS:         25,
			Resolution:  Resolution{W: 1280, H: 720},
		},
		Scenes: []Scene{{
			SceneID:  "vid1_scene_0000",
			Shots:    []string{"vid1_shot_0000"},
			EndFrame: 99,
		}},
		Shots: []Shot{{
			ShotID: "vid1_shot_0000", EndFrame: 99, FrameCount: 100, DurationS: 4,
		}},
		Risks:       []Risk{},
		Provenance:  []Provenance{{Tool: "audio", Version: "1.0", TS: "2026-01-01T00:00:00Z"}},
		Calibration: []Calibration{{Family: "objects", ExpectedTPR: 0.9, ExpectedFPR: 0.05}},
	}
}

func TestValidateSchemaAcceptsWellFormedBundle(t *testing.T) {
	assert.NoError(t, ValidateSchema(validBundle()))
}

func TestValidateSchemaRejections(t *testing.T) {
	cases := map[string]func(*Bundle){
		"bad version":       func(b *Bundle) { b.SchemaVersion = "2.0.0" },
		"bad state":         func(b *Bundle) { b.Status.State = "meh" },
		"empty video id":    func(b *Bundle) { b.Video.VideoID = "" },
		"bad risk severity": func(b *Bundle) { b.Risks = []Risk{{Type: "x", Severity: "catastrophic"}} },
		"scene no shots":    func(b *Bundle) { b.Scenes[0].Shots = []string{} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			b := validBundle()
			mutate(b)
			require.Error(t, ValidateSchema(b))
		})
	}
}

func TestProvenanceKey(t *testing.T) {
	a := Provenance{Tool: "yolo", Version: "1", ParamsHash: "h"}
	b := Provenance{Tool: "yolo", Version: "1", ParamsHash: "h", TS: "later"}
	c := Provenance{Tool: "yolo", Version: "2", ParamsHash: "h"}
	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}
