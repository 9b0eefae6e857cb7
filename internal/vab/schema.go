// SPDX-License-Identifier: MIT

package vab

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// bundleSchema is the JSON schema every bundle must satisfy before persist.
const bundleSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["schema_version", "status", "video", "global", "scenes", "shots", "risks", "provenance", "calibration"],
  "properties": {
    "schema_version": {"type": "string", "pattern": "^1\\.1\\.\\d+$"},
    "status": {
      "type": "object",
      "required": ["state", "reasons", "coverage"],
      "properties": {
        "state": {"enum": ["ok", "degraded", "failed"]},
        "reasons": {"type": "array", "items": {"type": "string"}},
        "coverage": {
          "type": "object",
          "required": ["spatial", "temporal", "audio"],
          "properties": {
            "spatial": {
              "type": "object",
              "required": ["tile_size", "stride", "pixels_covered_pct", "min_detectable_px"],
              "properties": {
                "pixels_covered_pct": {"type": "number", "minimum": 0, "maximum": 100}
              }
            },
            "temporal": {
              "type": "object",
              "required": ["frame_stride", "frames_analyzed_pct"],
              "properties": {
                "frames_analyzed_pct": {"type": "number", "minimum": 0, "maximum": 100}
              }
            },
            "audio": {
              "type": "object",
              "required": ["lufs_trace_pct", "stoi_pct"]
            }
          }
        }
      }
    },
    "video": {
      "type": "object",
      "required": ["video_id", "path", "sha256"],
      "properties": {
        "video_id": {"type": "string", "minLength": 1}
      }
    },
    "global": {
      "type": "object",
      "required": ["total_frames", "duration_s", "fps", "resolution", "detections"],
      "properties": {
        "total_frames": {"type": "integer", "minimum": 0},
        "resolution": {
          "type": "object",
          "required": ["w", "h"]
        }
      }
    },
    "scenes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["scene_id", "shots", "start_frame", "end_frame", "features"],
        "properties": {
          "shots": {"type": "array", "items": {"type": "string"}, "minItems": 1}
        }
      }
    },
    "shots": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["shot_id", "start_frame", "end_frame", "frame_count", "duration_s", "detectors"]
      }
    },
    "risks": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type", "severity"],
        "properties": {
          "severity": {"enum": ["low", "med", "high"]}
        }
      }
    },
    "provenance": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["tool", "version", "ts"]
      }
    },
    "calibration": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["family", "expected_tpr", "expected_fpr"]
      }
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(bundleSchema)

// ValidateSchema checks the bundle's JSON form against the bundle schema.
// It is run before every persist so a malformed bundle never reaches disk.
func ValidateSchema(b *Bundle) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal bundle: %w", err)
	}
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("validate bundle: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("bundle schema violation: %s", strings.Join(msgs, "; "))
}
