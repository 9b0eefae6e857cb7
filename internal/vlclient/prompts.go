// SPDX-License-Identifier: MIT

package vlclient

import (
	"fmt"
	"strings"
)

const shotSystemPrompt = `You are a film analysis assistant. You receive keyframes of one shot
plus machine-extracted signals. Respond with a single JSON object and
nothing else. No markdown, no prose outside the JSON.

Schema:
{
  "summary": "one or two sentences describing what happens in the shot",
  "mood": "one word, e.g. tense|calm|joyful|somber|neutral",
  "intent": "the likely directorial intent, one short phrase",
  "composition_notes": ["short observations about framing and light"],
  "transition_guess": "none|cut|fade|dissolve|unknown"
}`

const sceneSystemPrompt = `You are a film analysis assistant. You receive per-shot summaries of one
scene. Respond with a single JSON object and nothing else.

Schema:
{
  "narrative_function": "what this scene does in the story, one phrase",
  "tone": "one word",
  "motifs": ["recurring visual or audio elements"],
  "risks": ["potential content concerns, empty if none"]
}`

// strictReminder is appended on the single re-prompt after a parse failure.
const strictReminder = `Your previous reply was not valid JSON. Reply again with ONLY the JSON
object, starting with { and ending with }. No code fences, no commentary.`

// ShotObservation carries the machine-extracted signals that ground the
// shot prompt.
type ShotObservation struct {
	ShotID         string
	DurationS      float64
	ObjectLabels   []string
	OCRText        []string
	TransitionType string
	HasSpeech      bool
	LUFS           float64
}

// SceneObservation summarizes a scene for the scene-level call.
type SceneObservation struct {
	SceneID       string
	DurationS     float64
	DominantMood  string
	ShotSummaries []string
}

func shotUserPrompt(obs ShotObservation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Shot %s, duration %.2fs.\n", obs.ShotID, obs.DurationS)
	if len(obs.ObjectLabels) > 0 {
		fmt.Fprintf(&b, "Detected objects: %s.\n", strings.Join(obs.ObjectLabels, ", "))
	}
	if len(obs.OCRText) > 0 {
		fmt.Fprintf(&b, "On-screen text: %q.\n", strings.Join(obs.OCRText, " / "))
	}
	if obs.TransitionType != "" {
		fmt.Fprintf(&b, "Transition into this shot: %s.\n", obs.TransitionType)
	}
	if obs.HasSpeech {
		fmt.Fprintf(&b, "The audio contains speech at %.1f LUFS.\n", obs.LUFS)
	}
	b.WriteString("Analyze the attached keyframes and answer per the schema.")
	return b.String()
}

func sceneUserPrompt(obs SceneObservation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scene %s, duration %.2fs, dominant mood %q.\n",
		obs.SceneID, obs.DurationS, obs.DominantMood)
	b.WriteString("Shot summaries in order:\n")
	for i, s := range obs.ShotSummaries {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s)
	}
	b.WriteString("Answer per the schema.")
	return b.String()
}
