// SPDX-License-Identifier: MIT

package vlclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framely/eyes/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(config.VLConfig{
		APIBase: srv.URL,
		Model:   "test-vl",
		Timeout: 5 * time.Second,
	}, zerolog.Nop())
	c.backoff = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	return c, srv
}

func chatReply(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(resp))
}

func TestDescribeSceneParsesStrictJSON(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		chatReply(t, w, `{"narrative_function":"setup","tone":"calm","motifs":["rain"],"risks":[]}`)
	})
	story, err := c.DescribeScene(context.Background(), SceneObservation{SceneID: "sc0"})
	require.NoError(t, err)
	assert.Equal(t, "setup", story.NarrativeFunction)
	assert.Equal(t, []string{"rain"}, story.Motifs)
}

func TestDescribeShotSalvagesFencedReply(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		chatReply(t, w, "```json\n{\"summary\":\"a man walks\",\"mood\":\"calm\",\"intent\":\"establish\",\"composition_notes\":[],\"transition_guess\":\"cut\"}\n```")
	})
	n, err := c.DescribeShot(context.Background(), ShotObservation{ShotID: "s0"}, nil, 4)
	require.NoError(t, err)
	assert.Equal(t, "a man walks", n.Summary)
	assert.Equal(t, "cut", n.TransitionGuess)
}

func TestDescribeShotRepromptsOnceThenParseFailed(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		chatReply(t, w, "I cannot answer in JSON, sorry.")
	})
	_, err := c.DescribeShot(context.Background(), ShotObservation{ShotID: "s0"}, nil, 4)
	require.ErrorIs(t, err, ErrParseFailed)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDescribeShotRecoversOnReprompt(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			chatReply(t, w, "here you go!")
			return
		}
		chatReply(t, w, `{"summary":"ok","mood":"neutral","intent":"x","composition_notes":[],"transition_guess":"none"}`)
	})
	n, err := c.DescribeShot(context.Background(), ShotObservation{ShotID: "s0"}, nil, 4)
	require.NoError(t, err)
	assert.Equal(t, "ok", n.Summary)
}

func TestTransportRetriesThenUnreachable(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err := c.DescribeScene(context.Background(), SceneObservation{SceneID: "sc0"})
	require.ErrorIs(t, err, ErrUnreachable)
	assert.Equal(t, int32(4), calls.Load()) // initial attempt plus three retries
}

func TestTransportRecoversAfterOneFailure(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		chatReply(t, w, `{"narrative_function":"payoff","tone":"bright","motifs":[],"risks":[]}`)
	})
	story, err := c.DescribeScene(context.Background(), SceneObservation{SceneID: "sc0"})
	require.NoError(t, err)
	assert.Equal(t, "payoff", story.NarrativeFunction)
}

func TestHealthy(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})
	assert.True(t, c.Healthy(context.Background()))

	down := New(config.VLConfig{APIBase: "http://127.0.0.1:1", Timeout: time.Second}, zerolog.Nop())
	assert.False(t, down.Healthy(context.Background()))
}

func TestExtractJSON(t *testing.T) {
	cases := map[string]string{
		`{"a":1}`:                        `{"a":1}`,
		"```json\n{\"a\":1}\n```":        `{"a":1}`,
		"Sure thing: {\"a\":1} enjoy!":   `{"a":1}`,
		"```\n{\"a\":1}\n```\ntrailing":  `{"a":1}`,
	}
	for in, want := range cases {
		assert.Equal(t, want, extractJSON(in), "input %q", in)
	}
}

func TestSampleEvenly(t *testing.T) {
	paths := []string{"a", "b", "c", "d", "e", "f"}
	assert.Equal(t, paths, sampleEvenly(paths, 10))
	got := sampleEvenly(paths, 3)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0])
	assert.Equal(t, "f", got[2])
}
