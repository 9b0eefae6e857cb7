// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/hlog"

	"github.com/framely/eyes/internal/config"
	"github.com/framely/eyes/internal/hashing"
	"github.com/framely/eyes/internal/jobs"
	"github.com/framely/eyes/internal/store"
)

type analyzeRequest struct {
	VideoID string `json:"video_id"`
	// MediaURL is resolved on the local filesystem; remote fetching is the
	// caller's job. Empty falls back to a previously ingested source.
	MediaURL  string               `json:"media_url"`
	Ablations config.AblationFlags `json:"ablations"`
}

// The video id doubles as the job id: one video has at most one live job.
type analyzeResponse struct {
	JobID   string `json:"job_id"`
	VideoID string `json:"video_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// handleAnalyze admits an analysis job. Re-submitting the same video with
// the same ablation flags is idempotent; an active job with different flags
// conflicts.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_json", "request body is not valid JSON")
		return
	}
	if !store.ValidVideoID(req.VideoID) {
		writeError(w, r, http.StatusBadRequest, "bad_video_id", "video_id must be a safe identifier")
		return
	}
	if req.MediaURL == "" {
		p, ok := s.findIngested(req.VideoID)
		if !ok {
			writeError(w, r, http.StatusBadRequest, "no_source", "media_url missing and no ingested source found")
			return
		}
		req.MediaURL = p
	} else if _, err := os.Stat(req.MediaURL); err != nil {
		writeError(w, r, http.StatusBadRequest, "no_source", "media_url does not resolve to a local file")
		return
	}

	job, created, err := s.deps.Manager.Submit(r.Context(), jobs.AnalyzeRequest{
		VideoID:  req.VideoID,
		Path:     req.MediaURL,
		Ablation: req.Ablations,
	})
	if err != nil {
		if errors.Is(err, store.ErrBadVideoID) {
			writeError(w, r, http.StatusBadRequest, "bad_video_id", "video_id must be a safe identifier")
			return
		}
		hlog.FromRequest(r).Error().Err(err).Msg("submit failed")
		writeError(w, r, http.StatusInternalServerError, "submit_failed", "could not submit job")
		return
	}

	if !created && !job.Terminal() {
		reqHash, hashErr := hashing.Object(req.Ablations)
		if hashErr == nil && job.AblationHash != reqHash {
			writeError(w, r, http.StatusConflict, "job_active",
				"a job with different ablation flags is already running for this video")
			return
		}
	}
	msg := "analysis started"
	if !created {
		msg = "existing job returned"
	}
	writeJSON(w, r, http.StatusOK, analyzeResponse{
		JobID:   job.VideoID,
		VideoID: job.VideoID,
		Status:  job.State,
		Message: msg,
	})
}

// findIngested locates a source.* file written by a previous ingest.
func (s *Server) findIngested(videoID string) (string, bool) {
	if !store.ValidVideoID(videoID) {
		return "", false
	}
	matches, err := filepath.Glob(filepath.Join(s.deps.Disk.Root(), videoID, "source.*"))
	if err != nil || len(matches) == 0 {
		return "", false
	}
	return matches[0], true
}

type ingestResponse struct {
	VideoID string `json:"video_id"`
	Bytes   int64  `json:"bytes"`
	SHA256  string `json:"sha256"`
}

// handleIngest stores an uploaded video from a multipart form with a
// video_id field and a file part. The file's MIME type must be whitelisted
// and the body must fit the configured size cap.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	limit := int64(s.deps.Config.Server.MaxVideoMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(4 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "too_large",
				"upload exceeds the configured size limit")
			return
		}
		writeError(w, r, http.StatusBadRequest, "bad_multipart", "request body is not valid multipart form data")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	videoID := r.FormValue("video_id")
	if videoID == "" {
		videoID = uuid.NewString()
	}
	if !store.ValidVideoID(videoID) {
		writeError(w, r, http.StatusBadRequest, "bad_video_id", "video_id must be a safe identifier")
		return
	}

	src, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "no_file", "multipart field file is required")
		return
	}
	defer src.Close()

	ct := strings.TrimSpace(strings.SplitN(header.Header.Get("Content-Type"), ";", 2)[0])
	ext, ok := s.extensionFor(ct)
	if !ok {
		writeError(w, r, http.StatusUnsupportedMediaType, "bad_mime",
			"content type "+ct+" is not an accepted video format")
		return
	}

	dst, err := s.deps.Disk.SourcePath(videoID, ext)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_video_id", "video_id must be a safe identifier")
		return
	}

	f, err := os.Create(dst)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("ingest create failed")
		writeError(w, r, http.StatusInternalServerError, "ingest_failed", "could not store upload")
		return
	}
	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(dst)
		hlog.FromRequest(r).Error().AnErr("copy", copyErr).AnErr("close", closeErr).Msg("ingest write failed")
		writeError(w, r, http.StatusInternalServerError, "ingest_failed", "could not store upload")
		return
	}

	sha, err := hashing.File(dst)
	if err != nil {
		sha = ""
	}
	writeJSON(w, r, http.StatusCreated, ingestResponse{VideoID: videoID, Bytes: n, SHA256: sha})
}

func (s *Server) extensionFor(contentType string) (string, bool) {
	for _, allowed := range s.deps.Config.Server.MIMEWhitelist {
		if contentType == allowed {
			switch contentType {
			case "video/mp4":
				return "mp4", true
			case "video/quicktime":
				return "mov", true
			case "video/x-matroska":
				return "mkv", true
			case "video/webm":
				return "webm", true
			default:
				return "bin", true
			}
		}
	}
	return "", false
}

type statusResponse struct {
	JobID   string `json:"job_id"`
	VideoID string `json:"video_id"`
	State   string `json:"state"`
	// Progress is a percentage, 0..100.
	Progress     float64 `json:"progress"`
	Message      string  `json:"message"`
	VABAvailable bool    `json:"vab_available"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoID")
	job, err := s.deps.Manager.Status(r.Context(), videoID)
	if err != nil {
		if errors.Is(err, store.ErrBadVideoID) {
			writeError(w, r, http.StatusBadRequest, "bad_video_id", "video_id must be a safe identifier")
			return
		}
		if errors.Is(err, jobs.ErrJobNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "no job for this video")
			return
		}
		hlog.FromRequest(r).Error().Err(err).Msg("status lookup failed")
		writeError(w, r, http.StatusInternalServerError, "status_failed", "could not load job")
		return
	}

	msg := job.Stage
	if job.Error != "" {
		msg = job.Error
	}
	writeJSON(w, r, http.StatusOK, statusResponse{
		JobID:        job.VideoID,
		VideoID:      job.VideoID,
		State:        job.State,
		Progress:     job.Progress * 100,
		Message:      msg,
		VABAvailable: s.deps.Disk.HasBundle(job.VideoID),
	})
}

// handleResult serves the finished bundle. A known but unfinished job is a
// conflict, an unknown video a 404.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoID")
	if !store.ValidVideoID(videoID) {
		writeError(w, r, http.StatusBadRequest, "bad_video_id", "video_id must be a safe identifier")
		return
	}

	bundle, err := s.deps.Manager.Result(videoID)
	if err == nil {
		writeJSON(w, r, http.StatusOK, bundle)
		return
	}
	if !errors.Is(err, store.ErrNotFound) {
		hlog.FromRequest(r).Error().Err(err).Msg("result read failed")
		writeError(w, r, http.StatusInternalServerError, "result_failed", "could not load bundle")
		return
	}

	job, jobErr := s.deps.Manager.Status(r.Context(), videoID)
	if jobErr == nil && !job.Terminal() {
		writeError(w, r, http.StatusConflict, "not_ready", "analysis is still in progress")
		return
	}
	if jobErr == nil && job.State == jobs.StateFailed {
		writeError(w, r, http.StatusConflict, "job_failed", "analysis failed: "+job.Error)
		return
	}
	writeError(w, r, http.StatusNotFound, "not_found", "no bundle for this video")
}

type healthResponse struct {
	Status         string `json:"status"`
	GPUAvailable   bool   `json:"gpu_available"`
	QueueConnected bool   `json:"queue_connected"`
	VLAvailable    bool   `json:"vl_available"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		GPUAvailable:   s.deps.Pool != nil && s.deps.Pool.Capacity() > 0,
		QueueConnected: s.deps.Manager.QueueConnected(r.Context()),
	}
	if s.deps.Reasoner != nil {
		resp.VLAvailable = s.deps.Reasoner.Healthy(r.Context())
	}

	resp.Status = "ok"
	status := http.StatusOK
	if !resp.QueueConnected {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, r, status, resp)
}
