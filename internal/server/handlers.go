//nolint:tagliatelle
package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/farcloser/tocsin/internal/classifier"
	"github.com/farcloser/tocsin/internal/decode"
	"github.com/farcloser/tocsin/internal/inference"
	"github.com/farcloser/tocsin/internal/metrics"
)

const (
	multipartMemory = 32 << 20
	defaultMIMEType = "audio/wav"
	defaultSource   = "unknown"
)

var (
	errNoAudio        = errors.New("no audio data provided")
	errEmptyBase64    = errors.New("empty base64 audio data")
	errInvalidBase64  = errors.New("invalid base64 encoding")
	errInvalidArray   = errors.New("invalid audio_array")
	errNoFile         = errors.New("no file provided")
	errNoFileSelected = errors.New("no file selected")

	unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)
)

// predictRequest is the JSON body of /predict and of WebSocket text messages.
type predictRequest struct {
	AudioBase64 *string         `json:"audio_base64"`
	MIMEType    string          `json:"mimeType"`
	AudioArray  json.RawMessage `json:"audio_array"`
	SampleRate  int             `json:"sample_rate"`
	Source      string          `json:"source"`
	Timestamp   any             `json:"timestamp"`
}

// origin carries request metadata echoed back in the response.
type origin struct {
	Source    string
	Timestamp any
	Filename  string
}

type predictResponse struct {
	*inference.Result

	ModelVersion string `json:"model_version,omitempty"`
	Source       string `json:"source,omitempty"`
	Timestamp    any    `json:"timestamp,omitempty"`
	Filename     string `json:"filename,omitempty"`
	RequestID    string `json:"request_id,omitempty"`
}

type healthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	Message     string `json:"message"`
}

type modelInfoResponse struct {
	ModelLoaded      bool                `json:"model_loaded"`
	Error            string              `json:"error,omitempty"`
	ModelStore       string              `json:"model_store,omitempty"`
	SampleRate       int                 `json:"sample_rate,omitempty"`
	Duration         float64             `json:"duration,omitempty"`
	NMFCC            int                 `json:"n_mfcc,omitempty"`
	ExpectedFeatures int                 `json:"expected_features,omitempty"`
	ModelVersion     string              `json:"model_version,omitempty"`
	LayoutVersion    string              `json:"layout_version,omitempty"`
	SupportedFormats []string            `json:"supported_formats,omitempty"`
	APIVersion       string              `json:"api_version,omitempty"`
	ModelSummary     *classifier.Summary `json:"model_summary,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("server: writing response", "error", err)
	}
}

func statusFor(err error) int {
	var tooLarge *http.MaxBytesError

	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, classifier.ErrModelNotLoaded):
		return http.StatusInternalServerError
	case errors.Is(err, inference.ErrBadInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) modelVersion() string {
	model, err := s.service.Handle().Get()
	if err != nil {
		return ""
	}

	return model.Stamp().SetID
}

// predictionBody shapes a result or an error into the response document.
func (s *Server) predictionBody(r *http.Request, result *inference.Result, meta origin, err error) predictResponse {
	if result == nil {
		result = &inference.Result{}
	}

	if err != nil && result.Error == "" {
		result.Error = err.Error()
	}

	return predictResponse{
		Result:       result,
		ModelVersion: s.modelVersion(),
		Source:       meta.Source,
		Timestamp:    meta.Timestamp,
		Filename:     meta.Filename,
		RequestID:    requestID(r.Context()),
	}
}

func (s *Server) respondPrediction(w http.ResponseWriter, r *http.Request, result *inference.Result, meta origin,
	err error,
) {
	status := statusFor(err)
	if err != nil {
		slog.Warn("server: prediction failed", "path", r.URL.Path, "status", status, "error", err,
			"request_id", requestID(r.Context()))
	}

	writeJSON(w, status, s.predictionBody(r, result, meta, err))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	loaded := s.service.Handle().Loaded()
	metrics.SetModelLoaded(loaded)

	status := "healthy"
	if !loaded {
		status = "unhealthy"
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:      status,
		ModelLoaded: loaded,
		Message:     "Emergency Voice Recognition API is running",
	})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodySize)

	if _, err := s.service.Handle().Get(); err != nil {
		s.respondPrediction(w, r, nil, origin{}, err)

		return
	}

	input, meta, err := s.parsePredict(r)
	if err != nil {
		s.respondPrediction(w, r, nil, meta, fmt.Errorf("%w: %w", inference.ErrBadInput, err))

		return
	}

	result, err := s.service.Infer(r.Context(), input)
	s.respondPrediction(w, r, result, meta, err)
}

func (s *Server) handlePredictFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodySize)

	if _, err := s.service.Handle().Get(); err != nil {
		s.respondPrediction(w, r, nil, origin{}, err)

		return
	}

	input, meta, err := s.formFile(r, "file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			err = errNoFile
		}

		s.respondPrediction(w, r, nil, meta, fmt.Errorf("%w: %w", inference.ErrBadInput, err))

		return
	}

	result, err := s.service.Infer(r.Context(), input)
	s.respondPrediction(w, r, result, meta, err)
}

func (s *Server) parsePredict(r *http.Request) (inference.Input, origin, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch {
	case strings.HasPrefix(mediaType, "multipart/"):
		input, meta, err := s.formFile(r, "audio")
		if errors.Is(err, http.ErrMissingFile) {
			err = errNoAudio
		}

		return input, meta, err
	case mediaType == "application/json":
		var body predictRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return nil, origin{}, fmt.Errorf("decoding JSON body: %w", err)
		}

		return s.jsonInput(&body)
	default:
		return nil, origin{}, errNoAudio
	}
}

func (s *Server) formFile(r *http.Request, field string) (inference.Input, origin, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, origin{}, http.ErrMissingFile
		}

		return nil, origin{}, err
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, origin{}, err
	}
	defer file.Close()

	meta := origin{Filename: sanitizeFilename(header.Filename)}
	if header.Filename == "" {
		return nil, meta, errNoFileSelected
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, meta, err
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = decode.MIMETypeForPath(header.Filename)
	}

	return inference.BlobInput{Data: data, MIMEType: mimeType}, meta, nil
}

func (s *Server) jsonInput(body *predictRequest) (inference.Input, origin, error) {
	meta := origin{Source: body.Source, Timestamp: body.Timestamp}
	if meta.Source == "" {
		meta.Source = defaultSource
	}

	switch {
	case body.AudioBase64 != nil:
		encoded, mimeType := splitDataURL(*body.AudioBase64)
		if encoded == "" {
			return nil, meta, errEmptyBase64
		}

		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, meta, fmt.Errorf("%w: %w", errInvalidBase64, err)
		}

		if body.MIMEType != "" {
			mimeType = body.MIMEType
		}

		if mimeType == "" {
			mimeType = defaultMIMEType
		}

		return inference.BlobInput{Data: data, MIMEType: mimeType, SampleRate: body.SampleRate}, meta, nil
	case len(body.AudioArray) > 0:
		channels, err := planar(body.AudioArray)
		if err != nil {
			return nil, meta, err
		}

		rate := body.SampleRate
		if rate == 0 {
			rate = s.service.Layout().SampleRate
		}

		return inference.ArrayInput{Channels: channels, SampleRate: rate}, meta, nil
	default:
		return nil, meta, errNoAudio
	}
}

// planar accepts a mono sample list or a samples x channels matrix.
func planar(raw json.RawMessage) ([][]float64, error) {
	var mono []float64
	if err := json.Unmarshal(raw, &mono); err == nil {
		return [][]float64{mono}, nil
	}

	var frames [][]float64
	if err := json.Unmarshal(raw, &frames); err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidArray, err)
	}

	if len(frames) == 0 || len(frames[0]) == 0 {
		return [][]float64{{}}, nil
	}

	channels := make([][]float64, len(frames[0]))
	for ch := range channels {
		channels[ch] = make([]float64, len(frames))
	}

	for i, frame := range frames {
		if len(frame) != len(channels) {
			return nil, fmt.Errorf("%w: frame %d has %d channels, expected %d", errInvalidArray, i, len(frame), len(channels))
		}

		for ch, v := range frame {
			channels[ch][i] = v
		}
	}

	return channels, nil
}

// splitDataURL strips a "data:<mime>;base64," prefix, returning the payload and the embedded MIME type.
func splitDataURL(value string) (string, string) {
	if !strings.HasPrefix(value, "data:") {
		return value, ""
	}

	header, payload, found := strings.Cut(value, ",")
	if !found {
		return "", ""
	}

	mimeType, _, _ := strings.Cut(strings.TrimPrefix(header, "data:"), ";")

	return payload, mimeType
}

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeFilename.ReplaceAllString(name, "_")

	name = strings.TrimLeft(name, "._")
	if name == "" {
		return "upload"
	}

	return name
}

func (s *Server) handleModelInfo(w http.ResponseWriter, _ *http.Request) {
	model, err := s.service.Handle().Get()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, modelInfoResponse{Error: err.Error()})

		return
	}

	layout := s.service.Layout()
	summary := model.Summary()

	info := modelInfoResponse{
		ModelLoaded:      true,
		SampleRate:       layout.SampleRate,
		Duration:         layout.Duration,
		NMFCC:            layout.NMFCC,
		ExpectedFeatures: s.service.FeatureCount(),
		ModelVersion:     model.Stamp().SetID,
		LayoutVersion:    model.Stamp().LayoutVersion,
		SupportedFormats: decode.SupportedExtensions(),
		APIVersion:       APIVersion,
		ModelSummary:     &summary,
	}

	if store := s.service.Handle().Store(); store != nil {
		info.ModelStore = store.String()
	}

	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodySize)

	received := any(map[string]any{})

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Test failed: " + err.Error()})

			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":       "Test endpoint working",
		"received_data": received,
		"model_loaded":  s.service.Handle().Loaded(),
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"error":               "Endpoint not found",
		"available_endpoints": Endpoints(),
	})
}
