package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/deepx-ocr/dxocr/internal/detector"
	"github.com/deepx-ocr/dxocr/internal/pipeline"
	"github.com/deepx-ocr/dxocr/internal/recognizer"
	"github.com/deepx-ocr/dxocr/internal/testutil"
	"github.com/deepx-ocr/dxocr/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDetector struct {
	boxes int
}

func (s *stubDetector) Detect(_ context.Context, _ image.Image, _ detector.Overrides) ([]detector.TextBox, error) {
	out := make([]detector.TextBox, 0, s.boxes)
	for i := range s.boxes {
		out = append(out, detector.TextBox{
			Quad: utils.Quad{
				{10, float64(10 + i*25)}, {90, float64(10 + i*25)},
				{90, float64(25 + i*25)}, {10, float64(25 + i*25)},
			},
			Score: 0.9,
		})
	}
	return out, nil
}

type stubRecognizer struct {
	text string
	conf float64
}

func (s *stubRecognizer) Recognize(_ context.Context, _ image.Image) (recognizer.Result, error) {
	return recognizer.Result{Text: s.text, Confidence: s.conf}, nil
}

func newTestServer(t *testing.T, boxes int) *Server {
	t.Helper()
	pipe := &pipeline.Pipeline{
		Detector:   &stubDetector{boxes: boxes},
		Recognizer: &stubRecognizer{text: "HELLO", conf: 0.95},
	}
	cfg := DefaultConfig()
	cfg.RequestTimeout = 5 * time.Second
	cfg.VisOutputDir = t.TempDir()
	srv := NewWithPipeline(cfg, pipe)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv
}

func pngBase64(t *testing.T, w, h int) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testutil.NewWhiteImage(w, h)))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func postOCR(t *testing.T, srv *Server, body string, auth string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/ocr", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) OCRResponse {
	t.Helper()
	var resp OCRResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestOCRRequiresAuth(t *testing.T) {
	srv := newTestServer(t, 1)

	rec := postOCR(t, srv, `{"file":"abc"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, CodeUnauthorized, resp.ErrorCode)
	assert.Equal(t, "Missing or invalid Authorization token", resp.ErrorMsg)

	rec = postOCR(t, srv, `{"file":"abc"}`, "Bearer sometoken")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOCRInvalidJSON(t *testing.T) {
	srv := newTestServer(t, 1)
	rec := postOCR(t, srv, `{not json`, "token secret")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, CodeInvalidParameter, resp.ErrorCode)
	assert.Contains(t, resp.ErrorMsg, "Invalid JSON")
}

func TestOCRValidationMessages(t *testing.T) {
	srv := newTestServer(t, 1)
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"missing file", `{}`, "Missing required parameter: 'file'"},
		{"det thresh", `{"file":"x","textDetThresh":1.5}`, "textDetThresh must be in range [0.0, 1.0]"},
		{"det box thresh", `{"file":"x","textDetBoxThresh":-0.1}`, "textDetBoxThresh must be in range [0.0, 1.0]"},
		{"unclip low", `{"file":"x","textDetUnclipRatio":0.9}`, "textDetUnclipRatio must be in range [1.0, 3.0]"},
		{"unclip high", `{"file":"x","textDetUnclipRatio":3.5}`, "textDetUnclipRatio must be in range [1.0, 3.0]"},
		{"rec thresh", `{"file":"x","textRecScoreThresh":2}`, "textRecScoreThresh must be in range [0.0, 1.0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postOCR(t, srv, tt.body, "token secret")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decodeResponse(t, rec)
			assert.Equal(t, CodeInvalidParameter, resp.ErrorCode)
			assert.Equal(t, tt.wantMsg, resp.ErrorMsg)
		})
	}
}

func TestOCRInvalidFileType(t *testing.T) {
	srv := newTestServer(t, 1)
	rec := postOCR(t, srv, `{"file":"x","fileType":7}`, "token secret")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Contains(t, resp.ErrorMsg, "Invalid fileType")
}

func TestOCRImageSuccess(t *testing.T) {
	srv := newTestServer(t, 2)
	body, err := json.Marshal(map[string]any{"file": pngBase64(t, 200, 100)})
	require.NoError(t, err)

	rec := postOCR(t, srv, string(body), "token secret")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeResponse(t, rec)
	assert.Zero(t, resp.ErrorCode)
	require.Len(t, resp.OCRResults, 1)
	assert.Equal(t, []string{"HELLO", "HELLO"}, resp.OCRResults[0].Texts)
	require.Len(t, resp.OCRResults[0].Scores, 2)
	assert.InDelta(t, 0.95, resp.OCRResults[0].Scores[0], 1e-9)
	require.Len(t, resp.OCRResults[0].Boxes, 2)
	assert.Empty(t, resp.OCRResults[0].VisualizationURL)
}

func TestOCRImageWithVisualization(t *testing.T) {
	srv := newTestServer(t, 1)
	body, err := json.Marshal(map[string]any{
		"file":      pngBase64(t, 200, 100),
		"visualize": true,
	})
	require.NoError(t, err)

	rec := postOCR(t, srv, string(body), "token secret")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	require.Len(t, resp.OCRResults, 1)
	assert.True(t, strings.HasPrefix(resp.OCRResults[0].VisualizationURL, "/static/vis/"),
		"got %q", resp.OCRResults[0].VisualizationURL)
}

func TestOCRScoreThresholdFiltersAll(t *testing.T) {
	srv := newTestServer(t, 3)
	body, err := json.Marshal(map[string]any{
		"file":               pngBase64(t, 200, 100),
		"textRecScoreThresh": 0.99,
	})
	require.NoError(t, err)

	rec := postOCR(t, srv, string(body), "token secret")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	require.Len(t, resp.OCRResults, 1)
	assert.Empty(t, resp.OCRResults[0].Texts)
}

func TestOCRBadBase64(t *testing.T) {
	srv := newTestServer(t, 1)
	rec := postOCR(t, srv, `{"file":"!!!not-base64!!!"}`, "token secret")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, CodeDecodeError, resp.ErrorCode)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, 0)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.NotEmpty(t, resp.Time)
}

func TestStaticVisRejectsTraversal(t *testing.T) {
	srv := newTestServer(t, 0)
	for _, path := range []string{
		"/static/vis/../secrets.txt",
		"/static/vis/..%2Fsecrets.txt",
		"/static/vis/",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.Routes().ServeHTTP(rec, req)
		assert.NotEqual(t, http.StatusOK, rec.Code, "path %s", path)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, 0)
	req := httptest.NewRequest(http.MethodGet, "/ocr", nil)
	req.Header.Set("Authorization", "token x")
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAuthTokenMatch(t *testing.T) {
	pipe := &pipeline.Pipeline{
		Detector:   &stubDetector{boxes: 0},
		Recognizer: &stubRecognizer{text: "x", conf: 0.9},
	}
	cfg := DefaultConfig()
	cfg.AuthToken = "expected"
	cfg.RequestTimeout = 5 * time.Second
	srv := NewWithPipeline(cfg, pipe)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	body, err := json.Marshal(map[string]any{"file": pngBase64(t, 64, 64)})
	require.NoError(t, err)

	rec := postOCR(t, srv, string(body), "token wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postOCR(t, srv, string(body), "token expected")
	assert.Equal(t, http.StatusOK, rec.Code)
}
