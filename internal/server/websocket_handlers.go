package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1 << 20,
	WriteBufferSize: 1 << 16,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsRequest is the first message a streaming client sends: a batch of
// inputs sharing one set of processing options.
type wsRequest struct {
	Files                     []string `json:"files"`
	UseDocOrientationClassify bool     `json:"useDocOrientationClassify"`
	UseDocUnwarping           bool     `json:"useDocUnwarping"`
	UseTextlineOrientation    bool     `json:"useTextlineOrientation"`
	TextDetThresh             float64  `json:"textDetThresh"`
	TextDetBoxThresh          float64  `json:"textDetBoxThresh"`
	TextDetUnclipRatio        float64  `json:"textDetUnclipRatio"`
	TextRecScoreThresh        float64  `json:"textRecScoreThresh"`
}

// wsMessage is one streamed completion. Index is the position of the
// input in the request; results are sent in no particular order (neither
// input order nor completion order).
type wsMessage struct {
	Index    int           `json:"index"`
	Done     bool          `json:"done"`
	ErrorMsg string        `json:"errorMsg,omitempty"`
	Result   OCRResultJSON `json:"result"`
}

// wsOCRHandler streams batch OCR results over a websocket one message
// per input, instead of holding the reply for the whole batch. Results
// are awaited one task at a time, so a finished task can wait behind a
// slower one.
func (s *Server) wsOCRHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	var req wsRequest
	if err := conn.ReadJSON(&req); err != nil {
		_ = conn.WriteJSON(wsMessage{ErrorMsg: "Invalid request: " + err.Error(), Done: true})
		return
	}
	if len(req.Files) == 0 {
		_ = conn.WriteJSON(wsMessage{ErrorMsg: "No files provided", Done: true})
		return
	}

	base := NewOCRRequest()
	base.UseDocOrientationClassify = req.UseDocOrientationClassify
	base.UseDocUnwarping = req.UseDocUnwarping
	base.UseTextlineOrientation = req.UseTextlineOrientation
	if req.TextDetThresh > 0 {
		base.TextDetThresh = req.TextDetThresh
	}
	if req.TextDetBoxThresh > 0 {
		base.TextDetBoxThresh = req.TextDetBoxThresh
	}
	if req.TextDetUnclipRatio > 0 {
		base.TextDetUnclipRatio = req.TextDetUnclipRatio
	}
	if req.TextRecScoreThresh > 0 {
		base.TextRecScoreThresh = req.TextRecScoreThresh
	}
	cfg := base.TaskConfig()

	// Submit everything first so the scheduler can overlap the batch,
	// then stream each id's result once waiting on it returns.
	ids := make(map[uint64]int, len(req.Files))
	for i, file := range req.Files {
		img, err := DecodeInputImage(file, s.downloadConfig())
		if err != nil {
			_ = conn.WriteJSON(wsMessage{Index: i, ErrorMsg: err.Error()})
			continue
		}
		ctx, cancel := s.submitContext()
		id, err := s.coordinator.Submit(ctx, img, cfg)
		cancel()
		if err != nil {
			_ = conn.WriteJSON(wsMessage{Index: i, ErrorMsg: err.Error()})
			continue
		}
		ids[id] = i
	}

	deadline := time.Now().Add(s.cfg.RequestTimeout * time.Duration(len(req.Files)+1))
	for id, idx := range ids {
		timeout := time.Until(deadline)
		if timeout <= 0 {
			_ = conn.WriteJSON(wsMessage{Index: idx, ErrorMsg: "timed out"})
			continue
		}
		result, err := s.coordinator.Wait(id, timeout)
		switch {
		case err != nil:
			_ = conn.WriteJSON(wsMessage{Index: idx, ErrorMsg: err.Error()})
		case result.Failed():
			_ = conn.WriteJSON(wsMessage{Index: idx, ErrorMsg: result.Err.Error()})
		default:
			_ = conn.WriteJSON(wsMessage{Index: idx, Result: resultToJSON(result, "")})
		}
	}
	_ = conn.WriteJSON(wsMessage{Done: true})
}
