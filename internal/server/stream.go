package server

import (
	"fmt"
	"net/http"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/glowlens/internal/capture"
	"github.com/ayusman/glowlens/internal/frame"
	"github.com/ayusman/glowlens/internal/server/api"
)

// StreamHandler serves the live camera preview of a session as MJPEG.
type StreamHandler struct {
	sessions *api.SessionHandler
	interval time.Duration
}

// NewStreamHandler creates a StreamHandler pushing at most fps frames per second.
func NewStreamHandler(sessions *api.SessionHandler, fps int) *StreamHandler {
	if fps <= 0 {
		fps = capture.DefaultFPS
	}
	return &StreamHandler{
		sessions: sessions,
		interval: time.Second / time.Duration(fps),
	}
}

// ServeHTTP streams MJPEG frames until the client disconnects. Frames are
// only sent while the session's camera is active.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.sessions.Lookup(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var last *frame.Sample
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		f, ok := sess.LatestFrame()
		if !ok || f == last {
			continue
		}
		last = f

		data, err := encodeJPEG(f)
		if err != nil {
			continue
		}

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(data))
		if _, err := w.Write(data); err != nil {
			return
		}
		fmt.Fprintf(w, "\r\n")

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

func encodeJPEG(f *frame.Sample) ([]byte, error) {
	mat, err := gocv.ImageToMatRGB(f.Image())
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	buf, err := gocv.IMEncodeWithParams(".jpg", mat, []int{gocv.IMWriteJpegQuality, 80})
	if err != nil {
		return nil, err
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	return data, nil
}
