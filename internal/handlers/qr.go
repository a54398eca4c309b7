package handlers

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/yeqown/go-qrcode/v2"
	"github.com/yeqown/go-qrcode/writer/standard"

	"suljari/internal/apperr"
)

// RoomQR renders the join link for a room as a PNG QR code. Host screens
// show it next to the room code.
func (h *Handler) RoomQR(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	if _, err := h.rooms.Get(r.Context(), roomID); err != nil {
		h.respondErr(w, r, err)
		return
	}

	joinURL := fmt.Sprintf("%s://%s/join?roomId=%s", scheme(r), r.Host, roomID)
	png, err := generateQRCode(joinURL)
	if err != nil {
		h.respondErr(w, r, apperr.Internal(err))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(png); err != nil {
		h.log.Debugw("qr write failed", "roomId", roomID, "error", err)
	}
}

func scheme(r *http.Request) string {
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

// generateQRCode encodes url as a PNG with medium error correction.
func generateQRCode(url string) ([]byte, error) {
	qrc, err := qrcode.NewWith(url,
		qrcode.WithErrorCorrectionLevel(qrcode.ErrorCorrectionMedium),
		qrcode.WithEncodingMode(qrcode.EncModeByte),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create QR code: %w", err)
	}

	var buf bytes.Buffer
	wr := standard.NewWithWriter(nopCloser{&buf},
		standard.WithBuiltinImageEncoder(standard.PNG_FORMAT),
		standard.WithQRWidth(8),
	)
	if err := qrc.Save(wr); err != nil {
		return nil, fmt.Errorf("failed to save QR code: %w", err)
	}
	return buf.Bytes(), nil
}

// nopCloser adapts the buffer to the writer's io.WriteCloser contract.
type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
