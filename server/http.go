package server

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"github.com/wfunc/tugofwar/logger"
)

const qrSize = 320

// Handler returns the HTTP surface: the websocket endpoint plus a few
// operational routes.
func (s *GameServer) Handler() http.Handler {
	mux := httprouter.New()

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, v any) {
		logger.Log.Errorf("Panic serving %s: %v", r.URL.Path, v)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}

	mux.GET("/ws", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		s.handleWebSocket(w, r)
	})
	mux.GET("/healthz", s.serveHealthCheck)
	mux.GET("/version", serveVersion)
	mux.GET("/rooms/:roomid/qr", s.serveRoomQR)

	return mux
}

type healthReply struct {
	Status   string `json:"status"`
	Rooms    int    `json:"rooms"`
	Sessions int    `json:"sessions"`
}

func (s *GameServer) serveHealthCheck(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthReply{
		Status:   "ok",
		Rooms:    s.roomManager.Count(),
		Sessions: s.sessionManager.Count(),
	})
}

func serveVersion(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("tugofwar " + Version + "\n"))
}

// serveRoomQR renders a PNG QR code of the join link for a live room.
func (s *GameServer) serveRoomQR(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	roomID := ps.ByName("roomid")
	if _, ok := s.roomManager.GetRoom(roomID); !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	link := url.URL{
		Scheme:   scheme,
		Host:     r.Host,
		Path:     "/",
		RawQuery: url.Values{"room": {roomID}}.Encode(),
	}

	png, err := qrcode.Encode(link.String(), qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}
