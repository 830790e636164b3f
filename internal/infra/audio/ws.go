package audio

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"voicechat/internal/domain"
)

const wsWriteTimeout = 10 * time.Second

type wsError struct {
	Detail string `json:"detail"`
	Status int    `json:"status"`
}

// handleWebSocket runs one turn per binary message. Text messages name the
// clip that follows (e.g. "clip.webm") so the transcriber sees the right
// extension.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(s.cfg.MaxUploadBytes)
	s.logger.Info("websocket client connected", "remote_addr", r.RemoteAddr)

	filename := "clip.wav"
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("websocket read", "error", err)
			}
			return
		}

		if messageType == websocket.TextMessage {
			if name := string(data); name != "" {
				filename = name
			}
			continue
		}

		result, err := s.runner.Run(r.Context(), domain.BytesInput(filename, data))
		if err != nil {
			status, detail := describeError(err)
			if err := s.writeWS(conn, func() error {
				return conn.WriteJSON(wsError{Detail: detail, Status: status})
			}); err != nil {
				return
			}
			continue
		}

		if err := s.writeWS(conn, func() error {
			return conn.WriteMessage(websocket.BinaryMessage, result.Audio)
		}); err != nil {
			return
		}
	}
}

func (s *Server) writeWS(conn *websocket.Conn, write func() error) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := write(); err != nil {
		s.logger.Warn("websocket write", "error", err)
		return fmt.Errorf("writing websocket message: %w", err)
	}
	return nil
}
