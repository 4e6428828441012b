package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/antoniostano/brandstudio/internal/assets"
	"github.com/antoniostano/brandstudio/internal/autosave"
	"github.com/antoniostano/brandstudio/internal/tasks"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 25 * time.Second
)

type snapshotMessage struct {
	Type          string                 `json:"type"`
	Tasks         []tasks.BackgroundTask `json:"tasks"`
	Notifications []tasks.Notification   `json:"notifications"`
	Autosave      *autosave.Snapshot     `json:"autosave,omitempty"`
	At            time.Time              `json:"at"`
}

type autosaveMessage struct {
	Type     string            `json:"type"`
	Autosave autosave.Snapshot `json:"autosave"`
	At       time.Time         `json:"at"`
}

type assetsMessage struct {
	Type       string    `json:"type"`
	DocumentID string    `json:"documentId,omitempty"`
	At         time.Time `json:"at"`
}

// handleEventsWS streams task, notification, autosave and asset changes.
// The socket is write-only from the server's side; inbound frames are read
// only to notice the client going away.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if !s.runtimeAvailable(w) {
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	taskEvents, unsubscribeTasks := s.runtime.Registry().Subscribe()
	defer unsubscribeTasks()
	noteEvents, unsubscribeNotes := s.runtime.Notifications().Subscribe()
	defer unsubscribeNotes()

	var statuses <-chan autosave.Status
	if s.autosave != nil {
		ch, unsubscribe := s.autosave.SubscribeStatus()
		defer unsubscribe()
		statuses = ch
	}
	var docs <-chan *assets.Document
	if s.assets != nil {
		ch, unsubscribe := s.assets.Subscribe()
		defer unsubscribe()
		docs = ch
	}

	go func() {
		defer cancel()
		conn.SetReadLimit(4 << 10)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			s.metrics.ObserveWSMessage("inbound", "ignored")
		}
	}()

	snapshot := snapshotMessage{
		Type:          "snapshot",
		Tasks:         s.runtime.Registry().List(),
		Notifications: s.runtime.Notifications().List(),
		At:            time.Now().UTC(),
	}
	if s.autosave != nil {
		st := s.autosave.Snapshot()
		snapshot.Autosave = &st
	}
	if err := s.writeWS(conn, snapshot.Type, snapshot); err != nil {
		return
	}

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()
	for {
		var err error
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			err = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
		case evt, ok := <-taskEvents:
			if !ok {
				return
			}
			err = s.writeWS(conn, string(evt.Type), evt)
		case evt, ok := <-noteEvents:
			if !ok {
				return
			}
			err = s.writeWS(conn, string(evt.Type), evt)
		case _, ok := <-statuses:
			if !ok {
				return
			}
			err = s.writeWS(conn, "autosave_status", autosaveMessage{
				Type:     "autosave_status",
				Autosave: s.autosave.Snapshot(),
				At:       time.Now().UTC(),
			})
		case doc, ok := <-docs:
			if !ok {
				return
			}
			msg := assetsMessage{Type: "assets_changed", At: time.Now().UTC()}
			if doc != nil {
				msg.DocumentID = doc.ID
			}
			err = s.writeWS(conn, msg.Type, msg)
		}
		if err != nil {
			s.logger.Debug("event stream closed", "error", err)
			return
		}
	}
}

func (s *Server) writeWS(conn *websocket.Conn, msgType string, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(v); err != nil {
		return err
	}
	s.metrics.ObserveWSMessage("outbound", msgType)
	return nil
}
