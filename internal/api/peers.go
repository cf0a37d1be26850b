package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nerrad567/tcplink/internal/peer"
)

// PeerView is one peer session in API responses.
type PeerView struct {
	ID             string   `json:"id"`
	Seq            uint64   `json:"seq"`
	Remote         string   `json:"remote"`
	ConnectedAt    string   `json:"connected_at"`
	DisconnectedAt string   `json:"disconnected_at,omitempty"`
	Topics         []string `json:"topics"`
	Live           bool     `json:"live"`
}

func viewOfRecord(r *peer.Record) PeerView {
	topics := r.Topics()
	if topics == nil {
		topics = []string{}
	}
	return PeerView{
		ID:          r.ID.String(),
		Seq:         r.Seq,
		Remote:      r.Remote.String(),
		ConnectedAt: r.ConnectedAt.UTC().Format(time.RFC3339Nano),
		Topics:      topics,
		Live:        true,
	}
}

func viewOfSession(sess *peer.Session) PeerView {
	v := PeerView{
		ID:          sess.ID,
		Seq:         sess.Seq,
		Remote:      sess.Remote,
		ConnectedAt: sess.ConnectedAt.UTC().Format(time.RFC3339Nano),
		Topics:      sess.Topics,
	}
	if sess.DisconnectedAt != nil {
		v.DisconnectedAt = sess.DisconnectedAt.UTC().Format(time.RFC3339Nano)
	}
	return v
}

// handleListPeers lists connected peers in connection order.
func (s *Server) handleListPeers(w http.ResponseWriter, _ *http.Request) {
	if s.peers == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "peer server not running")
		return
	}
	records := s.peers.Records()
	views := make([]PeerView, len(records))
	for i, r := range records {
		views[i] = viewOfRecord(r)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"peers": views,
		"count": len(views),
	})
}

// handleGetPeer returns a live peer, or its stored session once it has left.
func (s *Server) handleGetPeer(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, "invalid peer id")
		return
	}

	if s.peers != nil {
		if rec, ok := s.peers.Get(id); ok {
			writeJSON(w, http.StatusOK, viewOfRecord(rec))
			return
		}
	}
	if s.sessions == nil {
		writeNotFound(w, "peer not found")
		return
	}

	sess, err := s.sessions.GetSession(r.Context(), id.String())
	if errors.Is(err, peer.ErrSessionNotFound) {
		writeNotFound(w, "peer not found")
		return
	}
	if err != nil {
		s.logger.Error("loading peer session", "id", id.String(), "error", err)
		writeInternalError(w, "loading peer session failed")
		return
	}
	writeJSON(w, http.StatusOK, viewOfSession(sess))
}
