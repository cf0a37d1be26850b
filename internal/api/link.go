package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/nerrad567/tcplink/internal/link"
)

// LinkStatus is the response body of GET /link.
type LinkStatus struct {
	State     string    `json:"state"`
	Connected bool      `json:"connected"`
	Addresses []string  `json:"addresses"`
	Port      int       `json:"port"`
	Remote    string    `json:"remote,omitempty"`
	Local     string    `json:"local,omitempty"`
	Stats     LinkStats `json:"stats"`
}

// LinkStats mirrors link.Stats for JSON.
type LinkStats struct {
	Retries           int    `json:"retries"`
	Connects          uint64 `json:"connects"`
	ConnectFailures   uint64 `json:"connect_failures"`
	PermanentFailures uint64 `json:"permanent_failures"`
	Closes            uint64 `json:"closes"`
	ReconnectRequests uint64 `json:"reconnect_requests"`
	BytesReceived     uint64 `json:"bytes_received"`
	BytesSent         uint64 `json:"bytes_sent"`
	MessagesReceived  uint64 `json:"messages_received"`
	SendsQueued       uint64 `json:"sends_queued"`
	WriteErrors       uint64 `json:"write_errors"`
	ReadErrors        uint64 `json:"read_errors"`
	LastActivity      string `json:"last_activity,omitempty"`
}

type sendRequest struct {
	Message *string `json:"message"`
}

type subscribeRequest struct {
	Topic string `json:"topic"`
}

type publishRequest struct {
	Topic   string `json:"topic"`
	Message string `json:"message"`
}

// linkStatus snapshots the link client.
func (s *Server) linkStatus() LinkStatus {
	st := s.link.Stats()

	addrs := s.link.Addresses()
	status := LinkStatus{
		State:     st.State.String(),
		Connected: st.State == link.StateConnected,
		Addresses: make([]string, len(addrs)),
		Port:      s.link.Port(),
		Stats: LinkStats{
			Retries:           st.Retries,
			Connects:          st.Connects,
			ConnectFailures:   st.ConnectFailures,
			PermanentFailures: st.PermanentFailures,
			Closes:            st.Closes,
			ReconnectRequests: st.ReconnectRequests,
			BytesReceived:     st.BytesReceived,
			BytesSent:         st.BytesSent,
			MessagesReceived:  st.MessagesReceived,
			SendsQueued:       st.SendsQueued,
			WriteErrors:       st.WriteErrors,
			ReadErrors:        st.ReadErrors,
		},
	}
	for i, a := range addrs {
		status.Addresses[i] = a.String()
	}
	if status.Connected {
		if ap := s.link.RemoteEndpoint(); ap.IsValid() {
			status.Remote = ap.String()
		}
		if ap := s.link.LocalEndpoint(); ap.IsValid() {
			status.Local = ap.String()
		}
	}
	if !st.LastActivity.IsZero() {
		status.Stats.LastActivity = st.LastActivity.UTC().Format(time.RFC3339Nano)
	}
	return status
}

func (s *Server) handleGetLink(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.linkStatus())
}

// handleConnect starts a connect cycle. The outcome arrives as events.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("link connect requested", "subject", claimsFrom(r.Context()).Subject)
	s.link.Connect()
	writeJSON(w, http.StatusAccepted, s.linkStatus())
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("link close requested", "subject", claimsFrom(r.Context()).Subject)
	s.link.Close()
	writeJSON(w, http.StatusOK, s.linkStatus())
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Message == nil {
		writeBadRequest(w, "message is required")
		return
	}
	s.writeSendResult(w, s.link.SendString(*req.Message))
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Topic == "" {
		writeBadRequest(w, "topic is required")
		return
	}
	s.writeSendResult(w, s.link.Subscribe(req.Topic))
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Topic == "" {
		writeBadRequest(w, "topic is required")
		return
	}
	s.writeSendResult(w, s.link.Publish(req.Topic, req.Message))
}

// writeSendResult maps a link write error onto a response.
func (s *Server) writeSendResult(w http.ResponseWriter, err error) {
	if err == nil {
		writeJSON(w, http.StatusAccepted, map[string]any{"queued": true})
		return
	}
	status, code, ok := linkErrorStatus(err)
	if !ok {
		s.logger.Error("link send failed", "error", err)
		writeInternalError(w, "send failed")
		return
	}
	writeError(w, status, code, err.Error())
}
