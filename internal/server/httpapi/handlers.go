package httpapi

import (
	"net/http"
	"time"

	"github.com/and161185/passby/internal/model"
)

func (s *Server) handleRegisterToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
		// accepted for client compatibility, never used
		RequestedExpiry *time.Time `json:"requested_expiry,omitempty"`
	}
	if err := decode(r, w, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	exp, err := s.svc.Registry.Issue(r.Context(), callerID(r), req.Token)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"expires_at": exp})
}

type observationResponse struct {
	Status       model.ObservationStatus `json:"status"`
	Resolved     bool                    `json:"resolved"`
	Mutual       bool                    `json:"mutual"`
	MatchCreated *bool                   `json:"match_created,omitempty"`
}

func (s *Server) handleObserve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ObservedToken string     `json:"observed_token"`
		RSSI          int        `json:"rssi"`
		Timestamp     *time.Time `json:"timestamp,omitempty"`
	}
	if err := decode(r, w, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	res := s.svc.Observer.Observe(r.Context(), model.Observation{
		Reporter:   callerID(r),
		Token:      req.ObservedToken,
		RSSI:       req.RSSI,
		ClientTime: req.Timestamp,
	})
	out := observationResponse{Status: res.Status, Resolved: res.Resolved, Mutual: res.Mutual}
	if res.Status == model.StatusConfirmed {
		mc := res.MatchCreated
		out.MatchCreated = &mc
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleReportDirect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PeerID string `json:"peer_id"`
	}
	if err := decode(r, w, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	peer, err := parseID(req.PeerID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	matched, err := s.svc.Ledger.ReportDirect(r.Context(), callerID(r), peer)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]bool{"match_created": matched})
}

type encounterView struct {
	PeerID            string    `json:"peer_id"`
	LastEncounteredAt time.Time `json:"last_encountered_at"`
	OccurrenceCount   int64     `json:"occurrence_count"`
	IsFriend          bool      `json:"is_friend"`
}

func (s *Server) handleListRecent(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Ledger.ListRecent(r.Context(), callerID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]encounterView, 0, len(list))
	for _, e := range list {
		out = append(out, encounterView{
			PeerID:            e.PeerID.String(),
			LastEncounteredAt: e.LastEncounteredAt,
			OccurrenceCount:   e.OccurrenceCount,
			IsFriend:          e.IsFriend,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLike(w http.ResponseWriter, r *http.Request) {
	target, err := pathUserID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	matched, err := s.svc.Graph.Like(r.Context(), callerID(r), target)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]bool{"match_created": matched})
}

func (s *Server) handleUnlike(w http.ResponseWriter, r *http.Request) {
	target, err := pathUserID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.svc.Graph.Unlike(r.Context(), callerID(r), target); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	target, err := pathUserID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.svc.Graph.Block(r.Context(), callerID(r), target); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleUnblock(w http.ResponseWriter, r *http.Request) {
	target, err := pathUserID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.svc.Graph.Unblock(r.Context(), callerID(r), target); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type friendView struct {
	PeerID            string     `json:"peer_id"`
	MatchedAt         time.Time  `json:"matched_at"`
	LastEncounteredAt *time.Time `json:"last_encountered_at,omitempty"`
	OccurrenceCount   int64      `json:"occurrence_count"`
}

func (s *Server) handleListFriends(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Graph.ListFriends(r.Context(), callerID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]friendView, 0, len(list))
	for _, f := range list {
		out = append(out, friendView{
			PeerID:            f.PeerID.String(),
			MatchedAt:         f.MatchedAt,
			LastEncounteredAt: f.LastEncounteredAt,
			OccurrenceCount:   f.OccurrenceCount,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type blockedView struct {
	PeerID    string    `json:"peer_id"`
	BlockedAt time.Time `json:"blocked_at"`
}

func (s *Server) handleListBlocked(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Graph.ListBlocked(r.Context(), callerID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]blockedView, 0, len(list))
	for _, b := range list {
		out = append(out, blockedView{PeerID: b.PeerID.String(), BlockedAt: b.BlockedAt})
	}
	writeJSON(w, http.StatusOK, out)
}
