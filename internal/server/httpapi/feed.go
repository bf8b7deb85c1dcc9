package httpapi

import (
	"net/http"
	"time"

	"github.com/and161185/passby/internal/model"
)

type deviceRequest struct {
	Token      string `json:"token"`
	Platform   string `json:"platform,omitempty"`
	DeviceID   string `json:"device_id,omitempty"`
	AppVersion string `json:"app_version,omitempty"`
	Locale     string `json:"locale,omitempty"`
}

func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req deviceRequest
	if err := decode(r, w, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	err := s.svc.Devices.Register(r.Context(), model.Device{
		OwnerID:    callerID(r),
		PushToken:  req.Token,
		Platform:   req.Platform,
		DeviceID:   req.DeviceID,
		AppVersion: req.AppVersion,
		Locale:     req.Locale,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	toks, err := s.svc.Devices.Tokens(r.Context(), callerID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if toks == nil {
		toks = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"tokens": toks})
}

func (s *Server) handleRemoveDevice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decode(r, w, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.svc.Devices.Remove(r.Context(), callerID(r), req.Token); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type announcementView struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	PublishedAt time.Time `json:"published_at"`
	LinkURL     *string   `json:"link_url,omitempty"`
	Importance  string    `json:"importance"`
}

func (s *Server) handleAnnouncements(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Announcements.Recent(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]announcementView, 0, len(list))
	for _, a := range list {
		out = append(out, announcementView{
			ID:          a.ID.String(),
			Title:       a.Title,
			Body:        a.Body,
			PublishedAt: a.PublishedAt,
			LinkURL:     a.LinkURL,
			Importance:  a.Importance,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
