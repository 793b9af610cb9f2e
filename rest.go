package authsync

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

// statusResponse is the body of GET /v1/status.
type statusResponse struct {
	Running  bool `json:"running"`
	Sessions int  `json:"sessions"`
	Groups   int  `json:"groups"`
	Records  int  `json:"records"`
}

// groupSummary is one element of GET /v1/groups.
type groupSummary struct {
	GroupID uint32 `json:"group_id"`
	Members int    `json:"members"`
	Records int    `json:"records"`
}

// recordView is the JSON shape of an authorization record. Remaining is
// computed at render time, like on the wire.
type recordView struct {
	MAC       string `json:"mac"`
	Attr      uint16 `json:"attr"`
	GroupID   uint32 `json:"group_id"`
	Remaining uint32 `json:"remaining"`
}

func newRecordView(rec AuthRecord, now time.Time) recordView {
	return recordView{
		MAC:       rec.MAC,
		Attr:      rec.Attr,
		GroupID:   rec.GroupID,
		Remaining: rec.Remaining(now),
	}
}

// NewRESTHandler returns the read-only introspection API for a server:
//
//	GET /v1/status
//	GET /v1/groups
//	GET /v1/groups/{gid}/records
//	GET /v1/groups/{gid}/records/{mac}
//	GET /metrics
func NewRESTHandler(s *Server) http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/v1/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, statusResponse{
			Running:  s.IsRunning(),
			Sessions: s.SessionCount(),
			Groups:   s.Registry().Count(),
			Records:  s.Store().Len(),
		})
	}).Methods(http.MethodGet)

	router.HandleFunc("/v1/groups", func(w http.ResponseWriter, r *http.Request) {
		ids := s.Registry().GroupIDs()
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		groups := make([]groupSummary, 0, len(ids))
		for _, gid := range ids {
			group, ok := s.Registry().Get(gid)
			if !ok {
				continue
			}
			groups = append(groups, groupSummary{
				GroupID: gid,
				Members: group.MemberCount(),
				Records: len(group.Records()),
			})
		}
		writeJSON(w, http.StatusOK, groups)
	}).Methods(http.MethodGet)

	router.HandleFunc("/v1/groups/{gid}/records", func(w http.ResponseWriter, r *http.Request) {
		gid, ok := parseGroupID(w, r)
		if !ok {
			return
		}

		group, found := s.Registry().Get(gid)
		if !found {
			http.Error(w, "group not found", http.StatusNotFound)
			return
		}

		now := time.Now()
		records := group.Records()
		views := make([]recordView, 0, len(records))
		for _, rec := range records {
			views = append(views, newRecordView(rec, now))
		}
		sort.Slice(views, func(i, j int) bool { return views[i].MAC < views[j].MAC })
		writeJSON(w, http.StatusOK, views)
	}).Methods(http.MethodGet)

	router.HandleFunc("/v1/groups/{gid}/records/{mac}", func(w http.ResponseWriter, r *http.Request) {
		gid, ok := parseGroupID(w, r)
		if !ok {
			return
		}

		mac := mux.Vars(r)["mac"]
		rec, found := s.Store().Lookup(gid, mac)
		if !found {
			http.Error(w, "record not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, newRecordView(rec, time.Now()))
	}).Methods(http.MethodGet)

	router.Handle("/metrics", s.Metrics().Handler()).Methods(http.MethodGet)

	return router
}

func parseGroupID(w http.ResponseWriter, r *http.Request) (uint32, bool) {
	gid, err := strconv.ParseUint(mux.Vars(r)["gid"], 10, 32)
	if err != nil {
		http.Error(w, "invalid group id", http.StatusBadRequest)
		return 0, false
	}
	return uint32(gid), true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
