package store

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"
)

// Counts summarises the stored passes.
type Counts struct {
	Passes       int `json:"passes"`
	FailedPasses int `json:"failed_passes"`
	Associations int `json:"associations"`
}

// Counts returns the number of stored passes and associations.
func (s *Store) Counts() (Counts, error) {
	var st Counts
	err := s.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM recovery_passes),
			(SELECT COUNT(*) FROM recovery_passes WHERE status = 'failed'),
			(SELECT COUNT(*) FROM recovery_associations)`).Scan(&st.Passes, &st.FailedPasses, &st.Associations)
	if err != nil {
		return Counts{}, fmt.Errorf("query store stats: %w", err)
	}
	return st, nil
}

// AttachAdminRoutes mounts the debug pages for the pass database on mux:
// a live SQL console under /debug/tailsql/ and JSON counts at
// /debug/db-stats. label names the database in the console.
func (s *Store) AttachAdminRoutes(mux *http.ServeMux, label string) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+label, s.DB, &tailsql.DBOptions{
		Label: "Track recovery passes",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("db-stats", "Stored pass and association counts", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st, err := s.Counts()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(st); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}))
	return nil
}
