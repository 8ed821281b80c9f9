package db

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/obstacle.report/internal/monitoring"
)

// AttachAdminRoutes mounts the debugging endpoints under /debug/ on mux:
// live SQL access to the engine database and an on-demand backup download.
// These routes are for the operator network only; the caller is responsible
// for not exposing mux publicly.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://obstacle.db", db.DB, &tailsql.DBOptions{
		Label: "Obstacle DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backupPath := fmt.Sprintf("backup-%d.db", time.Now().Unix())
		if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		defer func() {
			if err := os.Remove(backupPath); err != nil {
				monitoring.Logf("failed to remove backup file: %v", err)
			}
		}()

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		http.ServeFile(w, r, backupPath)
	}))

	return nil
}
