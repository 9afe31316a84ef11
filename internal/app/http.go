package app

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chatsync/pkg/store"
)

func newHTTPServer(addr string, st *store.Store) *http.Server {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		snap := st.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":   "ok",
			"commits":  snap.Seq,
			"users":    len(snap.Users()),
			"channels": len(snap.Channels()),
			"messages": len(snap.Messages()),
		})
	}).Methods(http.MethodGet)
	return &http.Server{Addr: addr, Handler: r}
}
