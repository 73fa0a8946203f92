package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/kwv/claimmesh/claims"
)

type worldSummary struct {
	Name    string `json:"name"`
	Regions int    `json:"regions"`
}

type groupsResponse struct {
	World  string         `json:"world"`
	Groups []claims.Group `json:"groups"`
}

type namesResponse struct {
	World   string   `json:"world"`
	Name    string   `json:"name"`
	Regions []string `json:"regions"`
}

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(host claims.Host, merger *claims.ForceMerger, names *claims.NameIndex) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] /health request from %s", r.RemoteAddr)
		status := struct {
			Status    string    `json:"status"`
			Timestamp time.Time `json:"timestamp"`
			Worlds    int       `json:"worlds"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			Worlds:    len(host.Worlds()),
		}
		writeJSON(w, http.StatusOK, status)
	})

	mux.HandleFunc("GET /worlds", func(w http.ResponseWriter, r *http.Request) {
		out := []worldSummary{}
		for _, name := range host.Worlds() {
			ws, err := host.World(name)
			if err != nil {
				log.Printf("[HTTP] /worlds: %v", err)
				continue
			}
			out = append(out, worldSummary{Name: name, Regions: len(ws.Regions())})
		}
		writeJSON(w, http.StatusOK, out)
	})

	// Dry run of a force-merge
	mux.HandleFunc("GET /worlds/{world}/groups", func(w http.ResponseWriter, r *http.Request) {
		world := r.PathValue("world")
		groups, err := merger.Preview(world)
		if err != nil {
			writeError(w, err)
			return
		}
		if groups == nil {
			groups = []claims.Group{}
		}
		writeJSON(w, http.StatusOK, groupsResponse{World: world, Groups: groups})
	})

	mux.HandleFunc("GET /worlds/{world}/regions.geojson", func(w http.ResponseWriter, r *http.Request) {
		ws, err := host.World(r.PathValue("world"))
		if err != nil {
			writeError(w, err)
			return
		}
		data, err := claims.WorldFeatureCollection(ws).MarshalJSON()
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		w.Header().Set("Cache-Control", "no-cache")
		if _, err := w.Write(data); err != nil {
			log.Printf("[HTTP] writing geojson: %v", err)
		}
	})

	mux.HandleFunc("GET /names/{world}/{name}", func(w http.ResponseWriter, r *http.Request) {
		world, name := r.PathValue("world"), r.PathValue("name")
		if _, err := host.World(world); err != nil {
			writeError(w, err)
			return
		}
		ids := names.Lookup(world, name)
		if len(ids) == 0 {
			http.Error(w, "no region named "+name, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, namesResponse{World: world, Name: name, Regions: ids})
	})

	mux.HandleFunc("POST /admin/forcemerge", func(w http.ResponseWriter, r *http.Request) {
		world := r.URL.Query().Get("world")
		if world == "" {
			http.Error(w, "missing world parameter", http.StatusBadRequest)
			return
		}
		log.Printf("[HTTP] force-merge of %s requested by %s", world, r.RemoteAddr)
		report, err := merger.Run(world)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] encoding response: %v", err)
	}
}

// writeError maps engine errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	var worldErr *claims.InvalidWorldError
	if errors.As(err, &worldErr) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	log.Printf("[HTTP] error: %v", err)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
