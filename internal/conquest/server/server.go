// Package server provides the HTTP admin surface of the catalog: version
// and readiness probes, the series summary, free-form catalog queries and
// rebuild triggering.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/dicomtk/conquestdb/internal/common/httpx"
	"github.com/dicomtk/conquestdb/internal/common/middleware"
	"github.com/dicomtk/conquestdb/internal/conquest/rebuild"
	"github.com/dicomtk/conquestdb/internal/conquest/store"
)

// CatalogServer is the HTTP server over one open catalog.
type CatalogServer struct {
	Router   *chi.Mux
	catalog  *store.Catalog
	pipeline *rebuild.Pipeline
}

func CreateNewServer(c *store.Catalog, dataRoot string) *CatalogServer {
	return &CatalogServer{
		Router:   chi.NewRouter(),
		catalog:  c,
		pipeline: rebuild.New(c, dataRoot),
	}
}

// MountHandlers sets up middleware and all resource endpoints.
func (s *CatalogServer) MountHandlers() {
	s.Router.Use(middleware.RequestLogger)
	s.Router.Use(middleware.PanicHandler)
	s.Router.Get("/version", s.getVersion)
	s.Router.Get("/ready", s.getReadiness)
	s.Router.Get("/summary", s.getSummary)
	s.Router.Post("/query", s.postQuery)
	s.Router.Post("/rebuild", s.postRebuild)
}

type GetVersionRsp struct {
	ServerVersion string `json:"serverVersion"`
}

func (s *CatalogServer) getVersion(w http.ResponseWriter, r *http.Request) {
	log.Ctx(r.Context()).Debug().Msg("GetVersion")
	httpx.SendJsonRsp(r.Context(), w, http.StatusOK, &GetVersionRsp{
		ServerVersion: "Conquest Catalog Server: " + Version,
	})
}

func (s *CatalogServer) getReadiness(w http.ResponseWriter, r *http.Request) {
	log.Ctx(r.Context()).Debug().Msg("Readiness check")
	httpx.SendJsonRsp(r.Context(), w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
