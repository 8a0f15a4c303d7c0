package server

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/dicomtk/conquestdb/internal/common/httpx"
	"github.com/dicomtk/conquestdb/internal/conquest/rebuild"
	"github.com/dicomtk/conquestdb/internal/conquest/summary"
)

var validate = validator.New()

type SummaryRsp struct {
	Patients []summary.PatientSummary `json:"patients"`
}

func (s *CatalogServer) getSummary(w http.ResponseWriter, r *http.Request) {
	summaries, err := summary.SeriesSummary(r.Context(), s.catalog, r.URL.Query().Get("orderby"))
	if err != nil {
		httpx.SendError(w, err)
		return
	}
	httpx.SendJsonRsp(r.Context(), w, http.StatusOK, &SummaryRsp{Patients: summaries})
}

type QueryReq struct {
	Query string `json:"query" validate:"required"`
	Args  []any  `json:"args"`
}

type QueryRsp struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

func (s *CatalogServer) postQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryReq
	if err := httpx.GetRequestData(r, &req); err != nil {
		httpx.ErrUnableToParseReqData().Send(w)
		return
	}
	if err := validate.Struct(&req); err != nil {
		httpx.ErrUnableToParseReqData().Send(w)
		return
	}
	rows, cols, aerr := s.catalog.Query(r.Context(), req.Query, req.Args...)
	if aerr != nil {
		httpx.SendError(w, aerr)
		return
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	httpx.SendJsonRsp(r.Context(), w, http.StatusOK, &QueryRsp{Columns: cols, Rows: rows})
}

type RebuildReq struct {
	Patient string `json:"patient"`
	Force   bool   `json:"force"`
}

type RebuildRsp struct {
	Patients        int `json:"patients"`
	PatientsSkipped int `json:"patientsSkipped"`
	Processed       int `json:"processed"`
	Skipped         int `json:"skipped"`
	Failed          int `json:"failed"`
}

func (s *CatalogServer) postRebuild(w http.ResponseWriter, r *http.Request) {
	var req RebuildReq
	if err := httpx.GetRequestData(r, &req); err != nil {
		httpx.ErrUnableToParseReqData().Send(w)
		return
	}
	opts := rebuild.Options{Patient: req.Patient}
	if req.Force {
		opts.Policy = rebuild.Force
	}
	log.Ctx(r.Context()).Info().Str("patient", req.Patient).Bool("force", req.Force).
		Msg("rebuild requested")
	res, aerr := s.pipeline.Rebuild(r.Context(), opts)
	if aerr != nil {
		httpx.SendError(w, aerr)
		return
	}
	httpx.SendJsonRsp(r.Context(), w, http.StatusOK, &RebuildRsp{
		Patients:        res.Patients,
		PatientsSkipped: res.PatientsSkipped,
		Processed:       res.Processed,
		Skipped:         res.Skipped,
		Failed:          res.Failed,
	})
}
