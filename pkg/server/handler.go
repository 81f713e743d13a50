package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	kpiqerrors "github.com/Robertstar2000/TallmanDashboard-sub007/pkg/errors"
	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/query"
)

// maxBodyBytes bounds a query request body.
const maxBodyBytes = 1 << 20

// QueryRequest is the body of POST /api/query.
type QueryRequest struct {
	BackendID    string `json:"backendId"`
	Mode         string `json:"mode"`
	SQLText      string `json:"sqlText"`
	ConnectionID string `json:"connectionId,omitempty"`
	TableHint    string `json:"tableHint,omitempty"`
}

// QueryResponse is the body returned by POST /api/query.
type QueryResponse struct {
	Success bool `json:"success"`

	// Value is present, possibly null, when the result is a scalar.
	Value json.RawMessage `json:"value,omitempty"`
	Rows  []query.Row     `json:"rows,omitempty"`

	ConnectionID      string   `json:"connectionId,omitempty"`
	Partial           bool     `json:"partial,omitempty"`
	SkippedConditions []string `json:"skippedConditions,omitempty"`

	Error     string                 `json:"error,omitempty"`
	ErrorKind string                 `json:"errorKind,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Connections int    `json:"connections"`
}

// TablesResponse is the body of GET /api/tables.
type TablesResponse struct {
	Backend string   `json:"backendId"`
	Mode    string   `json:"mode"`
	Tables  []string `json:"tables"`
}

// Handler returns the router serving the API.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/health", s.getHealth).Methods("GET").Name("GetHealth")
	router.HandleFunc("/api/query", s.postQuery).Methods("POST").Name("PostQuery")
	router.HandleFunc("/api/tables", s.getTables).Methods("GET").Name("GetTables")
	router.HandleFunc("/api/connections/{id}", s.deleteConnection).Methods("DELETE").Name("DeleteConnection")
	if s.config.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}
	return router
}

// GET /health
func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Version: s.config.Version,
	}
	if s.config.Connections != nil {
		resp.Connections = s.config.Connections()
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /api/query
func (s *Server) postQuery(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer body.Close()

	var in QueryRequest
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		s.writeFailure(w, r, kpiqerrors.Wrap(err, kpiqerrors.ErrCodeBadRequest, "malformed request body").
			WithOp("Server.postQuery").
			Err())
		return
	}

	req, err := in.toRequest()
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	res := s.engine.Execute(r.Context(), req)
	resp := NewQueryResponse(res)
	writeJSON(w, kpiqerrors.HTTPStatus(res.Kind), resp)
}

func (in QueryRequest) toRequest() (query.Request, error) {
	backend, err := query.ParseBackend(in.BackendID)
	if err != nil {
		return query.Request{}, err
	}
	mode, err := query.ParseMode(in.Mode)
	if err != nil {
		return query.Request{}, err
	}
	return query.Request{
		Backend:      backend,
		Mode:         mode,
		SQL:          in.SQLText,
		ConnectionID: in.ConnectionID,
		TableHint:    in.TableHint,
	}, nil
}

// NewQueryResponse renders a result as the API body.
func NewQueryResponse(res query.Result) QueryResponse {
	if !res.Success {
		return QueryResponse{
			Error:     res.Message,
			ErrorKind: string(res.Kind),
			Details:   res.Details,
		}
	}

	resp := QueryResponse{
		Success:           true,
		ConnectionID:      res.ConnectionID,
		Partial:           res.Partial,
		SkippedConditions: res.SkippedConditions,
	}
	switch res.Shape {
	case query.ShapeRows:
		resp.Rows = res.Rows
	case query.ShapeScalar:
		b, err := json.Marshal(res.Value)
		if err != nil {
			b = []byte("null")
		}
		resp.Value = b
	}
	return resp
}

// GET /api/tables?backendId=...&mode=...
func (s *Server) getTables(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	backend, err := query.ParseBackend(q.Get("backendId"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	mode, err := query.ParseMode(q.Get("mode"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	tables, err := s.engine.Tables(r.Context(), backend, mode)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if tables == nil {
		tables = []string{}
	}
	writeJSON(w, http.StatusOK, TablesResponse{
		Backend: string(backend),
		Mode:    string(mode),
		Tables:  tables,
	})
}

// DELETE /api/connections/{id}
func (s *Server) deleteConnection(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.engine.Release(id) {
		http.Error(w, "connection not found", http.StatusNotFound)
		return
	}
	s.logger.Pool().Ctx(r.Context()).Info("connection released on request", "connection_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	res := query.Failure(err)
	s.logger.Execution().Ctx(r.Context()).Debug("request rejected",
		"path", r.URL.Path,
		"kind", string(res.Kind),
		"error", res.Message,
	)
	writeJSON(w, kpiqerrors.HTTPStatus(res.Kind), NewQueryResponse(res))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
