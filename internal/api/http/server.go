package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	catalogerrors "github.com/kepler-soc/kic/internal/errors"
	"github.com/kepler-soc/kic/internal/kic"
	"github.com/kepler-soc/kic/internal/query/planner"
	"github.com/kepler-soc/kic/internal/spatial"
	"github.com/kepler-soc/kic/pkg/types"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Options configures the HTTP server.
type Options struct {
	// DefaultLimit applies to queries that set no limit; 0 means unlimited.
	DefaultLimit int

	// StatsTop is the number of columns reported by /v1/stats by default.
	StatsTop int
}

// Server exposes a catalog service over HTTP.
type Server struct {
	service  *kic.Service
	opts     Options
	validate *validator.Validate
	router   chi.Router
}

// NewServer builds the router for svc.
func NewServer(svc *kic.Service, opts Options) *Server {
	if opts.StatsTop <= 0 {
		opts.StatsTop = 10
	}
	s := &Server{
		service:  svc,
		opts:     opts,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(AccessLog)
	r.Use(Recover)

	r.Get("/health", s.health)
	if m := svc.Metrics(); m != nil {
		r.Handle("/metrics", m.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(JSONContentType)
		r.Post("/kics/query", s.query)
		r.Post("/kics/lookup", s.lookup)
		r.Get("/kics/{id}", s.getKic)
		r.Get("/kics/{id}/nearby", s.nearbyKic)
		r.Get("/skygroups/resolve", s.resolveSkyGroup)
		r.Get("/skygroups/{id}/nearby", s.nearbySkyGroup)
		r.Post("/skygroups/{id}/invalidate", s.invalidateSkyGroup)
		r.Get("/stats", s.stats)
	})
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// SkyGroupSpec selects a sky group by CCD channel and season.
type SkyGroupSpec struct {
	CCDModule       int `json:"ccd_module" validate:"gte=0"`
	CCDOutput       int `json:"ccd_output" validate:"gte=0"`
	ObservingSeason int `json:"observing_season" validate:"gte=0"`
}

// ConstraintSpec is one structured constraint.
type ConstraintSpec struct {
	Conjunction string `json:"conjunction" validate:"omitempty,oneof=AND OR and or"`
	Column      string `json:"column" validate:"required"`
	Operator    string `json:"operator" validate:"required"`
	Value       string `json:"value"`
}

// SortSpec orders query results.
type SortSpec struct {
	Column     string `json:"column" validate:"required"`
	Descending bool   `json:"descending"`
}

// QueryRequest is the body of POST /v1/kics/query. Exactly one of
// Expression and Constraints must be set.
type QueryRequest struct {
	Expression  string           `json:"expression"`
	Constraints []ConstraintSpec `json:"constraints" validate:"dive"`
	SkyGroup    *SkyGroupSpec    `json:"sky_group"`
	Sort        *SortSpec        `json:"sort"`
	Limit       int              `json:"limit" validate:"gte=0"`
}

// KicsResponse lists catalog entries.
type KicsResponse struct {
	Kics      []*types.Kic `json:"kics"`
	Count     int          `json:"count"`
	RequestID string       `json:"request_id,omitempty"`
}

// LookupRequest is the body of POST /v1/kics/lookup.
type LookupRequest struct {
	KeplerIDs []int `json:"kepler_ids" validate:"required,min=1"`
}

// IDsResponse lists Kepler ids.
type IDsResponse struct {
	KeplerIDs []int `json:"kepler_ids"`
}

func (s *Server) query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if !s.decode(w, r, &req) {
		return
	}
	if (req.Expression == "") == (len(req.Constraints) == 0) {
		s.fail(w, r, catalogerrors.InvalidArgumentf("exactly one of expression and constraints is required"))
		return
	}

	ctx := r.Context()
	preq := planner.Request{Limit: req.Limit}
	if preq.Limit == 0 {
		preq.Limit = s.opts.DefaultLimit
	}
	if req.SkyGroup != nil {
		preq.SkyGroup = &planner.SkyGroupFilter{
			CCDModule:       req.SkyGroup.CCDModule,
			CCDOutput:       req.SkyGroup.CCDOutput,
			ObservingSeason: req.SkyGroup.ObservingSeason,
		}
	}
	if req.Sort != nil {
		dir := types.Ascending
		if req.Sort.Descending {
			dir = types.Descending
		}
		preq.Sort = &types.Sort{Column: s.service.ResolveColumn(ctx, req.Sort.Column), Direction: dir}
	}

	var err error
	if req.Expression != "" {
		preq.Constraints, err = s.service.ParseConstraints(ctx, req.Expression)
	} else {
		preq.Constraints, err = s.constraints(ctx, req.Constraints)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	kics, err := s.service.Query(ctx, preq)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, KicsResponse{Kics: nonNil(kics), Count: len(kics), RequestID: RequestIDFrom(ctx)})
}

func (s *Server) constraints(ctx context.Context, specs []ConstraintSpec) ([]types.Constraint, error) {
	out := make([]types.Constraint, 0, len(specs))
	for i, spec := range specs {
		conj, err := types.ParseConjunction(spec.Conjunction)
		if err != nil {
			return nil, catalogerrors.InvalidArgumentf("constraint %d: %v", i, err)
		}
		op, err := types.ParseOperator(spec.Operator)
		if err != nil {
			return nil, catalogerrors.InvalidArgumentf("constraint %d: %v", i, err)
		}
		c, err := types.NewConstraint(conj, s.service.ResolveColumn(ctx, spec.Column), op, spec.Value)
		if err != nil {
			return nil, catalogerrors.InvalidArgumentf("constraint %d: %v", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) {
	var req LookupRequest
	if !s.decode(w, r, &req) {
		return
	}
	kics, err := s.service.RetrieveKics(r.Context(), req.KeplerIDs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, KicsResponse{Kics: kics, Count: len(kics), RequestID: RequestIDFrom(r.Context())})
}

func (s *Server) getKic(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(chi.URLParam(r, "id"), "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	k, err := s.service.RetrieveKic(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, k)
}

func (s *Server) nearbyKic(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(chi.URLParam(r, "id"), "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	width, err := floatParam(r.URL.Query().Get("width"), "width")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ids, err := s.service.RetrieveNearbyKeplerIDs(r.Context(), id, width)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, IDsResponse{KeplerIDs: ids})
}

func (s *Server) nearbySkyGroup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	skyGroupID, err := intParam(chi.URLParam(r, "id"), "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var center spatial.Position
	if center.RA, err = floatParam(q.Get("ra"), "ra"); err != nil {
		s.fail(w, r, err)
		return
	}
	if center.Dec, err = floatParam(q.Get("dec"), "dec"); err != nil {
		s.fail(w, r, err)
		return
	}
	width, err := floatParam(q.Get("width"), "width")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	exclude := 0
	if v := q.Get("exclude"); v != "" {
		if exclude, err = intParam(v, "exclude"); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	ids, err := s.service.FindNearby(r.Context(), center, exclude, skyGroupID, width)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, IDsResponse{KeplerIDs: ids})
}

func (s *Server) resolveSkyGroup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var args [3]int
	for i, name := range []string{"module", "output", "season"} {
		v, err := intParam(q.Get(name), name)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		args[i] = v
	}
	id, err := s.service.ResolveSkyGroupID(r.Context(), args[0], args[1], args[2])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, types.SkyGroup{
		SkyGroupID:      id,
		CCDModule:       args[0],
		CCDOutput:       args[1],
		ObservingSeason: args[2],
	})
}

func (s *Server) invalidateSkyGroup(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(chi.URLParam(r, "id"), "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.service.InvalidateSkyGroup(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	n := s.opts.StatsTop
	if v := r.URL.Query().Get("top"); v != "" {
		var err error
		if n, err = intParam(v, "top"); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	respond(w, http.StatusOK, s.service.Stats(n))
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Ping(r.Context()); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("health check failed")
		respond(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode reads a JSON body into dst and validates it. It writes the error
// response itself and reports whether the handler may continue.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.fail(w, r, catalogerrors.InvalidArgumentf("invalid request body: %v", err))
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		s.fail(w, r, catalogerrors.InvalidArgumentf("invalid request: %v", err))
		return false
	}
	return true
}

// fail maps err to a status code by category and writes it.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	ev := log.Ctx(r.Context()).Warn()
	if status >= http.StatusInternalServerError {
		ev = log.Ctx(r.Context()).Error()
	}
	ev.Err(err).Int("status", status).Msg("request failed")
	respondError(w, r, status, err.Error(), catalogerrors.GetCode(err))
}

// StatusFor returns the HTTP status for an error category.
func StatusFor(err error) int {
	switch catalogerrors.GetCategory(err) {
	case catalogerrors.ErrCategoryValidation:
		return http.StatusBadRequest
	case catalogerrors.ErrCategoryNotFound:
		return http.StatusNotFound
	case catalogerrors.ErrCategoryStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func intParam(v, name string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, catalogerrors.InvalidArgumentf("%s: %q is not an integer", name, v)
	}
	return n, nil
}

func floatParam(v, name string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, catalogerrors.InvalidArgumentf("%s: %q is not a number", name, v)
	}
	return f, nil
}

func nonNil(kics []*types.Kic) []*types.Kic {
	if kics == nil {
		return []*types.Kic{}
	}
	return kics
}
