package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/plasma-match/internal/blood"
	"github.com/example/plasma-match/internal/config"
	"github.com/example/plasma-match/internal/dispatch"
	"github.com/example/plasma-match/internal/fraud"
	"github.com/example/plasma-match/internal/geo"
	"github.com/example/plasma-match/internal/ingest"
	"github.com/example/plasma-match/internal/ledger"
	"github.com/example/plasma-match/internal/logging"
	"github.com/example/plasma-match/internal/matcher"
	"github.com/example/plasma-match/internal/models"
	"github.com/example/plasma-match/internal/observability"
	"github.com/example/plasma-match/internal/payments"
	"github.com/example/plasma-match/internal/scoring"
	"github.com/example/plasma-match/internal/storage"
)

type Server struct {
	Geo        geo.Geo
	Store      storage.DonorStore
	Matcher    *matcher.Service
	Ledger     ledger.Ledger
	Dispatcher *dispatch.Auto
	Kafka      *ingest.KafkaProducer
	WSReg      *dispatch.WSRegistry
	Payments   *payments.StripeClient

	cfg    config.ServerConfig
	logger *slog.Logger
	mux    *mux.Router
}

func NewServerFromEnv() *Server {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("config load", "error", err)
	}

	var ggeo geo.Geo
	if cfg.RedisAddr != "" {
		ggeo = geo.NewRedisGeo(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
	} else {
		ggeo = geo.NewIndex()
	}

	var store storage.DonorStore
	if cfg.PGDSN != "" {
		if ps, err := storage.NewPostgresStore(cfg.PGDSN); err == nil {
			store = ps
		} else {
			logger.Warn("postgres donor store unavailable, using memory", "error", err)
		}
	}
	if store == nil {
		store = storage.NewMemoryStore()
	}

	var led ledger.Ledger
	if cfg.PGDSN != "" {
		if pl, err := ledger.NewPostgres(cfg.PGDSN, cfg.LedgerCooldown); err == nil {
			led = pl
		} else {
			logger.Warn("postgres ledger unavailable, using memory", "error", err)
		}
	}
	if led == nil {
		led = ledger.NewMemory(cfg.LedgerCooldown)
	}

	var kp *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		kp = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	}

	var ext scoring.External
	if cfg.ScorerURL != "" {
		ext = scoring.NewHTTPScorer(cfg.ScorerURL, cfg.ScorerTimeout)
	}

	var gate fraud.Gate = fraud.StaticGate{}
	if cfg.FraudURL != "" {
		gate = fraud.NewHTTPGate(cfg.FraudURL, logger)
	}

	wsreg := dispatch.NewWSRegistry()
	auto := &dispatch.Auto{
		Ledger:   led,
		Gate:     gate,
		Notifier: dispatch.NewPushNotifier(cfg.PushURL, wsreg),
		Logger:   logger,
	}

	var pay *payments.StripeClient
	if os.Getenv("STRIPE_API_KEY") != "" {
		pay = payments.NewStripeClient()
	}

	s := &Server{
		Geo:        ggeo,
		Store:      store,
		Matcher:    matcher.NewService(ext),
		Ledger:     led,
		Dispatcher: auto,
		Kafka:      kp,
		WSReg:      wsreg,
		Payments:   pay,
		cfg:        cfg,
		logger:     logger,
		mux:        mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/search", s.handleSearch).Methods("POST")
	s.mux.HandleFunc("/api/v1/search/dispatch", s.handleSearchDispatch).Methods("POST")
	s.mux.HandleFunc("/api/v1/requests/respond", s.handleRespond).Methods("POST")
	s.mux.HandleFunc("/internal/donor/status", s.handleDonorStatus).Methods("POST")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{donor_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

type searchPayload struct {
	RequesterID string       `json:"requester_id"`
	BloodType   string       `json:"blood_type"`
	Loc         models.Coord `json:"loc"`
	RadiusKm    float64      `json:"radius_km"`
	MaxMatches  int          `json:"max_matches"`
	TopN        int          `json:"top_n"`
}

func (p searchPayload) toRequest(cfg config.ServerConfig) matcher.Request {
	req := matcher.Request{
		Requester:  models.Requester{ID: p.RequesterID, BloodType: p.BloodType, Loc: p.Loc},
		RadiusKm:   p.RadiusKm,
		MaxMatches: p.MaxMatches,
	}
	if req.RadiusKm == 0 {
		req.RadiusKm = cfg.SearchRadiusKm
	}
	if req.MaxMatches == 0 {
		req.MaxMatches = cfg.MaxMatches
	}
	return req
}

type searchResponse struct {
	Matches    []models.Match           `json:"matches"`
	Reason     models.SearchReason      `json:"reason"`
	Dispatched []models.DispatchOutcome `json:"dispatched,omitempty"`
	Blocked    bool                     `json:"blocked_by_fraud_gate,omitempty"`
}

func (s *Server) runSearch(ctx context.Context, p searchPayload) (matcher.Result, matcher.Request, error) {
	req := p.toRequest(s.cfg)
	candidates := s.candidates(ctx, req)
	start := time.Now()
	res, err := s.Matcher.FindMatches(ctx, req, candidates)
	observability.SearchLatency.Observe(time.Since(start).Seconds())
	return res, req, err
}

// candidates pulls the coarse donor set: the geo index does the radius
// pre-cut when present, the store serves the full snapshot otherwise.
func (s *Server) candidates(ctx context.Context, req matcher.Request) []models.Donor {
	if s.Geo != nil {
		// over-fetch so the compatibility filter still has material
		return s.Geo.Nearby(req.Requester.Loc.Lat, req.Requester.Loc.Lng, req.RadiusKm, req.MaxMatches*10)
	}
	donors, err := s.Store.FetchCandidates(ctx)
	if err != nil {
		s.logger.Error("fetch candidates", "error", err)
		return nil
	}
	return donors
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var p searchPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, _, err := s.runSearch(r.Context(), p)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, searchResponse{Matches: res.Matches, Reason: res.Reason})
}

func (s *Server) handleSearchDispatch(w http.ResponseWriter, r *http.Request) {
	var p searchPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if p.RequesterID == "" {
		http.Error(w, "requester_id is required for dispatch", http.StatusBadRequest)
		return
	}
	res, req, err := s.runSearch(r.Context(), p)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	topN := p.TopN
	if topN == 0 {
		topN = s.cfg.DispatchTopN
	}
	out, err := s.Dispatcher.Dispatch(r.Context(), req.Requester, res.Matches, topN)
	if err != nil {
		s.logger.Error("dispatch", "error", err)
		http.Error(w, "dispatch failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, searchResponse{Matches: res.Matches, Reason: res.Reason, Dispatched: out.Dispatched, Blocked: out.Blocked})
}

type respondPayload struct {
	RequesterID string `json:"requester_id"`
	DonorID     string `json:"donor_id"`
	Outcome     string `json:"outcome"` // accepted | rejected
}

func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	var p respondPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	outcome := models.LedgerStatus(p.Outcome)
	if outcome != models.StatusAccepted && outcome != models.StatusRejected {
		http.Error(w, "outcome must be accepted or rejected", http.StatusBadRequest)
		return
	}
	entry, err := s.Ledger.Resolve(r.Context(), p.RequesterID, p.DonorID, outcome)
	if errors.Is(err, ledger.ErrNotFound) {
		http.Error(w, "no live pending request for pair", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("resolve", "error", err)
		http.Error(w, "resolve failed", http.StatusInternalServerError)
		return
	}
	if outcome == models.StatusAccepted && s.Payments != nil {
		// compensation hold is best effort; the acceptance already stands
		if _, err := s.Payments.HoldCompensation(r.Context(), compensationCents, "usd", ""); err != nil {
			s.logger.Warn("compensation hold failed", "donor_id", p.DonorID, "error", err)
		}
	}
	writeJSON(w, entry)
}

const compensationCents = 5000

func (s *Server) handleDonorStatus(w http.ResponseWriter, r *http.Request) {
	var u models.StatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := blood.Parse(u.BloodType); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if u.LastActive.IsZero() {
		u.LastActive = time.Now()
	}
	// publish to kafka if configured; the consumer applies it to the geo index
	if s.Kafka != nil {
		if err := s.Kafka.PublishStatus(u); err != nil {
			s.logger.Warn("kafka publish", "error", err)
		}
	}
	d := models.Donor{ID: u.ID, BloodType: u.BloodType, Loc: u.Loc, Available: u.Available, LastActive: u.LastActive}
	if s.Geo != nil {
		s.Geo.Upsert(d)
	}
	if err := s.Store.UpsertDonor(r.Context(), d); err != nil {
		s.logger.Warn("donor upsert", "error", err)
	}
	if u.Available {
		observability.DonorsAvailable.Inc()
	}
	w.WriteHeader(http.StatusNoContent)
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["donor_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	s.WSReg.Add(id, conn)
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, matcher.ErrInvalidArgument),
		errors.Is(err, matcher.ErrInvalidLocation),
		errors.Is(err, blood.ErrInvalidBloodType):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "request cancelled", 499)
	default:
		http.Error(w, "search failed", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
