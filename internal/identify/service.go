package identify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/leafwise/internal/engine"
	"github.com/kalambet/leafwise/internal/plantnet"
	"github.com/kalambet/leafwise/internal/scan"
)

const (
	// DefaultMaxImageBytes is the largest decoded photo accepted.
	DefaultMaxImageBytes = 10 << 20
	// DefaultMinConfidence is the lowest recognizer score treated as a match.
	DefaultMinConfidence = 0.1

	recognizerService = "plantnet"
	enrichTimeout     = 90 * time.Second
)

var identifyTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "leafwise_identify_total",
		Help: "Identification requests by outcome.",
	},
	[]string{"outcome"},
)

// Config tunes a Service. Model names the prompt backend model. A zero
// CacheTTL disables result caching.
type Config struct {
	Model         string
	MinConfidence float64
	CacheTTL      time.Duration
	MaxImageBytes int
}

// Service implements Gateway on top of a Recognizer and a prompt Engine.
// Either may be nil.
type Service struct {
	recognizer Recognizer
	engine     engine.Engine
	cfg        Config
	cache      *cache.Cache
	logger     *slog.Logger
}

// NewService creates a Service. A recognizer that reports itself as not
// configured is treated as absent.
func NewService(rec Recognizer, eng engine.Engine, cfg Config, logger *slog.Logger) *Service {
	if c, ok := rec.(interface{ Configured() bool }); ok && !c.Configured() {
		rec = nil
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = DefaultMaxImageBytes
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = DefaultMinConfidence
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		recognizer: rec,
		engine:     eng,
		cfg:        cfg,
		logger:     logger,
	}
	if cfg.CacheTTL > 0 {
		s.cache = cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}
	return s
}

// Configured reports whether any identification source is available.
func (s *Service) Configured() bool {
	return s.recognizer != nil || s.engine != nil
}

func (s *Service) parseImage(uri string) (scan.Image, error) {
	img, err := scan.ParseImage(uri)
	if err != nil {
		return scan.Image{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if len(img.Data) > s.cfg.MaxImageBytes {
		return scan.Image{}, fmt.Errorf("%w: image is %d bytes, limit %d", ErrInvalidImage, len(img.Data), s.cfg.MaxImageBytes)
	}
	return img, nil
}

// Identify validates the photo, finds the best candidate and enriches it.
func (s *Service) Identify(ctx context.Context, req Request) (Result, error) {
	res, err := s.identify(ctx, req)
	identifyTotal.WithLabelValues(outcome(err)).Inc()
	return res, err
}

func (s *Service) identify(ctx context.Context, req Request) (Result, error) {
	img, err := s.parseImage(req.Image)
	if err != nil {
		return Result{}, err
	}
	if !s.Configured() {
		return Result{}, ErrNotConfigured
	}

	key := cacheKey(req)
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			s.logger.Debug("identify cache hit")
			return copyResult(cached.(Result)), nil
		}
	}

	res, alternates, err := s.primary(ctx, req, img)
	if err != nil {
		return Result{}, err
	}

	var related []scan.Suggestion
	complete := true
	if s.engine != nil {
		related, complete = s.enrich(ctx, img, &res)
	}
	if res.ScientificName == "" {
		res.ScientificName = res.CommonName
	}
	if res.CommonName == "" {
		res.CommonName = res.ScientificName
	}
	res.Confidence = clamp01(res.Confidence)
	res.Suggestions = NormalizeSuggestions(res.CommonName, res.ScientificName, alternates, related)

	// A partially enriched result is returned but not cached.
	if s.cache != nil && complete {
		s.cache.Set(key, copyResult(res), cache.DefaultExpiration)
	}
	s.logger.Info("plant identified", "name", res.CommonName, "scientific", res.ScientificName, "confidence", res.Confidence)
	return res, nil
}

// primary picks the plant: a user hint first, then the recognizer, then
// the prompt backend. alternates are the recognizer's runner-up species.
func (s *Service) primary(ctx context.Context, req Request, img scan.Image) (Result, []scan.Suggestion, error) {
	common := strings.TrimSpace(req.CommonNameHint)
	scientific := strings.TrimSpace(req.ScientificNameHint)
	if common != "" || scientific != "" {
		return Result{CommonName: common, ScientificName: scientific, Confidence: 1}, nil, nil
	}

	if s.recognizer != nil {
		cands, err := s.recognizer.Identify(ctx, img.MediaType, img.Data)
		if err != nil {
			return Result{}, nil, upstream(recognizerService, err)
		}
		if len(cands) == 0 || cands[0].Score < s.cfg.MinConfidence {
			return Result{}, nil, ErrNoMatch
		}
		best := cands[0]
		return Result{
			CommonName:     best.CommonName(),
			ScientificName: best.ScientificName,
			Confidence:     best.Score,
		}, candidatesToSuggestions(cands[1:]), nil
	}

	var out struct {
		CommonName     string  `json:"commonName"`
		ScientificName string  `json:"scientificName"`
		Confidence     float64 `json:"confidence"`
	}
	if err := s.chatJSON(ctx, buildIdentifyPrompt(img), identifySchema(), &out); err != nil {
		return Result{}, nil, err
	}
	if strings.TrimSpace(out.CommonName) == "" && strings.TrimSpace(out.ScientificName) == "" {
		return Result{}, nil, ErrNoMatch
	}
	if out.Confidence < s.cfg.MinConfidence {
		return Result{}, nil, ErrNoMatch
	}
	return Result{
		CommonName:     strings.TrimSpace(out.CommonName),
		ScientificName: strings.TrimSpace(out.ScientificName),
		Confidence:     out.Confidence,
	}, nil, nil
}

type details struct {
	ScientificName  string `json:"scientificName"`
	CareTips        string `json:"careTips"`
	CareSummary     string `json:"careSummary"`
	PlantType       string `json:"plantType"`
	Toxicity        string `json:"toxicity"`
	GrowthHabit     string `json:"growthHabit"`
	Origin          string `json:"origin"`
	FloweringPeriod string `json:"floweringPeriod"`
	PropagationTips string `json:"propagationTips"`
	FunFact         string `json:"funFact"`
}

// enrich fills care details into res and returns AI-suggested related
// plants. Both prompts run concurrently and are best-effort: a failure is
// logged and leaves its fields empty. complete is false if either failed.
func (s *Service) enrich(ctx context.Context, img scan.Image, res *Result) (related []scan.Suggestion, complete bool) {
	ctx, cancel := context.WithTimeout(ctx, enrichTimeout)
	defer cancel()

	var (
		d   details
		rel struct {
			Suggestions []scan.Suggestion `json:"suggestions"`
		}
		detailsFailed, relatedFailed bool
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.chatJSON(gCtx, buildDetailsPrompt(img, res.CommonName, res.ScientificName), detailsSchema(), &d); err != nil {
			s.logger.Warn("care details prompt failed", "error", err)
			d = details{}
			detailsFailed = true
		}
		return nil
	})
	g.Go(func() error {
		if err := s.chatJSON(gCtx, buildRelatedPrompt(img, res.CommonName, res.ScientificName), relatedSchema(), &rel); err != nil {
			s.logger.Warn("related plants prompt failed", "error", err)
			rel.Suggestions = nil
			relatedFailed = true
		}
		return nil
	})
	_ = g.Wait()

	if res.ScientificName == "" {
		res.ScientificName = strings.TrimSpace(d.ScientificName)
	}
	res.CareTips = d.CareTips
	res.Enrichment = scan.Enrichment{
		CareSummary:     d.CareSummary,
		PlantType:       d.PlantType,
		Toxicity:        d.Toxicity,
		GrowthHabit:     d.GrowthHabit,
		Origin:          d.Origin,
		FloweringPeriod: d.FloweringPeriod,
		PropagationTips: d.PropagationTips,
		FunFact:         d.FunFact,
	}
	return rel.Suggestions, !detailsFailed && !relatedFailed
}

// Diagnose runs a health check on the photo. It needs a prompt backend.
func (s *Service) Diagnose(ctx context.Context, image string) (Diagnosis, error) {
	img, err := s.parseImage(image)
	if err != nil {
		return Diagnosis{}, err
	}
	if s.engine == nil {
		return Diagnosis{}, ErrNotConfigured
	}

	var d Diagnosis
	if err := s.chatJSON(ctx, buildDiagnosePrompt(img), diagnoseSchema(), &d); err != nil {
		return Diagnosis{}, err
	}
	if d.Issues == nil {
		d.Issues = []Issue{}
	}
	return d, nil
}

// chatJSON runs a structured prompt and decodes the answer into out.
func (s *Service) chatJSON(ctx context.Context, msgs []engine.Message, schema *engine.Schema, out any) error {
	raw, err := s.engine.Chat(ctx, s.cfg.Model, msgs, schema)
	if err != nil {
		return upstream(s.engine.Name(), err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return upstream(s.engine.Name(), fmt.Errorf("malformed response: %w", err))
	}
	return nil
}

func candidatesToSuggestions(cands []plantnet.Candidate) []scan.Suggestion {
	out := make([]scan.Suggestion, 0, len(cands))
	for _, c := range cands {
		out = append(out, scan.Suggestion{
			CommonName:     c.CommonName(),
			ScientificName: c.ScientificName,
			Confidence:     c.Score,
		})
	}
	return out
}

func cacheKey(req Request) string {
	h := sha256.New()
	h.Write([]byte(req.Image))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(strings.TrimSpace(req.CommonNameHint))))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(strings.TrimSpace(req.ScientificNameHint))))
	return hex.EncodeToString(h.Sum(nil))
}

func copyResult(r Result) Result {
	if r.Suggestions != nil {
		r.Suggestions = append([]scan.Suggestion(nil), r.Suggestions...)
	}
	return r
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidImage):
		return "invalid_image"
	case errors.Is(err, ErrNotConfigured):
		return "not_configured"
	case errors.Is(err, ErrNoMatch):
		return "no_match"
	default:
		return "error"
	}
}
