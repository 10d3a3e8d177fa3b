// Package profile derives user profiles from TIER1/TIER2 memories. Profiles
// are never authored directly; they are a cache over what the user has
// already told us.
package profile

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/halcyon-ai/mnemo/internal/adapters/metrics"
	"github.com/halcyon-ai/mnemo/internal/adapters/redisbus"
	"github.com/halcyon-ai/mnemo/internal/domain/models"
	"github.com/halcyon-ai/mnemo/internal/ports"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	cacheTTL    = time.Hour
	deriveLimit = 100
)

type Service struct {
	memories ports.MemoryRepository
	profiles ports.ProfileRepository
	bus      ports.Bus
}

func NewService(memories ports.MemoryRepository, profiles ports.ProfileRepository, bus ports.Bus) *Service {
	return &Service{memories: memories, profiles: profiles, bus: bus}
}

// Get serves from the bus cache when possible, deriving and re-caching on a
// miss. Bus failures fall through to derivation.
func (s *Service) Get(ctx context.Context, userID string) (*models.UserProfile, error) {
	if s.bus != nil {
		if raw, err := s.bus.Get(ctx, redisbus.ProfileKey(userID)); err == nil {
			var p models.UserProfile
			if err := msgpack.Unmarshal(raw, &p); err == nil {
				return &p, nil
			}
		}
	}

	p, err := s.derive(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.profiles.Upsert(ctx, p); err != nil {
		slog.Warn("profile upsert failed", "user_id", userID, "error", err)
	}

	if s.bus != nil {
		if raw, err := msgpack.Marshal(p); err == nil {
			if err := s.bus.Set(ctx, redisbus.ProfileKey(userID), raw, cacheTTL); err != nil {
				metrics.BusErrorsTotal.Inc()
			}
		}
	}

	return p, nil
}

// Invalidate drops the cached copy. Called on every TIER1/TIER2 write.
func (s *Service) Invalidate(ctx context.Context, userID string) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Delete(ctx, redisbus.ProfileKey(userID)); err != nil {
		metrics.BusErrorsTotal.Inc()
	}
}

// derive scans TIER1/TIER2 memories for stack, domain, expertise and style
// signals.
func (s *Service) derive(ctx context.Context, userID string) (*models.UserProfile, error) {
	memories, err := s.memories.ListByTiers(ctx, userID, []models.Tier{models.Tier1, models.Tier2}, deriveLimit)
	if err != nil {
		return nil, err
	}

	p := &models.UserProfile{
		UserID:    userID,
		Expertise: models.ExpertiseIntermediate,
		Style:     models.StyleBalanced,
		UpdatedAt: time.Now(),
	}

	stack := make(map[string]bool)
	domains := make(map[string]bool)
	expertSignals, beginnerSignals := 0, 0

	for _, m := range memories {
		lower := strings.ToLower(m.Content)

		for term, canonical := range stackTerms {
			if strings.Contains(lower, term) {
				stack[canonical] = true
			}
		}
		for term, canonical := range domainTerms {
			if strings.Contains(lower, term) {
				domains[canonical] = true
			}
		}

		if expertPattern.MatchString(lower) {
			expertSignals++
		}
		if beginnerPattern.MatchString(lower) {
			beginnerSignals++
		}
		if concisePattern.MatchString(lower) {
			p.Style = models.StyleConcise
		}
		if detailedPattern.MatchString(lower) {
			p.Style = models.StyleDetailed
		}
	}

	if expertSignals > beginnerSignals && expertSignals > 0 {
		p.Expertise = models.ExpertiseExpert
	} else if beginnerSignals > expertSignals {
		p.Expertise = models.ExpertiseBeginner
	}

	for term := range stack {
		p.Stack = append(p.Stack, term)
	}
	for term := range domains {
		p.Domains = append(p.Domains, term)
	}

	return p, nil
}

var stackTerms = map[string]string{
	"golang": "Go", " go ": "Go", "python": "Python", "typescript": "TypeScript",
	"javascript": "JavaScript", "rust": "Rust", "java ": "Java",
	"postgres": "PostgreSQL", "postgresql": "PostgreSQL", "mysql": "MySQL",
	"redis": "Redis", "kafka": "Kafka", "kubernetes": "Kubernetes",
	"docker": "Docker", "terraform": "Terraform", "react": "React",
	"aws": "AWS", "gcp": "GCP", "azure": "Azure",
}

var domainTerms = map[string]string{
	"fintech": "fintech", "billing": "payments", "payment": "payments",
	"machine learning": "ml", "data pipeline": "data-engineering",
	"frontend": "frontend", "backend": "backend", "devops": "infrastructure",
	"infra": "infrastructure", "security": "security", "gaming": "gaming",
	"e-commerce": "e-commerce", "healthcare": "healthcare",
}

var (
	expertPattern   = regexp.MustCompile(`\b(?:staff|principal|senior|lead|architect|\d{2,}\s+years)\b`)
	beginnerPattern = regexp.MustCompile(`\b(?:learning|new to|beginner|just started|first time)\b`)
	concisePattern  = regexp.MustCompile(`\b(?:keep it short|be brief|concise|short answers)\b`)
	detailedPattern = regexp.MustCompile(`\b(?:explain in detail|detailed|thorough|step[ -]by[ -]step)\b`)
)
