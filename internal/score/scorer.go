package score

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ppiankov/verdict/internal/cache"
	"github.com/ppiankov/verdict/internal/canonical"
	"github.com/ppiankov/verdict/internal/model"
)

// Scorer grades evidence bundles from structural signals only
type Scorer struct {
	config model.ScoringConfig
	cache  cache.Cache
	ttl    time.Duration
}

// Option configures a Scorer
type Option func(*Scorer)

// WithCache memoizes results in c for ttl (0 uses the cache default)
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *Scorer) {
		s.cache = c
		s.ttl = ttl
	}
}

// NewScorer creates a new scorer; nil config uses the defaults
func NewScorer(config *model.ScoringConfig, opts ...Option) *Scorer {
	if config == nil {
		config = &model.DefaultConfig().Scoring
	}
	s := &Scorer{config: *config}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score computes the evidence score, tier and grade of a bundle.
// Input is assumed validated; duplicates are counted as given.
func (s *Scorer) Score(items []model.EvidenceItem) model.EvidenceScore {
	key := s.cacheKey(items)
	if key != "" {
		if data, ok := s.cache.Get(key); ok {
			var cached model.EvidenceScore
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached
			}
		}
	}

	result := s.calculate(items)

	if key != "" {
		if data, err := json.Marshal(result); err == nil {
			_ = s.cache.Set(key, data, s.ttl)
		}
	}
	return result
}

func (s *Scorer) calculate(items []model.EvidenceItem) model.EvidenceScore {
	if len(items) == 0 {
		grade, multiplier := s.lowestGrade()
		return model.EvidenceScore{
			Score:      0,
			Tier:       s.TierFor(0),
			Grade:      grade,
			Multiplier: multiplier,
			Items:      0,
			Signals: []model.Signal{{
				Type:        model.SignalItemCount,
				Severity:    model.SeverityCritical,
				Description: "No evidence submitted",
				Data:        map[string]any{"items": 0, "score": 0},
			}},
		}
	}

	var signals []model.Signal

	// 1. Base points from item count
	base, baseSignal := s.calculateBase(len(items))
	signals = append(signals, baseSignal)

	// 2. Domain quality of links
	domainPoints, domainSignal := s.calculateDomainQuality(items)
	signals = append(signals, domainSignal)

	// 3. Screenshots and files
	attachPoints, attachSignal := s.calculateAttachments(items)
	signals = append(signals, attachSignal)

	// 4. Linked intelligence signals
	signalPoints, externalSignal := s.calculateExternalSignals(items)
	signals = append(signals, externalSignal)

	raw := base + domainPoints + attachPoints + signalPoints
	total := raw
	if total > s.config.MaxScore {
		total = s.config.MaxScore
		signals = append(signals, model.Signal{
			Type:        model.SignalClamped,
			Severity:    model.SeverityInfo,
			Description: fmt.Sprintf("Raw score %d clamped to %d", raw, s.config.MaxScore),
			Data: map[string]any{
				"raw":   raw,
				"score": total,
			},
		})
	}
	if total < 0 {
		total = 0
	}

	grade, multiplier := s.GradeFor(total)

	return model.EvidenceScore{
		Score:      total,
		Tier:       s.TierFor(total),
		Grade:      grade,
		Multiplier: multiplier,
		Items:      len(items),
		Signals:    signals,
	}
}

// calculateBase calculates base points from the item count
func (s *Scorer) calculateBase(n int) (int, model.Signal) {
	points := n * s.config.PerItem
	if points > s.config.BaseCap {
		points = s.config.BaseCap
	}

	severity := model.SeverityInfo
	if n < 2 {
		severity = model.SeverityWarning
	}

	return points, model.Signal{
		Type:        model.SignalItemCount,
		Severity:    severity,
		Description: fmt.Sprintf("%d evidence items", n),
		Data: map[string]any{
			"items":   n,
			"score":   points,
			"formula": fmt.Sprintf("min(items * %d, %d)", s.config.PerItem, s.config.BaseCap),
		},
	}
}

// calculateDomainQuality adds bonuses for reputable and social links
func (s *Scorer) calculateDomainQuality(items []model.EvidenceItem) (int, model.Signal) {
	reputable := 0
	social := 0
	for _, item := range items {
		switch item.Domain {
		case model.DomainReputable:
			reputable++
		case model.DomainSocial:
			social++
		}
	}

	points := reputable*s.config.ReputableBonus + social*s.config.SocialBonus

	severity := model.SeverityInfo
	if reputable == 0 {
		severity = model.SeverityWarning
	}

	return points, model.Signal{
		Type:        model.SignalDomainQuality,
		Severity:    severity,
		Description: fmt.Sprintf("Sources: %d reputable, %d social", reputable, social),
		Data: map[string]any{
			"reputable": reputable,
			"social":    social,
			"score":     points,
			"formula":   fmt.Sprintf("reputable * %d + social * %d", s.config.ReputableBonus, s.config.SocialBonus),
		},
	}
}

// calculateAttachments adds bonuses for screenshots and files
func (s *Scorer) calculateAttachments(items []model.EvidenceItem) (int, model.Signal) {
	count := 0
	for _, item := range items {
		if item.Type.IsAttachment() {
			count++
		}
	}
	points := count * s.config.AttachmentBonus

	return points, model.Signal{
		Type:        model.SignalAttachments,
		Severity:    model.SeverityInfo,
		Description: fmt.Sprintf("%d screenshots or files", count),
		Data: map[string]any{
			"attachments": count,
			"score":       points,
			"formula":     fmt.Sprintf("attachments * %d", s.config.AttachmentBonus),
		},
	}
}

// calculateExternalSignals adds bonuses for items linked to an intelligence signal
func (s *Scorer) calculateExternalSignals(items []model.EvidenceItem) (int, model.Signal) {
	count := 0
	for _, item := range items {
		if item.LinkedToSignal() {
			count++
		}
	}
	points := count * s.config.SignalBonus

	return points, model.Signal{
		Type:        model.SignalExternalSignal,
		Severity:    model.SeverityInfo,
		Description: fmt.Sprintf("%d items linked to external signals", count),
		Data: map[string]any{
			"linked":  count,
			"score":   points,
			"formula": fmt.Sprintf("linked * %d", s.config.SignalBonus),
		},
	}
}

// TierFor maps a score onto the tier table
func (s *Scorer) TierFor(score int) model.Tier {
	for _, t := range s.config.Tiers {
		if score >= t.MinScore {
			return t.Tier
		}
	}
	return model.TierUnverified
}

// GradeFor maps a score onto the grade table
func (s *Scorer) GradeFor(score int) (model.Grade, float64) {
	for _, g := range s.config.Grades {
		if score >= g.MinScore {
			return g.Grade, g.Multiplier
		}
	}
	return s.lowestGrade()
}

// Multiplier returns the configured multiplier for a grade
func (s *Scorer) Multiplier(grade model.Grade) (float64, bool) {
	for _, g := range s.config.Grades {
		if g.Grade == grade {
			return g.Multiplier, true
		}
	}
	return 0, false
}

func (s *Scorer) lowestGrade() (model.Grade, float64) {
	if n := len(s.config.Grades); n > 0 {
		return s.config.Grades[n-1].Grade, s.config.Grades[n-1].Multiplier
	}
	return model.GradeD, 0
}

func (s *Scorer) cacheKey(items []model.EvidenceItem) string {
	if s.cache == nil {
		return ""
	}
	data, err := canonical.JSON(struct {
		Config model.ScoringConfig  `json:"config"`
		Items  []model.EvidenceItem `json:"items"`
	}{s.config, items})
	if err != nil {
		return ""
	}
	return cache.Key("score", data)
}
