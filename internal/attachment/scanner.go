package attachment

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// Severity levels. Content at SeverityBlock is refused.
const (
	SeverityLow   = 1
	SeverityMid   = 2
	SeverityBlock = 3
)

// ErrInjection is returned by Screen for content carrying instructions
// aimed at the model.
var ErrInjection = errors.New("content contains prompt injection")

// InjectionPattern detects one family of injection phrasing.
type InjectionPattern struct {
	Name     string
	Pattern  *regexp.Regexp
	Severity int
}

// InjectionPatterns is the built-in pattern set.
var InjectionPatterns = []InjectionPattern{
	{"Ignore Instructions", regexp.MustCompile(`(?i)\b(ignore|disregard|forget)\s+(all\s+)?(the\s+)?(previous|prior|above|earlier)\s+(instructions|rules|prompts?)`), SeverityBlock},
	{"New Instructions", regexp.MustCompile(`(?i)\b(your\s+)?new\s+instructions\b`), SeverityBlock},
	{"Role Override", regexp.MustCompile(`(?i)\b(you\s+are\s+now|act\s+as|pretend\s+to\s+be)\b`), SeverityMid},
	{"System Prompt", regexp.MustCompile(`(?i)\bsystem\s+(prompt|message)\b`), SeverityMid},
	{"Override Keyword", regexp.MustCompile(`(?i)\boverride\s+(security|restrictions|rules|safety)\b`), SeverityBlock},
	{"Bypass Attempt", regexp.MustCompile(`(?i)\b(bypass|circumvent|evade)\s+(security|restrictions|policies|filters)\b`), SeverityMid},
}

// InjectionAttempt is one match.
type InjectionAttempt struct {
	Pattern  string `json:"pattern"`
	Position int    `json:"position"`
	Severity int    `json:"severity"`
	Context  string `json:"context"`
}

// ScanResult contains the results of injection scanning.
type ScanResult struct {
	InjectionsFound []InjectionAttempt `json:"injections_found"`
	MaxSeverity     int                `json:"max_severity"`
	Safe            bool               `json:"safe"`
}

// Scanner detects prompt injection attempts in text.
type Scanner struct {
	patterns []InjectionPattern
}

// NewScanner creates a scanner with the built-in patterns.
func NewScanner() *Scanner {
	return &Scanner{patterns: InjectionPatterns}
}

// Scan analyzes text for injection patterns.
func (s *Scanner) Scan(ctx context.Context, text string) *ScanResult {
	_, span := tracer.Start(ctx, "attachment.scan")
	defer span.End()

	result := &ScanResult{InjectionsFound: []InjectionAttempt{}, Safe: true}
	for _, p := range s.patterns {
		for _, m := range p.Pattern.FindAllStringIndex(text, -1) {
			start := max(0, m[0]-50)
			end := min(len(text), m[1]+50)
			result.InjectionsFound = append(result.InjectionsFound, InjectionAttempt{
				Pattern:  p.Name,
				Position: m[0],
				Severity: p.Severity,
				Context:  text[start:end],
			})
			result.MaxSeverity = max(result.MaxSeverity, p.Severity)
			result.Safe = false
		}
	}

	span.SetAttributes(
		attribute.Int("injection.count", len(result.InjectionsFound)),
		attribute.Int("injection.max_severity", result.MaxSeverity),
	)
	return result
}

// Screen refuses text at SeverityBlock. Lower severities are logged and let
// through: interview notes legitimately mention "act as" or "system message".
func (s *Scanner) Screen(ctx context.Context, text string) error {
	res := s.Scan(ctx, text)
	if res.Safe {
		return nil
	}
	for _, a := range res.InjectionsFound {
		if a.Severity >= SeverityBlock {
			return fmt.Errorf("%w: %s", ErrInjection, a.Pattern)
		}
	}
	log.Warn().Int("matches", len(res.InjectionsFound)).Int("max_severity", res.MaxSeverity).Msg("artifact_injection_suspected")
	return nil
}
