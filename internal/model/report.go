package model

import "time"

// Signal is a diagnostic entry with transparent scoring data
type Signal struct {
	Type        SignalType     `json:"type"`           // Signal classification
	Severity    SignalSeverity `json:"severity"`       // info, warning, critical
	Description string         `json:"description"`    // Human-readable description
	Data        map[string]any `json:"data,omitempty"` // Formula inputs and outputs
}

// SignalType classifies the type of diagnostic signal
type SignalType string

const (
	SignalItemCount      SignalType = "item_count"      // Base points from the number of items
	SignalDomainQuality  SignalType = "domain_quality"  // Reputable / social link bonus
	SignalAttachments    SignalType = "attachments"     // Screenshot / file bonus
	SignalExternalSignal SignalType = "external_signal" // Linked intelligence signal bonus
	SignalClamped        SignalType = "clamped"         // Sum exceeded the maximum
)

// SignalSeverity indicates the importance of the signal
type SignalSeverity string

const (
	SeverityInfo     SignalSeverity = "info"
	SeverityWarning  SignalSeverity = "warning"
	SeverityCritical SignalSeverity = "critical"
)

// Principles documents which core principles were applied
type Principles struct {
	NonNormative bool `json:"non_normative"` // Scores structure, never truth
	Transparent  bool `json:"transparent"`   // All scoring explainable
	Symmetric    bool `json:"symmetric"`     // Same rules for every author
}

// DefaultPrinciples returns the standard principles
func DefaultPrinciples() Principles {
	return Principles{
		NonNormative: true,
		Transparent:  true,
		Symmetric:    true,
	}
}

// EvidenceReport is the transparent result of scoring a bundle
type EvidenceReport struct {
	Items      []EvidenceItem `json:"items"` // Validated, classified and ordered
	Score      EvidenceScore  `json:"score"`
	Principles Principles     `json:"principles"`
	ScoredAt   time.Time      `json:"scored_at"`
}
