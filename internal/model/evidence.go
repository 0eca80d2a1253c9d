package model

import (
	"fmt"
	"strings"
)

// EvidenceItem is one structural signal supporting a resolution
type EvidenceItem struct {
	Index    int           `json:"index"`               // Ordering within its bundle
	Type     ItemType      `json:"type"`                // link, screenshot, file, signal
	URL      string        `json:"url,omitempty"`       // Required for links
	Domain   DomainQuality `json:"domain,omitempty"`    // Classified from URL when empty
	SignalID string        `json:"signal_id,omitempty"` // Linked external intelligence signal
}

// LinkedToSignal reports whether the item is tied to an external intelligence signal
func (e EvidenceItem) LinkedToSignal() bool {
	return e.Type == ItemSignal || e.SignalID != ""
}

// ItemType classifies the kind of evidence
type ItemType string

const (
	ItemLink       ItemType = "link"
	ItemScreenshot ItemType = "screenshot"
	ItemFile       ItemType = "file"
	ItemSignal     ItemType = "signal" // Externally linked intelligence signal
)

// ParseItemType parses an evidence item type
func ParseItemType(s string) (ItemType, error) {
	switch t := ItemType(strings.ToLower(strings.TrimSpace(s))); t {
	case ItemLink, ItemScreenshot, ItemFile, ItemSignal:
		return t, nil
	default:
		return "", ErrInvalidEvidence.WithMessage(fmt.Sprintf("unknown evidence type %q", s))
	}
}

// IsAttachment reports whether the item is an uploaded artifact
func (t ItemType) IsAttachment() bool {
	return t == ItemScreenshot || t == ItemFile
}

// DomainQuality is the source classification of a link
type DomainQuality string

const (
	DomainUnknown   DomainQuality = "unknown"
	DomainReputable DomainQuality = "reputable"
	DomainSocial    DomainQuality = "social"
)

// Grade is the letter grade used to weight reputation points
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
)

// ParseGrade parses a letter grade
func ParseGrade(s string) (Grade, error) {
	switch g := Grade(strings.ToUpper(strings.TrimSpace(s))); g {
	case GradeA, GradeB, GradeC, GradeD:
		return g, nil
	default:
		return "", ErrInvalidGrade.WithMessage(fmt.Sprintf("invalid evidence grade %q: must be A, B, C or D", s))
	}
}

// Tier is the human label summarizing an evidence score
type Tier string

const (
	TierStrong     Tier = "strong"
	TierSolid      Tier = "solid"
	TierBasic      Tier = "basic"
	TierUnverified Tier = "unverified"
)

// EvidenceScore is the scorer output for one bundle
type EvidenceScore struct {
	Score      int      `json:"score"`      // 0-100
	Tier       Tier     `json:"tier"`       // strong, solid, basic, unverified
	Grade      Grade    `json:"grade"`      // A-D
	Multiplier float64  `json:"multiplier"` // Grade weight for reputation points
	Items      int      `json:"items"`
	Signals    []Signal `json:"signals,omitempty"` // Transparent scoring breakdown
}
