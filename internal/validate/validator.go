package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ppiankov/verdict/internal/model"
)

// resolutionSchema describes the resolution documents accepted by the CLI
const resolutionSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["outcome"],
  "additionalProperties": false,
  "properties": {
    "claim_id": {"type": "string", "minLength": 1},
    "outcome": {"type": "string", "enum": ["correct", "incorrect", "invalid"]},
    "grade": {"type": "string", "enum": ["A", "B", "C", "D"]},
    "evidence": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type"],
        "additionalProperties": false,
        "properties": {
          "index": {"type": "integer", "minimum": 0},
          "type": {"type": "string", "enum": ["link", "screenshot", "file", "signal"]},
          "url": {"type": "string"},
          "domain": {"type": "string", "enum": ["reputable", "social", "unknown"]},
          "signal_id": {"type": "string"}
        }
      }
    }
  }
}`

const resolutionSchemaURL = "https://verdict.schemas.local/resolution.schema.json"

// ResolutionInput is a decoded resolution document
type ResolutionInput struct {
	ClaimID  string               `json:"claim_id,omitempty"`
	Outcome  string               `json:"outcome"`
	Grade    string               `json:"grade,omitempty"`
	Evidence []model.EvidenceItem `json:"evidence,omitempty"`
}

// Validator checks resolution input structurally before any state is touched
type Validator struct {
	classifier *DomainClassifier
	schema     *jsonschema.Schema
}

// NewValidator creates a validator using authConfig for domain classification
func NewValidator(authConfig *model.AuthorityConfig) (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(resolutionSchemaURL, strings.NewReader(resolutionSchema)); err != nil {
		return nil, fmt.Errorf("resolution schema load failed: %w", err)
	}
	compiled, err := c.Compile(resolutionSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("resolution schema compile failed: %w", err)
	}

	return &Validator{
		classifier: NewDomainClassifier(authConfig),
		schema:     compiled,
	}, nil
}

// Classifier returns the domain classifier used for links
func (v *Validator) Classifier() *DomainClassifier {
	return v.classifier
}

// DecodeResolution validates a JSON resolution document against the schema and decodes it
func (v *Validator) DecodeResolution(data []byte) (*ResolutionInput, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, model.ErrInvalidEvidence.WithMessage("resolution document is not valid JSON").Wrap(err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return nil, model.ErrInvalidEvidence.WithMessage("resolution document failed schema validation").Wrap(err)
	}

	var in ResolutionInput
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, model.ErrInvalidEvidence.WithMessage("decode resolution document").Wrap(err)
	}
	return &in, nil
}

// Evidence validates and normalizes evidence items.
//
// Items are ordered by index (positions are assigned when every index is zero),
// link items must carry an absolute http(s) URL, empty domain classes are derived
// from the URL, and repeated URLs or signal ids are dropped.
func (v *Validator) Evidence(items []model.EvidenceItem) ([]model.EvidenceItem, error) {
	out := make([]model.EvidenceItem, 0, len(items))
	if len(items) == 0 {
		return out, nil
	}

	assignPositions := true
	for _, item := range items {
		if item.Index != 0 {
			assignPositions = false
			break
		}
	}

	seenIndex := make(map[int]bool, len(items))
	seenRef := make(map[string]bool, len(items))

	for pos, item := range items {
		if assignPositions {
			item.Index = pos
		}
		if item.Index < 0 {
			return nil, model.Errorf(model.ErrInvalidEvidence, "evidence item %d: negative index", pos)
		}
		if seenIndex[item.Index] {
			return nil, model.Errorf(model.ErrInvalidEvidence, "evidence item %d: duplicate index %d", pos, item.Index)
		}
		seenIndex[item.Index] = true

		t, err := model.ParseItemType(string(item.Type))
		if err != nil {
			return nil, model.Errorf(model.ErrInvalidEvidence, "evidence item %d: unknown type %q", pos, item.Type)
		}
		item.Type = t

		if t == model.ItemLink {
			if err := checkLinkURL(item.URL); err != nil {
				return nil, model.Errorf(model.ErrInvalidEvidence, "evidence item %d: %v", pos, err)
			}
		}
		if t == model.ItemSignal && item.SignalID == "" && item.URL == "" {
			return nil, model.Errorf(model.ErrInvalidEvidence, "evidence item %d: signal items need a signal_id or url", pos)
		}

		switch item.Domain {
		case "":
			if item.URL != "" {
				item.Domain = v.classifier.Classify(item.URL)
			} else {
				item.Domain = model.DomainUnknown
			}
		case model.DomainReputable, model.DomainSocial, model.DomainUnknown:
		default:
			return nil, model.Errorf(model.ErrInvalidEvidence, "evidence item %d: unknown domain class %q", pos, item.Domain)
		}

		if ref := itemRef(item); ref != "" {
			if seenRef[ref] {
				continue
			}
			seenRef[ref] = true
		}

		out = append(out, item)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

// itemRef identifies an item for de-duplication; attachments without a URL are never duplicates
func itemRef(item model.EvidenceItem) string {
	switch {
	case item.SignalID != "":
		return "signal:" + item.SignalID
	case item.URL != "":
		return "url:" + strings.TrimSuffix(strings.ToLower(strings.TrimSpace(item.URL)), "/")
	default:
		return ""
	}
}

func checkLinkURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("link without url")
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("unparseable url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url has no host")
	}
	return nil
}

// Resolution parses and validates the outcome and optional grade of a submission
func Resolution(outcome, grade string) (model.Outcome, model.Grade, error) {
	o, err := model.ParseOutcome(outcome)
	if err != nil {
		return "", "", err
	}
	if strings.TrimSpace(grade) == "" {
		return o, "", nil
	}
	g, err := model.ParseGrade(grade)
	if err != nil {
		return "", "", err
	}
	return o, g, nil
}
