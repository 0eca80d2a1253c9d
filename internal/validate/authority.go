package validate

import (
	"net"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"

	"github.com/ppiankov/verdict/internal/model"
)

// DomainClassifier classifies link hosts into domain-quality classes
type DomainClassifier struct {
	reputableMap map[string]bool
	socialMap    map[string]bool
	domainMap    map[string]string
	pathPatterns []*compiledPattern
}

type compiledPattern struct {
	pattern *regexp.Regexp
	quality model.DomainQuality
}

// NewDomainClassifier creates a new classifier; nil config uses the defaults
func NewDomainClassifier(config *model.AuthorityConfig) *DomainClassifier {
	if config == nil {
		config = &model.DefaultConfig().Authority
	}

	classifier := &DomainClassifier{
		reputableMap: make(map[string]bool),
		socialMap:    make(map[string]bool),
		domainMap:    make(map[string]string, len(config.DomainMap)),
		pathPatterns: make([]*compiledPattern, 0),
	}

	for _, domain := range config.ReputableDomains {
		if name, ok := normalizeHost(domain); ok {
			classifier.reputableMap[name] = true
		}
	}
	for _, domain := range config.SocialDomains {
		if name, ok := normalizeHost(domain); ok {
			classifier.socialMap[name] = true
		}
	}
	for domain, quality := range config.DomainMap {
		if name, ok := normalizeHost(domain); ok {
			classifier.domainMap[name] = quality
		}
	}

	for _, pp := range config.PathPatterns {
		if re, err := regexp.Compile(pp.Pattern); err == nil {
			classifier.pathPatterns = append(classifier.pathPatterns, &compiledPattern{
				pattern: re,
				quality: ParseDomainQuality(pp.Quality),
			})
		}
	}

	return classifier
}

// Classify classifies a URL. Unparseable URLs are unknown.
func (d *DomainClassifier) Classify(rawURL string) model.DomainQuality {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Host == "" {
		return model.DomainUnknown
	}

	host, ok := normalizeHost(parsed.Hostname())
	if !ok {
		return model.DomainUnknown
	}
	chain := domainChain(host)

	// Explicit mappings win, most specific name first
	for _, name := range chain {
		if q, ok := d.domainMap[name]; ok {
			return ParseDomainQuality(q)
		}
	}

	if matchesDomain(chain, d.reputableMap) {
		return model.DomainReputable
	}
	if matchesDomain(chain, d.socialMap) {
		return model.DomainSocial
	}

	for _, cp := range d.pathPatterns {
		if cp.pattern.MatchString(parsed.Path) {
			return cp.quality
		}
	}

	if institutional(host) {
		return model.DomainReputable
	}

	return model.DomainUnknown
}

// normalizeHost lowercases a host and converts IDNs to their ASCII form
func normalizeHost(host string) (string, bool) {
	host = strings.TrimSuffix(strings.TrimSpace(host), ".")
	if host == "" {
		return "", false
	}
	if net.ParseIP(host) != nil {
		return host, true
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", false
	}
	return strings.ToLower(ascii), true
}

// domainChain lists host and each parent name down to its registrable
// domain, so "a.b.example.co.uk" yields a.b.example.co.uk, b.example.co.uk
// and example.co.uk. IPs and public suffixes yield only themselves.
func domainChain(host string) []string {
	if net.ParseIP(host) != nil {
		return []string{host}
	}
	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return []string{host}
	}
	chain := []string{host}
	for name := host; name != registrable; {
		i := strings.IndexByte(name, '.')
		if i < 0 {
			break
		}
		name = name[i+1:]
		chain = append(chain, name)
	}
	return chain
}

// institutionalLabels are the second-level labels registries reserve for
// government, military and academic bodies (gov.uk, ac.jp, edu.au).
var institutionalLabels = map[string]bool{
	"gov": true,
	"edu": true,
	"mil": true,
	"ac":  true,
}

// institutional reports whether host sits under an ICANN government or
// academic suffix such as .gov, .edu or .ac.uk
func institutional(host string) bool {
	if net.ParseIP(host) != nil {
		return false
	}
	suffix, icann := publicsuffix.PublicSuffix(host)
	if !icann || suffix == host {
		return false
	}
	switch suffix {
	case "gov", "edu", "mil":
		return true
	}
	label, rest, found := strings.Cut(suffix, ".")
	return found && rest != "" && institutionalLabels[label]
}

// matchesDomain reports whether any name in the chain is listed
func matchesDomain(chain []string, domains map[string]bool) bool {
	for _, name := range chain {
		if domains[name] {
			return true
		}
	}
	return false
}

// ParseDomainQuality converts a string to DomainQuality, defaulting to unknown
func ParseDomainQuality(s string) model.DomainQuality {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "reputable", "primary":
		return model.DomainReputable
	case "social":
		return model.DomainSocial
	default:
		return model.DomainUnknown
	}
}
