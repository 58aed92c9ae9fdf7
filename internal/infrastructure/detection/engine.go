package detection

import (
	"regexp"
	"unicode/utf8"

	"github.com/resper1965/ncrisis-sub000/internal/core/domain"
)

const defaultContextRadius = 60

// subjectScanWindow bounds the backward scan for the nearest capitalized
// name when attributing a detection to a subject.
const subjectScanWindow = 160

const unknownSubject = "unidentified"

type pattern struct {
	docType  domain.DocumentType
	re       *regexp.Regexp
	validate func(string) bool
}

// Engine locates candidate substrings with structural patterns and discards
// anything that fails the type-specific validator. It holds no mutable
// state: identical input always yields identical detections.
type Engine struct {
	radius   int
	keywords []string
	patterns []pattern
	nameRE   *regexp.Regexp
}

var (
	cpfRE   = regexp.MustCompile(`\b\d{3}\.?\d{3}\.?\d{3}-?\d{2}\b`)
	cnpjRE  = regexp.MustCompile(`\b\d{2}\.?\d{3}\.?\d{3}/?\d{4}-?\d{2}\b`)
	rgRE    = regexp.MustCompile(`(?i)\brg[:.]?\s*(\d{1,2}\.?\d{3}\.?\d{3}-?[\dxX]?)`)
	cepRE   = regexp.MustCompile(`\b\d{5}-?\d{3}\b`)
	emailRE = regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)
	phoneRE = regexp.MustCompile(`(\+55\s?)?(\(?\d{2}\)?[\s.\-]?)?\d{4,5}[.\-\s]?\d{4}\b`)
	nameRE  = regexp.MustCompile(`\p{Lu}\p{Ll}+(?:\s+(?:d[aeo]s?\s+)?\p{Lu}\p{Ll}+)+`)
)

func NewEngine(radius int, policy Policy) *Engine {
	if radius <= 0 {
		radius = defaultContextRadius
	}
	keywords := policy.SensitivityKeywords
	if len(keywords) == 0 {
		keywords = domain.DefaultSensitivityKeywords
	}
	return &Engine{
		radius:   radius,
		keywords: keywords,
		patterns: []pattern{
			{domain.DocTypeFullName, nameRE, validFullName},
			{domain.DocTypeCPF, cpfRE, validCPF},
			{domain.DocTypeCNPJ, cnpjRE, validCNPJ},
			{domain.DocTypeRG, rgRE, validRG},
			{domain.DocTypeCEP, cepRE, validCEP},
			{domain.DocTypeEmail, emailRE, validEmail},
			{domain.DocTypePhone, phoneRE, validPhone},
		},
		nameRE: nameRE,
	}
}

// Detect returns all validated occurrences. Overlapping matches across
// different types are kept: no deduplication happens at this layer.
func (e *Engine) Detect(text, filename string) []domain.Detection {
	var out []domain.Detection
	for _, p := range e.patterns {
		for _, m := range p.re.FindAllStringSubmatchIndex(text, -1) {
			start, end := m[0], m[1]
			if p.re.NumSubexp() > 0 && len(m) >= 4 && m[2] >= 0 {
				// The RG pattern anchors on an "RG" token; the value is the
				// captured number, and the offset points at it.
				if p.docType == domain.DocTypeRG {
					start, end = m[2], m[3]
				}
			}
			value := text[start:end]
			if !p.validate(value) {
				continue
			}

			ctx := e.contextWindow(text, start, end)
			risk := domain.BaselineRisk(p.docType)
			if domain.SensitiveContext(filename, ctx, e.keywords) {
				risk = risk.Escalate()
			}

			out = append(out, domain.Detection{
				Subject:    e.subjectFor(p.docType, value, text, start),
				DocType:    p.docType,
				Value:      value,
				SourceFile: filename,
				Offset:     start,
				Context:    ctx,
				Risk:       risk,
			})
		}
	}
	return out
}

// contextWindow counts the radius in runes, not bytes, so accented text
// gets the same surrounding window as plain ASCII.
func (e *Engine) contextWindow(text string, start, end int) string {
	lo := start
	for i := 0; i < e.radius && lo > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(text[:lo])
		lo -= size
	}
	hi := end
	for i := 0; i < e.radius && hi < len(text); i++ {
		_, size := utf8.DecodeRuneInString(text[hi:])
		hi += size
	}
	return text[lo:hi]
}

// subjectFor scans backward from the match for the nearest capitalized name.
// The heuristic can attribute a detection to an unrelated nearby name; it is
// best-effort by design of the product.
func (e *Engine) subjectFor(docType domain.DocumentType, value, text string, start int) string {
	if docType == domain.DocTypeFullName {
		return value
	}
	lo := start - subjectScanWindow
	if lo < 0 {
		lo = 0
	}
	for lo > 0 && !utf8.RuneStart(text[lo]) {
		lo--
	}
	matches := e.nameRE.FindAllString(text[lo:start], -1)
	for i := len(matches) - 1; i >= 0; i-- {
		if validFullName(matches[i]) {
			return matches[i]
		}
	}
	return unknownSubject
}
