package external

import (
	"context"
	"regexp"
	"strings"

	"github.com/biomind-nexus-server/internal/domain"
)

// PatternExtractor is the deterministic fallback when the NER service is
// unavailable. It recognizes drugs by common suffixes and a known-name list,
// diseases by keywords and suffixes, and genes by symbol shape.
type PatternExtractor struct{}

// NewPatternExtractor creates the fallback extractor.
func NewPatternExtractor() *PatternExtractor {
	return &PatternExtractor{}
}

var (
	drugSuffixPattern = regexp.MustCompile(`\b[A-Z][a-z]+(?:mab|nib|tinib|zumab|ximab|ciclib)\b`)
	knownDrugs        = []string{
		"metformin", "aspirin", "rapamycin", "sirolimus", "imatinib",
		"statin", "atorvastatin", "simvastatin", "thalidomide", "ketamine",
		"propranolol", "losartan", "ibuprofen", "dexamethasone", "tamoxifen",
		"doxycycline", "minocycline", "valproate", "lithium", "disulfiram",
	}

	diseaseKeywordPattern = regexp.MustCompile(`(?i)\b(?:[a-z]+\s+)?(?:cancer|diabetes|alzheimer'?s?|parkinson'?s?|carcinoma|lymphoma|leukemia|melanoma|glioblastoma|fibrosis|hypertension|obesity|depression|epilepsy|asthma)\b`)
	diseaseSuffixPattern  = regexp.MustCompile(`\b[a-z]{3,}(?:itis|osis|emia|pathy)\b`)

	geneTokenPattern = regexp.MustCompile(`\b[A-Z]{2,5}[0-9]?\b`)
	knownGenes       = []string{
		"mTOR", "AMPK", "AKT", "PI3K",
		"p53", "NF-kB", "JAK", "STAT",
	}
	geneStoplist = map[string]bool{
		"AND": true, "THE": true, "FOR": true, "CAN": true, "MAY": true,
		"NOT": true, "DNA": true, "RNA": true, "USA": true,
	}
)

// Extract runs the pattern rules over the text. Drugs and diseases score
// 0.7, genes 0.6.
func (p *PatternExtractor) Extract(ctx context.Context, text string) ([]domain.Entity, error) {
	var entities []domain.Entity
	seen := make(map[string]bool)

	add := func(name string, t domain.EntityType, conf float64) {
		id := domain.EntityID(t, name)
		if seen[id] || !domain.ValidNodeLabel(name) {
			return
		}
		seen[id] = true
		entities = append(entities, domain.Entity{
			ID:         id,
			Name:       domain.DisplayName(t, name),
			Type:       t,
			Confidence: conf,
			Source:     "pattern",
		})
	}

	for _, m := range drugSuffixPattern.FindAllString(text, -1) {
		add(m, domain.EntityDrug, 0.7)
	}
	lower := strings.ToLower(text)
	for _, drug := range knownDrugs {
		if strings.Contains(lower, drug) {
			add(drug, domain.EntityDrug, 0.7)
		}
	}

	for _, m := range diseaseKeywordPattern.FindAllString(text, -1) {
		add(strings.TrimSpace(m), domain.EntityDisease, 0.7)
	}
	for _, m := range diseaseSuffixPattern.FindAllString(lower, -1) {
		add(m, domain.EntityDisease, 0.7)
	}

	for _, gene := range knownGenes {
		if strings.Contains(text, gene) {
			add(gene, domain.EntityGene, 0.6)
		}
	}
	for _, m := range geneTokenPattern.FindAllString(text, -1) {
		if geneStoplist[m] {
			continue
		}
		add(m, domain.EntityGene, 0.6)
	}

	return entities, nil
}
