package domain

import (
	"regexp"
	"strings"
)

var idSeparators = regexp.MustCompile(`[\s-]+`)

// NormalizeID lowercases a name and collapses spaces and hyphens to
// underscores, producing a stable graph/node identifier.
func NormalizeID(name string) string {
	return idSeparators.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_")
}

// NormalizeName lowercases and trims a name for matching.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// EntityID builds the canonical entity id "<type>:<normalized name>".
func EntityID(t EntityType, name string) string {
	return string(t) + ":" + NormalizeID(name)
}

// DisplayName returns the presentation form of an entity name: Title Case
// generally, upper case for genes.
func DisplayName(t EntityType, name string) string {
	name = strings.TrimSpace(name)
	if t == EntityGene {
		return strings.ToUpper(name)
	}
	words := strings.Fields(strings.ToLower(name))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Stopwords are short query tokens that must never surface as graph node
// labels. A stopword appearing as a node label means extraction leaked
// query text into the graph.
var Stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "can": true, "could": true, "do": true,
	"does": true, "for": true, "from": true, "has": true, "have": true,
	"how": true, "in": true, "is": true, "it": true, "may": true,
	"might": true, "must": true, "of": true, "on": true, "or": true,
	"should": true, "that": true, "the": true, "this": true, "to": true,
	"was": true, "what": true, "which": true, "will": true, "with": true,
	"would": true,
}

// RelationLabels is the set of relation names, kept for node-label
// validation: a relation word showing up as a node label is a parse defect.
var RelationLabels = func() map[string]bool {
	m := make(map[string]bool, len(KnownRelations)+1)
	for _, r := range KnownRelations {
		m[string(r)] = true
	}
	m["implicated_in"] = true
	return m
}()

// ValidNodeLabel reports whether a label may appear as a graph node: at
// least two characters, not a stopword, not a relation word, not all digits.
func ValidNodeLabel(label string) bool {
	l := NormalizeName(label)
	if len(l) < 2 {
		return false
	}
	if Stopwords[l] || RelationLabels[l] {
		return false
	}
	allDigits := true
	for _, c := range l {
		if c < '0' || c > '9' {
			allDigits = false
			break
		}
	}
	return !allDigits
}
