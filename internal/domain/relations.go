package domain

import "regexp"

// relationPattern pairs a relation with the verb forms that signal it.
type relationPattern struct {
	Relation RelationType
	Pattern  *regexp.Regexp
}

// relationPatterns are checked in order; the first match in a sentence wins.
// More specific verbs sit above the generic ones so "phosphorylates" is not
// swallowed by "activates".
var relationPatterns = []relationPattern{
	{RelationPhosphorylates, regexp.MustCompile(`(?i)\bphosphorylat(?:e|es|ed|ing|ion)\b`)},
	{RelationCatalyzes, regexp.MustCompile(`(?i)\bcatalyz(?:e|es|ed|ing)\b`)},
	{RelationTransports, regexp.MustCompile(`(?i)\btransport(?:s|ed|ing)?\b`)},
	{RelationUpregulates, regexp.MustCompile(`(?i)\bupregulat(?:e|es|ed|ing|ion)\b`)},
	{RelationDownregulates, regexp.MustCompile(`(?i)\bdownregulat(?:e|es|ed|ing|ion)\b`)},
	{RelationInhibits, regexp.MustCompile(`(?i)\b(?:inhibit(?:s|ed|ing)?|block(?:s|ed|ing)?|suppress(?:es|ed|ing)?|antagoni(?:st|ze|zes|zed)|reduc(?:e|es|ed|ing))\b`)},
	{RelationActivates, regexp.MustCompile(`(?i)\b(?:activat(?:e|es|ed|ing)|stimulat(?:e|es|ed|ing)|enhanc(?:e|es|ed|ing)|agoni(?:st|ze|zes))\b`)},
	{RelationBinds, regexp.MustCompile(`(?i)\b(?:bind(?:s|ing)?|target(?:s|ed|ing)?|interact(?:s|ed|ing)?\s+with)\b`)},
	{RelationModulates, regexp.MustCompile(`(?i)\bmodulat(?:e|es|ed|ing|ion)\b`)},
	{RelationRegulates, regexp.MustCompile(`(?i)\bregulat(?:e|es|ed|ing|ion)\b`)},
	{RelationPrevents, regexp.MustCompile(`(?i)\b(?:prevent(?:s|ed|ing|ion)?|protect(?:s|ed|ing)?\s+against)\b`)},
	{RelationTreats, regexp.MustCompile(`(?i)\b(?:treat(?:s|ed|ing|ment)?|ameliorat(?:e|es|ed)|effective\s+(?:against|in)|improv(?:e|es|ed))\b`)},
	{RelationCauses, regexp.MustCompile(`(?i)\b(?:caus(?:e|es|ed|ing)|induc(?:e|es|ed|ing)|promot(?:e|es|ed|ing)|trigger(?:s|ed)?)\b`)},
}

// DetectRelation finds the first relation verb in a sentence, or false.
func DetectRelation(sentence string) (RelationType, bool) {
	for _, rp := range relationPatterns {
		if rp.Pattern.MatchString(sentence) {
			return rp.Relation, true
		}
	}
	return "", false
}

var sentenceSplit = regexp.MustCompile(`[.!?]+\s+`)

// SplitSentences breaks abstract text into sentences.
func SplitSentences(text string) []string {
	parts := sentenceSplit.Split(text, -1)
	out := parts[:0]
	for _, p := range parts {
		if len(p) > 0 {
			out = append(out, p)
		}
	}
	return out
}

// relationStrengths weight a relation's mechanistic directness. Direct
// biochemical actions carry more signal than loose associations.
var relationStrengths = map[RelationType]float64{
	RelationInhibits:       1.0,
	RelationActivates:      1.0,
	RelationPhosphorylates: 1.0,
	RelationCatalyzes:      1.0,
	RelationBinds:          0.95,
	RelationTransports:     0.9,
	RelationUpregulates:    0.9,
	RelationDownregulates:  0.9,
	RelationModulates:      0.85,
	RelationRegulates:      0.85,
	RelationTreats:         0.8,
	RelationPrevents:       0.8,
	RelationCauses:         0.75,
	RelationAssociatesWith: 0.6,
	RelationUnknown:        0.5,
}

// RelationStrength returns the mechanistic weight of a relation, 0.5 for
// anything unrecognized.
func RelationStrength(r RelationType) float64 {
	if s, ok := relationStrengths[r]; ok {
		return s
	}
	return 0.5
}
