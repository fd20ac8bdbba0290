package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePairHint(t *testing.T) {
	cases := []struct {
		name    string
		query   string
		drug    string
		disease string
	}{
		{
			name:    "known names",
			query:   "Could metformin treat breast cancer?",
			drug:    "metformin",
			disease: "cancer",
		},
		{
			name:    "drug suffix",
			query:   "Is imatinib useful against nephritis?",
			drug:    "imatinib",
			disease: "nephritis",
		},
		{
			name:    "disease suffix",
			query:   "Does aspirin help with atherosclerosis progression?",
			drug:    "aspirin",
			disease: "atherosclerosis",
		},
		{
			name:    "monoclonal antibody",
			query:   "rituximab for lupus",
			drug:    "rituximab",
			disease: "lupus",
		},
		{
			name:  "no disease",
			query: "Tell me about metformin pharmacokinetics",
			drug:  "metformin",
		},
		{
			name:    "no drug",
			query:   "What causes glioblastoma?",
			disease: "glioblastoma",
		},
		{
			name:  "nothing recognizable",
			query: "tell me something interesting",
		},
		{
			name:  "short words ignored",
			query: "can it fix flu",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			drug, disease := ParsePairHint(tc.query)
			assert.Equal(t, tc.drug, drug)
			assert.Equal(t, tc.disease, disease)
		})
	}
}

func TestParsePairHintFirstMatchWins(t *testing.T) {
	drug, disease := ParsePairHint("aspirin or metformin for diabetes and obesity")
	assert.Equal(t, "aspirin", drug)
	assert.Equal(t, "diabetes", disease)
}
