package external

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biomind-nexus-server/internal/domain"
)

func TestParseHypothesis(t *testing.T) {
	body := `{"hypothesis":"Metformin may slow tumor growth","mechanism_summary":"AMPK activation suppresses mTOR","confidence":0.72,"key_pathways":["AMPK/mTOR"]}`

	h, err := ParseHypothesis(body)
	require.NoError(t, err)
	assert.Equal(t, "Metformin may slow tumor growth", h.Hypothesis)
	assert.InDelta(t, 0.72, h.Confidence, 1e-9)
	assert.Equal(t, []string{"AMPK/mTOR"}, h.KeyPathways)
}

func TestParseHypothesisStripsCodeFences(t *testing.T) {
	body := "```json\n{\"hypothesis\":\"h\",\"mechanism_summary\":\"m\",\"confidence\":0.5}\n```"

	h, err := ParseHypothesis(body)
	require.NoError(t, err)
	assert.Equal(t, "h", h.Hypothesis)
}

func TestParseHypothesisContractViolations(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "the drug is promising"},
		{"empty hypothesis", `{"hypothesis":"","mechanism_summary":"m","confidence":0.5}`},
		{"confidence above one", `{"hypothesis":"h","mechanism_summary":"m","confidence":1.4}`},
		{"negative confidence", `{"hypothesis":"h","mechanism_summary":"m","confidence":-0.1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseHypothesis(tt.body)
			require.Error(t, err)
			assert.Equal(t, domain.ErrContractViolation, domain.KindOf(err))
		})
	}
}

func TestFallbackSynthesizerConfidenceCap(t *testing.T) {
	h, err := FallbackSynthesizer{}.Synthesize(context.Background(), domain.SynthesisInput{
		Drug:    "Metformin",
		Disease: "Breast Cancer",
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, h.Confidence, 0.3)
	assert.Contains(t, h.Hypothesis, "Metformin")
	assert.NotEmpty(t, h.MechanismSummary)
}

func TestBreakerTripsAfterRepeatedFailures(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	bs := NewBreakerSet(log)

	fail := func() (interface{}, error) { return nil, assert.AnError }
	for i := 0; i < 3; i++ {
		_, _ = bs.Execute(ServiceSynthesizer, fail)
	}

	assert.Equal(t, "open", bs.State(ServiceSynthesizer))

	_, err := bs.Execute(ServiceSynthesizer, fail)
	require.Error(t, err)
	assert.Equal(t, domain.ErrRepoUnavailable, domain.KindOf(err))
}
