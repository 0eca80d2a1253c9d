package canonical

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/verdict/internal/model"
)

func TestJSON_SortsKeys(t *testing.T) {
	out, err := JSON(map[string]any{"b": 1, "a": "x<y"})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x<y","b":1}`, string(out))
}

func TestHash_Deterministic(t *testing.T) {
	a, err := Hash(map[string]any{"x": 1, "y": 2})
	require.NoError(t, err)
	b, err := Hash(map[string]any{"y": 2, "x": 1})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "bafkrei"), "expected CIDv1 raw sha256, got %s", a)
}

func TestClaimHash_IgnoresResolutionState(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := &model.Claim{
		ID:        "claim-1",
		Author:    model.AccountID("42"),
		Statement: "The launch slips to Q3",
		Category:  "tech",
		CreatedAt: created,
	}
	h1, err := ClaimHash(c)
	require.NoError(t, err)
	c.ContentHash = h1

	resolved := created.Add(time.Hour)
	c.Outcome = model.OutcomeCorrect
	c.ResolvedAt = &resolved
	c.WeightedNet = -4

	ok, err := VerifyClaim(c)
	require.NoError(t, err)
	assert.True(t, ok)

	c.Statement = "The launch slips to Q4"
	ok, err = VerifyClaim(c)
	require.NoError(t, err)
	assert.False(t, ok, "edited statement must not verify")
}
