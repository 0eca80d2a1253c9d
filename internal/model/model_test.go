package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentity_ParseAndString(t *testing.T) {
	tests := []struct {
		in      string
		want    Identity
		wantErr bool
	}{
		{"anon:abc", AnonID("abc"), false},
		{"account:42", AccountID("42"), false},
		{"acct:42", AccountID("42"), false},
		{" account:7 ", AccountID("7"), false},
		{"42", Identity{}, true},
		{"anon:", Identity{}, true},
		{"user:1", Identity{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseIdentity(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "account:42", AccountID("42").String())
	assert.Equal(t, "", Identity{}.String())
	assert.NotEqual(t, AnonID("1"), AccountID("1"), "variants never collide")
}

func TestIdentity_JSON(t *testing.T) {
	in := struct {
		Who  Identity `json:"who"`
		None Identity `json:"none"`
	}{Who: AnonID("x1")}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"who":"anon:x1","none":""}`, string(data))

	var out struct {
		Who  Identity `json:"who"`
		None Identity `json:"none"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, AnonID("x1"), out.Who)
	assert.True(t, out.None.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`{"who":"bogus"}`), &out))
}

func TestOutcome(t *testing.T) {
	o, err := ParseOutcome(" Correct ")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCorrect, o)

	_, err = ParseOutcome("pending")
	assert.ErrorIs(t, err, ErrInvalidOutcome)

	opp, ok := OutcomeCorrect.Opposite()
	assert.True(t, ok)
	assert.Equal(t, OutcomeIncorrect, opp)

	opp, ok = OutcomeIncorrect.Opposite()
	assert.True(t, ok)
	assert.Equal(t, OutcomeCorrect, opp)

	_, ok = OutcomeInvalid.Opposite()
	assert.False(t, ok, "invalid has no polarity")
}

func TestParseGradeAndDirection(t *testing.T) {
	g, err := ParseGrade("b")
	require.NoError(t, err)
	assert.Equal(t, GradeB, g)

	_, err = ParseGrade("E")
	assert.ErrorIs(t, err, ErrInvalidGrade)

	for _, v := range []int{1, -1} {
		got, err := ParseDirection(v)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
	_, err = ParseDirection(0)
	assert.ErrorIs(t, err, ErrInvalidDirection)
}

func TestError_MatchingByCode(t *testing.T) {
	err := Errorf(ErrSelfVote, "account:1 authored claim %s", "c-1")
	assert.ErrorIs(t, err, ErrSelfVote)
	assert.NotErrorIs(t, err, ErrNotReady)
	assert.Equal(t, "account:1 authored claim c-1", err.Error())

	wrapped := fmt.Errorf("cast: %w", err)
	assert.ErrorIs(t, wrapped, ErrSelfVote)
	assert.True(t, IsKind(wrapped, KindPrecondition))
	assert.Equal(t, "self_vote", CodeOf(wrapped))

	cause := errors.New("disk full")
	dep := ErrPenaltyFailed.Wrap(cause)
	assert.ErrorIs(t, dep, ErrPenaltyFailed)
	assert.ErrorIs(t, dep, cause)
	assert.True(t, IsKind(dep, KindDependency))

	assert.Equal(t, "", CodeOf(cause))
	assert.False(t, IsKind(cause, KindInternal))
}

func TestClaim_Clone(t *testing.T) {
	now := time.Now()
	c := &Claim{ID: "c-1", ResolvedAt: &now, Evidence: []EvidenceItem{{Type: ItemLink, URL: "https://a.test"}}}
	cp := c.Clone()

	*cp.ResolvedAt = now.Add(time.Hour)
	cp.Evidence[0].URL = "https://b.test"

	assert.Equal(t, now, *c.ResolvedAt)
	assert.Equal(t, "https://a.test", c.Evidence[0].URL)
	assert.Nil(t, (*Claim)(nil).Clone())
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"window not shorter than deadline", func(c *Config) { c.Lifecycle.DisputeWindow = c.Lifecycle.FinalizationDeadline }, "dispute_window"},
		{"zero threshold", func(c *Config) { c.Lifecycle.FinalizeThreshold = 0 }, "finalize_threshold"},
		{"unknown timeout rule", func(c *Config) { c.Lifecycle.TimeoutRule = "coin_flip" }, "timeout_rule"},
		{"ascending grades", func(c *Config) { c.Scoring.Grades[1].MinScore = 90 }, "scoring.grades"},
		{"grades not ending at zero", func(c *Config) { c.Scoring.Grades[3].MinScore = 5 }, "min_score 0"},
		{"negative points", func(c *Config) { c.Reputation.OverrulePenalty = -1 }, "must not be negative"},
		{"milestones not from zero", func(c *Config) { c.Reputation.Milestones[0].MinPoints = 10 }, "start at 0"},
		{"support below dispute", func(c *Config) { c.Contest.MinSupportReputation = 10 }, "min_support_reputation"},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mongo" }, "store.driver"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestStatus_CanFinalize(t *testing.T) {
	assert.True(t, StatusThresholdMet.CanFinalize())
	assert.True(t, StatusTimeout.CanFinalize())
	for _, s := range []Status{StatusFinalized, StatusNotResolved, StatusDisputeWindow, StatusContested} {
		assert.False(t, s.CanFinalize(), s)
	}
}
