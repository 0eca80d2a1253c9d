package lifecycle

import (
	"time"

	"github.com/ppiankov/verdict/internal/model"
)

// Evaluate derives the finalization status of c at now.
// It is a pure function of the stored fields and the clock.
func Evaluate(c *model.Claim, config model.LifecycleConfig, now time.Time) model.FinalizationStatus {
	st := model.FinalizationStatus{
		ClaimID:              c.ID,
		WeightedNet:          c.WeightedNet,
		Threshold:            config.FinalizeThreshold,
		DisputeWindowEnd:     c.DisputeWindowEnd,
		FinalizationDeadline: c.FinalizationDeadline,
		EvaluatedAt:          now,
	}

	switch {
	case c.IsFinalized:
		st.Status = model.StatusFinalized
	case !c.IsResolved():
		st.Status = model.StatusNotResolved
	case c.DisputeWindowEnd != nil && now.Before(*c.DisputeWindowEnd):
		st.Status = model.StatusDisputeWindow
	case abs(c.WeightedNet) >= config.FinalizeThreshold:
		st.Status = model.StatusThresholdMet
	case c.FinalizationDeadline != nil && !now.Before(*c.FinalizationDeadline):
		st.Status = model.StatusTimeout
	default:
		st.Status = model.StatusContested
	}
	st.CanFinalize = st.Status.CanFinalize()
	return st
}

// Decide computes the final outcome for a claim that may finalize in status.
// A net of exactly 0 never overrules, and an invalid outcome has no polarity to flip.
func Decide(c *model.Claim, config model.LifecycleConfig, status model.Status) (final model.Outcome, overruled bool) {
	net := c.WeightedNet
	switch status {
	case model.StatusThresholdMet:
		overruled = net <= -config.FinalizeThreshold
	case model.StatusTimeout:
		if config.TimeoutRule == model.TimeoutRuleThreshold {
			overruled = net <= -config.FinalizeThreshold
		} else {
			overruled = net < 0
		}
	}

	if overruled {
		if opposite, ok := c.Outcome.Opposite(); ok {
			return opposite, true
		}
	}
	return c.Outcome, false
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
