package reputation

import "github.com/ppiankov/verdict/internal/model"

// MilestoneFor places a point total in the configured milestone table.
// The table is ascending and starts at 0, so every total maps to exactly one tier.
func (l *Ledger) MilestoneFor(points int) model.MilestoneProgress {
	return MilestoneFor(l.config.Milestones, points)
}

// MilestoneFor places points in milestones (ascending by MinPoints)
func MilestoneFor(milestones []model.Milestone, points int) model.MilestoneProgress {
	if len(milestones) == 0 {
		return model.MilestoneProgress{}
	}

	idx := 0
	for i, m := range milestones {
		if points >= m.MinPoints {
			idx = i
		}
	}

	progress := model.MilestoneProgress{Current: milestones[idx]}
	if idx+1 < len(milestones) {
		next := milestones[idx+1]
		progress.Next = &next
		progress.Remaining = next.MinPoints - points
	}
	return progress
}
