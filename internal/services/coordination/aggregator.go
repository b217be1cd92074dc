package coordination

import (
	"fmt"
	"math"

	"FinCoord/internal/domain/models"
)

// Effectiveness combines the resolution rate with a schedule-risk bonus.
// Callers handle the empty-input case, which is reported as 0.
func Effectiveness(detected, resolved int, schedule *models.EventSchedule) float64 {
	rate := 1.0
	if detected > 0 {
		rate = float64(resolved) / float64(detected)
	}
	bonus := 0.7
	if schedule != nil {
		bonus = 1.2 * (1 - 0.5*schedule.RiskAssessment.Mean())
	}
	return models.Clamp01(rate * bonus)
}

// Utilization is 1/(1+CV) of the allocation weights, 0 without a schedule.
func Utilization(schedule *models.EventSchedule) float64 {
	if schedule == nil || len(schedule.ResourceAllocation) == 0 {
		return 0
	}
	n := float64(len(schedule.ResourceAllocation))
	var sum float64
	for _, w := range schedule.ResourceAllocation {
		sum += w
	}
	mean := sum / n
	if mean <= 0 {
		return 0
	}
	var variance float64
	for _, w := range schedule.ResourceAllocation {
		variance += (w - mean) * (w - mean)
	}
	cv := math.Sqrt(variance/n) / mean
	return 1 / (1 + cv)
}

type aggregateInput struct {
	result     *models.CoordinationResult
	resolution ResolutionReport
	warnings   []string
}

// aggregate fills the derived fields of a result whose raw parts are set.
func aggregate(in aggregateInput) {
	r := in.result
	r.Warnings = append(r.Warnings, in.warnings...)

	detected := len(r.ConflictsDetected)
	if len(r.ProcessedEventIDs) == 0 {
		r.Effectiveness = 0
	} else {
		r.Effectiveness = Effectiveness(detected, r.ConflictsResolvedCount, r.Schedule)
	}
	r.ResourceUtilization = Utilization(r.Schedule)

	if unresolved := r.UnresolvedCount(); unresolved > 0 {
		r.Warnings = append(r.Warnings, fmt.Sprintf("%d conflict(s) remain unresolved and will be retried on the next pass", unresolved))
	}
	high := 0
	for _, c := range r.ConflictsDetected {
		if c.SeverityScore > 0.7 {
			high++
		}
	}
	if high > 0 {
		r.Warnings = append(r.Warnings, fmt.Sprintf("%d high-severity conflict(s) detected", high))
	}
	if r.Schedule != nil && r.Schedule.TotalDurationHours > 12 {
		r.Warnings = append(r.Warnings, fmt.Sprintf("schedule duration %.1fh exceeds 12h", r.Schedule.TotalDurationHours))
		r.Recommendations = append(r.Recommendations, "Split the schedule into shorter coordination windows")
	}

	r.Recommendations = append(r.Recommendations, modeTips(r, in.resolution, high)...)
	if r.Schedule != nil {
		risk := r.Schedule.RiskAssessment
		if risk.ExecutionRisk > 0.5 {
			r.Recommendations = append(r.Recommendations, "Mean event confidence is low; wait for confirmation before acting")
		}
		if risk.ResourceRisk >= 0.6 {
			r.Recommendations = append(r.Recommendations, "Several events target the same symbols; stagger exposure")
		}
	}
	if len(r.EventChains) > 0 {
		top := r.EventChains[0]
		r.Recommendations = append(r.Recommendations, fmt.Sprintf("Monitor chain %v (completion probability %.2f)", top.EventSequence, top.CompletionProbability))
	}
	for _, ce := range r.CompositeEvents {
		if ce.Priority == models.PriorityCritical || ce.Priority == models.PriorityHigh {
			r.Recommendations = append(r.Recommendations, fmt.Sprintf("Composite %s (%s) spans %d events; treat it as one position decision", ce.ID, ce.Priority, len(ce.ComponentEventIDs)))
		}
	}
	if len(r.Recommendations) == 0 && r.Schedule != nil {
		r.Recommendations = append(r.Recommendations, "No coordination issues; proceed with the schedule")
	}
}

func modeTips(r *models.CoordinationResult, res ResolutionReport, high int) []string {
	var out []string
	switch r.CoordinationMode {
	case models.ModeConservative:
		if res.Cancelled > 0 {
			out = append(out, fmt.Sprintf("CONSERVATIVE mode cancelled %d event(s); BALANCED mode would keep them with shared resources", res.Cancelled))
		}
	case models.ModeAggressive:
		if res.Merged > 0 {
			out = append(out, fmt.Sprintf("AGGRESSIVE mode merged %d event(s); review merged symbol coverage", res.Merged))
		}
	case models.ModeBalanced:
		if r.UnresolvedCount() > 0 {
			out = append(out, "Consider ADAPTIVE mode to pick strategies by conflict severity")
		}
	case models.ModeAdaptive:
		if high > 0 {
			out = append(out, "High-severity conflicts were settled by priority override; confirm the demoted events")
		}
	}
	return out
}
