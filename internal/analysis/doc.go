// Package analysis summarizes recorded trajectories.
//
// Everything here works on a history slice returned by the stepper and never
// drives the engine itself:
//
//   - [SummarizeRegimes]: occupancy, transition counts and mean dwell time
//   - [Excursion]: min, max, mean and final value of one dimension
//   - [Portrait]: two-dimensional projection of the trajectory
//   - [Crossings]: times at which a dimension crosses a level
//
// # Regime Persistence
//
// A long mean dwell in crisis means the condition dimension stays pinned
// below the crisis level once it gets there:
//
//	sum := analysis.SummarizeRegimes(stepper.History())
//	if sum.MeanDwell[dynamo.RegimeCrisis] > 5 {
//	    // crisis is sticky for this calibration
//	}
package analysis
