// Package viz renders trajectories in the terminal.
//
//   - [PlotTrajectory] and [PlotAll]: static asciigraph charts of a history
//   - [Canvas]: Braille pixel canvas used for the live trace
//   - [LiveModel]: Bubble Tea program that steps the engine on a timer
//
// # Key Bindings
//
//	Space - Pause/Resume
//	R     - Reset to the initial state
//	N     - Show the next dimension
//	Tab   - Cycle drift parameters
//	Up/K  - Increase selected parameter (+5%)
//	Down/J - Decrease selected parameter (-5%)
//	Q     - Quit
package viz
