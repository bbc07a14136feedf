// Package dynamo provides the core primitives of the stochastic evolution
// engine.
//
// The package defines the shared vocabulary used by every other package:
//
//   - [State]: bounded state vector, every component in [0,1]
//   - [EvolutionState]: timestamped snapshot of the engine
//   - [StepRecord]: audit trail of one Euler-Maruyama update
//   - [DriftModel]: deterministic rate of change dX = mu(X, t) dt
//   - [NoiseSource]: injectable standard-normal generator
//   - [Classifier]: maps the condition dimension to a [Regime]
//
// # Example
//
//	model, _ := drift.New(driftCfg)
//	stepper, _ := sde.New(sde.Config{...}, sde.WithNoise(noise.NewGaussian(42)))
//	states, _ := stepper.Evolve(ctx, 10, nil)
//
// # Thread Safety
//
// Steppers are NOT thread-safe. For parallel runs use sde.Ensemble, which
// gives every member its own Stepper and shares only immutable data.
package dynamo
