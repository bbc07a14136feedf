package sde

import (
	"github.com/san-kum/stochsim/internal/dynamo"
	"github.com/san-kum/stochsim/internal/linalg"
	"github.com/sirupsen/logrus"
)

type Option func(*Stepper)

// WithNoise sets the source of independent N(0,1) draws. Required.
func WithNoise(src dynamo.NoiseSource) Option {
	return func(s *Stepper) { s.noise = src }
}

// WithClassifier replaces the classifier built from Config.Regime.
func WithClassifier(c dynamo.Classifier) Option {
	return func(s *Stepper) { s.classifier = c }
}

// WithFactor reuses an existing correlation factor instead of factorizing
// Config.Correlation again. The factor must match the state dimension.
func WithFactor(f *linalg.Factor) Option {
	return func(s *Stepper) { s.factor = f }
}

func WithObserver(o dynamo.Observer) Option {
	return func(s *Stepper) { s.observers = append(s.observers, o) }
}

func WithMetric(m dynamo.Metric) Option {
	return func(s *Stepper) { s.metrics = append(s.metrics, m) }
}

func WithLogger(log *logrus.Entry) Option {
	return func(s *Stepper) { s.log = log }
}
