package ppo

import "github.com/pkg/errors"

// ErrNumericalInstability is returned when a loss, prediction, or
// parameter of a network becomes NaN or infinite. It is fatal: training
// must not continue on corrupted parameters.
var ErrNumericalInstability = errors.New("numerical instability")

// ErrConfig is returned when a configuration is invalid
var ErrConfig = errors.New("invalid configuration")
