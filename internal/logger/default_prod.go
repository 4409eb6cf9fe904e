//go:build !dev && !debug

package logger

import "github.com/rs/zerolog"

// defaultLevel is Info for the ordinary kingo-worker build: the default
// when neither the 'dev' nor 'debug' tag is set.
var defaultLevel = zerolog.InfoLevel
