//go:build dev || debug

package logger

import "github.com/rs/zerolog"

// defaultLevel is Debug for a dev/debug build of kingo-worker, selected with
// `go build -tags dev` (or `-tags debug`).
var defaultLevel = zerolog.DebugLevel
