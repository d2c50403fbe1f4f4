package telemetry

import (
	"log"
	"os"
)

// NewComponentLogger builds a *log.Logger prefixed with "[PREFIX] ",
// matching the teacher's [ORCH]/[SCHED] convention in
// internal/agent/core/orchestrator.go and internal/server/scheduler.go.
func NewComponentLogger(prefix string) *log.Logger {
	return log.New(os.Stderr, "["+prefix+"] ", log.LstdFlags)
}
