// Package automation runs routines: short, ordered command sequences sent
// to one Tasmota device as a single unit of work.
//
// A routine holds at most MaxSteps steps. Each step is one command plus an
// optional pause before the next step. Runs are fail-fast and not
// transactional: the first failing step stops the run, and the steps
// before it stay applied on the device.
//
// Architecture:
//
//	┌───────────────────────────────────────────────────────┐
//	│                  Engine (engine.go)                    │
//	│                                                        │
//	│  Build / Builder ──▶ Routine (immutable, ≤ 30 steps)   │
//	│                          │                             │
//	│            ┌─────────────┴─────────────┐               │
//	│            ▼                           ▼               │
//	│   Run (sequential)              RunBacklog             │
//	│   send ─▶ reply ─▶ delay ─▶ …   one Backlog0 command   │
//	│            │                           │               │
//	│            └─────────────┬─────────────┘               │
//	│                          ▼                             │
//	│   Execution record (repository.go) + WebSocket event   │
//	└───────────────────────────────────────────────────────┘
//
// # Usage
//
//	d, _ := command.NewDimmer(40)
//	r, err := automation.NewBuilder().
//	    PowerOn(1).
//	    SetDimmer(d).Delay(5 * time.Second).
//	    PowerOff(1).
//	    Build()
//	if err != nil {
//	    return err // errors.Is(err, automation.ErrInvalidRoutine)
//	}
//
//	engine := automation.NewEngine(automation.NewSQLiteRepository(db), hub, log)
//	exec, err := engine.Run(ctx, dev, r, "api")
//	var rerr *automation.RoutineError
//	if errors.As(err, &rerr) {
//	    log.Warn("routine stopped", "step", rerr.Step)
//	}
package automation
