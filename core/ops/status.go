package ops

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/jdelaire/osonbot/core/supervisor"
)

var startTime = time.Now()

// StatusOp reports uptime and how many supervised bots are up.
type StatusOp struct {
	Bots Supervisor
}

func (s *StatusOp) Name() string        { return "status" }
func (s *StatusOp) Description() string { return "Show service status" }

func (s *StatusOp) Execute(_ context.Context, _ Request) (string, error) {
	counts := map[supervisor.Status]int{}
	total := 0
	if s.Bots != nil {
		for _, info := range s.Bots.Instances() {
			counts[info.Status]++
			total++
		}
	}

	uptime := time.Since(startTime).Truncate(time.Second)
	return fmt.Sprintf("Status: OK\nUptime: %s\nBots: %d (%d running, %d failed)\nGo: %s\nGoroutines: %d",
		uptime, total, counts[supervisor.StatusRunning], counts[supervisor.StatusFailed],
		runtime.Version(), runtime.NumGoroutine()), nil
}
