package logs

import (
	"context"
	"errors"
	"os"
	"os/exec"

	"github.com/skydriftlabs/skydrift-setup/internal/logger"
)

// Follow attaches to the service's live journal and streams it to the
// console. It blocks until the operator interrupts the run; cancellation is
// the normal way out and is not reported as an error.
func Follow(ctx context.Context, serviceName string) error {
	logger.InfoKV(ctx, "Following service logs", "service", serviceName)

	cmd := exec.CommandContext(ctx, "journalctl", "-u", serviceName+".service", "-f")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Run()
	if err == nil || errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}

	return err
}
