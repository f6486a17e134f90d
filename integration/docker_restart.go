//go:build integration

package integration

import (
	"context"
	"os/exec"
	"testing"
)

// restartService bounces one compose service; used to check that Postgres-backed
// products survive a process restart.
func restartService(t *testing.T, ctx context.Context, name string) {
	t.Helper()

	cmd := exec.CommandContext(ctx, "docker", "compose", "restart", name)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("docker compose restart %s failed: %v\n%s", name, err, string(out))
	}
}
