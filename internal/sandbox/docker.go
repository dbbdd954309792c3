package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

const (
	workerUser  = "1000"
	harnessDir  = "/sandbox"
	harnessName = "harness.py"

	// Resource limits per worker.
	memoryLimitBytes = 512 * 1024 * 1024 // 512MB
	cpuQuota         = 50000             // 0.5 CPU
	pidsLimit        = 256
)

// DockerRunner executes each harness in an ephemeral container with no
// network and hard resource limits. On timeout the container is
// force-removed, so the worker cannot keep running after the caller has
// given up on it.
type DockerRunner struct {
	cli   *client.Client
	image string
}

// NewDockerRunner creates a Docker-backed runner.
func NewDockerRunner(image string) (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	slog.Info("Docker sandbox runner initialized", "image", image)
	return &DockerRunner{cli: cli, image: image}, nil
}

// Run writes the harness to a scratch directory, mounts it together with
// the dataset directory read-only into a fresh container, and waits for
// the container to exit or the context to expire.
func (r *DockerRunner) Run(ctx context.Context, script string, datasetDir string) (string, error) {
	scratch, err := os.MkdirTemp("", "datapilot-harness-")
	if err != nil {
		return "", fmt.Errorf("create harness dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	if err := os.WriteFile(filepath.Join(scratch, harnessName), []byte(script), 0o644); err != nil {
		return "", fmt.Errorf("write harness: %w", err)
	}

	mounts := []mount.Mount{{
		Type:     mount.TypeBind,
		Source:   scratch,
		Target:   harnessDir,
		ReadOnly: true,
	}}
	if datasetDir != "" {
		// Mounted at the identical path so the filename the model was
		// primed with resolves unchanged inside the worker.
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   datasetDir,
			Target:   datasetDir,
			ReadOnly: true,
		})
	}

	cfg := &container.Config{
		Image:      r.image,
		User:       workerUser,
		Cmd:        []string{"python3", "-I", filepath.Join(harnessDir, harnessName)},
		WorkingDir: harnessDir,
	}
	hostCfg := &container.HostConfig{
		NetworkMode: "none",
		Mounts:      mounts,
		Resources: container.Resources{
			Memory:    memoryLimitBytes,
			CPUQuota:  cpuQuota,
			PidsLimit: ptr(int64(pidsLimit)),
		},
	}

	resp, err := r.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("create worker container: %w", err)
	}
	defer r.remove(resp.ID)

	if err := r.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("start worker container %s: %w", resp.ID, err)
	}

	waitCh, errCh := r.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case err := <-errCh:
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("wait for worker container %s: %w", resp.ID, err)
	case status := <-waitCh:
		out, logErr := r.collectStdout(resp.ID)
		if logErr != nil {
			return "", logErr
		}
		if status.StatusCode != 0 {
			return "", fmt.Errorf("python worker exited abnormally: status %d", status.StatusCode)
		}
		return out, nil
	}
}

// collectStdout reads the demultiplexed stdout stream of a finished worker.
func (r *DockerRunner) collectStdout(containerID string) (string, error) {
	logCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reader, err := r.cli.ContainerLogs(logCtx, containerID, container.LogsOptions{ShowStdout: true})
	if err != nil {
		return "", fmt.Errorf("read worker logs %s: %w", containerID, err)
	}
	defer reader.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, reader); err != nil {
		return "", fmt.Errorf("demux worker logs %s: %w", containerID, err)
	}
	return stdout.String(), nil
}

// remove force-removes the worker container. It runs on its own context
// so a timed-out execution still gets its worker torn down.
func (r *DockerRunner) remove(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := r.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
	if err != nil && !errdefs.IsNotFound(err) {
		slog.Warn("Failed to remove worker container", "container_id", containerID, "error", err)
	}
}

func ptr[T any](v T) *T {
	return &v
}
