package unit

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

// ExecConfig configures a child-process unit.
type ExecConfig struct {
	Name              string        `yaml:"name"`
	Command           string        `yaml:"command"`
	Args              []string      `yaml:"args"`
	HealthURL         string        `yaml:"health_url"` // optional HTTP readiness probe
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// ExecUnit runs a unit as a child process. Readiness is process liveness,
// or an HTTP 200 from HealthURL when configured. Heartbeats are synthesized
// while the process is alive, so a dead process stops heartbeating on its own.
type ExecUnit struct {
	cfg    ExecConfig
	client *http.Client

	mu      sync.Mutex
	cmd     *exec.Cmd
	cancel  context.CancelFunc
	running atomic.Bool

	hb chan time.Time
}

// NewExecUnit creates an exec-backed unit.
func NewExecUnit(cfg ExecConfig) *ExecUnit {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = time.Second
	}
	return &ExecUnit{
		cfg:    cfg,
		client: &http.Client{Timeout: 2 * time.Second},
		hb:     make(chan time.Time, 16),
	}
}

func (u *ExecUnit) Start(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.running.Load() {
		return fmt.Errorf("unit %s already running", u.cfg.Name)
	}

	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, u.cfg.Command, u.cfg.Args...)
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start %s: %w", u.cfg.Name, err)
	}

	u.cmd = cmd
	u.cancel = cancel
	u.running.Store(true)

	// Reap the process and pump heartbeats while it lives.
	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		u.running.Store(false)
		close(done)
	}()
	go u.pump(done)

	return nil
}

func (u *ExecUnit) Stop(ctx context.Context) error {
	u.mu.Lock()
	cancel := u.cancel
	u.cancel = nil
	u.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

func (u *ExecUnit) IsReady(ctx context.Context) (bool, error) {
	if !u.alive() {
		return false, nil
	}
	if u.cfg.HealthURL == "" {
		return true, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.cfg.HealthURL, nil)
	if err != nil {
		return false, fmt.Errorf("bad health url: %w", err)
	}
	resp, err := u.client.Do(req)
	if err != nil {
		return false, nil // not ready yet, not an error
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

func (u *ExecUnit) Heartbeats() <-chan time.Time {
	return u.hb
}

// Kill terminates the process without going through Stop. Used by the
// fault-injection harness to simulate a crash.
func (u *ExecUnit) Kill() error {
	u.mu.Lock()
	cmd := u.cmd
	u.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return fmt.Errorf("unit %s not running", u.cfg.Name)
	}
	return cmd.Process.Kill()
}

func (u *ExecUnit) alive() bool {
	return u.running.Load()
}

func (u *ExecUnit) pump(done <-chan struct{}) {
	ticker := time.NewTicker(u.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case t := <-ticker.C:
			select {
			case u.hb <- t:
			default:
			}
		}
	}
}
