package workbook

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/nsvirk/ocbridge/pkg/utils/zaplogger"
	"github.com/shirou/gopsutil/v4/process"
)

// ProcessManager keeps the trading terminal that feeds the workbook running
type ProcessManager struct {
	// ExeName is matched case-insensitively against running process names
	ExeName string
	// ExePath is started when no matching process is found. Optional.
	ExePath string
	// StartupWait is how long a fresh process gets before it is checked
	StartupWait time.Duration

	started *exec.Cmd
}

// NewProcessManager returns a manager with the default 3 second startup wait
func NewProcessManager(exeName, exePath string) *ProcessManager {
	if exeName == "" && exePath != "" {
		exeName = filepath.Base(exePath)
	}
	return &ProcessManager{ExeName: exeName, ExePath: exePath, StartupWait: 3 * time.Second}
}

// Running reports the pid of the terminal, or 0 when it is not running
func (m *ProcessManager) Running(ctx context.Context) (int32, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("list processes: %w", err)
	}
	want := strings.ToLower(m.ExeName)
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if strings.ToLower(name) == want {
			return p.Pid, nil
		}
	}
	return 0, nil
}

// EnsureRunning starts the terminal if it is not already running
func (m *ProcessManager) EnsureRunning(ctx context.Context) error {
	if m.ExeName == "" {
		return nil
	}
	pid, err := m.Running(ctx)
	if err != nil {
		return err
	}
	if pid != 0 {
		zaplogger.Debug("terminal running", zaplogger.Fields{"exe": m.ExeName, "pid": pid})
		return nil
	}
	if m.ExePath == "" {
		return fmt.Errorf("%s is not running and no executable path is configured", m.ExeName)
	}
	if _, err := os.Stat(m.ExePath); err != nil {
		return fmt.Errorf("terminal executable: %w", err)
	}

	cmd := exec.Command(m.ExePath)
	cmd.Dir = filepath.Dir(m.ExePath)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", m.ExePath, err)
	}
	m.started = cmd
	zaplogger.Info("terminal started", zaplogger.Fields{"exe": m.ExePath, "pid": cmd.Process.Pid})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.StartupWait):
	}

	alive, err := process.PidExistsWithContext(ctx, int32(cmd.Process.Pid))
	if err != nil {
		return fmt.Errorf("check %s: %w", m.ExePath, err)
	}
	if !alive {
		return fmt.Errorf("%s exited during startup", m.ExePath)
	}
	return nil
}

// Stop terminates a terminal this manager started
func (m *ProcessManager) Stop() error {
	if m.started == nil || m.started.Process == nil {
		return nil
	}
	p, err := process.NewProcess(int32(m.started.Process.Pid))
	if err != nil {
		return nil
	}
	if err := p.Terminate(); err != nil {
		return p.Kill()
	}
	m.started = nil
	return nil
}
