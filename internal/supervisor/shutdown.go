package supervisor

import (
	"time"

	"golang.org/x/sys/unix"
)

// shutdownGrace is how long Stop waits after SIGTERM before escalating to
// SIGKILL, giving a service a chance to flush state and exit cleanly.
const shutdownGrace = 10 * time.Second

// Stop signals the named service's process to terminate, first politely
// (SIGTERM) and then, if it hasn't exited within shutdownGrace, forcibly
// (SIGKILL). It returns once the process has actually exited or the
// process was never running.
func (pm *ProcessManager) Stop(name string) error {
	pm.mu.RLock()
	p, ok := pm.processes[name]
	pm.mu.RUnlock()
	if !ok {
		return nil
	}

	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	pm.setStatus(p, StatusStopping)
	pid := cmd.Process.Pid

	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		log.Warn().Err(err).Str("service", name).Int("pid", pid).Msg("SIGTERM failed")
	}

	done := make(chan struct{})
	go func() {
		cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Str("service", name).Msg("service exited cleanly after SIGTERM")
	case <-time.After(shutdownGrace):
		log.Warn().Str("service", name).Int("pid", pid).Msg("shutdown grace period expired, sending SIGKILL")
		if err := unix.Kill(pid, unix.SIGKILL); err != nil {
			log.Error().Err(err).Str("service", name).Int("pid", pid).Msg("SIGKILL failed")
		}
		<-done
	}

	pm.setStatus(p, StatusStopped)
	return nil
}

// StopAll gracefully stops every registered service, in the reverse of
// the given startup order so dependents stop before their dependencies.
func (pm *ProcessManager) StopAll(startupOrder []string) {
	for i := len(startupOrder) - 1; i >= 0; i-- {
		if err := pm.Stop(startupOrder[i]); err != nil {
			log.Error().Err(err).Str("service", startupOrder[i]).Msg("error stopping service")
		}
	}
}
