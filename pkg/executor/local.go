package executor

import (
	"os"
	"os/exec"
	"path"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// killTimeout is the grace period between SIGTERM and SIGKILL on Stop.
const killTimeout = 5 * time.Second

// Local provides the execution environment on the local machine via
// exec.Command. It runs commands as the current user through `sh -c` in a
// dedicated process group, with output redirected to per-task files.
type Local struct {
	outputPrefix string
}

// NewLocal returns a Local instance.
func NewLocal() Local {
	return Local{outputPrefix: "local"}
}

// Name returns user-friendly name of executor.
func (l Local) Name() string {
	return "Local Executor"
}

// Execute runs the command given as input.
// Returned TaskHandle is able to stop & monitor the provisioned process.
func (l Local) Execute(command string) (TaskHandle, error) {
	stdoutFile, stderrFile, err := createOutputFiles(command, l.outputPrefix)
	if err != nil {
		return nil, err
	}

	log.Debugf("starting %q", command)

	cmd := exec.Command("sh", "-c", command)
	// Additional process group for the child and its descendants gives the
	// ability to signal all of them at once on teardown.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdout = stdoutFile
	cmd.Stderr = stderrFile

	if err = cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "starting %q failed", command)
	}

	log.Debugf("started %q with pid %d", command, cmd.Process.Pid)

	t := &localTask{
		command:        command,
		pid:            cmd.Process.Pid,
		cmdHandler:     cmd,
		stdoutFile:     stdoutFile,
		stderrFile:     stderrFile,
		waitEndChannel: make(chan struct{}),
	}

	// Wait for the command in the background.
	go t.watch()

	return t, nil
}

// localTask implements TaskHandle interface for processes spawned by Local.
type localTask struct {
	command        string
	pid            int
	cmdHandler     *exec.Cmd
	stdoutFile     *os.File
	stderrFile     *os.File
	waitEndChannel chan struct{}
	exitCode       int
}

// watch waits for task completion and computes exit code.
// exitCode is published through waitEndChannel close.
func (task *localTask) watch() {
	// Wait returns an error for non-zero exit; the process state below carries
	// everything needed either way.
	task.cmdHandler.Wait()

	waitStatus := task.cmdHandler.ProcessState.Sys().(syscall.WaitStatus)
	if waitStatus.Exited() {
		task.exitCode = waitStatus.ExitStatus()
	} else {
		// Process was killed; encode terminating signal the shell way.
		task.exitCode = 128 + int(waitStatus.Signal())
	}

	log.Debugf("ended %q with exit code %d; stdout in %q, stderr in %q",
		task.command, task.exitCode, task.stdoutFile.Name(), task.stderrFile.Name())

	close(task.waitEndChannel)
}

func (task *localTask) isTerminated() bool {
	select {
	case <-task.waitEndChannel:
		return true
	default:
		return false
	}
}

// Pid returns the identity of the spawned process.
func (task *localTask) Pid() int {
	return task.pid
}

// Status returns a state of the task.
func (task *localTask) Status() TaskState {
	if task.isTerminated() {
		return TERMINATED
	}
	return RUNNING
}

// ExitCode returns the exit code. If task is not terminated it returns error.
func (task *localTask) ExitCode() (int, error) {
	if !task.isTerminated() {
		return 0, errors.Errorf("task %q is not terminated", task.command)
	}
	return task.exitCode, nil
}

// Stop terminates the local task.
// The whole process group receives SIGTERM; after killTimeout without
// termination the group is SIGKILLed. Stopping an already-terminated or
// already-gone task is not an error.
func (task *localTask) Stop() error {
	if task.isTerminated() {
		return nil
	}

	// The kill syscall interprets a negated PID N as the process group N belongs to.
	log.Debugf("sending SIGTERM to process group %d", task.pid)
	if err := syscall.Kill(-task.pid, syscall.SIGTERM); err != nil && err != syscall.ESRCH {
		return errors.Wrapf(err, "sending SIGTERM to process group %d failed", task.pid)
	}

	if task.Wait(killTimeout) {
		return nil
	}

	log.Warnf("process group %d did not terminate within %s; sending SIGKILL",
		task.pid, killTimeout)
	if err := syscall.Kill(-task.pid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
		return errors.Wrapf(err, "sending SIGKILL to process group %d failed", task.pid)
	}

	task.Wait(0)
	return nil
}

// Wait blocks until the process terminates or timeout elapses.
// Zero timeout means wait indefinitely.
func (task *localTask) Wait(timeout time.Duration) bool {
	if task.isTerminated() {
		return true
	}

	if timeout == 0 {
		<-task.waitEndChannel
		return true
	}

	select {
	case <-task.waitEndChannel:
		return true
	case <-time.After(timeout):
		return false
	}
}

// StdoutFile returns a file handle to the task's stdout file.
func (task *localTask) StdoutFile() (*os.File, error) {
	if _, err := task.stdoutFile.Seek(0, 0); err != nil {
		return nil, errors.Wrap(err, "rewinding stdout file failed")
	}
	return task.stdoutFile, nil
}

// StderrFile returns a file handle to the task's stderr file.
func (task *localTask) StderrFile() (*os.File, error) {
	if _, err := task.stderrFile.Seek(0, 0); err != nil {
		return nil, errors.Wrap(err, "rewinding stderr file failed")
	}
	return task.stderrFile, nil
}

// Clean closes the task's stdout & stderr files.
func (task *localTask) Clean() error {
	if err := task.stdoutFile.Close(); err != nil {
		return errors.Wrap(err, "closing stdout file failed")
	}
	if err := task.stderrFile.Close(); err != nil {
		return errors.Wrap(err, "closing stderr file failed")
	}
	return nil
}

// EraseOutput removes the task's output directory with stdout & stderr files.
func (task *localTask) EraseOutput() error {
	outputDir := path.Dir(task.stdoutFile.Name())
	if err := os.RemoveAll(outputDir); err != nil {
		return errors.Wrapf(err, "removing output directory %q failed", outputDir)
	}
	return nil
}
