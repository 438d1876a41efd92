package executor

import (
	"bufio"
	"os"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// CheckIfProcessFailedToExecute should be checked right after Execute(cmd)
// returns. It returns an error when the command already terminated with a
// non-zero exit code.
//
// Commands usually fail because of wrong parameters or a binary that is not
// installed properly.
func CheckIfProcessFailedToExecute(command string, executorName string, handle TaskHandle) (TaskHandle, error) {
	if handle.Status() == TERMINATED {
		exitCode, err := handle.ExitCode()
		if err != nil {
			log.Errorf("task %q launched on %q failed, cannot get exit code: %s", command, executorName, err.Error())
			LogUnsuccessfulExecution(command, executorName, handle)
			return nil, errors.Errorf("task %q launched on %q failed, cannot get exit code: %s", command, executorName, err.Error())
		}
		if exitCode != 0 {
			log.Errorf("task %q launched on %q failed: exit code %d", command, executorName, exitCode)
			LogUnsuccessfulExecution(command, executorName, handle)
			return nil, errors.Errorf("task %q launched on %q failed: exit code %d", command, executorName, exitCode)
		}
	}

	return handle, nil
}

// LogUnsuccessfulExecution logs where the stdout & stderr of a failed task
// ended up, together with a tail of its stderr.
func LogUnsuccessfulExecution(whatWasExecuted string, whereWasExecuted string, handle TaskHandle) {
	stdoutFile, err := handle.StdoutFile()
	if err == nil {
		log.Errorf("stdout of %q on %q stored in %q", whatWasExecuted, whereWasExecuted, stdoutFile.Name())
	}
	stderrFile, err := handle.StderrFile()
	if err == nil {
		log.Errorf("stderr of %q on %q stored in %q", whatWasExecuted, whereWasExecuted, stderrFile.Name())
	}

	tail := TailOutput(handle, 20)
	if tail != "" {
		log.Errorf("output tail of %q:\n%s", whatWasExecuted, tail)
	}
}

// TailOutput returns up to maxLines last lines of the task's combined
// stderr and stdout. Used on fatal paths for postmortem diagnosis.
func TailOutput(handle TaskHandle, maxLines int) string {
	var lines []string
	for _, open := range []func() (*os.File, error){handle.StderrFile, handle.StdoutFile} {
		file, err := open()
		if err != nil {
			continue
		}
		lines = append(lines, tailFile(file, maxLines)...)
	}
	return strings.Join(lines, "\n")
}

func tailFile(file *os.File, maxLines int) []string {
	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > maxLines {
			lines = lines[1:]
		}
	}
	return lines
}
