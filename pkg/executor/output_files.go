package executor

import (
	"os"
	"path"
	"strings"

	"github.com/pkg/errors"
)

func getBinaryNameFromCommand(command string) (string, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", errors.Errorf("failed to extract command name from %q", command)
	}
	_, name := path.Split(fields[0])
	return name, nil
}

// createOutputFiles creates a dedicated output directory with stdout & stderr
// files for one command invocation. The files are never discarded automatically;
// they are required for postmortem diagnosis of failed runs.
func createOutputFiles(command, prefix string) (stdout, stderr *os.File, err error) {
	if len(command) == 0 {
		return nil, nil, errors.New("empty command string")
	}

	commandName, err := getBinaryNameFromCommand(command)
	if err != nil {
		return nil, nil, err
	}

	pwd, err := os.Getwd()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to get working directory")
	}
	outputDir, err := os.MkdirTemp(pwd, prefix+"_"+commandName+"_")
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to create output directory for %q", commandName)
	}

	stdoutFileName := path.Join(outputDir, "stdout")
	stdout, err = os.Create(stdoutFileName)
	if err != nil {
		return nil, nil, errors.Wrap(err, "creating stdout file failed")
	}

	stderr, err = os.Create(path.Join(outputDir, "stderr"))
	if err != nil {
		os.Remove(stdoutFileName)
		return nil, nil, errors.Wrap(err, "creating stderr file failed")
	}

	return stdout, stderr, nil
}
