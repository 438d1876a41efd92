// Package executor provides the execution environment for benchmarked server
// processes and for the external measurement tools (load generator, timing
// tool). Commands are executed asynchronously and monitored through TaskHandle.
package executor

// Executor is responsible for creating execution environment for given command.
// It returns a TaskHandle when the command started gracefully.
// The command is executed asynchronously.
type Executor interface {
	// Execute executes command on underlying platform.
	Execute(command string) (TaskHandle, error)
	// Name returns user-friendly name of executor.
	Name() string
}
