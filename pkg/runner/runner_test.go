package runner

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/wasmbench/gwbench/pkg/executor"
	"github.com/wasmbench/gwbench/pkg/sampler"
	"github.com/wasmbench/gwbench/pkg/teardown"
	"github.com/wasmbench/gwbench/pkg/variant"
)

const fakeWrkReport = `Running 5s test @ http://127.0.0.1:8080/
  2 threads and 100 connections
  Thread Stats   Avg      Stdev     Max   +/- Stdev
    Latency     2.50ms    1.10ms  30.00ms   90.11%
    Req/Sec   500.00     60.00     700.00    71.00%
  Latency Distribution
     50%    2.30ms
     99%    9.80ms
  5000 requests in 5.00s, 1.20MB read
Requests/sec:   1000.00
Transfer/sec:      0.24MB
`

type fakeTask struct {
	pid        int
	terminated bool
	exitCode   int
	stdout     *os.File
	stopped    int
	waitResult bool
}

func newFakeTask(t *testing.T, stdout string, waitResult bool) *fakeTask {
	file, err := os.CreateTemp(t.TempDir(), "fake_stdout")
	if err != nil {
		t.Fatal(err)
	}
	file.WriteString(stdout)
	file.Seek(0, 0)
	return &fakeTask{pid: 1234, stdout: file, waitResult: waitResult, terminated: waitResult}
}

func (f *fakeTask) Stop() error {
	f.stopped++
	f.terminated = true
	return nil
}

func (f *fakeTask) Status() executor.TaskState {
	if f.terminated {
		return executor.TERMINATED
	}
	return executor.RUNNING
}

func (f *fakeTask) ExitCode() (int, error) {
	if !f.terminated {
		return 0, errors.New("task is not terminated")
	}
	return f.exitCode, nil
}

func (f *fakeTask) Pid() int { return f.pid }

func (f *fakeTask) StdoutFile() (*os.File, error) {
	f.stdout.Seek(0, 0)
	return f.stdout, nil
}

func (f *fakeTask) StderrFile() (*os.File, error) {
	return nil, errors.New("no stderr")
}

func (f *fakeTask) Wait(timeout time.Duration) bool { return f.waitResult }
func (f *fakeTask) Clean() error                    { return nil }
func (f *fakeTask) EraseOutput() error              { return nil }

// fakeExecutor serves load generator invocations with a canned report.
type fakeExecutor struct {
	t          *testing.T
	output     string
	waitResult bool
	commands   []string
}

func (f *fakeExecutor) Execute(command string) (executor.TaskHandle, error) {
	f.commands = append(f.commands, command)
	return newFakeTask(f.t, f.output, f.waitResult), nil
}

func (f *fakeExecutor) Name() string { return "Fake Executor" }

type fakeTarget struct {
	name string
}

func (f fakeTarget) Name() string                     { return f.name }
func (f fakeTarget) Alive() bool                      { return true }
func (f fakeTarget) Sample() (uint64, float64, error) { return 512, 10.0, nil }

type fakeDeployment struct {
	t         *testing.T
	variant   variant.Variant
	launches  int
	teardowns int
	helper    bool
}

func (f *fakeDeployment) Launch(exec executor.Executor) (*variant.Handle, error) {
	f.launches++
	return &variant.Handle{
		Variant: f.variant,
		Task:    newFakeTask(f.t, "server log line", false),
	}, nil
}

func (f *fakeDeployment) SampleTargets(h *variant.Handle) ([]sampler.Target, error) {
	targets := []sampler.Target{fakeTarget{name: variant.GatewayTarget}}
	if f.helper {
		targets = append(targets, fakeTarget{name: variant.HelperTarget})
	}
	return targets, nil
}

func (f *fakeDeployment) Teardown(h *variant.Handle) error {
	f.teardowns++
	return nil
}

func (f *fakeDeployment) HelperSamplable() bool { return f.helper }

// recordingCleanup captures sampler stop registrations made during a cell.
type recordingCleanup struct {
	stops   []func()
	cleared int
}

func (r *recordingCleanup) AddSamplerStop(stop func()) { r.stops = append(r.stops, stop) }
func (r *recordingCleanup) ClearSamplerStops()         { r.cleared++ }

type fakeResolver struct {
	freed []int
	err   error
}

func (f *fakeResolver) EnsureFree(port int) error {
	f.freed = append(f.freed, port)
	return f.err
}

type fakeProber struct {
	calls int
	err   error
}

func (f *fakeProber) WaitReady(healthURL string) error {
	f.calls++
	return f.err
}

func testVariant(name string) variant.Variant {
	return variant.Variant{
		Name:         name,
		Mode:         variant.ModeBare,
		StartCommand: "./server",
		Port:         8080,
	}
}

func testRunner(t *testing.T, config Config, deployment *fakeDeployment, wrkExec *fakeExecutor, prober *fakeProber) (*Runner, *fakeResolver) {
	resolver := &fakeResolver{}
	runner := &Runner{
		config:      config,
		exec:        wrkExec,
		resolver:    resolver,
		prober:      prober,
		coordinator: teardown.NewCoordinator(),
		deployFor: func(v variant.Variant) (variant.Deployment, error) {
			deployment.variant = v
			return deployment, nil
		},
		verifyListener: func(port, launchedPid int) error { return nil },
		lookPath:       func(file string) (string, error) { return "/usr/bin/" + file, nil },
		now:            func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
	}
	return runner, resolver
}

func throughputConfig(t *testing.T) Config {
	return Config{
		Variants:       []variant.Variant{testVariant("native_local")},
		Workloads:      []Workload{{Name: "hello", Path: "/"}},
		Threads:        2,
		Connections:    []int{100},
		Duration:       time.Second,
		SampleInterval: 10 * time.Millisecond,
		OutputDir:      t.TempDir(),
		WrkPath:        "wrk",
	}
}

func TestPreflight(t *testing.T) {
	Convey("While checking run prerequisites", t, func() {
		config := throughputConfig(t)
		deployment := &fakeDeployment{t: t}
		runner, _ := testRunner(t, config, deployment, &fakeExecutor{t: t}, &fakeProber{})

		Convey("All tools present passes", func() {
			So(runner.preflight([]string{"wrk"}), ShouldBeNil)
		})

		Convey("A missing tool aborts before any variant starts", func() {
			runner.lookPath = func(file string) (string, error) {
				return "", errors.New("not found")
			}
			err := runner.preflight([]string{"wrk"})
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, `required tool "wrk" not found`)
			So(deployment.launches, ShouldEqual, 0)
		})

		Convey("A docker variant additionally requires the docker binary", func() {
			runner.config.Variants = append(runner.config.Variants, variant.Variant{
				Name:          "native_docker",
				Mode:          variant.ModeDocker,
				StartCommand:  "docker run img",
				Port:          8081,
				ContainerName: "gw",
			})
			var checked []string
			runner.lookPath = func(file string) (string, error) {
				checked = append(checked, file)
				return "/usr/bin/" + file, nil
			}
			So(runner.preflight([]string{"wrk"}), ShouldBeNil)
			So(checked, ShouldResemble, []string{"wrk", "docker"})
		})

		Convey("An incomplete variant is rejected", func() {
			runner.config.Variants[0].Port = 0
			err := runner.preflight(nil)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "has no port")
		})
	})
}

func TestRunThroughput(t *testing.T) {
	Convey("While running the throughput protocol", t, func() {
		config := throughputConfig(t)

		Convey("A healthy variant produces one row per cell", func() {
			deployment := &fakeDeployment{t: t}
			wrkExec := &fakeExecutor{t: t, output: fakeWrkReport, waitResult: true}
			prober := &fakeProber{}
			runner, resolver := testRunner(t, config, deployment, wrkExec, prober)

			So(runner.RunThroughput(), ShouldBeNil)

			So(resolver.freed, ShouldResemble, []int{8080})
			So(deployment.launches, ShouldEqual, 1)
			So(deployment.teardowns, ShouldEqual, 1)
			So(prober.calls, ShouldEqual, 1)

			data, err := os.ReadFile(filepath.Join(config.OutputDir, "throughput.csv"))
			So(err, ShouldBeNil)
			lines := strings.Split(strings.TrimSpace(string(data)), "\n")
			So(len(lines), ShouldEqual, 2)
			So(lines[1], ShouldContainSubstring, "native_local,hello,2,100,1.00,1000.00,2.50")

			_, err = os.Stat(filepath.Join(config.OutputDir, "throughput_analysis.csv"))
			So(err, ShouldBeNil)
		})

		Convey("A stalled load generator records a marked row and continues", func() {
			deployment := &fakeDeployment{t: t}
			wrkExec := &fakeExecutor{t: t, waitResult: false}
			runner, _ := testRunner(t, config, deployment, wrkExec, &fakeProber{})

			So(runner.RunThroughput(), ShouldBeNil)
			So(deployment.teardowns, ShouldEqual, 1)

			data, err := os.ReadFile(filepath.Join(config.OutputDir, "throughput.csv"))
			So(err, ShouldBeNil)
			lines := strings.Split(strings.TrimSpace(string(data)), "\n")
			So(len(lines), ShouldEqual, 2)
			So(lines[1], ShouldEndWith, ",1")
		})

		Convey("Sampler stops are registered for interrupt cleanup, then cleared", func() {
			deployment := &fakeDeployment{t: t, helper: true}
			wrkExec := &fakeExecutor{t: t, output: fakeWrkReport, waitResult: true}
			runner, _ := testRunner(t, config, deployment, wrkExec, &fakeProber{})

			v := testVariant("native_local")
			deployment.variant = v
			handle := &variant.Handle{Variant: v, Task: newFakeTask(t, "server log line", false)}
			cleanup := &recordingCleanup{}

			_, err := runner.runCell(v, deployment, handle, cleanup,
				Workload{Name: "hello", Path: "/"}, 100)
			So(err, ShouldBeNil)

			So(len(cleanup.stops), ShouldEqual, 2)
			So(cleanup.cleared, ShouldEqual, 1)
			for _, stop := range cleanup.stops {
				So(stop, ShouldNotPanic)
			}
		})

		Convey("A variant that never becomes ready is skipped, not fatal", func() {
			deployment := &fakeDeployment{t: t}
			prober := &fakeProber{err: errors.New("health check failed")}
			runner, _ := testRunner(t, config, deployment, &fakeExecutor{t: t}, prober)

			So(runner.RunThroughput(), ShouldBeNil)
			So(deployment.teardowns, ShouldEqual, 1)

			data, err := os.ReadFile(filepath.Join(config.OutputDir, "throughput.csv"))
			So(err, ShouldBeNil)
			So(len(strings.Split(strings.TrimSpace(string(data)), "\n")), ShouldEqual, 1)
		})
	})
}

func TestRunColdStart(t *testing.T) {
	Convey("While running the cold-start protocol", t, func() {
		config := throughputConfig(t)
		config.ColdStartIterations = 3

		Convey("Each iteration launches fresh and records one row", func() {
			deployment := &fakeDeployment{t: t}
			runner, resolver := testRunner(t, config, deployment, &fakeExecutor{t: t}, &fakeProber{})

			So(runner.RunColdStart(), ShouldBeNil)

			So(deployment.launches, ShouldEqual, 3)
			So(deployment.teardowns, ShouldEqual, 3)
			So(resolver.freed, ShouldResemble, []int{8080, 8080, 8080})

			data, err := os.ReadFile(filepath.Join(config.OutputDir, "cold_start.csv"))
			So(err, ShouldBeNil)
			lines := strings.Split(strings.TrimSpace(string(data)), "\n")
			So(len(lines), ShouldEqual, 4)
			So(lines[1], ShouldContainSubstring, "native_local")
		})

		Convey("A variant failing readiness skips its remaining iterations", func() {
			deployment := &fakeDeployment{t: t}
			prober := &fakeProber{err: errors.New("health check failed")}
			runner, _ := testRunner(t, config, deployment, &fakeExecutor{t: t}, prober)

			So(runner.RunColdStart(), ShouldBeNil)
			So(deployment.launches, ShouldEqual, 1)
			So(deployment.teardowns, ShouldEqual, 1)
		})
	})
}

func TestWorkloadURL(t *testing.T) {
	Convey("Workload endpoints resolve against a variant's base URL", t, func() {
		v := testVariant("native_local")
		So(Workload{Name: "hello", Path: "/"}.URL(v.BaseURL()), ShouldEqual, "http://127.0.0.1:8080/")
		So(Workload{Name: "compute", Path: "/compute?n=35"}.URL(v.BaseURL()),
			ShouldEqual, "http://127.0.0.1:8080/compute?n=35")
	})
}
