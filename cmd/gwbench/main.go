package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wasmbench/gwbench/pkg/conf"
	"github.com/wasmbench/gwbench/pkg/runner"
	"github.com/wasmbench/gwbench/pkg/variant"
)

// check logs the error and exits if it is non-nil.
func check(err error) {
	if err != nil {
		logrus.Debugf("%+v", err)
		logrus.Fatalf("%v", err)
	}
}

func checkWithContext(err error, context string) {
	if err != nil {
		logrus.Debugf("%s: %+v", context, err)
		logrus.Fatalf("%s: %v", context, err)
	}
}

var (
	protocolFlag = conf.NewStringFlag("protocol",
		"Benchmark protocol to run: throughput, coldstart, warmlatency or all.", "throughput")
	variantsFlag = conf.NewSliceFlag("variant",
		"Variant to benchmark. Can be stated many times (--variant=native_local --variant=wasm_host_cli).",
		"native_local", "native_docker", "wasm_host_cli", "wasm_host_wasmtime")
	workloadsFlag = conf.NewSliceFlag("workload",
		"Workload to measure: hello, compute or proxy. Can be stated many times.",
		"hello", "compute")

	// Variant launch configuration.
	nativeLocalCmdFlag = conf.NewStringFlag("native_local_cmd",
		"Start command of the native gateway binary.", "./bin/gateway_native")
	nativeDockerCmdFlag = conf.NewStringFlag("native_docker_cmd",
		"Start command of the containerized native gateway.",
		"docker run --rm --name gwbench_native -p 8080:8080 gwbench/native")
	wasmCliCmdFlag = conf.NewStringFlag("wasm_host_cli_cmd",
		"Start command of the host gateway spawning a wasmedge process per request.",
		"./bin/gateway_host --runtime wasmedge-cli")
	wasmtimeCmdFlag = conf.NewStringFlag("wasm_host_wasmtime_cmd",
		"Start command of the host gateway with the embedded Wasmtime runtime.",
		"./bin/gateway_host --runtime wasmtime-embedded")
	containerNameFlag = conf.NewStringFlag("container_name",
		"Container name of the docker variant.", "gwbench_native")
	helperProcessFlag = conf.NewStringFlag("helper_process",
		"Process name prefix of the per-request helper in subprocess mode.", "wasmedge")
	portFlag = conf.NewIntFlag("port", "TCP port every variant listens on.", 8080)

	// Throughput protocol.
	threadsFlag     = conf.NewIntFlag("threads", "Number of load generator threads.", 2)
	connectionsFlag = conf.NewSliceFlag("connections",
		"Concurrent connection count per cell. Can be stated many times.", "10", "50", "100")
	durationFlag = conf.NewDurationFlag("duration",
		"Load duration per measurement cell.", 30*time.Second)
	warmupRequestsFlag = conf.NewIntFlag("warmup_requests",
		"Best-effort warm-up requests before each cell.", 100)

	// Cold-start protocol.
	coldStartIterationsFlag = conf.NewIntFlag("cold_start_iterations",
		"Launch-to-ready iterations per variant.", 10)

	// Warm-latency protocol.
	hyperfineWarmupFlag = conf.NewIntFlag("hyperfine_warmup",
		"Warm-up runs before the timed hyperfine runs.", 3)
	hyperfineRunsFlag = conf.NewIntFlag("hyperfine_runs",
		"Timed hyperfine runs per workload.", 20)

	computeItersFlag = conf.NewIntFlag("compute_iters",
		"Hash iterations requested by the compute workload.", 20000)
	sampleIntervalFlag = conf.NewDurationFlag("sample_interval",
		"Resource sampling period.", 200*time.Millisecond)
	probeAttemptsFlag = conf.NewIntFlag("probe_attempts",
		"Readiness probe attempts before a variant is declared failed.", 50)
	probeIntervalFlag = conf.NewDurationFlag("probe_interval",
		"Delay between readiness probe attempts.", 100*time.Millisecond)

	outputDirFlag = conf.NewStringFlag("output_dir",
		"Directory for result tables and raw sample series.", "results")
	accumulateFlag = conf.NewBoolFlag("accumulate",
		"Append to existing result tables instead of resetting them.", false)
	wrkPathFlag       = conf.NewStringFlag("wrk_path", "Path to the wrk binary.", "wrk")
	hyperfinePathFlag = conf.NewStringFlag("hyperfine_path", "Path to the hyperfine binary.", "hyperfine")

	upstreamURLFlag = conf.NewStringFlag("upstream_url",
		"Upstream service URL required by the proxy workload.", "http://127.0.0.1:18080")
	upstreamContainerFlag = conf.NewStringFlag("upstream_container",
		"Upstream container name the docker variant joins for the proxy workload.", "")
)

func buildVariants() []variant.Variant {
	port := portFlag.Value()
	catalog := map[string]variant.Variant{
		"native_local": {
			Name:         "native_local",
			Mode:         variant.ModeBare,
			StartCommand: nativeLocalCmdFlag.Value(),
			Port:         port,
		},
		"native_docker": {
			Name:          "native_docker",
			Mode:          variant.ModeDocker,
			StartCommand:  nativeDockerCmdFlag.Value(),
			Port:          port,
			ContainerName: containerNameFlag.Value(),
		},
		"wasm_host_cli": {
			Name:          "wasm_host_cli",
			Mode:          variant.ModeSubprocess,
			StartCommand:  wasmCliCmdFlag.Value(),
			Port:          port,
			HelperProcess: helperProcessFlag.Value(),
		},
		"wasm_host_wasmtime": {
			Name:         "wasm_host_wasmtime",
			Mode:         variant.ModeBare,
			StartCommand: wasmtimeCmdFlag.Value(),
			Port:         port,
		},
	}

	var variants []variant.Variant
	for _, name := range variantsFlag.Value() {
		v, ok := catalog[name]
		if !ok {
			check(fmt.Errorf("unknown variant %q", name))
		}
		// The proxy workload reaches the upstream by joining its network
		// namespace in docker mode.
		if v.Mode == variant.ModeDocker && upstreamContainerFlag.Value() != "" {
			v.StartCommand = variant.InjectUpstreamNetwork(v.StartCommand, upstreamContainerFlag.Value())
		}
		variants = append(variants, v)
	}
	return variants
}

func buildWorkloads() []runner.Workload {
	catalog := map[string]runner.Workload{
		"hello":   {Name: "hello", Path: "/"},
		"compute": {Name: "compute", Path: fmt.Sprintf("/compute?iters=%d", computeItersFlag.Value())},
		"proxy":   {Name: "proxy", Path: "/state"},
	}

	var workloads []runner.Workload
	for _, name := range workloadsFlag.Value() {
		w, ok := catalog[name]
		if !ok {
			check(fmt.Errorf("unknown workload %q", name))
		}
		workloads = append(workloads, w)
	}
	return workloads
}

func buildConnections() []int {
	var connections []int
	for _, raw := range connectionsFlag.Value() {
		value, err := strconv.Atoi(raw)
		checkWithContext(err, "parsing --connections")
		connections = append(connections, value)
	}
	return connections
}

func main() {
	conf.SetAppName("gwbench")
	conf.SetHelp(`Gateway benchmark orchestration engine.
It launches each configured gateway variant, drives cold-start, warm-latency and throughput
protocols against it and persists aggregated resource and latency tables.`)

	check(conf.ParseFlags())
	logrus.SetLevel(conf.LogLevel())

	config := runner.Config{
		Variants:  buildVariants(),
		Workloads: buildWorkloads(),

		Threads:        threadsFlag.Value(),
		Connections:    buildConnections(),
		Duration:       durationFlag.Value(),
		WarmupRequests: warmupRequestsFlag.Value(),

		ColdStartIterations: coldStartIterationsFlag.Value(),

		HyperfineWarmup: hyperfineWarmupFlag.Value(),
		HyperfineRuns:   hyperfineRunsFlag.Value(),

		SampleInterval: sampleIntervalFlag.Value(),
		ProbeAttempts:  probeAttemptsFlag.Value(),
		ProbeInterval:  probeIntervalFlag.Value(),

		OutputDir:  outputDirFlag.Value(),
		Accumulate: accumulateFlag.Value(),

		WrkPath:       wrkPathFlag.Value(),
		HyperfinePath: hyperfinePathFlag.Value(),

		UpstreamURL: upstreamURLFlag.Value(),
	}

	benchRunner := runner.New(config)
	stopListening := benchRunner.Coordinator().HandleInterrupts()
	defer stopListening()

	switch protocolFlag.Value() {
	case "throughput":
		check(benchRunner.RunThroughput())
	case "coldstart":
		check(benchRunner.RunColdStart())
	case "warmlatency":
		check(benchRunner.RunWarmLatency())
	case "all":
		check(benchRunner.RunColdStart())
		check(benchRunner.RunWarmLatency())
		check(benchRunner.RunThroughput())
	default:
		check(fmt.Errorf("unknown protocol %q", protocolFlag.Value()))
	}
}
