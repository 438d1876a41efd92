package loadgen

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

const sampleWrkOutput = `Running 5s test @ http://127.0.0.1:9000/
  2 threads and 100 connections
  Thread Stats   Avg      Stdev     Max   +/- Stdev
    Latency     2.50ms    1.20ms  10.00ms   90.00%
    Req/Sec     3.20k   120.00     3.50k    80.00%
  Latency Distribution
     50%    2.40ms
     99%    8.00ms
  31950 requests in 5.00s, 4.00MB read
Requests/sec:   1000.00
Transfer/sec:      0.80MB
`

func TestParseReport(t *testing.T) {
	Convey("While parsing load generator reports", t, func() {
		Convey("A full wrk report yields throughput and latency", func() {
			report, err := ParseReport(sampleWrkOutput)

			So(err, ShouldBeNil)
			So(report.RequestsPerSec, ShouldEqual, 1000.00)
			So(report.LatencyMeanMs, ShouldEqual, 2.50)
		})

		Convey("Latency units are normalized to milliseconds", func() {
			cases := map[string]float64{
				"Latency   12.50ms\nRequests/sec: 1.00":    12.50,
				"Latency   500us\nRequests/sec: 1.00":      0.5,
				"Latency   500µs\nRequests/sec: 1.00": 0.5,
				"Latency   1.2s\nRequests/sec: 1.00":       1200.0,
			}
			for output, expected := range cases {
				report, err := ParseReport(output)
				So(err, ShouldBeNil)
				So(report.LatencyMeanMs, ShouldEqual, expected)
			}
		})

		Convey("An unrecognized latency unit is a hard parse error", func() {
			_, err := ParseReport("Latency   3.00m\nRequests/sec: 1.00")

			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "unrecognized latency unit")
		})

		Convey("Missing Requests/sec figure is an error", func() {
			_, err := ParseReport("Latency   3.00ms")

			So(err, ShouldNotBeNil)
		})

		Convey("Missing Latency figure is an error", func() {
			_, err := ParseReport("Requests/sec: 1000.00")

			So(err, ShouldNotBeNil)
		})
	})
}
