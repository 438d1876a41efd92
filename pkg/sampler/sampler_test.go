package sampler

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

type fakeTarget struct {
	alive   bool
	rssKB   uint64
	cpuPct  float64
	failing bool
}

func (t *fakeTarget) Name() string { return "fake" }
func (t *fakeTarget) Alive() bool  { return t.alive }
func (t *fakeTarget) Sample() (uint64, float64, error) {
	if t.failing {
		return 0, 0, os.ErrPermission
	}
	return t.rssKB, t.cpuPct, nil
}

func TestSampler(t *testing.T) {
	Convey("While using Sampler", t, func() {
		Convey("When target produces readings", func() {
			target := &fakeTarget{alive: true, rssKB: 1024, cpuPct: 50}
			s := Start(target, 5*time.Millisecond)
			time.Sleep(60 * time.Millisecond)
			series := s.Stop()

			Convey("Series contains appended rows", func() {
				So(len(series), ShouldBeGreaterThan, 0)
				So(series[0].RSSKB, ShouldEqual, 1024)
				So(series[0].CPUPct, ShouldEqual, 50)
			})

			Convey("Stop is idempotent and returns the same series", func() {
				So(len(s.Stop()), ShouldEqual, len(series))
			})
		})

		Convey("When every read fails, ticks are skipped without ending the loop", func() {
			target := &fakeTarget{alive: true, failing: true}
			s := Start(target, 5*time.Millisecond)
			time.Sleep(30 * time.Millisecond)
			series := s.Stop()

			So(len(series), ShouldEqual, 0)
		})

		Convey("When target is dead the loop ends on its own", func() {
			target := &fakeTarget{alive: false, rssKB: 1}
			s := Start(target, 5*time.Millisecond)
			time.Sleep(30 * time.Millisecond)
			series := s.Stop()

			So(len(series), ShouldEqual, 0)
		})
	})
}

func TestSeriesAggregate(t *testing.T) {
	Convey("While aggregating a series", t, func() {
		Convey("Empty series yields all-zero usage, never an error", func() {
			So(Series{}.Aggregate(), ShouldResemble, Usage{})
			So(Series(nil).Aggregate(), ShouldResemble, Usage{})
		})

		Convey("Mean and peak are computed across samples", func() {
			series := Series{
				{RSSKB: 100, CPUPct: 10},
				{RSSKB: 300, CPUPct: 30},
				{RSSKB: 200, CPUPct: 20},
			}
			usage := series.Aggregate()

			So(usage.RSSAvgKB, ShouldEqual, 200)
			So(usage.RSSPeakKB, ShouldEqual, 300)
			So(usage.CPUAvgPct, ShouldEqual, 20)
			So(usage.CPUPeakPct, ShouldEqual, 30)
		})
	})
}

func TestSeriesWriteCSV(t *testing.T) {
	Convey("While storing a series to CSV", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "series", "cell.csv")

		series := Series{
			{Time: time.UnixMilli(1000), RSSKB: 512, CPUPct: 12.5},
		}
		So(series.WriteCSV(path), ShouldBeNil)

		data, err := os.ReadFile(path)
		So(err, ShouldBeNil)
		So(string(data), ShouldEqual, "ts_ms,rss_kb,cpu_pct\n1000,512,12.50\n")
	})
}

func TestProcessTarget(t *testing.T) {
	Convey("While sampling the test process itself", t, func() {
		target, err := NewProcessTarget("self", os.Getpid(), os.Getpid())
		So(err, ShouldBeNil)

		So(target.Alive(), ShouldBeTrue)

		rssKB, _, err := target.Sample()
		So(err, ShouldBeNil)
		So(rssKB, ShouldBeGreaterThan, 0)
	})
}
