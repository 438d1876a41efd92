package conf

import (
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	. "github.com/smartystreets/goconvey/convey"
)

var (
	testStringFlag   = NewStringFlag("test_string_flag", "test", "default")
	testIntFlag      = NewIntFlag("test_int_flag", "test", 23)
	testBoolFlag     = NewBoolFlag("test_bool_flag", "test", false)
	testDurationFlag = NewDurationFlag("test_duration_flag", "test", 99)
	testSliceFlag    = NewSliceFlag("test_slice_flag", "test", "hello", "compute")
)

func TestConf(t *testing.T) {
	Convey("While using conf package", t, func() {
		Convey("Default log level is returned before parse", func() {
			So(LogLevel(), ShouldEqual, logrus.InfoLevel)
		})

		Convey("String flag returns default value before parse", func() {
			So(testStringFlag.Value(), ShouldEqual, "default")
		})

		Convey("When we set the corresponding environment variables", func() {
			So(os.Setenv(testStringFlag.envName(), "custom"), ShouldBeNil)
			So(os.Setenv(testIntFlag.envName(), "42"), ShouldBeNil)
			So(os.Setenv(testBoolFlag.envName(), "true"), ShouldBeNil)
			So(os.Setenv(testDurationFlag.envName(), "10s"), ShouldBeNil)
			defer testStringFlag.clear()
			defer testIntFlag.clear()
			defer testBoolFlag.clear()
			defer testDurationFlag.clear()

			Convey("After parse the flags return values from environment", func() {
				So(ParseEnv(), ShouldBeNil)
				So(testStringFlag.Value(), ShouldEqual, "custom")
				So(testIntFlag.Value(), ShouldEqual, 42)
				So(testBoolFlag.Value(), ShouldBeTrue)
				So(testDurationFlag.Value().Seconds(), ShouldEqual, 10)
			})
		})
	})
}

func TestSliceFlag(t *testing.T) {
	Convey("While using a slice flag", t, func() {
		Convey("Its value has both default elements", func() {
			So(testSliceFlag.Value(), ShouldResemble, []string{"hello", "compute"})
		})

		Convey("Environment overrides the default list", func() {
			So(os.Setenv(testSliceFlag.envName(), "proxy"), ShouldBeNil)
			defer testSliceFlag.clear()

			So(ParseEnv(), ShouldBeNil)
			So(testSliceFlag.Value(), ShouldResemble, []string{"proxy"})

			Convey("Parsing again does not duplicate elements", func() {
				So(ParseEnv(), ShouldBeNil)
				So(testSliceFlag.Value(), ShouldResemble, []string{"proxy"})
			})
		})

		Convey("The flag accepts being repeated on the command line", func() {
			originalArgs := os.Args
			os.Args = []string{"gwbench",
				"--test_slice_flag=native_local",
				"--test_slice_flag=wasm_host_cli,wasm_container",
			}
			defer func() { os.Args = originalArgs }()

			So(ParseFlags(), ShouldBeNil)
			So(testSliceFlag.Value(), ShouldResemble,
				[]string{"native_local", "wasm_host_cli", "wasm_container"})
		})
	})
}
