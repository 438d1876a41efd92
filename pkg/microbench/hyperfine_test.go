package microbench

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestParseTimingsMs(t *testing.T) {
	Convey("While parsing timing tool reports", t, func() {
		Convey("The modern schema with nested results is supported", func() {
			data := []byte(`{"results":[{"command":"curl","mean":0.5,"times":[0.25,0.5,1.0]}]}`)

			times, err := ParseTimingsMs(data)

			So(err, ShouldBeNil)
			So(times, ShouldResemble, []float64{250, 500, 1000})
		})

		Convey("The older flat schema is supported", func() {
			data := []byte(`{"times":[0.5,1.5]}`)

			times, err := ParseTimingsMs(data)

			So(err, ShouldBeNil)
			So(times, ShouldResemble, []float64{500, 1500})
		})

		Convey("An unknown schema is a parse error", func() {
			_, err := ParseTimingsMs([]byte(`{"measurements":[1,2,3]}`))

			So(err, ShouldNotBeNil)
		})

		Convey("A report without timings is a parse error", func() {
			_, err := ParseTimingsMs([]byte(`{"results":[{"times":[]}]}`))

			So(err, ShouldNotBeNil)
		})

		Convey("Invalid JSON is a parse error", func() {
			_, err := ParseTimingsMs([]byte(`not json`))

			So(err, ShouldNotBeNil)
		})
	})
}
