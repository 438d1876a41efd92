package conf

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"gopkg.in/alecthomas/kingpin.v2"
)

func TestStringListValue(t *testing.T) {
	Convey("While using the custom string list parser", t, func() {
		listValue := new(stringListValue)

		Convey("It should implement the kingpin.Value interface", func() {
			So(listValue, ShouldImplement, (*kingpin.Value)(nil))
			So(listValue.IsCumulative(), ShouldBeTrue)
		})

		Convey("When parsing string inputs it should append them to the slice", func() {
			So(listValue.Set("A"), ShouldBeNil)
			So(*listValue, ShouldResemble, stringListValue{"A"})

			So(listValue.Set("B"), ShouldBeNil)
			So(*listValue, ShouldResemble, stringListValue{"A", "B"})

			So(listValue.Set("C,D"), ShouldBeNil)
			So(*listValue, ShouldResemble, stringListValue{"A", "B", "C", "D"})

			So(listValue.String(), ShouldEqual, "A,B,C,D")
		})
	})
}
