package variant

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestVariantValidate(t *testing.T) {
	Convey("While validating variant configuration", t, func() {
		base := Variant{
			Name:         "native_local",
			Mode:         ModeBare,
			StartCommand: "./gateway-native --port 9000",
			Port:         9000,
		}

		Convey("A complete bare variant is valid", func() {
			So(base.Validate(), ShouldBeNil)
		})

		Convey("Missing name, command or port are rejected", func() {
			v := base
			v.Name = ""
			So(v.Validate(), ShouldNotBeNil)

			v = base
			v.StartCommand = ""
			So(v.Validate(), ShouldNotBeNil)

			v = base
			v.Port = 0
			So(v.Validate(), ShouldNotBeNil)
		})

		Convey("A docker variant requires a container name", func() {
			v := base
			v.Mode = ModeDocker
			So(v.Validate(), ShouldNotBeNil)

			v.ContainerName = "gwbench-native"
			So(v.Validate(), ShouldBeNil)
		})

		Convey("A subprocess variant requires a helper process name", func() {
			v := base
			v.Mode = ModeSubprocess
			So(v.Validate(), ShouldNotBeNil)

			v.HelperProcess = "wasmedge"
			So(v.Validate(), ShouldBeNil)
		})

		Convey("An unknown mode is rejected", func() {
			v := base
			v.Mode = "systemd"
			So(v.Validate(), ShouldNotBeNil)
		})
	})
}

func TestVariantURLs(t *testing.T) {
	Convey("Variant URLs derive from the benchmark port", t, func() {
		v := Variant{Name: "a", Mode: ModeBare, StartCommand: "./srv", Port: 9000}

		So(v.BaseURL(), ShouldEqual, "http://127.0.0.1:9000")
		So(v.HealthURL(), ShouldEqual, "http://127.0.0.1:9000/health")
	})
}

func TestDeploymentFor(t *testing.T) {
	Convey("While selecting deployment behavior by mode", t, func() {
		Convey("Bare and subprocess modes resolve without a container runtime", func() {
			bare, err := DeploymentFor(Variant{Name: "a", Mode: ModeBare, StartCommand: "./srv", Port: 9000})
			So(err, ShouldBeNil)
			So(bare.HelperSamplable(), ShouldBeFalse)

			sub, err := DeploymentFor(Variant{
				Name: "b", Mode: ModeSubprocess, StartCommand: "./srv",
				Port: 9000, HelperProcess: "wasmedge",
			})
			So(err, ShouldBeNil)
			So(sub.HelperSamplable(), ShouldBeTrue)
		})

		Convey("An invalid variant is rejected up front", func() {
			_, err := DeploymentFor(Variant{Name: "broken"})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestInjectUpstreamNetwork(t *testing.T) {
	Convey("While joining the upstream container network namespace", t, func() {
		Convey("A docker run command gets the network flag injected", func() {
			command := InjectUpstreamNetwork("docker run --rm -p 9000:9000 gwbench-native", "upstream")

			So(command, ShouldEqual,
				"docker run --network container:upstream --rm -p 9000:9000 gwbench-native")
		})

		Convey("Commands already pinned to a network are left alone", func() {
			command := "docker run --network host gwbench-native"
			So(InjectUpstreamNetwork(command, "upstream"), ShouldEqual, command)
		})

		Convey("Non-docker commands and empty upstream are left alone", func() {
			So(InjectUpstreamNetwork("./gateway-native", "upstream"), ShouldEqual, "./gateway-native")
			So(InjectUpstreamNetwork("docker run x", ""), ShouldEqual, "docker run x")
		})
	})
}
