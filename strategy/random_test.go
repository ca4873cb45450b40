package strategy

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"dispatch/model"
)

func TestRandomBaseline(t *testing.T) {
	Convey("Given the random baseline strategy", t, func() {
		g := planGraph()
		workers := []*model.Transporter{
			stagedWorker("W1", "A", g),
			stagedWorker("W2", "B", g),
		}
		reqs := []*model.Request{
			pendingRequest("A", "B", false),
			pendingRequest("B", "C", false),
			pendingRequest("A", "C", true),
			pendingRequest("C", "A", false),
			pendingRequest("B", "A", false),
		}

		Convey("A fixed seed reproduces the same assignment", func() {
			p1, ok1 := NewRandom(42).Plan(workers, reqs, g)
			p2, ok2 := NewRandom(42).Plan(workers, reqs, g)
			So(ok1, ShouldBeTrue)
			So(ok2, ShouldBeTrue)
			So(p1, ShouldResemble, p2)
		})

		Convey("Every request lands on exactly one worker", func() {
			plan, ok := NewRandom(7).Plan(workers, reqs, g)
			So(ok, ShouldBeTrue)
			So(len(plan["W1"])+len(plan["W2"]), ShouldEqual, len(reqs))
		})

		Convey("Inactive workers never receive assignments", func() {
			workers[1].SetActive(false)
			plan, ok := NewRandom(7).Plan(workers, reqs, g)
			So(ok, ShouldBeTrue)
			So(plan["W1"], ShouldHaveLength, len(reqs))
			So(plan, ShouldNotContainKey, "W2")
			workers[1].SetActive(true)
		})

		Convey("Requests without any active worker is a no-plan", func() {
			w := stagedWorker("W3", "A", g)
			w.SetActive(false)
			_, ok := NewRandom(7).Plan([]*model.Transporter{w}, reqs, g)
			So(ok, ShouldBeFalse)
		})

		Convey("The estimate is a flat unit cost", func() {
			So(NewRandom(1).EstimateTravelTime(g, workers[0], reqs[0]), ShouldEqual, 1)
		})
	})
}

func TestStrategyRegistry(t *testing.T) {
	Convey("Given the strategy registry", t, func() {
		Convey("Every published name constructs", func() {
			for _, name := range []string{NameRandom, NameILPMakespan, NameILPEqual, NameILPUrgency} {
				s, err := New(name, 1, 0)
				So(err, ShouldBeNil)
				So(s, ShouldNotBeNil)
			}
		})

		Convey("ILP names map to their objectives", func() {
			s, _ := New(NameILPUrgency, 1, 0)
			So(s.(*ILP).Mode(), ShouldEqual, ModeUrgencyFirst)
			So(ModeUrgencyFirst.String(), ShouldEqual, "urgency_first")
			So(ModeMakespan.String(), ShouldEqual, "makespan")
			So(ModeEqualWorkload.String(), ShouldEqual, "equal_workload")
		})

		Convey("An unknown name is an error", func() {
			_, err := New("greedy", 1, 0)
			So(err, ShouldNotBeNil)
		})
	})
}
