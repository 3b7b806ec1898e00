package sampler

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/bdsim/internal/dynamo"
	"github.com/san-kum/bdsim/internal/sim"
)

var _ = Describe("state transitions", func() {
	var (
		host  *sim.Context
		other *sim.Context
	)

	BeforeEach(func() {
		host = newHost([]float64{1, 1})
		other = newHost([]float64{1, 1})
	})

	Context("when unbound", func() {
		It("binds and asks for a kernel", func() {
			next, eff, err := state{}.bind(host)
			Expect(err).NotTo(HaveOccurred())
			Expect(eff).To(Equal(effectInitKernel))
			Expect(next.phase).To(Equal(phaseBound))
		})

		It("refuses a nil context", func() {
			_, _, err := state{}.bind(nil)
			Expect(err).To(MatchError(dynamo.ErrNotBound))
		})

		It("is not ready", func() {
			Expect(state{}.requireReady()).To(MatchError(dynamo.ErrNotBound))
			_, err := state{}.ready(dynamo.Snapshot{})
			Expect(err).To(MatchError(dynamo.ErrNotBound))
		})

		It("releases nothing", func() {
			next, eff := state{}.release()
			Expect(eff).To(Equal(effectNone))
			Expect(next.phase).To(Equal(phaseUnbound))
		})
	})

	Context("when bound", func() {
		var s state

		BeforeEach(func() {
			var err error
			s, _, err = state{}.bind(host)
			Expect(err).NotTo(HaveOccurred())
		})

		It("treats rebinding the same host as a no-op", func() {
			next, eff, err := s.bind(host)
			Expect(err).NotTo(HaveOccurred())
			Expect(eff).To(Equal(effectNone))
			Expect(next).To(Equal(s))
		})

		It("rejects a different host without changing state", func() {
			next, _, err := s.bind(other)
			Expect(err).To(MatchError(dynamo.ErrAlreadyBound))
			Expect(next.host).To(BeIdenticalTo(s.host))
		})

		It("needs a snapshot before stepping", func() {
			Expect(s.requireReady()).To(MatchError(dynamo.ErrNotReady))
		})

		It("becomes ready with a snapshot", func() {
			snap := host.State(dynamo.Positions)
			next, err := s.ready(snap)
			Expect(err).NotTo(HaveOccurred())
			Expect(next.phase).To(Equal(phaseReady))
			Expect(next.snapshot.Positions).To(Equal(snap.Positions))
			Expect(s.phase).To(Equal(phaseBound))
		})

		It("releases the kernel on cleanup", func() {
			next, eff := s.release()
			Expect(eff).To(Equal(effectReleaseKernel))
			Expect(next).To(Equal(state{}))
		})
	})
})

var _ = Describe("front-end protocol", func() {
	for _, scheme := range []string{"random_walk", "indirect_reconstruction", "damped_reconstruction"} {
		scheme := scheme

		Describe(scheme, func() {
			var (
				s    Sampler
				host *sim.Context
			)

			BeforeEach(func() {
				s = allSchemes(2024)[scheme]
				host = newHost([]float64{1, 0.5, 0, 2})
				Expect(s.Bind(host)).To(Succeed())
				Expect(s.SetupSampler()).To(Succeed())
			})

			AfterEach(func() {
				s.Cleanup()
			})

			It("rolls back any number of steps bit for bit", func() {
				prev, err := s.PreviousState()
				Expect(err).NotTo(HaveOccurred())

				for i := 0; i < 4; i++ {
					Expect(s.Step(3)).To(Succeed())
				}
				Expect(s.Accepted(false)).To(Succeed())

				Expect(host.Positions()).To(Equal(prev.Positions))
				Expect(host.Energy()).To(Equal(prev.Energy))
				if prev.Mask.Has(dynamo.Forces) {
					Expect(host.Forces()).To(Equal(prev.Forces))
				}
			})

			It("keeps accepted moves", func() {
				Expect(s.Step(2)).To(Succeed())
				moved := dynamo.CloneVecs(host.Positions())
				Expect(s.Accepted(true)).To(Succeed())

				prev, err := s.PreviousState()
				Expect(err).NotTo(HaveOccurred())
				Expect(prev.Positions).To(Equal(moved))
			})

			It("never treats rejection as an error", func() {
				for i := 0; i < 10; i++ {
					Expect(s.Step(1)).To(Succeed())
					Expect(s.Accepted(false)).To(Succeed())
				}
			})

			It("returns to unbound on cleanup", func() {
				s.Cleanup()
				Expect(s.Step(1)).To(MatchError(dynamo.ErrNotBound))
				Expect(s.Accepted(true)).To(MatchError(dynamo.ErrNotBound))
			})
		})
	}
})
