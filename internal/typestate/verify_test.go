package typestate_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"peritc/internal/frontend"
	"peritc/internal/ir"
	"peritc/internal/typestate"
)

func compile(src string) (*frontend.Program, map[string]*ir.CFG) {
	prog, err := frontend.Parse(src)
	Expect(err).NotTo(HaveOccurred())
	cfgs, errs := ir.LowerProgram(prog)
	Expect(errs).To(BeEmpty())
	return prog, cfgs
}

var _ = Describe("Verify", func() {
	It("accepts a valid driver composition (scenario 3)", func() {
		prog, cfgs := compile(`
peripheral T { states: Off, On; initial: Off; }
fn enable() :: T<Off> -> T<On> { }
fn use_it() :: T<On> -> T<On> { }
fn main() { enable(); use_it(); }
`)
		Expect(typestate.Verify(prog, cfgs)).To(BeEmpty())
	})

	It("rejects an invalid transition (scenario 4)", func() {
		prog, cfgs := compile(`
peripheral T { states: Off, On; initial: Off; }
fn enable() :: T<Off> -> T<On> { }
fn use_it() :: T<On> -> T<On> { }
fn main() { use_it(); enable(); }
`)
		errs := typestate.Verify(prog, cfgs)
		Expect(errs).To(HaveLen(1))
		terr, ok := errs[0].(*typestate.Error)
		Expect(ok).To(BeTrue())
		Expect(terr.Kind).To(Equal(typestate.InvalidTransition))
		Expect(terr.Peripheral).To(Equal("T"))
		Expect(terr.Expected).To(Equal("On"))
		Expect(terr.Actual).To(Equal("Off"))
	})

	It("rejects a branch that leaves a peripheral's state ambiguous (scenario 5)", func() {
		prog, cfgs := compile(`
peripheral T { states: Off, On; initial: Off; }
fn enable() :: T<Off> -> T<On> { }
fn use_it() :: T<On> -> T<On> { }
fn main(cond: i32) {
	if cond {
		enable();
	}
	use_it();
}
`)
		errs := typestate.Verify(prog, cfgs)
		Expect(errs).To(HaveLen(1))
		terr := errs[0].(*typestate.Error)
		Expect(terr.Kind).To(Equal(typestate.BranchStateMismatch))
		Expect(terr.Peripheral).To(Equal("T"))
	})

	It("rejects a composite driver with the wrong declared exit state (scenario 6)", func() {
		prog, cfgs := compile(`
peripheral T { states: Off, On; initial: Off; }
fn enable() :: T<Off> -> T<On> { }
fn cycle() :: T<Off> -> T<Off> { enable(); }
`)
		errs := typestate.Verify(prog, cfgs)
		Expect(errs).To(HaveLen(1))
		terr := errs[0].(*typestate.Error)
		Expect(terr.Kind).To(Equal(typestate.WrongExitState))
		Expect(terr.Expected).To(Equal("Off"))
		Expect(terr.Actual).To(Equal("On"))
	})

	It("trusts a LeafDriver's declared signature without verifying its body", func() {
		prog, cfgs := compile(`
peripheral T { states: Off, On; initial: Off; }
fn enable() :: T<Off> -> T<On> { }
`)
		Expect(typestate.Classify(prog, cfgs, &prog.Functions[0])).To(Equal(typestate.LeafDriver))
		Expect(typestate.Verify(prog, cfgs)).To(BeEmpty())
	})

	It("reports LoopChangesState when a loop body leaves a peripheral in a different state each iteration", func() {
		prog, cfgs := compile(`
peripheral T { states: Off, On; initial: Off; }
fn enable() :: T<Off> -> T<On> { }
fn disable() :: T<On> -> T<Off> { }
fn pump(n: i32) {
	while n {
		enable();
		n = n - 1;
	}
}
`)
		errs := typestate.Verify(prog, cfgs)
		Expect(errs).To(HaveLen(1))
		terr := errs[0].(*typestate.Error)
		Expect(terr.Kind).To(Equal(typestate.LoopChangesState))
		Expect(terr.Peripheral).To(Equal("T"))
	})

	It("accepts a loop whose body returns a peripheral to its entry state each iteration", func() {
		prog, cfgs := compile(`
peripheral T { states: Off, On; initial: Off; }
fn enable() :: T<Off> -> T<On> { }
fn disable() :: T<On> -> T<Off> { }
fn pump(n: i32) {
	while n {
		enable();
		disable();
		n = n - 1;
	}
}
`)
		Expect(typestate.Verify(prog, cfgs)).To(BeEmpty())
	})

	It("continues verifying other functions after one function fails", func() {
		prog, cfgs := compile(`
peripheral T { states: Off, On; initial: Off; }
fn enable() :: T<Off> -> T<On> { }
fn use_it() :: T<On> -> T<On> { }
fn bad() { use_it(); }
fn good() { enable(); use_it(); }
`)
		errs := typestate.Verify(prog, cfgs)
		Expect(errs).To(HaveLen(1))
		terr := errs[0].(*typestate.Error)
		Expect(terr.Function).To(Equal("bad"))
	})
})
