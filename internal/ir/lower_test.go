package ir_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"peritc/internal/frontend"
	"peritc/internal/ir"
)

func lower(src string) (*frontend.Program, map[string]*ir.CFG) {
	prog, err := frontend.Parse(src)
	Expect(err).NotTo(HaveOccurred())
	cfgs, errs := ir.LowerProgram(prog)
	Expect(errs).To(BeEmpty())
	return prog, cfgs
}

// wellFormed checks the CFG well-formedness invariant from spec.md §8:
// every block has a non-None terminator, every jump/branch/fallthrough
// target is a valid block id, and every block is reachable from block 0.
func wellFormed(cfg *ir.CFG) {
	for _, b := range cfg.Blocks {
		Expect(b.Terminator.Kind).NotTo(Equal(ir.TermNone))
		for _, succ := range b.Terminator.Successors() {
			Expect(int(succ)).To(BeNumerically(">=", 0))
			Expect(int(succ)).To(BeNumerically("<", len(cfg.Blocks)))
		}
	}
	reachable := cfg.Reachable()
	for _, b := range cfg.Blocks {
		Expect(reachable).To(HaveKey(b.ID), "block %d must be reachable from entry", b.ID)
	}
}

var _ = Describe("LowerFunction", func() {
	It("gives an empty function body an implicit Return(None)", func() {
		_, cfgs := lower(`fn f() { }`)
		cfg := cfgs["f"]
		Expect(cfg.Blocks).To(HaveLen(1))
		Expect(cfg.Block(0).Terminator.Kind).To(Equal(ir.TermReturn))
		Expect(cfg.Block(0).Terminator.RetReg).To(BeNil())
	})

	It("creates a merge block even for an if with empty branches, with no dangling blocks", func() {
		_, cfgs := lower(`fn f(cond: i32) { if cond { } return 1; }`)
		cfg := cfgs["f"]
		wellFormed(cfg)
		// entry, then, else, merge = 4 blocks
		Expect(cfg.Blocks).To(HaveLen(4))
	})

	It("lowers if/else into Branch + two Jump-to-merge terminators", func() {
		_, cfgs := lower(`
fn f(cond: i32) {
	if cond { let x = 1; } else { let y = 2; }
	return 0;
}
`)
		cfg := cfgs["f"]
		wellFormed(cfg)
		entry := cfg.Block(cfg.EntryID)
		Expect(entry.Terminator.Kind).To(Equal(ir.TermBranch))
	})

	It("lowers while into header/body/exit with a back-edge Jump to the header", func() {
		_, cfgs := lower(`
fn f(n: i32) {
	while n {
		n = n - 1;
	}
	return 0;
}
`)
		cfg := cfgs["f"]
		wellFormed(cfg)

		var header *ir.BasicBlock
		for _, b := range cfg.Blocks {
			if b.Terminator.Kind == ir.TermBranch {
				header = b
			}
		}
		Expect(header).NotTo(BeNil())

		body := cfg.Block(header.Terminator.ThenID)
		Expect(body.Terminator.Kind).To(Equal(ir.TermJump))
		Expect(body.Terminator.Target).To(Equal(header.ID))
	})

	It("while body that unconditionally returns still gives every block a terminator", func() {
		_, cfgs := lower(`
fn f(n: i32) {
	while n {
		return 1;
	}
	return 0;
}
`)
		cfg := cfgs["f"]
		for _, b := range cfg.Blocks {
			Expect(b.Terminator.Kind).NotTo(Equal(ir.TermNone))
		}
		// The body's Return means no back-edge reaches the header; exit_bb is
		// still reached through the header's Branch.
	})

	It("classifies a direct call to a signed function as a PeripheralDriverCall statement", func() {
		_, cfgs := lower(`
peripheral T { states: Off, On; initial: Off; }
fn enable() :: T<Off> -> T<On> { }
fn main() { enable(); }
`)
		cfg := cfgs["main"]
		entry := cfg.Block(cfg.EntryID)
		Expect(entry.SemanticStmts).To(HaveLen(1))
		Expect(entry.SemanticStmts[0].Kind).To(Equal(ir.StmtDriverCall))
		Expect(entry.SemanticStmts[0].Peripheral).To(Equal("T"))
		Expect(entry.SemanticStmts[0].FromState).To(Equal("Off"))
		Expect(entry.SemanticStmts[0].ToState).To(Equal("On"))
	})

	It("rejects a peripheral read against a peripheral with no base address", func() {
		prog, err := frontend.Parse(`
peripheral T {
	states: Off, On;
	initial: Off;
	registers u32 { CTRL at 0x0; }
}
fn f() { let x = T.CTRL; return x; }
`)
		Expect(err).NotTo(HaveOccurred())
		_, errs := ir.LowerProgram(prog)
		Expect(errs).To(HaveLen(1))
		Expect(errs[0].Error()).To(ContainSubstring("no base address"))
	})
})
