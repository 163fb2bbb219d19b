package compiler_test

import (
	"io"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"peritc/internal/compiler"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var _ = Describe("Compile", func() {
	It("accepts a trivial function and emits its assembly (scenario 1)", func() {
		result, errs := compiler.Compile(`fn f() { return 1; }`, discardLogger())
		Expect(errs).To(BeEmpty())
		Expect(result.Assembly).To(ContainSubstring("li t0, 1"))
		Expect(result.Assembly).To(ContainSubstring("ret"))
	})

	It("reports a duplicate function definition (scenario 2)", func() {
		_, errs := compiler.Compile(`
fn g() { return 0; }
fn g() { return 1; }
`, discardLogger())
		Expect(errs).To(HaveLen(1))
		Expect(compiler.FormatErrors(errs)).To(ContainSubstring("Duplicate function definition 'g'"))
	})

	It("accepts a valid driver composition end to end (scenario 3)", func() {
		_, errs := compiler.Compile(`
peripheral T { states: Off, On; initial: Off; }
fn enable() :: T<Off> -> T<On> { }
fn use_it() :: T<On> -> T<On> { }
fn main() { enable(); use_it(); }
`, discardLogger())
		Expect(errs).To(BeEmpty())
	})

	It("rejects an invalid transition end to end (scenario 4)", func() {
		_, errs := compiler.Compile(`
peripheral T { states: Off, On; initial: Off; }
fn enable() :: T<Off> -> T<On> { }
fn use_it() :: T<On> -> T<On> { }
fn main() { use_it(); enable(); }
`, discardLogger())
		Expect(errs).To(HaveLen(1))
	})

	It("rejects a branch that leaves state ambiguous end to end (scenario 5)", func() {
		_, errs := compiler.Compile(`
peripheral T { states: Off, On; initial: Off; }
fn enable() :: T<Off> -> T<On> { }
fn use_it() :: T<On> -> T<On> { }
fn main(cond: i32) {
	if cond {
		enable();
	}
	use_it();
}
`, discardLogger())
		Expect(errs).To(HaveLen(1))
	})

	It("rejects a composite driver with the wrong declared exit state end to end (scenario 6)", func() {
		_, errs := compiler.Compile(`
peripheral T { states: Off, On; initial: Off; }
fn enable() :: T<Off> -> T<On> { }
fn cycle() :: T<Off> -> T<Off> { enable(); }
`, discardLogger())
		Expect(errs).To(HaveLen(1))
	})

	It("surfaces a hard lowering error for a peripheral with no base address", func() {
		_, errs := compiler.Compile(`
peripheral T {
	states: Off, On;
	initial: Off;
	registers u32 { STATUS at 0x0; }
}
fn f() { return T.STATUS; }
`, discardLogger())
		Expect(errs).To(HaveLen(1))
		Expect(compiler.FormatErrors(errs)).To(ContainSubstring("no base address"))
	})
})
