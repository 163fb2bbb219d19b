package frontend_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"peritc/internal/frontend"
)

var _ = Describe("Parse", func() {
	It("parses a peripheral with states, initial state and registers", func() {
		src := `
peripheral T at 0x4000_0000 {
	states: Off, On;
	initial: Off;
	registers u32 {
		CTRL at 0x00;
		STATUS at 0x04;
	}
}
fn enable() :: T<Off> -> T<On> { }
`
		prog, err := frontend.Parse(src)
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.Peripherals).To(HaveLen(1))

		per := prog.Peripherals[0]
		Expect(per.Name).To(Equal("T"))
		Expect(*per.BaseAddress).To(Equal(uint32(0x40000000)))
		Expect(per.States).To(Equal([]string{"Off", "On"}))
		Expect(per.InitialState).To(Equal("Off"))
		Expect(per.RegisterBlocks).To(HaveLen(1))
		Expect(per.RegisterBlocks[0].Registers).To(HaveLen(2))

		Expect(prog.Functions).To(HaveLen(1))
		sig := prog.Functions[0].Signature
		Expect(sig).NotTo(BeNil())
		Expect(sig.Peripheral).To(Equal("T"))
		Expect(sig.InputState).To(Equal("Off"))
		Expect(sig.OutputState).To(Equal("On"))
	})

	It("respects arithmetic and logical precedence (Pratt-style)", func() {
		src := `
fn f(a: i32, b: i32) {
	let x = a + b * 2;
	let y = a < b && b < 10;
	return x;
}
`
		prog, err := frontend.Parse(src)
		Expect(err).NotTo(HaveOccurred())
		fn := prog.Functions[0]
		Expect(fn.Body).To(HaveLen(3))

		letX := fn.Body[0].(*frontend.LetStmt)
		add, ok := letX.Value.(*frontend.Binary)
		Expect(ok).To(BeTrue())
		Expect(add.Op).To(Equal(frontend.BinAdd))
		_, rightIsMul := add.Right.(*frontend.Binary)
		Expect(rightIsMul).To(BeTrue())

		letY := fn.Body[1].(*frontend.LetStmt)
		and, ok := letY.Value.(*frontend.Binary)
		Expect(ok).To(BeTrue())
		Expect(and.Op).To(Equal(frontend.BinAnd))
	})

	It("parses peripheral reads and writes", func() {
		src := `
peripheral T at 0x1000 {
	states: Off, On;
	initial: Off;
	registers u32 { CTRL at 0x0; }
}
fn f() {
	T.CTRL = 1;
	let x = T.CTRL;
	return x;
}
`
		prog, err := frontend.Parse(src)
		Expect(err).NotTo(HaveOccurred())
		fn := prog.Functions[0]
		write, ok := fn.Body[0].(*frontend.PeripheralWriteStmt)
		Expect(ok).To(BeTrue())
		Expect(write.Peripheral).To(Equal("T"))
		Expect(write.Register).To(Equal("CTRL"))

		letStmt := fn.Body[1].(*frontend.LetStmt)
		read, ok := letStmt.Value.(*frontend.PeripheralRead)
		Expect(ok).To(BeTrue())
		Expect(read.Register).To(Equal("CTRL"))
	})

	It("rejects malformed input with a parse error", func() {
		_, err := frontend.Parse("fn f( { }")
		Expect(err).To(HaveOccurred())
	})

	It("accepts hex literals with underscores as register offsets", func() {
		src := `
peripheral T at 0x2000_0000 {
	states: S;
	initial: S;
	registers u16 { R at 0x00_10; }
}
`
		prog, err := frontend.Parse(src)
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.Peripherals[0].RegisterBlocks[0].Registers[0].Offset).To(Equal(uint32(0x0010)))
	})
})
