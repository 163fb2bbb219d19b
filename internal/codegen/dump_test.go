package codegen_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gopkg.in/yaml.v3"

	"peritc/internal/codegen"
	"peritc/internal/frontend"
	"peritc/internal/ir"
)

var _ = Describe("DumpIR", func() {
	It("renders every function's CFG as a parseable YAML document", func() {
		prog, err := frontend.Parse(`fn f(a: i32) { return a + 1; }`)
		Expect(err).NotTo(HaveOccurred())
		cfgs, errs := ir.LowerProgram(prog)
		Expect(errs).To(BeEmpty())

		var out strings.Builder
		Expect(codegen.DumpIR(&out, cfgs)).To(Succeed())

		var doc struct {
			Functions []struct {
				Name   string `yaml:"name"`
				Blocks []any  `yaml:"blocks"`
			} `yaml:"functions"`
		}
		Expect(yaml.Unmarshal([]byte(out.String()), &doc)).To(Succeed())
		Expect(doc.Functions).To(HaveLen(1))
		Expect(doc.Functions[0].Name).To(Equal("f"))
		Expect(doc.Functions[0].Blocks).NotTo(BeEmpty())
	})
})

var _ = Describe("DumpState", func() {
	It("renders a table row for every peripheral touched by a function", func() {
		prog, err := frontend.Parse(`
peripheral T { states: Off, On; initial: Off; }
fn enable() :: T<Off> -> T<On> { }
fn main() { enable(); }
`)
		Expect(err).NotTo(HaveOccurred())
		cfgs, errs := ir.LowerProgram(prog)
		Expect(errs).To(BeEmpty())

		var out strings.Builder
		Expect(codegen.DumpState(&out, prog, cfgs)).To(Succeed())
		text := out.String()
		Expect(text).To(ContainSubstring("function main"))
		Expect(text).To(ContainSubstring("T"))
	})
})
