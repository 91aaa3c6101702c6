package brain_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"notulis.app/bot/internal/brain"
)

var _ = Describe("ExtractPoll", func() {
	It("parses a fenced JSON proposal", func() {
		res, err := brain.ExtractPoll("```json\n{\"question\":\"Lunch?\",\"options\":[\"A\",\"B\"]}\n```")
		Expect(err).NotTo(HaveOccurred())
		Expect(res.ErrorMessage).To(BeEmpty())
		Expect(res.Proposal).To(Equal(&brain.PollProposal{Question: "Lunch?", Options: []string{"A", "B"}}))
	})

	It("returns the error field as a user-facing message", func() {
		res, err := brain.ExtractPoll(`{"error":"none"}`)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Proposal).To(BeNil())
		Expect(res.ErrorMessage).To(Equal("none"))
	})

	It("prefers the error signal over a partial proposal", func() {
		res, err := brain.ExtractPoll(`{"question":"x","options":["a","b"],"error":"ragu"}`)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.ErrorMessage).To(Equal("ragu"))
	})

	It("falls back to the default message for a blank error", func() {
		res, err := brain.ExtractPoll(`{"error":"  "}`)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.ErrorMessage).To(Equal(brain.DefaultNoTopicMessage))
	})

	DescribeTable("schema violations",
		func(input string) {
			_, err := brain.ExtractPoll(input)
			Expect(err).To(MatchError(brain.ErrSchemaViolation))
		},
		Entry("missing options", `{"question":"x"}`),
		Entry("one option", `{"question":"x","options":["a"]}`),
		Entry("six options", `{"question":"x","options":["a","b","c","d","e","f"]}`),
		Entry("empty question", `{"question":"  ","options":["a","b"]}`),
		Entry("blank option", `{"question":"x","options":["a",""]}`),
		Entry("duplicates collapse below two", `{"question":"x","options":["Ya","ya "]}`),
		Entry("null", `null`),
	)

	DescribeTable("malformed output",
		func(input string) {
			_, err := brain.ExtractPoll(input)
			Expect(err).To(MatchError(brain.ErrMalformedOutput))
		},
		Entry("prose", `not json`),
		Entry("empty", ``),
		Entry("array", `["a","b"]`),
		Entry("truncated", "```json\n{\"question\":\"x\",\"options\":[\"a\"\n```"),
		Entry("wrong option type", `{"question":"x","options":[1,2]}`),
	)

	It("trims question and options", func() {
		res, err := brain.ExtractPoll(`  {"question":" Kapan rapat? ","options":[" Senin ","Selasa"]}  `)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Proposal.Question).To(Equal("Kapan rapat?"))
		Expect(res.Proposal.Options).To(Equal([]string{"Senin", "Selasa"}))
	})
})

var _ = Describe("StripCodeFence", func() {
	DescribeTable("removes a wrapping fence only",
		func(in, want string) {
			Expect(brain.StripCodeFence(in)).To(Equal(want))
		},
		Entry("json fence", "```json\n{}\n```", "{}"),
		Entry("bare fence", "```\n{\"a\":1}\n```", `{"a":1}`),
		Entry("no fence", "  {}  ", "{}"),
		Entry("inline fence", "```{}```", "{}"),
	)
})

var _ = Describe("PollSchema", func() {
	It("describes question and options without references", func() {
		schema := brain.PollSchema()
		Expect(schema).To(ContainSubstring(`"question"`))
		Expect(schema).To(ContainSubstring(`"minItems": 2`))
		Expect(schema).NotTo(ContainSubstring(`$ref`))
	})
})
