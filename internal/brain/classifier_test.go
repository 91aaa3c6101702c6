package brain_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"notulis.app/bot/internal/brain"
)

var _ = Describe("Classifiers", func() {
	DescribeTable("MarkerClassifier",
		func(text string, found bool) {
			c := brain.MarkerClassifier{Marker: brain.NothingMarker}
			Expect(c.Classify(text).Found).To(Equal(found))
		},
		Entry("bare marker", "NIHIL", false),
		Entry("decorated marker", "**Nihil.**", false),
		Entry("marker then explanation", "NIHIL\nTidak ada tugas yang dibahas.", false),
		Entry("blank", "   ", false),
		Entry("task list", "- [Andi] kirim laporan", true),
		Entry("marker mentioned mid-text", "- [Andi] cek status NIHIL di laporan", true),
	)

	It("KeepNonEmpty trims and keeps text", func() {
		Expect(brain.KeepNonEmpty.Classify("  hasil \n")).To(Equal(brain.Found("hasil")))
		Expect(brain.KeepNonEmpty.Classify("")).To(Equal(brain.NotFound()))
	})

	DescribeTable("PollClassifier",
		func(text string, found bool) {
			Expect(brain.PollClassifier.Classify(text).Found).To(Equal(found))
		},
		Entry("proposal", `{"question":"x","options":["a","b"]}`, true),
		Entry("no topic", "```json\n{\"error\":\"Tidak ada topik\"}\n```", false),
		Entry("malformed kept for the extractor", `maybe {"question"`, true),
	)
})
