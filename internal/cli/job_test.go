package cli

import (
	"encoding/json"

	"github.com/acme/catalog-console/internal/realtime"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("describeJobEvent", func() {
	event := func(name, payload string) realtime.Event {
		return realtime.Event{Name: name, Args: []json.RawMessage{json.RawMessage(payload)}}
	}

	DescribeTable("renders job events",
		func(e realtime.Event, expected string) {
			text, err := describeJobEvent(e)
			Expect(err).To(BeNil())
			Expect(text).To(Equal(expected))
		},
		Entry("rounds progress up", event(realtime.EventProgressUpdate, `{"progress":33.6,"status":"Importing..."}`), "Importing... 34%"),
		Entry("rounds progress down", event(realtime.EventProgressUpdate, `{"progress":33.4,"status":"Importing..."}`), "Importing... 33%"),
		Entry("rounds half up", event(realtime.EventProgressUpdate, `{"progress":99.5,"status":"Importing..."}`), "Importing... 100%"),
		Entry("shows the completion status", event(realtime.EventTaskComplete, `{"status":"Done"}`), "Done"),
		Entry("prefixes failures", event(realtime.EventTaskFailed, `{"error":"boom"}`), "Error: boom"),
	)

	It("rejects unknown events", func() {
		_, err := describeJobEvent(event("other", `{}`))
		Expect(err).To(MatchError(ContainSubstring(`unknown job event "other"`)))
	})
})
