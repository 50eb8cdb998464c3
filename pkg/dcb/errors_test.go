package dcb_test

import (
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"dcbstore/pkg/dcb"
)

var _ = Describe("DCBViolation", func() {
	It("is extracted by IsDCBViolation/GetDCBViolation through a wrapped error", func() {
		violation := &dcb.DCBViolation{
			EventStoreError:     dcb.EventStoreError{Op: "AppendIf", Err: fmt.Errorf("boom")},
			ErrorCode:           dcb.DCBErrorConcurrent,
			MatchingEventsCount: 3,
		}
		wrapped := fmt.Errorf("wrapped: %w", violation)

		Expect(dcb.IsDCBViolation(wrapped)).To(BeTrue())
		got, ok := dcb.GetDCBViolation(wrapped)
		Expect(ok).To(BeTrue())
		Expect(got.ErrorCode).To(Equal(dcb.DCBErrorConcurrent))
		Expect(got.MatchingEventsCount).To(Equal(3))
	})

	It("does not misidentify a ValidationError as a DCBViolation", func() {
		ve := &dcb.ValidationError{EventStoreError: dcb.EventStoreError{Op: "ValidateEvent"}}
		Expect(dcb.IsDCBViolation(ve)).To(BeFalse())
		Expect(dcb.IsValidationError(ve)).To(BeTrue())
	})

	DescribeTable("DCBErrorCode stringifies for logs",
		func(code dcb.DCBErrorCode, want string) {
			Expect(code.String()).To(Equal(want))
		},
		Entry("idempotent", dcb.DCBErrorIdempotent, "IDEMPOTENT"),
		Entry("concurrent", dcb.DCBErrorConcurrent, "CONCURRENT"),
		Entry("unknown", dcb.DCBErrorUnknown, "UNKNOWN"),
	)
})

var _ = Describe("ExecutionResult", func() {
	It("stringifies for logs", func() {
		Expect(dcb.ExecutionCreated.String()).To(Equal("CREATED"))
		Expect(dcb.ExecutionIdempotent.String()).To(Equal("IDEMPOTENT"))
	})
})
