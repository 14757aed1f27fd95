package test

import (
	"testing"

	"github.com/onsi/gomega"
)

type Assertions struct {
	internal *gomega.WithT
}

func NewAssertions(t *testing.T) Assertions {
	return Assertions{internal: gomega.NewWithT(t)}
}

func (a Assertions) Nil(err error, msg ...any) {
	a.internal.Expect(err).To(gomega.BeNil(), msg...)
}

func (a Assertions) NotNil(values ...any) {
	for _, value := range values {
		a.internal.Expect(value).To(gomega.Not(gomega.BeNil()))
	}
}

func (a Assertions) NotEmpty(value string) {
	a.internal.Expect(value).To(gomega.Not(gomega.BeEmpty()))
}

func (a Assertions) Empty(value any) {
	a.internal.Expect(value).To(gomega.BeEmpty())
}

func (a Assertions) Len(value any, count int) {
	a.internal.Expect(value).To(gomega.HaveLen(count))
}

func (a Assertions) True(value bool, msg ...any) {
	a.internal.Expect(value).To(gomega.BeTrue(), msg...)
}

func (a Assertions) False(value bool, msg ...any) {
	a.internal.Expect(value).To(gomega.BeFalse(), msg...)
}

func (a Assertions) Equals(value any, expected any, msg ...any) {
	a.internal.Expect(value).To(gomega.Equal(expected), msg...)
}

func (a Assertions) NotEqual(value any, expected any) {
	a.internal.Expect(value).NotTo(gomega.Equal(expected))
}

// Contains checks a substring for strings and an element for slices.
func (a Assertions) Contains(value any, expected any) {
	if s, ok := value.(string); ok {
		a.internal.Expect(s).To(gomega.ContainSubstring("%v", expected))
		return
	}
	a.internal.Expect(value).To(gomega.ContainElement(expected))
}

func (a Assertions) NotContains(value string, expected string) {
	a.internal.Expect(value).NotTo(gomega.ContainSubstring(expected))
}

func (a Assertions) Error(err error) {
	a.internal.Expect(err).To(gomega.HaveOccurred())
}

func (a Assertions) ErrorIs(err error, target error) {
	a.internal.Expect(err).To(gomega.MatchError(target))
}

func (a Assertions) MatchJson(value string, pattern string) {
	a.internal.Expect(value).To(gomega.MatchJSON(pattern))
}
