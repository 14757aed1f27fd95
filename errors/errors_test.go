package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/onsi/gomega"
)

func TestCustomError_Error(t *testing.T) {
	g := gomega.NewWithT(t)
	err := &CustomError{
		Code:    http.StatusBadRequest,
		Message: "test error message",
	}
	g.Expect(err.Error()).To(gomega.Equal("test error message"))
}

func TestCustomError_ErrorWithCause(t *testing.T) {
	g := gomega.NewWithT(t)
	cause := fmt.Errorf("dial tcp: refused")
	err := ConnectionFailure(cause, "unable to open pool for %s", "t1")

	g.Expect(err.Error()).To(gomega.Equal("unable to open pool for t1: dial tcp: refused"))
	g.Expect(errors.Unwrap(err)).To(gomega.Equal(cause))
	g.Expect(GetStatusCode(err)).To(gomega.Equal(http.StatusServiceUnavailable))
}

func TestKinds_MatchSentinels(t *testing.T) {
	g := gomega.NewWithT(t)
	cases := []struct {
		err      error
		sentinel error
		code     int
	}{
		{SourceNotFound("s1"), ErrSourceNotFound, http.StatusNotFound},
		{Conflict("dup"), ErrConflict, http.StatusConflict},
		{TypeConflict("col"), ErrTypeConflict, http.StatusConflict},
		{NotFound("row"), ErrNotFound, http.StatusNotFound},
		{UnsupportedFeature("array"), ErrUnsupportedFeature, http.StatusNotImplemented},
		{BadRequest("bad"), ErrBadRequest, http.StatusBadRequest},
		{Technical("boom"), ErrTechnical, http.StatusInternalServerError},
	}
	for _, c := range cases {
		g.Expect(errors.Is(c.err, c.sentinel)).To(gomega.BeTrue(), c.err.Error())
		g.Expect(GetStatusCode(c.err)).To(gomega.Equal(c.code))
	}
	g.Expect(errors.Is(NotFound("x"), ErrConflict)).To(gomega.BeFalse())
}

func TestIs_ThroughWrapping(t *testing.T) {
	g := gomega.NewWithT(t)
	err := fmt.Errorf("update failed: %w", NotFound("record 1 not found"))

	g.Expect(errors.Is(err, ErrNotFound)).To(gomega.BeTrue())
	g.Expect(GetKind(err)).To(gomega.Equal(KindNotFound))
}

func TestWrap(t *testing.T) {
	g := gomega.NewWithT(t)

	g.Expect(Wrap(nil, "ignored")).To(gomega.BeNil())

	typed := Conflict("already exists")
	g.Expect(Wrap(typed, "insert failed")).To(gomega.Equal(typed))

	err := Wrap(fmt.Errorf("disk full"), "insert into %s failed", "posts")
	g.Expect(GetKind(err)).To(gomega.Equal(KindTechnical))
	g.Expect(err.Error()).To(gomega.Equal("insert into posts failed: disk full"))
}

func TestGetStatusCode_ForeignError(t *testing.T) {
	g := gomega.NewWithT(t)
	g.Expect(GetStatusCode(fmt.Errorf("plain"))).To(gomega.Equal(http.StatusInternalServerError))
	g.Expect(GetKind(fmt.Errorf("plain"))).To(gomega.Equal(KindTechnical))
}
