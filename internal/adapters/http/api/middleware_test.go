package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestErrorClass(t *testing.T) {
	Convey("errorClass buckets statuses", t, func() {
		So(errorClass(http.StatusAccepted), ShouldEqual, "")
		So(errorClass(http.StatusBadRequest), ShouldEqual, "client_error")
		So(errorClass(http.StatusUnauthorized), ShouldEqual, "auth")
		So(errorClass(http.StatusForbidden), ShouldEqual, "auth")
		So(errorClass(http.StatusNotFound), ShouldEqual, "not_found")
		So(errorClass(http.StatusTooManyRequests), ShouldEqual, "backpressure")
		So(errorClass(http.StatusServiceUnavailable), ShouldEqual, "unavailable")
		So(errorClass(http.StatusInternalServerError), ShouldEqual, "server_error")
	})
}

func TestMetricsMiddleware(t *testing.T) {
	Convey("MetricsMiddleware keeps the first status written", t, func() {
		h := MetricsMiddleware(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
			_, _ = w.Write([]byte("x"))
		}, "test")

		w := httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodGet, "/", nil))
		So(w.Code, ShouldEqual, http.StatusTeapot)
		So(w.Body.String(), ShouldEqual, "x")
	})
}
