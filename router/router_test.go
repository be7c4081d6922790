package router_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/momentics/hioload-http/api"
	"github.com/momentics/hioload-http/router"
)

func TestRouterClassify(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rt := router.New()
	rt.Handle("/", ok)
	rt.Handle("/static/*", ok, router.Cached())
	rt.Method(http.MethodPost, "/submit", ok)
	rt.HandleFunc("/user/{id:[0-9]+}", ok)

	testCases := []struct {
		method string
		target string
		want   api.Outcome
	}{
		{http.MethodGet, "/", api.OutcomeOK},
		{http.MethodGet, "/nope", api.OutcomeNotFound},
		{http.MethodGet, "/static/app.css", api.OutcomeCacheable},
		{http.MethodHead, "/static/app.css", api.OutcomeCacheable},
		{http.MethodPost, "/static/app.css", api.OutcomeOK},
		{http.MethodPost, "/submit", api.OutcomeOK},
		{http.MethodGet, "/submit", api.OutcomeNotFound},
		{http.MethodGet, "/user/42", api.OutcomeOK},
		{http.MethodGet, "/user/bob", api.OutcomeNotFound},
	}
	for _, testCase := range testCases {
		t.Run(testCase.method+" "+testCase.target, func(t *testing.T) {
			req := httptest.NewRequest(testCase.method, testCase.target, nil)
			assert.Equal(t, testCase.want, rt.Classify(req))
		})
	}
}

func TestRouterServeHTTP(t *testing.T) {
	rt := router.New()
	rt.HandleFunc("/hello/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hi"))
	})

	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/hello/bob", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hi", rec.Body.String())
}

func TestEmptyRouterRoutesNothing(t *testing.T) {
	rt := router.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, api.OutcomeNotFound, rt.Classify(req))
}
