package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSiteServesPagesWithAssets(t *testing.T) {
	srv := httptest.NewServer(newSite(siteOptions{}, logrus.New()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/about")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "/static/site.css")
	assert.Contains(t, string(body), "/static/logo.svg")

	for _, asset := range []string{"/static/site.css", "/static/app.js", "/static/logo.svg"} {
		resp, err := http.Get(srv.URL + asset)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, asset)
	}

	resp, err = http.Get(srv.URL + "/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSiteFlakyFailsEveryNth(t *testing.T) {
	srv := httptest.NewServer(newSite(siteOptions{failEvery: 2}, logrus.New()))
	defer srv.Close()

	var codes []int
	for i := 0; i < 4; i++ {
		resp, err := http.Get(srv.URL + "/flaky")
		require.NoError(t, err)
		resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{200, 503, 200, 503}, codes)
}
