package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"castpair/internal/crypto"
	"castpair/internal/metrics"
	"castpair/internal/relay"
	"castpair/internal/server"
	"castpair/internal/services/claim"
	"castpair/internal/services/poll"
)

func init() { gin.SetMode(gin.TestMode) }

type fixture struct {
	store  *server.Store
	mock   *clock.Mock
	reg    *prometheus.Registry
	srv    *httptest.Server
	client *relay.HTTP
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	f := &fixture{mock: clock.NewMock(), reg: prometheus.NewRegistry()}
	f.store = server.NewStore(server.WithClock(f.mock), server.WithTTL(time.Minute))
	h := server.NewHandler(f.store, metrics.NewServer(f.reg), logger)
	f.srv = httptest.NewServer(server.NewRouter(h, f.reg))
	t.Cleanup(f.srv.Close)
	f.client = relay.NewHTTP(f.srv.URL, f.srv.Client())
	return f
}

func TestAPI_RegisterClaimFetch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	defer kp.Wipe()
	pub := kp.Public()

	code, err := f.client.RegisterDevice(ctx, crypto.B64(pub.Slice()))
	require.NoError(t, err)

	enc, err := f.client.FetchCastData(ctx, code)
	require.NoError(t, err)
	assert.Empty(t, enc)

	logger, _ := logtest.NewNullLogger()
	require.NoError(t, claim.New(f.client, logger).Claim(ctx, code, []byte(`{"collectionId":42}`)))

	enc, err = f.client.FetchCastData(ctx, code)
	require.NoError(t, err)
	payload, err := poll.Decrypt(enc, kp)
	require.NoError(t, err)
	assert.Equal(t, json.Number("42"), payload["collectionId"])

	// Delivered data is gone, and so is the code.
	_, err = f.client.FetchCastData(ctx, code)
	var se *relay.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusGone, se.Code)
}

func TestAPI_ExpiredCodeIsGone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	code, err := f.client.RegisterDevice(ctx, testKey(t))
	require.NoError(t, err)
	f.mock.Add(time.Minute)

	_, err = f.client.FetchCastData(ctx, code)
	var se *relay.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusGone, se.Code)
}

func TestAPI_DoubleClaimConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	code, err := f.client.RegisterDevice(ctx, testKey(t))
	require.NoError(t, err)

	require.NoError(t, f.client.PublishCastData(ctx, code, "c2VhbGVk"))
	err = f.client.PublishCastData(ctx, code, "c2VhbGVk")
	var se *relay.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusConflict, se.Code)
}

func TestAPI_BadRequests(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"malformed register", http.MethodPost, "/cast/device-info", "{", http.StatusBadRequest},
		{"bad key", http.MethodPost, "/cast/device-info", `{"publicKey":"abc"}`, http.StatusBadRequest},
		{"unknown device", http.MethodGet, "/cast/device-info/ZZZZZZ", "", http.StatusNotFound},
		{"claim unknown", http.MethodPost, "/cast/cast-data", `{"deviceCode":"ZZZZZZ","encPayload":"eA=="}`, http.StatusNotFound},
		{"claim empty", http.MethodPost, "/cast/cast-data", `{"deviceCode":"ZZZZZZ","encPayload":""}`, http.StatusBadRequest},
		{"fetch unknown", http.MethodGet, "/cast/cast-data/ZZZZZZ", "", http.StatusGone},
		{"too large", http.MethodPost, "/cast/cast-data", `{"encPayload":"` + strings.Repeat("A", server.MaxBodySize) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, f.srv.URL+tc.path, strings.NewReader(tc.body))
			require.NoError(t, err)
			resp, err := f.srv.Client().Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestAPI_Metrics(t *testing.T) {
	f := newFixture(t)
	_, err := f.client.RegisterDevice(context.Background(), testKey(t))
	require.NoError(t, err)

	resp, err := f.srv.Client().Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, float64(1), counterValue(t, f.reg, "castpair_server_codes_issued_total"))
}

func counterValue(t *testing.T, g prometheus.Gatherer, name string) float64 {
	t.Helper()
	mfs, err := g.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == name && len(mf.GetMetric()) > 0 {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}
