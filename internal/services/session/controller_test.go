package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"castpair/internal/crypto"
	"castpair/internal/discovery"
	"castpair/internal/domain"
	"castpair/internal/services/claim"
	"castpair/internal/services/poll"
	"castpair/internal/services/registration"
	"castpair/internal/services/session"
)

// fakeService is an in-memory pairing service.
type fakeService struct {
	mu         sync.Mutex
	issue      []domain.PairingCode
	registered map[domain.PairingCode]string
	regKeys    []string
	expired    map[domain.PairingCode]bool
	claims     map[domain.PairingCode][]byte
	raw        map[domain.PairingCode]string
	fetches    map[domain.PairingCode]int
	fetched    chan domain.PairingCode
	// onFetch runs before each fetch is answered.
	onFetch func(domain.PairingCode)
}

func newFakeService(codes ...domain.PairingCode) *fakeService {
	return &fakeService{
		issue:      codes,
		registered: map[domain.PairingCode]string{},
		expired:    map[domain.PairingCode]bool{},
		claims:     map[domain.PairingCode][]byte{},
		raw:        map[domain.PairingCode]string{},
		fetches:    map[domain.PairingCode]int{},
		fetched:    make(chan domain.PairingCode, 1024),
	}
}

func (f *fakeService) RegisterDevice(_ context.Context, publicKey string) (domain.PairingCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regKeys = append(f.regKeys, publicKey)
	if len(f.issue) == 0 {
		return "", errors.New("no codes left")
	}
	code := f.issue[0]
	f.issue = f.issue[1:]
	f.registered[code] = publicKey
	return code, nil
}

func (f *fakeService) FetchCastData(_ context.Context, code domain.PairingCode) (string, error) {
	if f.onFetch != nil {
		f.onFetch(code)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches[code]++
	select {
	case f.fetched <- code:
	default:
	}
	if f.expired[code] {
		return "", errors.New("relay get /cast/cast-data: 410 Gone")
	}
	if enc, ok := f.raw[code]; ok {
		return enc, nil
	}
	if payload, ok := f.claims[code]; ok {
		pub, err := crypto.DecodePublicKey(f.registered[code])
		if err != nil {
			return "", err
		}
		return claim.EncryptPayload(pub, payload)
	}
	return "", nil
}

func (f *fakeService) claim(code domain.PairingCode, payload string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims[code] = []byte(payload)
}

func (f *fakeService) fetchCount(code domain.PairingCode) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[code]
}

func (f *fakeService) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.regKeys...)
}

type keyRecorder struct {
	mu   sync.Mutex
	keys []*crypto.Keypair
	err  error
}

func (r *keyRecorder) generate() (*crypto.Keypair, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	kp, err := crypto.GenerateKeypair()
	if err == nil {
		r.keys = append(r.keys, kp)
	}
	return kp, err
}

func (r *keyRecorder) allWiped(t *testing.T) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, kp := range r.keys {
		assert.True(t, kp.Wiped(), "keypair %d not wiped", i)
	}
}

type transitions struct {
	mu  sync.Mutex
	seq []session.State
}

func (tr *transitions) record(_, to session.State) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.seq = append(tr.seq, to)
}

func (tr *transitions) states() []session.State {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]session.State(nil), tr.seq...)
}

type harness struct {
	svc   *fakeService
	ch    *discovery.Loopback
	mock  *clock.Mock
	keys  *keyRecorder
	trans *transitions
	ctrl  *session.Controller
}

func newHarness(svc *fakeService, opts ...session.Option) *harness {
	logger, _ := logtest.NewNullLogger()
	h := &harness{
		svc:   svc,
		ch:    discovery.NewLoopback(),
		mock:  clock.NewMock(),
		keys:  &keyRecorder{},
		trans: &transitions{},
	}
	reg := registration.New(svc, registration.WithClock(h.mock), registration.WithLogger(logger))
	poller := poll.New(svc, poll.WithClock(h.mock), poll.WithLogger(logger))
	adapter := discovery.NewAdapter(h.ch, discovery.WithLogger(logger))
	base := []session.Option{
		session.WithClock(h.mock),
		session.WithLogger(logger),
		session.WithKeyGenerator(h.keys.generate),
		session.OnTransition(h.trans.record),
	}
	h.ctrl = session.New(reg, poller, adapter, append(base, opts...)...)
	return h
}

type outcome struct {
	res session.Result
	err error
}

func (h *harness) start() <-chan outcome {
	out := make(chan outcome, 1)
	go func() {
		res, err := h.ctrl.Run(context.Background())
		out <- outcome{res: res, err: err}
	}()
	return out
}

// waitFetch blocks until the poller has fetched code at least once. The mock
// clock moves forward while waiting so pending restarts and polls proceed.
func (h *harness) waitFetch(t *testing.T, code domain.PairingCode) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-h.svc.fetched:
			if c == code {
				return
			}
		case <-time.After(5 * time.Millisecond):
			h.mock.Add(time.Second)
		case <-deadline:
			t.Fatalf("no fetch for %s", code)
		}
	}
}

// finish advances the mock clock until the session ends.
func (h *harness) finish(t *testing.T, out <-chan outcome) outcome {
	t.Helper()
	for i := 0; i < 5000; i++ {
		select {
		case o := <-out:
			return o
		default:
		}
		h.mock.Add(time.Second)
	}
	t.Fatal("session did not finish")
	return outcome{}
}

func TestScenarioA_HappyPath(t *testing.T) {
	h := newHarness(newFakeService("ABC123"))
	out := h.start()
	h.waitFetch(t, "ABC123")

	h.ch.Deliver("S1", domain.PairNamespace, []byte(`{}`))
	sent := h.ch.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, domain.SenderID("S1"), sent[0].To)
	assert.JSONEq(t, `{"code":"ABC123"}`, string(sent[0].Payload))

	h.svc.claim("ABC123", `{"collectionId":42}`)
	o := h.finish(t, out)

	require.NoError(t, o.err)
	assert.Equal(t, session.StateComplete, o.res.State)
	assert.Equal(t, domain.Payload{"collectionId": json.Number("42")}, o.res.Payload)
	assert.Equal(t, []session.State{
		session.StateRegistering, session.StateArmed, session.StateComplete,
	}, h.trans.states())
	assert.Equal(t, 1, h.ch.StopCalls())
	h.keys.allWiped(t)
}

func TestScenarioB_RegistrationFlakiness(t *testing.T) {
	svc := &flakyRegistrations{fakeService: newFakeService("ABC123"), failures: 2}
	h := newHarness(svc.fakeService)
	logger, _ := logtest.NewNullLogger()
	reg := registration.New(svc, registration.WithClock(h.mock), registration.WithLogger(logger))
	poller := poll.New(svc, poll.WithClock(h.mock), poll.WithLogger(logger))
	h.ctrl = session.New(reg, poller, discovery.NewAdapter(h.ch, discovery.WithLogger(logger)),
		session.WithClock(h.mock),
		session.WithLogger(logger),
		session.WithKeyGenerator(h.keys.generate),
		session.OnCode(func(domain.PairingCode) { svc.markCode(h.mock.Now()) }),
	)

	start := h.mock.Now()
	out := h.start()
	for svc.codeAt().IsZero() {
		h.mock.Add(time.Second)
	}
	assert.GreaterOrEqual(t, svc.codeAt().Sub(start), 2*registration.DefaultRetryDelay)

	keys := svc.keys()
	require.Len(t, keys, 3)
	assert.Equal(t, keys[0], keys[1])
	assert.Equal(t, keys[1], keys[2])

	h.svc.claim("ABC123", `{"collectionId":42}`)
	o := h.finish(t, out)
	require.NoError(t, o.err)
	assert.Equal(t, session.StateComplete, o.res.State)
}

func TestScenarioC_DisconnectAborts(t *testing.T) {
	h := newHarness(newFakeService("ABC123"))
	out := h.start()
	h.waitFetch(t, "ABC123")

	h.ch.Disconnect("S1")
	o := h.finish(t, out)

	require.NoError(t, o.err)
	assert.Equal(t, session.StateAborted, o.res.State)
	assert.Nil(t, o.res.Payload)
	assert.Equal(t, 1, h.ch.StopCalls())
	h.keys.allWiped(t)

	fetches := h.svc.fetchCount("ABC123")
	for i := 0; i < 20; i++ {
		h.mock.Add(poll.DefaultInterval)
	}
	assert.Equal(t, fetches, h.svc.fetchCount("ABC123"), "polling continued after abort")

	h.ch.Deliver("S2", domain.PairNamespace, []byte(`{}`))
	assert.Empty(t, h.ch.Sent(), "replied after abort")
}

func TestScenarioD_ExpiredCodeRestarts(t *testing.T) {
	svc := newFakeService("OLD111", "NEW222")
	svc.expired["OLD111"] = true
	svc.claims["NEW222"] = []byte(`{"collectionId":42}`)
	h := newHarness(svc)

	out := h.start()
	o := h.finish(t, out)

	require.NoError(t, o.err)
	assert.Equal(t, session.StateComplete, o.res.State)
	assert.Equal(t, 1, o.res.Restarts)
	assert.Equal(t, json.Number("42"), o.res.Payload["collectionId"])
	assert.Equal(t, []session.State{
		session.StateRegistering, session.StateArmed, session.StateRestarting,
		session.StateRegistering, session.StateArmed, session.StateComplete,
	}, h.trans.states())

	keys := svc.keys()
	require.Len(t, keys, 2)
	assert.NotEqual(t, keys[0], keys[1], "keypair should rotate on restart")
	assert.Len(t, h.keys.keys, 2)
	h.keys.allWiped(t)
	assert.Equal(t, 1, h.ch.StopCalls())
}

func TestRestart_ReusesKeyWhenRotationDisabled(t *testing.T) {
	svc := newFakeService("OLD111", "NEW222")
	svc.expired["OLD111"] = true
	svc.claims["NEW222"] = []byte(`{"ok":true}`)
	h := newHarness(svc, session.WithRotateKeyOnRestart(false))

	o := h.finish(t, h.start())
	require.NoError(t, o.err)
	assert.Equal(t, session.StateComplete, o.res.State)

	keys := svc.keys()
	require.Len(t, keys, 2)
	assert.Equal(t, keys[0], keys[1])
	h.keys.allWiped(t)
}

func TestRestart_RepliesCarryNewCode(t *testing.T) {
	svc := newFakeService("OLD111", "NEW222")
	svc.expired["OLD111"] = true
	h := newHarness(svc)

	out := h.start()
	h.waitFetch(t, "NEW222")
	h.ch.Deliver("S1", domain.PairNamespace, []byte(`{}`))
	sent := h.ch.Sent()
	require.Len(t, sent, 1)
	assert.JSONEq(t, `{"code":"NEW222"}`, string(sent[0].Payload))

	h.ch.Disconnect("S1")
	o := h.finish(t, out)
	assert.Equal(t, session.StateAborted, o.res.State)
}

func TestRestart_WaitsBeforeRegisteringAgain(t *testing.T) {
	svc := newFakeService("C1", "C2", "C3")
	for _, c := range []domain.PairingCode{"C1", "C2", "C3"} {
		svc.expired[c] = true
	}
	h := newHarness(svc, session.WithRestartPolicy(registration.RetryPolicy{Delay: 5 * time.Second}))
	out := h.start()

	require.Eventually(t, func() bool { return svc.fetchCount("C1") == 1 }, 5*time.Second, time.Millisecond)
	assert.Never(t, func() bool { return len(svc.keys()) > 1 }, 100*time.Millisecond, 5*time.Millisecond,
		"registered again while the clock was frozen")

	require.Eventually(t, func() bool {
		if len(svc.keys()) >= 2 {
			return true
		}
		h.mock.Add(time.Second)
		return false
	}, 5*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return svc.fetchCount("C2") == 1 }, 5*time.Second, time.Millisecond)
	assert.Never(t, func() bool { return len(svc.keys()) > 2 }, 100*time.Millisecond, 5*time.Millisecond)
	require.Eventually(t, func() bool { return h.ctrl.State() == session.StateRestarting }, 5*time.Second, time.Millisecond)

	h.ch.Disconnect("S1")
	o := <-out
	require.NoError(t, o.err)
	assert.Equal(t, session.StateAborted, o.res.State)
	assert.Equal(t, 2, o.res.Restarts)
	assert.Equal(t, session.StateAborted, h.trans.states()[len(h.trans.states())-1])
	assert.Equal(t, 1, h.ch.StopCalls())
	h.keys.allWiped(t)
}

func TestDisconnect_DiscardsPayloadFetchedConcurrently(t *testing.T) {
	svc := newFakeService("ABC123")
	svc.claims["ABC123"] = []byte(`{"collectionId":42}`)
	h := newHarness(svc)
	var once sync.Once
	svc.onFetch = func(domain.PairingCode) {
		once.Do(func() { h.ch.Disconnect("S1") })
	}

	o := h.finish(t, h.start())

	require.NoError(t, o.err)
	assert.Equal(t, session.StateAborted, o.res.State)
	assert.Nil(t, o.res.Payload)
	assert.Equal(t, 1, svc.fetchCount("ABC123"))
	assert.Equal(t, []session.State{
		session.StateRegistering, session.StateArmed, session.StateAborted,
	}, h.trans.states())
	assert.Equal(t, 1, h.ch.StopCalls())
	h.keys.allWiped(t)
}

func TestKeyGenerationFailure_FailsBeforeNetwork(t *testing.T) {
	svc := newFakeService("ABC123")
	h := newHarness(svc)
	h.keys.err = errors.New("entropy unavailable")

	res, err := h.ctrl.Run(context.Background())
	assert.Error(t, err)
	assert.Equal(t, session.StateFailed, res.State)
	assert.Empty(t, svc.keys())
	assert.False(t, h.ch.Started())
	assert.Equal(t, []session.State{session.StateFailed}, h.trans.states())
}

func TestDecryptionFailure_IsFatal(t *testing.T) {
	svc := newFakeService("ABC123")
	svc.raw["ABC123"] = crypto.B64([]byte("definitely not a sealed box, long enough to try"))
	h := newHarness(svc)

	o := h.finish(t, h.start())
	var de *poll.DecryptionError
	require.ErrorAs(t, o.err, &de)
	assert.Equal(t, session.StateFailed, o.res.State)
	assert.Equal(t, 1, svc.fetchCount("ABC123"))
	assert.Equal(t, 1, h.ch.StopCalls())
	h.keys.allWiped(t)
}

func TestChannelStartFailure_Aborts(t *testing.T) {
	h := newHarness(newFakeService("ABC123"))
	h.ch.StartErr = errors.New("address in use")

	res, err := h.ctrl.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.StateAborted, res.State)
	assert.Zero(t, h.svc.fetchCount("ABC123"))
	h.keys.allWiped(t)
}

func TestRun_OnlyOnce(t *testing.T) {
	h := newHarness(newFakeService())
	h.keys.err = errors.New("no keys")
	_, _ = h.ctrl.Run(context.Background())
	_, err := h.ctrl.Run(context.Background())
	assert.ErrorIs(t, err, session.ErrAlreadyRun)
}

func TestState_Strings(t *testing.T) {
	assert.Equal(t, "ARMED", session.StateArmed.String())
	assert.Equal(t, "UNKNOWN", session.State(99).String())
	assert.True(t, session.StateAborted.Terminal())
	assert.False(t, session.StateRestarting.Terminal())
}

// flakyRegistrations fails the first registrations and records when a code
// was first handed out.
type flakyRegistrations struct {
	*fakeService
	failures int
	calls    int
	at       time.Time
	atMu     sync.Mutex
}

func (f *flakyRegistrations) RegisterDevice(ctx context.Context, publicKey string) (domain.PairingCode, error) {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failures
	if fail {
		f.regKeys = append(f.regKeys, publicKey)
	}
	f.mu.Unlock()
	if fail {
		return "", errors.New("connection refused")
	}
	return f.fakeService.RegisterDevice(ctx, publicKey)
}

func (f *flakyRegistrations) markCode(at time.Time) {
	f.atMu.Lock()
	defer f.atMu.Unlock()
	f.at = at
}

func (f *flakyRegistrations) codeAt() time.Time {
	f.atMu.Lock()
	defer f.atMu.Unlock()
	return f.at
}
