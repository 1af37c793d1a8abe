package server_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"castpair/internal/discovery"
	"castpair/internal/domain"
	"castpair/internal/services/claim"
	"castpair/internal/services/poll"
	"castpair/internal/services/registration"
	"castpair/internal/services/session"
)

// TestPairing_EndToEnd runs a receiver session against the HTTP API while a
// companion probes the loopback channel and claims the code.
func TestPairing_EndToEnd(t *testing.T) {
	f := newFixture(t)
	logger, _ := logtest.NewNullLogger()

	ch := discovery.NewLoopback()
	codes := make(chan domain.PairingCode, 1)
	ctrl := session.New(
		registration.New(f.client, registration.WithLogger(logger)),
		poll.New(f.client, poll.WithInterval(10*time.Millisecond), poll.WithLogger(logger)),
		discovery.NewAdapter(ch, discovery.WithLogger(logger)),
		session.WithLogger(logger),
		session.OnCode(func(c domain.PairingCode) { codes <- c }),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	type outcome struct {
		res session.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := ctrl.Run(ctx)
		done <- outcome{res, err}
	}()

	var code domain.PairingCode
	select {
	case code = <-codes:
	case <-ctx.Done():
		t.Fatal("no code issued")
	}

	// The companion learns the code over the discovery channel.
	var reply domain.HandshakeReply
	require.Eventually(t, func() bool {
		ch.Deliver("companion", domain.PairNamespace, []byte(`{}`))
		sent := ch.Sent()
		if len(sent) == 0 {
			return false
		}
		return json.Unmarshal(sent[len(sent)-1].Payload, &reply) == nil
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, code, reply.Code)

	require.NoError(t, claim.New(f.client, logger).Claim(ctx, reply.Code, []byte(`{"collectionId":42,"castToken":"t"}`)))

	o := <-done
	require.NoError(t, o.err)
	assert.Equal(t, session.StateComplete, o.res.State)
	assert.Equal(t, json.Number("42"), o.res.Payload["collectionId"])
	assert.Equal(t, "t", o.res.Payload["castToken"])
	assert.Equal(t, 1, ch.StopCalls())
}
