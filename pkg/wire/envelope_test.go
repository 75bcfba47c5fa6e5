package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivemesh/nostrchan/pkg/event"
)

func TestParseMessage_RelayFrames(t *testing.T) {
	t.Run("EVENT with subscription", func(t *testing.T) {
		env, err := ParseMessage([]byte(`["EVENT","sub-1",{"id":"abc","pubkey":"def","created_at":1700000000,"kind":1,"tags":[],"content":"hi","sig":"00"}]`))
		require.NoError(t, err)
		ev, ok := env.(EventEnvelope)
		require.True(t, ok)
		assert.Equal(t, "sub-1", ev.SubscriptionID)
		assert.Equal(t, "abc", ev.Event.ID)
		assert.Equal(t, 1, ev.Event.Kind)
		assert.Equal(t, "hi", ev.Event.Content)
	})

	t.Run("OK accepted", func(t *testing.T) {
		env, err := ParseMessage([]byte(`["OK","abc",true,""]`))
		require.NoError(t, err)
		ok, isOK := env.(OKEnvelope)
		require.True(t, isOK)
		assert.Equal(t, "abc", ok.EventID)
		assert.True(t, ok.Accepted)
		assert.Empty(t, ok.Reason)
	})

	t.Run("OK rejected with reason", func(t *testing.T) {
		env, err := ParseMessage([]byte(`["OK","abc",false,"blocked: rate limited"]`))
		require.NoError(t, err)
		ok := env.(OKEnvelope)
		assert.False(t, ok.Accepted)
		assert.Equal(t, "blocked: rate limited", ok.Reason)
	})

	t.Run("OK without reason", func(t *testing.T) {
		env, err := ParseMessage([]byte(`["OK","abc",true]`))
		require.NoError(t, err)
		assert.True(t, env.(OKEnvelope).Accepted)
	})

	t.Run("EOSE", func(t *testing.T) {
		env, err := ParseMessage([]byte(`["EOSE","sub-1"]`))
		require.NoError(t, err)
		assert.Equal(t, "sub-1", env.(EOSEEnvelope).SubscriptionID)
	})

	t.Run("NOTICE", func(t *testing.T) {
		env, err := ParseMessage([]byte(`["NOTICE","slow down"]`))
		require.NoError(t, err)
		assert.Equal(t, "slow down", env.(NoticeEnvelope).Message)
	})

	t.Run("CLOSED", func(t *testing.T) {
		env, err := ParseMessage([]byte(`["CLOSED","sub-1","auth-required: subscription needs auth"]`))
		require.NoError(t, err)
		closed := env.(ClosedEnvelope)
		assert.Equal(t, "sub-1", closed.SubscriptionID)
		assert.Equal(t, "auth-required: subscription needs auth", closed.Reason)
	})

	t.Run("unknown label survives", func(t *testing.T) {
		env, err := ParseMessage([]byte(`["AUTH","challenge-string"]`))
		require.NoError(t, err)
		assert.Equal(t, "AUTH", env.(UnknownEnvelope).Label())
	})
}

func TestParseMessage_ClientFrames(t *testing.T) {
	t.Run("REQ with one filter", func(t *testing.T) {
		env, err := ParseMessage([]byte(`["REQ","chan-ab12cd34",{"kinds":[1,4],"limit":50}]`))
		require.NoError(t, err)
		req, ok := env.(ReqEnvelope)
		require.True(t, ok)
		assert.Equal(t, "chan-ab12cd34", req.SubscriptionID)
		require.Len(t, req.Filters, 1)
		assert.Equal(t, []int{1, 4}, req.Filters[0].Kinds)
		assert.Equal(t, 50, req.Filters[0].Limit)
	})

	t.Run("EVENT publish has no subscription id", func(t *testing.T) {
		env, err := ParseMessage([]byte(`["EVENT",{"id":"abc","pubkey":"def","created_at":1,"kind":30000,"tags":[["d","aria"]],"content":"sealed","sig":"00"}]`))
		require.NoError(t, err)
		ev := env.(EventEnvelope)
		assert.Empty(t, ev.SubscriptionID)
		assert.Equal(t, "aria", ev.Event.Tag("d"))
	})

	t.Run("CLOSE", func(t *testing.T) {
		env, err := ParseMessage([]byte(`["CLOSE","chan-ab12cd34"]`))
		require.NoError(t, err)
		assert.Equal(t, "chan-ab12cd34", env.(CloseEnvelope).SubscriptionID)
	})
}

func TestParseMessage_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not json", data: `hello relay`},
		{name: "object instead of array", data: `{"type":"EVENT"}`},
		{name: "empty array", data: `[]`},
		{name: "numeric label", data: `[42,"x"]`},
		{name: "EVENT with too many elements", data: `["EVENT","sub",{},"extra"]`},
		{name: "EVENT with bad payload", data: `["EVENT","sub",42]`},
		{name: "OK with non-bool verdict", data: `["OK","abc","yes",""]`},
		{name: "EOSE missing subscription", data: `["EOSE"]`},
		{name: "REQ without filters", data: `["REQ","sub"]`},
		{name: "CLOSED missing reason", data: `["CLOSED","sub"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMessage([]byte(tt.data))
			require.ErrorIs(t, err, ErrMalformedFrame)
		})
	}
}

func TestOutboundBuilders(t *testing.T) {
	t.Run("REQ frame", func(t *testing.T) {
		frame, err := ReqMessage("sub-9", Filter{Kinds: []int{30000}, Limit: 1, Tags: map[string][]string{"d": {"aria"}}})
		require.NoError(t, err)
		assert.JSONEq(t, `["REQ","sub-9",{"#d":["aria"],"kinds":[30000],"limit":1}]`, string(frame))
	})

	t.Run("EVENT frame keeps field order", func(t *testing.T) {
		ev := &event.Event{
			ID:        "abc",
			PubKey:    "def",
			CreatedAt: 1,
			Kind:      1,
			Tags:      [][]string{},
			Content:   "hi",
			Sig:       "0011",
		}
		frame, err := EventMessage(ev)
		require.NoError(t, err)
		assert.Equal(t,
			`["EVENT",{"id":"abc","pubkey":"def","created_at":1,"kind":1,"tags":[],"content":"hi","sig":"0011"}]`,
			string(frame))
	})

	t.Run("CLOSE frame", func(t *testing.T) {
		frame, err := CloseMessage("sub-9")
		require.NoError(t, err)
		assert.Equal(t, `["CLOSE","sub-9"]`, string(frame))
	})

	t.Run("REQ parses back to the same filter", func(t *testing.T) {
		since := int64(1700000000)
		f := Filter{Kinds: []int{1, 4}, Since: &since, Limit: 50}
		frame, err := ReqMessage("sub-1", f)
		require.NoError(t, err)

		env, err := ParseMessage(frame)
		require.NoError(t, err)
		req := env.(ReqEnvelope)
		require.Len(t, req.Filters, 1)
		assert.Equal(t, f, req.Filters[0])
	})
}
