package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivemesh/nostrchan/pkg/event"
)

func TestFilter_MarshalJSON(t *testing.T) {
	since := int64(1700000000)

	tests := []struct {
		name   string
		filter Filter
		want   string
	}{
		{
			name:   "subscription filter",
			filter: Filter{Kinds: []int{1, 4}, Since: &since, Limit: 50},
			want:   `{"kinds":[1,4],"limit":50,"since":1700000000}`,
		},
		{
			name:   "identity lookup filter",
			filter: Filter{Kinds: []int{30000}, Limit: 1, Tags: map[string][]string{"d": {"aria"}}},
			want:   `{"#d":["aria"],"kinds":[30000],"limit":1}`,
		},
		{
			name:   "empty filter",
			filter: Filter{},
			want:   `{}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(raw))
		})
	}
}

func TestFilter_UnmarshalJSON(t *testing.T) {
	var f Filter
	err := json.Unmarshal([]byte(`{"kinds":[1,4],"since":1700000000,"limit":50,"#p":["abc","def"],"authors":["ignored"]}`), &f)
	require.NoError(t, err)

	require.Equal(t, []int{1, 4}, f.Kinds)
	require.NotNil(t, f.Since)
	assert.Equal(t, int64(1700000000), *f.Since)
	assert.Equal(t, 50, f.Limit)
	assert.Equal(t, map[string][]string{"p": {"abc", "def"}}, f.Tags)
}

func TestFilter_Matches(t *testing.T) {
	since := int64(1000)
	ev := &event.Event{
		Kind:      4,
		CreatedAt: 1500,
		Tags:      [][]string{{"p", "abc"}, {"d", "aria"}},
	}

	tests := []struct {
		name   string
		filter Filter
		ev     *event.Event
		want   bool
	}{
		{name: "empty filter matches all", filter: Filter{}, ev: ev, want: true},
		{name: "kind listed", filter: Filter{Kinds: []int{1, 4}}, ev: ev, want: true},
		{name: "kind missing", filter: Filter{Kinds: []int{1}}, ev: ev, want: false},
		{name: "new enough", filter: Filter{Since: &since}, ev: ev, want: true},
		{name: "too old", filter: Filter{Since: ptrInt64(2000)}, ev: ev, want: false},
		{name: "tag value present", filter: Filter{Tags: map[string][]string{"d": {"aria", "other"}}}, ev: ev, want: true},
		{name: "tag value absent", filter: Filter{Tags: map[string][]string{"d": {"other"}}}, ev: ev, want: false},
		{name: "tag name absent", filter: Filter{Tags: map[string][]string{"e": {"abc"}}}, ev: ev, want: false},
		{name: "nil event", filter: Filter{}, ev: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(tt.ev))
		})
	}
}

func ptrInt64(v int64) *int64 { return &v }
