package wire

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/hivemesh/nostrchan/pkg/event"
)

// Filter selects events by kind, age, and tag values, mirroring the
// NIP-01 REQ filter object. Tag keys are stored without their "#" prefix.
type Filter struct {
	Kinds []int
	Since *int64
	Limit int
	Tags  map[string][]string
}

// MarshalJSON renders the filter as its wire object, prefixing tag keys
// with "#".
func (f Filter) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, 3+len(f.Tags))
	if len(f.Kinds) > 0 {
		obj["kinds"] = f.Kinds
	}
	if f.Since != nil {
		obj["since"] = *f.Since
	}
	if f.Limit > 0 {
		obj["limit"] = f.Limit
	}
	for name, values := range f.Tags {
		obj["#"+name] = values
	}
	return json.Marshal(obj)
}

// UnmarshalJSON parses the wire object back. Keys this module does not
// filter on are ignored.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}

	*f = Filter{}
	for key, raw := range obj {
		switch {
		case key == "kinds":
			if err := json.Unmarshal(raw, &f.Kinds); err != nil {
				return err
			}
		case key == "since":
			f.Since = new(int64)
			if err := json.Unmarshal(raw, f.Since); err != nil {
				return err
			}
		case key == "limit":
			if err := json.Unmarshal(raw, &f.Limit); err != nil {
				return err
			}
		case strings.HasPrefix(key, "#"):
			var values []string
			if err := json.Unmarshal(raw, &values); err != nil {
				return err
			}
			if f.Tags == nil {
				f.Tags = make(map[string][]string)
			}
			f.Tags[strings.TrimPrefix(key, "#")] = values
		}
	}
	return nil
}

// Matches reports whether ev satisfies every constraint of the filter.
// Limit is a result-count bound, not a per-event predicate, so it plays
// no part here.
func (f Filter) Matches(ev *event.Event) bool {
	if ev == nil {
		return false
	}
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, ev.Kind) {
		return false
	}
	if f.Since != nil && ev.CreatedAt < *f.Since {
		return false
	}
	for name, wanted := range f.Tags {
		have := ev.TagValues(name)
		match := false
		for _, w := range wanted {
			if slices.Contains(have, w) {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	return true
}
