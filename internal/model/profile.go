package model

import (
	"bytes"
	"encoding/json"
	"sort"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// DefaultProfileID is the id of the single profile a store keeps.
const DefaultProfileID = "default"

// Profile is the user profile the agent maintains across sessions.
type Profile struct {
	ID                 string             `json:"id"`
	Preferences        Preferences        `json:"preferences"`
	InteractionHistory InteractionHistory `json:"interaction_history"`
	LastUpdated        time.Time          `json:"last_updated"`
}

// InteractionHistory holds aggregate counters about past interactions.
type InteractionHistory struct {
	TotalMessages    int      `json:"total_messages"`
	TopicsDiscussed  []string `json:"topics_discussed"`
	FavoriteFeatures []string `json:"favorite_features"`
}

// NewProfile returns an empty profile with the given id ("default" when empty).
func NewProfile(id string) *Profile {
	if id == "" {
		id = DefaultProfileID
	}
	return &Profile{
		ID:          id,
		Preferences: Preferences{},
		InteractionHistory: InteractionHistory{
			TopicsDiscussed:  []string{},
			FavoriteFeatures: []string{},
		},
	}
}

// AddTopic appends topic unless already present.
func (h *InteractionHistory) AddTopic(topic string) {
	if topic == "" {
		return
	}
	for _, t := range h.TopicsDiscussed {
		if t == topic {
			return
		}
	}
	h.TopicsDiscussed = append(h.TopicsDiscussed, topic)
}

// Clone returns a deep copy of p.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	c.Preferences = make(Preferences, len(p.Preferences))
	for k, v := range p.Preferences {
		c.Preferences[k] = v.clone()
	}
	c.InteractionHistory.TopicsDiscussed = cloneStrings(p.InteractionHistory.TopicsDiscussed)
	c.InteractionHistory.FavoriteFeatures = cloneStrings(p.InteractionHistory.FavoriteFeatures)
	return &c
}

// Preferences maps a preference key to a value from a closed set of kinds.
type Preferences map[string]Preference

// Keys returns the preference keys in sorted order.
func (p Preferences) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PreferenceKind enumerates the value kinds a Preference may hold.
type PreferenceKind int

const (
	KindString PreferenceKind = iota + 1
	KindNumber
	KindBool
	KindList
)

// Preference is a string, number, bool, or list of strings. Objects and null
// are not representable.
type Preference struct {
	kind PreferenceKind
	str  string
	num  float64
	flag bool
	list []string
}

// StringPref returns a string preference.
func StringPref(v string) Preference { return Preference{kind: KindString, str: v} }

// NumberPref returns a numeric preference.
func NumberPref(v float64) Preference { return Preference{kind: KindNumber, num: v} }

// BoolPref returns a boolean preference.
func BoolPref(v bool) Preference { return Preference{kind: KindBool, flag: v} }

// ListPref returns a list preference holding a copy of v.
func ListPref(v ...string) Preference { return Preference{kind: KindList, list: append([]string{}, v...)} }

// Kind reports which value the preference holds.
func (p Preference) Kind() PreferenceKind { return p.kind }

// AsString returns the value when Kind is KindString.
func (p Preference) AsString() (string, bool) { return p.str, p.kind == KindString }

// AsNumber returns the value when Kind is KindNumber.
func (p Preference) AsNumber() (float64, bool) { return p.num, p.kind == KindNumber }

// AsBool returns the value when Kind is KindBool.
func (p Preference) AsBool() (bool, bool) { return p.flag, p.kind == KindBool }

// AsList returns a copy of the value when Kind is KindList.
func (p Preference) AsList() ([]string, bool) {
	if p.kind != KindList {
		return nil, false
	}
	return cloneStrings(p.list), true
}

func (p Preference) clone() Preference {
	p.list = cloneStrings(p.list)
	return p
}

// Any returns the underlying Go value.
func (p Preference) Any() any {
	switch p.kind {
	case KindString:
		return p.str
	case KindNumber:
		return p.num
	case KindBool:
		return p.flag
	case KindList:
		return cloneStrings(p.list)
	}
	return nil
}

// PreferenceFrom converts a decoded JSON/YAML value into a Preference.
func PreferenceFrom(v any) (Preference, error) {
	switch x := v.(type) {
	case string:
		return StringPref(x), nil
	case bool:
		return BoolPref(x), nil
	case float64:
		return NumberPref(x), nil
	case float32:
		return NumberPref(float64(x)), nil
	case int:
		return NumberPref(float64(x)), nil
	case int64:
		return NumberPref(float64(x)), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Preference{}, goerr.Wrap(ErrRecordValidation, "invalid preference number", goerr.V("value", x.String()))
		}
		return NumberPref(f), nil
	case []string:
		return ListPref(x...), nil
	case []any:
		list := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return Preference{}, goerr.Wrap(ErrRecordValidation, "preference lists may only hold strings", goerr.V("item", item))
			}
			list = append(list, s)
		}
		return ListPref(list...), nil
	}
	return Preference{}, goerr.Wrap(ErrRecordValidation, "unsupported preference value", goerr.V("value", v))
}

// MarshalJSON encodes the plain value. A zero Preference is an error.
func (p Preference) MarshalJSON() ([]byte, error) {
	if p.kind == 0 {
		return nil, goerr.Wrap(ErrRecordValidation, "empty preference value")
	}
	return json.Marshal(p.Any())
}

// UnmarshalJSON accepts a string, number, bool or array of strings.
func (p *Preference) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return goerr.Wrap(ErrRecordValidation, "invalid preference JSON", goerr.V("error", err.Error()))
	}
	pref, err := PreferenceFrom(v)
	if err != nil {
		return err
	}
	*p = pref
	return nil
}
