package config

import (
	"time"

	"github.com/spf13/viper"
)

// Values is a read-only view of the loaded document, including sections the
// framework does not know about. The zero value answers every lookup with
// the type's zero value.
type Values struct {
	v *viper.Viper
}

// NewValues wraps an existing viper instance.
func NewValues(v *viper.Viper) Values { return Values{v: v} }

func (x Values) GetString(key string) string {
	if x.v == nil {
		return ""
	}
	return x.v.GetString(key)
}

func (x Values) GetInt(key string) int {
	if x.v == nil {
		return 0
	}
	return x.v.GetInt(key)
}

func (x Values) GetBool(key string) bool {
	if x.v == nil {
		return false
	}
	return x.v.GetBool(key)
}

func (x Values) GetDuration(key string) time.Duration {
	if x.v == nil {
		return 0
	}
	return x.v.GetDuration(key)
}

func (x Values) GetStringSlice(key string) []string {
	if x.v == nil {
		return nil
	}
	return x.v.GetStringSlice(key)
}

func (x Values) IsSet(key string) bool {
	return x.v != nil && x.v.IsSet(key)
}

// UnmarshalKey decodes one section into out using mapstructure tags.
func (x Values) UnmarshalKey(key string, out any) error {
	if x.v == nil {
		return nil
	}
	return x.v.UnmarshalKey(key, out)
}
