package config

import (
	"time"

	"github.com/spf13/viper"
)

// lookup returns get(key) when key is set in the file or the environment,
// and def otherwise.
func lookup[T any](v *viper.Viper, key string, def T, get func(string) T) T {
	if v.IsSet(key) {
		return get(key)
	}
	return def
}

func getDurationOrDefault(v *viper.Viper, key string, def time.Duration) time.Duration {
	return lookup(v, key, def, v.GetDuration)
}

func getIntOrDefault(v *viper.Viper, key string, def int) int {
	return lookup(v, key, def, v.GetInt)
}

func getFloat64OrDefault(v *viper.Viper, key string, def float64) float64 {
	return lookup(v, key, def, v.GetFloat64)
}

func getStringOrDefault(v *viper.Viper, key string, def string) string {
	return lookup(v, key, def, v.GetString)
}

func getBoolOrDefault(v *viper.Viper, key string, def bool) bool {
	return lookup(v, key, def, v.GetBool)
}

// getMillisOrDefault reads an integer number of milliseconds.
func getMillisOrDefault(v *viper.Viper, key string, def time.Duration) time.Duration {
	return lookup(v, key, def, func(k string) time.Duration {
		return time.Duration(v.GetInt64(k)) * time.Millisecond
	})
}
