package config

// ConfigBackend is a flat key/value store for non-secret settings. Every
// platform uses the JSON fileBackend; only its location differs.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}

func newPlatformBackend() ConfigBackend {
	return newFileBackend(configFilePath())
}
