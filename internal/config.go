package internal

import (
	"fmt"
	"time"
)

type Config struct {
	Host     string `env:"HOST,required=true"`
	Port     int    `env:"PORT,required=true"`
	LogLevel string `env:"LOG_LEVEL,required=true"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`

	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,required=true"`

	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,required=true"`
	DeliveryTimeout      time.Duration `env:"DELIVERY_TIMEOUT,required=true"`
	StoreTimeout         time.Duration `env:"STORE_TIMEOUT,required=true"`
	CatchUpLimit         int           `env:"CATCHUP_LIMIT,default=200"`
	RecentlyOnlineWindow time.Duration `env:"RECENTLY_ONLINE_WINDOW,default=5m"`
	CompactInterval      time.Duration `env:"COMPACT_INTERVAL,default=1m"`

	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	MetricInterval  time.Duration `env:"METRIC_INTERVAL,required=true"`

	CharReplacement string `env:"CHARACTER_REPLACEMENT,default=*"`

	MinioEndpoint  string        `env:"MINIO_ENDPOINT,required=true"`
	MinioAccessKey string        `env:"MINIO_ACCESS_KEY,required=true"`
	MinioSecretKey string        `env:"MINIO_SECRET_KEY,required=true"`
	MinioBucket    string        `env:"MINIO_BUCKET,required=true"`
	MinioUseSSL    bool          `env:"MINIO_USE_SSL,default=false"`
	MediaURLExpiry time.Duration `env:"MEDIA_URL_EXPIRY,default=168h"`

	DebugPort int `env:"DEBUG_PORT,default=8091"`
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
