// Package config loads the blackboard configuration.
//
// Values are layered, later layers winning:
//
//  1. built-in defaults (Defaults)
//  2. a YAML file (explicit path, CONFIG_PATH, or one of DefaultConfigPaths)
//  3. a .env file in the working directory, if present
//  4. BLACKBOARD_* environment variables (BLACKBOARD_SERVER_PORT -> server.port)
package config

import (
	"time"
)

// Config is the root configuration shared by the relay server and the CLI participant.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Relay    RelayConfig    `koanf:"relay"`
	Bus      BusConfig      `koanf:"bus"`
	Storage  StorageConfig  `koanf:"storage"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
	Board    BoardConfig    `koanf:"board"`
	Client   ClientConfig   `koanf:"client"`
}

// ServerConfig configures the relay's HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"min=0"`
	MaxBodyBytes    int64         `koanf:"max_body_bytes" validate:"min=1024"`
}

// RelayConfig tunes websocket connections on the relay.
type RelayConfig struct {
	MaxMessageSize int64         `koanf:"max_message_size" validate:"min=1024"`
	SendBuffer     int           `koanf:"send_buffer" validate:"min=1"`
	WriteWait      time.Duration `koanf:"write_wait" validate:"min=0"`
	PongWait       time.Duration `koanf:"pong_wait" validate:"min=0"`
	FramesPerSec   float64       `koanf:"frames_per_sec" validate:"min=0"`
	FrameBurst     int           `koanf:"frame_burst" validate:"min=1"`
	AllowedOrigins []string      `koanf:"allowed_origins"`
}

// BusConfig selects the room bus backend.
type BusConfig struct {
	// Backend is "memory" (single node) or "nats".
	Backend      string `koanf:"backend" validate:"oneof=memory nats"`
	NATSURL      string `koanf:"nats_url"`
	EmbeddedNATS bool   `koanf:"embedded_nats"`
	// EmbeddedPort of -1 picks a random free port.
	EmbeddedPort  int    `koanf:"embedded_port" validate:"min=-1,max=65535"`
	SubjectPrefix string `koanf:"subject_prefix" validate:"required"`
}

// StorageConfig configures the badger room store.
type StorageConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`
}

// SecurityConfig configures participant identity on the relay.
type SecurityConfig struct {
	// JWTSecret enables HS256 token checks on /ws when non-empty.
	JWTSecret string `koanf:"jwt_secret"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// BoardConfig holds the whiteboard tunables shared by every participant of a deployment.
type BoardConfig struct {
	VirtualWidth   int     `koanf:"virtual_width" validate:"min=16"`
	VirtualHeight  int     `koanf:"virtual_height" validate:"min=16"`
	Theme          string  `koanf:"theme" validate:"oneof=green black white"`
	ThicknessScale float64 `koanf:"thickness_scale" validate:"gt=0"`
	CommitQuality  float64 `koanf:"commit_quality" validate:"gt=0,lte=1"`
	SyncQuality    float64 `koanf:"sync_quality" validate:"gt=0,lte=1"`
	StoreQuality   float64 `koanf:"store_quality" validate:"gt=0,lte=1"`
	SyncOnNavigate bool    `koanf:"sync_on_navigate"`
	MaxPages       int     `koanf:"max_pages" validate:"min=1,max=10000"`
	PDFScale       float64 `koanf:"pdf_scale" validate:"gt=0"`
}

// ClientConfig configures the CLI participant.
type ClientConfig struct {
	RelayURL     string        `koanf:"relay_url" validate:"required"`
	APIURL       string        `koanf:"api_url" validate:"required"`
	Token        string        `koanf:"token"`
	CachePath    string        `koanf:"cache_path"`
	FlushTimeout time.Duration `koanf:"flush_timeout" validate:"min=0"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    32 << 20,
		},
		Relay: RelayConfig{
			MaxMessageSize: 4 << 20,
			SendBuffer:     256,
			WriteWait:      10 * time.Second,
			PongWait:       60 * time.Second,
			FramesPerSec:   240,
			FrameBurst:     480,
			AllowedOrigins: []string{"*"},
		},
		Bus: BusConfig{
			Backend:       "memory",
			NATSURL:       "nats://127.0.0.1:4222",
			EmbeddedPort:  4222,
			SubjectPrefix: "whiteboard",
		},
		Storage: StorageConfig{
			Path: "data/rooms",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Board: BoardConfig{
			VirtualWidth:   2000,
			VirtualHeight:  1500,
			Theme:          "green",
			ThicknessScale: 1,
			CommitQuality:  0.35,
			SyncQuality:    0.4,
			StoreQuality:   0.6,
			PDFScale:       3,
			MaxPages:       500,
		},
		Client: ClientConfig{
			RelayURL:     "ws://127.0.0.1:8080/ws",
			APIURL:       "http://127.0.0.1:8080/api",
			FlushTimeout: 10 * time.Second,
		},
	}
}
