package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the server settings.
type Config struct {
	Addr     string // HTTP listen address
	LogFile  string // rotated log file; empty logs to stdout
	LogLevel string // zap level name

	MazeSize    int   // cells per maze edge
	MazeSeed    int64 // 0 draws a seed per room
	DefaultRoom string

	MaxClientsPerRoom int
	SendBuffer        int // outgoing messages queued per connection
	AllowedOrigins    []string

	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
	ReadTimeout  time.Duration
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Addr:              ":8080",
		LogFile:           "app.log",
		LogLevel:          "info",
		MazeSize:          20,
		DefaultRoom:       "maze_play",
		MaxClientsPerRoom: 16,
		SendBuffer:        64,
		AllowedOrigins:    []string{"*"},
		PingInterval:      25 * time.Second,
		PongWait:          60 * time.Second,
		WriteWait:         10 * time.Second,
		ReadTimeout:       15 * time.Second,
	}
}

// Load reads envFiles (default ".env") if present, then the environment.
// A missing .env file is not an error; a malformed value is.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return Config{}, fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables over Default().
func FromEnv() (Config, error) {
	c := Default()
	var err error

	c.Addr = getEnv("MAZE_ADDR", c.Addr)
	c.LogFile = getEnv("MAZE_LOG_FILE", c.LogFile)
	c.LogLevel = getEnv("MAZE_LOG_LEVEL", c.LogLevel)
	c.DefaultRoom = getEnv("MAZE_DEFAULT_ROOM", c.DefaultRoom)

	if c.MazeSize, err = getEnvAsInt("MAZE_SIZE", c.MazeSize); err != nil {
		return Config{}, err
	}
	if c.MazeSize <= 0 {
		return Config{}, fmt.Errorf("MAZE_SIZE must be positive, got %d", c.MazeSize)
	}
	seed, err := getEnvAsInt("MAZE_SEED", int(c.MazeSeed))
	if err != nil {
		return Config{}, err
	}
	c.MazeSeed = int64(seed)
	if c.MaxClientsPerRoom, err = getEnvAsInt("MAZE_MAX_CLIENTS", c.MaxClientsPerRoom); err != nil {
		return Config{}, err
	}
	if c.MaxClientsPerRoom <= 0 {
		return Config{}, fmt.Errorf("MAZE_MAX_CLIENTS must be positive, got %d", c.MaxClientsPerRoom)
	}
	if c.SendBuffer, err = getEnvAsInt("MAZE_SEND_BUFFER", c.SendBuffer); err != nil {
		return Config{}, err
	}
	if c.SendBuffer < 2 {
		return Config{}, fmt.Errorf("MAZE_SEND_BUFFER must be at least 2, got %d", c.SendBuffer)
	}
	if v, ok := os.LookupEnv("MAZE_ALLOWED_ORIGINS"); ok && v != "" {
		c.AllowedOrigins = splitList(v)
	}
	if c.PingInterval, err = getEnvAsDuration("MAZE_PING_INTERVAL", c.PingInterval); err != nil {
		return Config{}, err
	}
	if c.PongWait, err = getEnvAsDuration("MAZE_PONG_WAIT", c.PongWait); err != nil {
		return Config{}, err
	}
	if c.PingInterval >= c.PongWait {
		return Config{}, fmt.Errorf("MAZE_PING_INTERVAL (%s) must be shorter than MAZE_PONG_WAIT (%s)", c.PingInterval, c.PongWait)
	}
	if c.WriteWait, err = getEnvAsDuration("MAZE_WRITE_WAIT", c.WriteWait); err != nil {
		return Config{}, err
	}
	if c.ReadTimeout, err = getEnvAsDuration("MAZE_READ_TIMEOUT", c.ReadTimeout); err != nil {
		return Config{}, err
	}
	return c, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvAsDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s must be a duration: %w", key, err)
	}
	return d, nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
