// Package config layers recording defaults under an optional config file
// under environment variables, the way the rest of the codebase
// configures its CLI entrypoints: a package-level viper.Viper populated
// in init(), with typed accessors instead of callers touching viper
// directly.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

var v *viper.Viper

const (
	DefaultFPS             = 30
	DefaultResolution      = "720p"
	DefaultOutputPath      = "recording.avi"
	DefaultRingCapacity    = 32
	DefaultFrameBuffers    = 4
	DefaultWriteBufferMB   = 8
	DefaultJPEGQuality     = 75
)

func init() {
	v = viper.New()

	v.SetDefault("fps", DefaultFPS)
	v.SetDefault("resolution", DefaultResolution)
	v.SetDefault("audio", false)
	v.SetDefault("auto_record_seconds", 0)
	v.SetDefault("output", DefaultOutputPath)
	v.SetDefault("no_auth", false)
	v.SetDefault("quality", DefaultJPEGQuality)
	v.SetDefault("ring_capacity", DefaultRingCapacity)
	v.SetDefault("frame_buffers", DefaultFrameBuffers)
	v.SetDefault("write_buffer_mb", DefaultWriteBufferMB)
	v.SetDefault("mirror_webm", "")
	v.SetDefault("preview_addr", "")
	v.SetDefault("stats", false)
	v.SetDefault("home", filepath.Join(xdg.Home, ".deskrec"))

	v.AutomaticEnv()
	v.SetEnvPrefix("deskrec")
	for _, key := range []string{
		"fps", "resolution", "audio", "auto_record_seconds", "output",
		"no_auth", "quality", "ring_capacity", "frame_buffers", "write_buffer_mb",
		"mirror_webm", "preview_addr", "stats", "home",
	} {
		_ = v.BindEnv(key)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, path := range []string{".", "$HOME/.deskrec", "/etc/deskrec"} {
		v.AddConfigPath(os.ExpandEnv(path))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(fmt.Sprintf("deskrec: fatal error reading config file: %s", err))
		}
	}
}

// Resolution is a named output frame size, validated against the fixed
// set the capture pipeline supports.
type Resolution struct {
	Token  string
	Width  int
	Height int
}

var resolutions = map[string]Resolution{
	"720p":  {"720p", 1280, 720},
	"1080p": {"1080p", 1920, 1080},
	"1440p": {"1440p", 2560, 1440},
}

// ResolveResolution maps a CLI/config token to its pixel dimensions. An
// unrecognized token is a configuration error, not a runtime condition.
func ResolveResolution(token string) (Resolution, error) {
	r, ok := resolutions[token]
	if !ok {
		return Resolution{}, fmt.Errorf("config: unsupported resolution %q", token)
	}
	return r, nil
}

func FPS() int                { return v.GetInt("fps") }
func ResolutionToken() string { return v.GetString("resolution") }
func AudioEnabled() bool      { return v.GetBool("audio") }
func AutoRecordSeconds() int  { return v.GetInt("auto_record_seconds") }
func OutputPath() string      { return v.GetString("output") }
func NoAuth() bool            { return v.GetBool("no_auth") }
func JPEGQuality() int        { return v.GetInt("quality") }
func RingCapacity() int       { return v.GetInt("ring_capacity") }
func FrameBuffers() int       { return v.GetInt("frame_buffers") }
func WriteBufferMB() int      { return v.GetInt("write_buffer_mb") }
func MirrorWebMPath() string  { return v.GetString("mirror_webm") }
func PreviewAddr() string     { return v.GetString("preview_addr") }
func StatsEnabled() bool      { return v.GetBool("stats") }
func Home() string            { return v.GetString("home") }

// Set overrides a single key, used by the CLI layer to push parsed flag
// values into the same config surface the env/file layers populate.
func Set(key string, value any) {
	v.Set(key, value)
}
