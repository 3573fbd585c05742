package parser

import "time"

type Config struct {
	Version  string             `yaml:"version"`
	Networks map[string]Network `yaml:"networks"`
	Volumes  map[string]Volume  `yaml:"volumes"`
	Services map[string]Service `yaml:"services"`
}

type Network struct {
	Driver     string            `yaml:"driver"`
	External   bool              `yaml:"external"`
	DriverOpts map[string]string `yaml:"driver_opts"`
}

type Volume struct {
	Driver     string            `yaml:"driver"`
	External   bool              `yaml:"external"`
	DriverOpts map[string]string `yaml:"driver_opts"`
}

// MapOrArrayWrapper accepts both the mapping and the KEY=VALUE list form
// compose files use for environment blocks.
type MapOrArrayWrapper []string

// StringOrList accepts a scalar where a single-element list is meant.
type StringOrList []string

// Command accepts the compose exec form ([...]) or the shell form, which is
// split into argv with quote awareness.
type Command []string

type Service struct {
	ContainerName string            `yaml:"container_name"`
	Restart       string            `yaml:"restart"`
	Image         string            `yaml:"image"`
	Build         *Build            `yaml:"build"`
	Labels        map[string]string `yaml:"labels"`
	Volumes       []string          `yaml:"volumes"`
	Ports         []string          `yaml:"ports"`
	Environment   MapOrArrayWrapper `yaml:"environment"`
	EnvFile       StringOrList      `yaml:"env_file"`
	Networks      []string          `yaml:"networks"`
	Command       Command           `yaml:"command"`
	DependsOn     StringOrList      `yaml:"depends_on"`
	HealthCheck   *HealthCheck      `yaml:"healthcheck"`
}

type Build struct {
	Context    string `yaml:"context"`
	Dockerfile string `yaml:"dockerfile"`
}

// HealthCheck describes a readiness probe. Test is the compose exec form
// (["CMD", ...] or ["CMD-SHELL", ...]); HTTP is a URL polled with GET and
// considered passing on any 2xx response. Exactly one of the two is used,
// HTTP winning when both are set.
type HealthCheck struct {
	Test     StringOrList `yaml:"test"`
	HTTP     string       `yaml:"http"`
	Interval Duration     `yaml:"interval"`
	Timeout  Duration     `yaml:"timeout"`
	Retries  int          `yaml:"retries"`
}

// Duration parses compose-style duration strings ("2s", "1m30s"); a bare
// number is taken as seconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

const (
	DefaultProbeInterval = 2 * time.Second
	DefaultProbeTimeout  = 5 * time.Second
	DefaultProbeRetries  = 10
)

// Normalize fills probe defaults in place.
func (h *HealthCheck) Normalize() {
	if h.Interval <= 0 {
		h.Interval = Duration(DefaultProbeInterval)
	}
	if h.Timeout <= 0 {
		h.Timeout = Duration(DefaultProbeTimeout)
	}
	if h.Retries <= 0 {
		h.Retries = DefaultProbeRetries
	}
}
