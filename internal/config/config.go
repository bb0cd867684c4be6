// Package config loads the project configuration: source and output trees,
// cache identity, environment targets, and the optional event, metric and
// preview settings.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/siteforge/internal/deploy"
	sferrors "git.home.luguber.info/inful/siteforge/internal/errors"
)

// DefaultPath is where Load looks when no config flag is given.
const DefaultPath = "siteforge.yaml"

// Config is the root configuration document.
type Config struct {
	Project      Project                `yaml:"project"`
	Source       string                 `yaml:"source"`
	Output       string                 `yaml:"output"`
	Manifest     ManifestConfig         `yaml:"manifest"`
	Cache        CacheConfig            `yaml:"cache"`
	Events       EventsConfig           `yaml:"events"`
	Metrics      MetricsConfig          `yaml:"metrics"`
	Serve        ServeConfig            `yaml:"serve"`
	StateDir     string                 `yaml:"state_dir"`
	Environments map[string]Environment `yaml:"environments"`
}

// Project identifies the site being built.
type Project struct {
	Name    string `yaml:"name"`
	CacheID string `yaml:"cache_id"`
}

// ManifestConfig controls precache manifest generation.
type ManifestConfig struct {
	Disabled bool `yaml:"disabled"`
}

// CacheConfig controls the change-detection cache. An empty PersistPath
// keeps digests in memory, valid for a single run only; setting it enables
// incremental builds across invocations.
type CacheConfig struct {
	PersistPath string `yaml:"persist_path,omitempty"`
}

// EventsConfig enables build event publishing when a NATS URL is set.
type EventsConfig struct {
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// MetricsConfig exposes Prometheus metrics on the given address when set.
type MetricsConfig struct {
	Listen string `yaml:"listen,omitempty"`
}

// ServeConfig controls the local preview server.
type ServeConfig struct {
	Listen          string `yaml:"listen,omitempty"`
	RebuildInterval string `yaml:"rebuild_interval,omitempty"`
}

// RebuildEvery parses the optional periodic rebuild interval; zero means
// rebuild on file changes only.
func (s ServeConfig) RebuildEvery() (time.Duration, error) {
	if s.RebuildInterval == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.RebuildInterval)
	if err != nil {
		return 0, sferrors.ValidationFailed("serve.rebuild_interval", err.Error())
	}
	return d, nil
}

// Environment is one deploy target. Credential fields usually carry
// ${VAR} references expanded from the process environment at load time.
type Environment struct {
	Type      string `yaml:"type"`
	Target    string `yaml:"target,omitempty"`
	Bucket    string `yaml:"bucket,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
	Secure    bool   `yaml:"secure,omitempty"`
	Remote    string `yaml:"remote,omitempty"`
	Branch    string `yaml:"branch,omitempty"`
}

// Load reads and validates the configuration file. A .env or .env.local
// file beside the working directory is loaded first so ${VAR} references in
// the YAML can resolve against it.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, sferrors.ConfigNotFound(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnvFiles() {
	for _, envPath := range []string{".env", ".env.local"} {
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Source == "" {
		c.Source = "./src"
	}
	if c.Output == "" {
		c.Output = "./dist"
	}
	if c.StateDir == "" {
		c.StateDir = ".siteforge"
	}
	if c.Project.CacheID == "" && c.Project.Name != "" {
		c.Project.CacheID = c.Project.Name
	}
	if c.Events.NATSURL != "" && c.Events.Subject == "" {
		c.Events.Subject = "siteforge.builds"
	}
	if c.Serve.Listen == "" {
		c.Serve.Listen = ":8080"
	}
}

// Validate checks the fields a run cannot proceed without.
func (c *Config) Validate() error {
	if c.Project.Name == "" {
		return sferrors.ValidationFailed("project.name", "must not be empty")
	}
	for name, env := range c.Environments {
		switch env.Type {
		case "local":
			if env.Target == "" {
				return sferrors.ValidationFailed(fmt.Sprintf("environments.%s.target", name), "local environment needs a target directory")
			}
		case "bucket":
			if env.Bucket == "" || env.Endpoint == "" {
				return sferrors.ValidationFailed(fmt.Sprintf("environments.%s", name), "bucket environment needs bucket and endpoint")
			}
		case "git-branch":
			if env.Remote == "" || env.Branch == "" {
				return sferrors.ValidationFailed(fmt.Sprintf("environments.%s", name), "git-branch environment needs remote and branch")
			}
		default:
			return sferrors.ValidationFailed(fmt.Sprintf("environments.%s.type", name), fmt.Sprintf("unsupported type %q", env.Type))
		}
	}
	return nil
}

// DeployEnvironments converts the configured environments into the
// deployer's representation.
func (c *Config) DeployEnvironments() map[string]deploy.Environment {
	out := make(map[string]deploy.Environment, len(c.Environments))
	for name, env := range c.Environments {
		target := env.Target
		switch env.Type {
		case "bucket":
			target = env.Bucket
		case "git-branch":
			target = env.Branch
		}
		out[name] = deploy.Environment{
			Name:      name,
			Type:      env.Type,
			Target:    target,
			Endpoint:  env.Endpoint,
			AccessKey: env.AccessKey,
			SecretKey: env.SecretKey,
			Secure:    env.Secure,
			Remote:    env.Remote,
		}
	}
	return out
}

// Init writes an example configuration file.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
	}

	example := Config{
		Project: Project{Name: "mysite", CacheID: "mysite-v1"},
		Source:  "./src",
		Output:  "./dist",
		Cache:   CacheConfig{PersistPath: ".siteforge/cache.db"},
		Environments: map[string]Environment{
			"development": {Type: "local", Target: "./public"},
			"staging": {
				Type:      "bucket",
				Bucket:    "mysite-staging",
				Endpoint:  "s3.example.com",
				AccessKey: "${S3_ACCESS_KEY}",
				SecretKey: "${S3_SECRET_KEY}",
				Secure:    true,
			},
			"production": {
				Type:   "git-branch",
				Remote: "git@example.com:mysite/site.git",
				Branch: "gh-pages",
			},
		},
	}

	data, err := yaml.Marshal(&example)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
