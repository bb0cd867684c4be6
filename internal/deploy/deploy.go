// Package deploy publishes a finished artifact tree to a named environment
// and promotes already-published state between environments.
package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sferrors "git.home.luguber.info/inful/siteforge/internal/errors"
	"git.home.luguber.info/inful/siteforge/internal/metrics"
	"git.home.luguber.info/inful/siteforge/internal/state"
)

// UnknownEnvironmentError reports a deploy against an environment that is
// not configured.
type UnknownEnvironmentError struct {
	Name string
}

func (e *UnknownEnvironmentError) Error() string {
	return fmt.Sprintf("unknown environment: %s", e.Name)
}

// PublishError wraps a transport failure while pushing artifacts. The local
// artifact tree is untouched, so retrying the deploy alone is safe.
type PublishError struct {
	Environment string
	Target      string
	Cause       error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %s (%s) failed: %v", e.Environment, e.Target, e.Cause)
}

func (e *PublishError) Unwrap() error { return e.Cause }

// Environment holds the deploy-time parameters of one named target. The
// publisher type selects the backend; the remaining fields are opaque to the
// deployer and interpreted by the backend only.
type Environment struct {
	Name      string
	Type      string // "local", "bucket" or "git-branch"
	Target    string // directory, bucket name, or branch name
	Endpoint  string // bucket backend: S3 endpoint
	AccessKey string
	SecretKey string
	Secure    bool
	Remote    string // git backend: remote URL
}

// Result summarizes one deploy or promote invocation.
type Result struct {
	Environment  string
	Target       string
	BuildID      string
	Files        int
	Duration     time.Duration
	PromotedFrom string
}

// Publisher pushes artifacts to one environment's target. PromoteFrom copies
// another environment's already-published state into this target without a
// local artifact tree; both environments must use the same backend type.
type Publisher interface {
	Publish(ctx context.Context, artifactDir string) (int, error)
	PromoteFrom(ctx context.Context, source Environment) (int, error)
}

// PublisherFactory builds the backend for an environment. Swappable in tests.
type PublisherFactory func(env Environment) (Publisher, error)

// Deployer resolves environments and drives their publishers. It assumes
// the caller only hands it artifact trees from completed pipeline runs; that
// precondition is wired by the orchestrator, not checked here.
type Deployer struct {
	environments map[string]Environment
	store        *state.Store
	metrics      metrics.Recorder
	logger       *slog.Logger
	factory      PublisherFactory
}

// New creates a deployer over the configured environments.
func New(envs map[string]Environment, store *state.Store) *Deployer {
	return &Deployer{
		environments: envs,
		store:        store,
		metrics:      metrics.NoopRecorder{},
		logger:       slog.Default(),
		factory:      defaultPublisher,
	}
}

// WithLogger sets a custom logger.
func (d *Deployer) WithLogger(logger *slog.Logger) *Deployer {
	d.logger = logger
	return d
}

// WithMetrics sets the metrics recorder.
func (d *Deployer) WithMetrics(rec metrics.Recorder) *Deployer {
	if rec != nil {
		d.metrics = rec
	}
	return d
}

// WithPublisherFactory overrides the backend factory.
func (d *Deployer) WithPublisherFactory(f PublisherFactory) *Deployer {
	d.factory = f
	return d
}

func defaultPublisher(env Environment) (Publisher, error) {
	switch env.Type {
	case "local":
		return newLocalPublisher(env), nil
	case "bucket":
		return newBucketPublisher(env)
	case "git-branch":
		return newGitPublisher(env), nil
	default:
		return nil, sferrors.ValidationFailed("environment.type", fmt.Sprintf("unsupported publisher type %q for %s", env.Type, env.Name))
	}
}

// Deploy publishes the artifact tree to the named environment and records
// the deployment.
func (d *Deployer) Deploy(ctx context.Context, name, artifactDir, buildID, fingerprint string) (*Result, error) {
	env, ok := d.environments[name]
	if !ok {
		return nil, &UnknownEnvironmentError{Name: name}
	}
	pub, err := d.factory(env)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	d.logger.Info("Deploy started", "environment", name, "target", env.Target, "build_id", buildID)

	files, err := pub.Publish(ctx, artifactDir)
	if err != nil {
		d.metrics.IncDeploy(name, false)
		if sferrors.IsRetryable(err) {
			d.logger.Warn("Publish hit a transport error, retrying the deploy may succeed",
				"environment", name, "target", env.Target)
		}
		return nil, &PublishError{Environment: name, Target: env.Target, Cause: err}
	}

	if err := d.record(state.Deployment{
		Environment: name,
		BuildID:     buildID,
		Fingerprint: fingerprint,
		Target:      env.Target,
		DeployedAt:  time.Now(),
	}); err != nil {
		return nil, err
	}
	d.metrics.IncDeploy(name, true)

	result := &Result{
		Environment: name,
		Target:      env.Target,
		BuildID:     buildID,
		Files:       files,
		Duration:    time.Since(start),
	}
	d.logger.Info("Deploy completed",
		"environment", name,
		"files", files,
		"duration", result.Duration)
	return result, nil
}

// Promote copies the source environment's published state to the target
// environment without rebuilding. The source must have a recorded
// successful deploy; promoting from an environment that was never deployed
// to would publish nothing or stale remnants.
func (d *Deployer) Promote(ctx context.Context, source, target string) (*Result, error) {
	srcEnv, ok := d.environments[source]
	if !ok {
		return nil, &UnknownEnvironmentError{Name: source}
	}
	dstEnv, ok := d.environments[target]
	if !ok {
		return nil, &UnknownEnvironmentError{Name: target}
	}
	if srcEnv.Type != dstEnv.Type {
		return nil, sferrors.DeployFailed(target,
			fmt.Errorf("cannot promote between publisher types %s and %s", srcEnv.Type, dstEnv.Type))
	}

	last, ok := d.lastDeploy(source)
	if !ok {
		return nil, sferrors.DeployFailed(target,
			fmt.Errorf("source environment %s has no recorded deploy", source))
	}

	pub, err := d.factory(dstEnv)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	d.logger.Info("Promote started", "source", source, "target", target, "build_id", last.BuildID)

	files, err := pub.PromoteFrom(ctx, srcEnv)
	if err != nil {
		d.metrics.IncDeploy(target, false)
		return nil, &PublishError{Environment: target, Target: dstEnv.Target, Cause: err}
	}

	if err := d.record(state.Deployment{
		Environment:  target,
		BuildID:      last.BuildID,
		Fingerprint:  last.Fingerprint,
		Target:       dstEnv.Target,
		DeployedAt:   time.Now(),
		PromotedFrom: source,
	}); err != nil {
		return nil, err
	}
	d.metrics.IncDeploy(target, true)

	result := &Result{
		Environment:  target,
		Target:       dstEnv.Target,
		BuildID:      last.BuildID,
		Files:        files,
		Duration:     time.Since(start),
		PromotedFrom: source,
	}
	d.logger.Info("Promote completed",
		"source", source,
		"target", target,
		"files", files,
		"duration", result.Duration)
	return result, nil
}

func (d *Deployer) lastDeploy(environment string) (state.Deployment, bool) {
	if d.store == nil {
		return state.Deployment{}, false
	}
	return d.store.Last(environment)
}

func (d *Deployer) record(dep state.Deployment) error {
	if d.store == nil {
		return nil
	}
	if err := d.store.Record(dep); err != nil {
		return sferrors.DeployFailed(dep.Environment, fmt.Errorf("record deploy state: %w", err))
	}
	return nil
}
