package sauce

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/devicelab-dev/loancalc-runner/pkg/core"
	"github.com/devicelab-dev/loancalc-runner/pkg/device"
	"github.com/devicelab-dev/loancalc-runner/pkg/driver/appium"
	"github.com/devicelab-dev/loancalc-runner/pkg/logger"
)

// Options configure a Factory.
type Options struct {
	Credentials Credentials
	Region      string
	Endpoint    string // optional hub override, see HubURL
	App         AppOptions
	HTTPClient  *http.Client
}

// Factory opens one remote session per call. It holds no per-session state,
// so concurrent Open calls produce independent handles.
type Factory struct {
	hubURL     string
	app        AppOptions
	httpClient *http.Client
}

// NewFactory validates the options and builds the hub URL.
func NewFactory(opts Options) (*Factory, error) {
	hub, err := HubURL(opts.Credentials, opts.Region, opts.Endpoint)
	if err != nil {
		return nil, err
	}
	return &Factory{
		hubURL:     hub,
		app:        opts.App.withDefaults(),
		httpClient: opts.HTTPClient,
	}, nil
}

// Capabilities returns the capability set Open would send.
func (f *Factory) Capabilities(spec device.Spec, jobName string) Capabilities {
	return BuildCapabilities(spec, jobName, f.app)
}

// Open allocates a device matching spec and starts the app on it.
// There is no retry: a failure is final for this matrix row.
func (f *Factory) Open(ctx context.Context, spec device.Spec, jobName string) (*appium.Client, error) {
	log := logger.For(spec.String())

	if err := spec.Validate(); err != nil {
		return nil, err
	}
	caps := f.Capabilities(spec, jobName)
	if err := caps.Validate(); err != nil {
		return nil, err
	}

	client := appium.NewClient(f.hubURL)
	if f.httpClient != nil {
		client.WithHTTPClient(f.httpClient)
	}
	log.Info("Requesting session from %s for job %q", client.RedactedURL(), jobName)

	start := time.Now()
	if err := client.Connect(ctx, caps); err != nil {
		log.Error("Session creation failed: %v", err)
		return nil, fmt.Errorf("open session on %s: %w", spec, err)
	}
	log.Info("Device allocation took %d secs (session %s)", int(time.Since(start).Seconds()), client.SessionID())

	return client, nil
}

// OpenSession is Open returning the session interface the executor works with.
func (f *Factory) OpenSession(ctx context.Context, spec device.Spec, jobName string) (core.Session, error) {
	client, err := f.Open(ctx, spec, jobName)
	if err != nil {
		return nil, err
	}
	return client, nil
}
