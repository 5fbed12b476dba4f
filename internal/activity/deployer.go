package activity

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aristath/pbvs/internal/backend"
)

// DeployTarget configures one environment. Args and HealthURLs may contain
// the placeholders {project}, {env}, {version}; HealthURLs may also use {url}.
type DeployTarget struct {
	Command    string
	Args       []string
	URL        string
	HealthURLs []string
}

// CommandDeployer deploys by running a command per environment, then probes
// the health URLs.
type CommandDeployer struct {
	Targets map[Environment]DeployTarget
	Dir     string

	pm     *backend.ProcessManager
	client *http.Client
	logger *slog.Logger
	run    runFunc
	now    func() time.Time
}

func NewCommandDeployer(targets map[Environment]DeployTarget, dir string, pm *backend.ProcessManager, logger *slog.Logger) *CommandDeployer {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandDeployer{
		Targets: targets,
		Dir:     dir,
		pm:      pm,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
		run:     backend.Run,
		now:     time.Now,
	}
}

func (d *CommandDeployer) Deploy(ctx context.Context, req DeployRequest) (*DeploymentResult, error) {
	res := &DeploymentResult{
		Environment: req.Environment,
		Version:     req.Version,
		Status:      DeploySuccess,
	}

	target, ok := d.Targets[req.Environment]
	if !ok || (target.Command == "" && target.URL == "" && len(target.HealthURLs) == 0) {
		d.logger.Warn("no deploy target configured, recording a no-op deployment",
			"project_id", req.ProjectID, "environment", req.Environment)
		res.DeployedAt = d.now()
		return res, nil
	}

	expand := strings.NewReplacer(
		"{project}", req.ProjectID,
		"{env}", string(req.Environment),
		"{version}", req.Version,
	)

	res.URL = expand.Replace(target.URL)
	if target.Command != "" {
		args := make([]string, len(target.Args))
		for i, a := range target.Args {
			args[i] = expand.Replace(a)
		}
		stdout, stderr, err := d.run(ctx, d.pm, d.Dir, target.Command, args...)
		res.Output = tail(string(stdout)+string(stderr), 2048)
		if err != nil {
			res.Status = DeployFailed
			return res, &DeploymentError{Environment: req.Environment, Result: res, Err: err}
		}
		if res.URL == "" {
			res.URL = lastURL(string(stdout))
		}
	}

	if len(target.HealthURLs) > 0 {
		urls := make([]string, len(target.HealthURLs))
		for i, u := range target.HealthURLs {
			urls[i] = strings.ReplaceAll(expand.Replace(u), "{url}", res.URL)
		}
		res.HealthCheck = d.probe(ctx, urls)
		if !res.HealthCheck.Passed {
			res.Status = DeployFailed
			return res, &DeploymentError{
				Environment: req.Environment,
				Result:      res,
				Err:         errors.New("health check failed"),
			}
		}
	}

	res.DeployedAt = d.now()
	d.logger.Info("deployed",
		"project_id", req.ProjectID,
		"environment", req.Environment,
		"version", req.Version,
		"url", res.URL)
	return res, nil
}

func (d *CommandDeployer) probe(ctx context.Context, urls []string) *HealthCheck {
	hc := &HealthCheck{Passed: true}
	for _, u := range urls {
		status := d.get(ctx, u)
		hc.Endpoints = append(hc.Endpoints, EndpointStatus{URL: u, Status: status})
		if status < 200 || status >= 400 {
			hc.Passed = false
		}
	}
	return hc
}

func (d *CommandDeployer) get(ctx context.Context, url string) int {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0
	}
	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Warn("health probe failed", "url", url, "error", err)
		return 0
	}
	resp.Body.Close()
	return resp.StatusCode
}

// lastURL returns the last line of out that looks like an http(s) URL.
func lastURL(out string) string {
	var found string
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
			found = line
		}
	}
	return found
}
