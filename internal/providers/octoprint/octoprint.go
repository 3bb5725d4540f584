// Package octoprint implements a poll-driven provider for OctoPrint
// print servers.
//
// The provider polls the OctoPrint REST API once per poll interval and
// converts the job and printer endpoints into status envelopes. HTTP
// requests carry a per-request timeout no longer than the poll interval,
// so a hung server never delays the next cycle by more than one tick.
package octoprint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopfloor-io/shopfloor-core/internal/machine"
	"github.com/shopfloor-io/shopfloor-core/internal/provider"
)

// bedHeaterIndex is the heater map key used for the print bed. Tool
// heaters occupy indices 0..N; the bed gets a reserved slot well clear
// of any realistic tool count.
const bedHeaterIndex = 100

// maxResponseBytes caps API response bodies.
const maxResponseBytes = 1 << 20

// Logger is the logging interface used by the provider.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Provider polls one OctoPrint instance.
type Provider struct {
	machineID int64
	cfg       Config
	interval  time.Duration
	client    *http.Client
	logger    Logger

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewFactory returns a provider factory for machines of type "octoprint".
func NewFactory(logger Logger) provider.Factory {
	if logger == nil {
		logger = noopLogger{}
	}
	return func(m machine.Machine, interval time.Duration) (provider.Provider, error) {
		cfg, err := parseConfig(m)
		if err != nil {
			return nil, err
		}
		return &Provider{
			machineID: m.ID,
			cfg:       cfg,
			interval:  interval,
			client:    &http.Client{Timeout: interval},
			logger:    logger,
		}, nil
	}
}

// Start probes the server once, then launches the poll loop. A rejected
// API key is a definitive failure; an unreachable server is not, because
// the printer may simply be powered off. In that case the loop starts
// anyway and emits offline status until the server appears.
func (p *Provider) Start(ctx context.Context, emit provider.EmitFunc) error {
	ctx, p.cancel = context.WithCancel(ctx)

	env, err := p.poll(ctx)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.definitive() {
			p.cancel()
			return fmt.Errorf("%w: octoprint machine %d: %v", provider.ErrStartFailed, p.machineID, err)
		}
		p.logger.Warn("octoprint initial poll failed, starting anyway",
			"machine_id", p.machineID, "error", err)
		env = provider.NewEnvelope(p.machineID, provider.StateOffline)
	}

	p.wg.Add(1)
	go p.loop(ctx, emit, env)
	return nil
}

// Stop cancels the poll loop and waits for it to exit. Idempotent.
func (p *Provider) Stop() {
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		p.wg.Wait()
	})
}

func (p *Provider) loop(ctx context.Context, emit provider.EmitFunc, first provider.Envelope) {
	defer p.wg.Done()

	emit(first)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			env, err := p.poll(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				p.logger.Debug("octoprint poll failed",
					"machine_id", p.machineID, "error", err)
				env = provider.NewEnvelope(p.machineID, provider.StateOffline)
			}
			emit(env)
		}
	}
}

// PauseJob pauses the current print job.
func (p *Provider) PauseJob(ctx context.Context) error {
	return p.postJobCommand(ctx, map[string]string{"command": "pause", "action": "pause"})
}

// ResumeJob resumes a paused print job.
func (p *Provider) ResumeJob(ctx context.Context) error {
	return p.postJobCommand(ctx, map[string]string{"command": "pause", "action": "resume"})
}

// CancelJob aborts the current print job.
func (p *Provider) CancelJob(ctx context.Context) error {
	return p.postJobCommand(ctx, map[string]string{"command": "cancel"})
}

// jobResponse mirrors the fields we use from GET /api/job.
type jobResponse struct {
	State    string `json:"state"`
	Progress struct {
		Completion    *float64 `json:"completion"`
		PrintTime     *float64 `json:"printTime"`
		PrintTimeLeft *float64 `json:"printTimeLeft"`
	} `json:"progress"`
}

// printerResponse mirrors the fields we use from GET /api/printer.
type printerResponse struct {
	Temperature map[string]struct {
		Actual float64 `json:"actual"`
		Target float64 `json:"target"`
	} `json:"temperature"`
}

// poll fetches job and printer status and converts them to an envelope.
func (p *Provider) poll(ctx context.Context) (provider.Envelope, error) {
	var job jobResponse
	if err := p.get(ctx, "/api/job", &job); err != nil {
		return provider.Envelope{}, err
	}

	env := provider.NewEnvelope(p.machineID, mapState(job.State))

	if job.Progress.Completion != nil {
		env.Progress = *job.Progress.Completion / 100
	}
	if job.Progress.PrintTime != nil {
		env.Elapsed = time.Duration(*job.Progress.PrintTime * float64(time.Second))
	}
	if job.Progress.PrintTimeLeft != nil {
		env.Remaining = time.Duration(*job.Progress.PrintTimeLeft * float64(time.Second))
	}

	// The printer endpoint 409s when the printer is disconnected from
	// OctoPrint. Status without temperatures is still useful.
	var printer printerResponse
	if err := p.get(ctx, "/api/printer", &printer); err == nil {
		env.Temps = mapTemps(printer.Temperature)
	}

	return env, nil
}

// mapState converts an OctoPrint state string to a lifecycle state.
// OctoPrint's "Operational" means connected and idle; only an active
// print counts as operational here.
func mapState(s string) provider.State {
	switch {
	case strings.HasPrefix(s, "Printing"),
		strings.HasPrefix(s, "Resuming"),
		strings.HasPrefix(s, "Cancelling"),
		strings.HasPrefix(s, "Finishing"):
		return provider.StateOperational
	case strings.HasPrefix(s, "Paused"), strings.HasPrefix(s, "Pausing"):
		return provider.StatePaused
	case strings.HasPrefix(s, "Operational"):
		return provider.StateIdle
	default:
		return provider.StateOffline
	}
}

// mapTemps converts OctoPrint's named heaters to indexed readings.
// "tool0".."toolN" map to 0..N, "bed" to bedHeaterIndex; anything else
// (chamber, SoC sensors) is skipped.
func mapTemps(temps map[string]struct {
	Actual float64 `json:"actual"`
	Target float64 `json:"target"`
}) map[int]provider.Temp {
	if len(temps) == 0 {
		return nil
	}

	out := make(map[int]provider.Temp, len(temps))
	for name, t := range temps {
		switch {
		case name == "bed":
			out[bedHeaterIndex] = provider.Temp{Actual: t.Actual, Target: t.Target}
		case strings.HasPrefix(name, "tool"):
			idx, err := strconv.Atoi(strings.TrimPrefix(name, "tool"))
			if err != nil || idx < 0 || idx >= bedHeaterIndex {
				continue
			}
			out[idx] = provider.Temp{Actual: t.Actual, Target: t.Target}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// apiError is a non-2xx response from the OctoPrint API.
type apiError struct {
	StatusCode int
	Path       string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("octoprint: %s returned HTTP %d", e.Path, e.StatusCode)
}

// definitive reports whether the response indicates a configuration
// problem that retrying cannot fix.
func (e *apiError) definitive() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

func (p *Provider) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("octoprint: building request: %w", err)
	}
	req.Header.Set("X-Api-Key", p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("octoprint: %s: %w", path, err)
	}
	defer resp.Body.Close() //nolint:errcheck // Read-only body

	if resp.StatusCode != http.StatusOK {
		return &apiError{StatusCode: resp.StatusCode, Path: path}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("octoprint: reading %s: %w", path, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("octoprint: decoding %s: %w", path, err)
	}
	return nil
}

func (p *Provider) postJobCommand(ctx context.Context, cmd map[string]string) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("octoprint: encoding command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/api/job", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("octoprint: building request: %w", err)
	}
	req.Header.Set("X-Api-Key", p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("octoprint: posting command: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // Body unused

	// 204 on success; 409 when the command does not apply to the
	// current job state (e.g. pausing an idle printer).
	if resp.StatusCode != http.StatusNoContent {
		return &apiError{StatusCode: resp.StatusCode, Path: "/api/job"}
	}
	return nil
}
