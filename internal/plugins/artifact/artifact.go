package artifactplugin

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-resty/resty/v2"

	"github.com/alexisbeaulieu97/stratum/internal/config"
	"github.com/alexisbeaulieu97/stratum/internal/model"
	"github.com/alexisbeaulieu97/stratum/internal/plugin"
	"github.com/alexisbeaulieu97/stratum/internal/snapshot"
	stratumerrors "github.com/alexisbeaulieu97/stratum/pkg/errors"
)

type artifactPlugin struct {
	client *resty.Client
}

// New creates a fetch-artifact plugin. HTTP(S) sources download through a
// shared resty client; sources ending in .git clone through go-git.
func New() plugin.Plugin {
	return &artifactPlugin{client: resty.New()}
}

var _ plugin.Plugin = (*artifactPlugin)(nil)

func (p *artifactPlugin) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Kind:        config.KindFetchArtifact,
		Version:     "1.0.0",
		Description: "Fetches remote artifacts over HTTP(S) or git with checksum verification.",
		Stateful:    true,
	}
}

func (p *artifactPlugin) Schema() any {
	return config.ArtifactParams{}
}

func (p *artifactPlugin) ResourceKeys(step *config.Step) ([]string, error) {
	params, err := loadParams(step)
	if err != nil {
		return nil, err
	}
	return []string{resourceKey(params.Destination)}, nil
}

func resourceKey(destination string) string {
	return "artifact:" + destination
}

func (p *artifactPlugin) Evaluate(ctx context.Context, step *config.Step, snap *snapshot.Snapshot) (*model.Evaluation, error) {
	params, err := loadParams(step)
	if err != nil {
		return nil, stratumerrors.NewValidationError(step.ID, err.Error(), err)
	}

	key := resourceKey(params.Destination)
	observed, ok := snap.Get(key)

	switch {
	case !ok:
		return &model.Evaluation{
			StepID:         step.ID,
			Status:         model.StatusMissing,
			RequiresAction: true,
			Message:        fmt.Sprintf("artifact %s not fetched", params.Destination),
			Diff:           fmt.Sprintf("Would fetch %s -> %s", params.Source, params.Destination),
		}, nil
	case params.Checksum != "" && observed != params.Checksum:
		return &model.Evaluation{
			StepID:         step.ID,
			Status:         model.StatusDrifted,
			RequiresAction: true,
			Message:        fmt.Sprintf("artifact %s has checksum %s, want %s", params.Destination, observed, params.Checksum),
			Diff:           fmt.Sprintf("Would re-fetch %s", params.Source),
		}, nil
	default:
		return &model.Evaluation{
			StepID:  step.ID,
			Status:  model.StatusSatisfied,
			Message: fmt.Sprintf("artifact %s already fetched", params.Destination),
		}, nil
	}
}

func (p *artifactPlugin) Apply(ctx context.Context, eval *model.Evaluation, step *config.Step) (*model.StepResult, error) {
	params, err := loadParams(step)
	if err != nil {
		return nil, stratumerrors.NewValidationError(step.ID, err.Error(), err)
	}

	var value string
	var fetchErr error
	if isGitSource(params.Source) {
		value, fetchErr = p.cloneRepository(ctx, params)
	} else {
		value, fetchErr = p.download(ctx, params)
	}

	if fetchErr != nil {
		return &model.StepResult{
			StepID:  step.ID,
			Status:  model.StatusFailed,
			Message: fmt.Sprintf("failed to fetch %s: %v", params.Source, fetchErr),
			Error:   fetchErr,
		}, fetchErr
	}

	return &model.StepResult{
		StepID:  step.ID,
		Status:  model.StatusApplied,
		Message: fmt.Sprintf("fetched %s -> %s", params.Source, params.Destination),
		Changes: map[string]string{resourceKey(params.Destination): value},
	}, nil
}

func (p *artifactPlugin) download(ctx context.Context, params *config.ArtifactParams) (string, error) {
	if err := os.MkdirAll(filepath.Dir(params.Destination), 0o755); err != nil {
		return "", stratumerrors.NewNonTransientError("fetch-artifact", err)
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetOutput(params.Destination).
		Get(params.Source)
	if err != nil {
		return "", classifyTransport(err)
	}
	if resp.IsError() {
		statusErr := fmt.Errorf("unexpected status %s fetching %s", resp.Status(), params.Source)
		if resp.StatusCode() >= 500 {
			return "", stratumerrors.NewTransientError("fetch-artifact", statusErr)
		}
		return "", stratumerrors.NewNonTransientError("fetch-artifact", statusErr)
	}

	sum, err := fileChecksum(params.Destination)
	if err != nil {
		return "", stratumerrors.NewNonTransientError("fetch-artifact", err)
	}

	if params.Checksum != "" && !strings.EqualFold(sum, params.Checksum) {
		mismatch := fmt.Errorf("checksum mismatch for %s: got %s, want %s", params.Destination, sum, params.Checksum)
		return "", stratumerrors.NewNonTransientError("fetch-artifact", mismatch)
	}

	return sum, nil
}

func (p *artifactPlugin) cloneRepository(ctx context.Context, params *config.ArtifactParams) (string, error) {
	opts := &git.CloneOptions{
		URL:   params.Source,
		Depth: params.Depth,
	}
	if params.Ref != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(params.Ref)
		opts.SingleBranch = true
	}

	repo, err := git.PlainCloneContext(ctx, params.Destination, false, opts)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryAlreadyExists) {
			repo, err = git.PlainOpen(params.Destination)
			if err != nil {
				return "", stratumerrors.NewNonTransientError("fetch-artifact", err)
			}
		} else {
			return "", classifyTransport(err)
		}
	}

	head, err := repo.Head()
	if err != nil {
		return "", stratumerrors.NewNonTransientError("fetch-artifact", err)
	}
	return head.Hash().String(), nil
}

func isGitSource(source string) bool {
	if strings.HasSuffix(source, ".git") || strings.HasPrefix(source, "git@") {
		return true
	}
	parsed, err := url.Parse(source)
	return err == nil && parsed.Scheme == "git"
}

// classifyTransport sorts transport-level failures: timeouts and refused or
// reset connections are retryable, everything else is permanent.
func classifyTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return stratumerrors.NewTransientError("fetch-artifact", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return stratumerrors.NewTransientError("fetch-artifact", err)
	}

	lowered := strings.ToLower(err.Error())
	for _, marker := range []string{"connection reset", "connection refused", "timeout", "temporary failure", "eof"} {
		if strings.Contains(lowered, marker) {
			return stratumerrors.NewTransientError("fetch-artifact", err)
		}
	}

	return stratumerrors.NewNonTransientError("fetch-artifact", err)
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func loadParams(step *config.Step) (*config.ArtifactParams, error) {
	if step == nil {
		return nil, fmt.Errorf("step is nil")
	}
	params := &config.ArtifactParams{}
	if err := step.DecodeParams(params); err != nil {
		return nil, err
	}
	if params.Source == "" || params.Destination == "" {
		return nil, fmt.Errorf("fetch-artifact requires source and destination")
	}
	return params, nil
}
