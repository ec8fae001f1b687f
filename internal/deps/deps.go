package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"vdiff/internal/config"
)

// Requirement defines an external dependency vdiff relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Version     string `json:"version,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

var commandContext = exec.CommandContext

const versionTimeout = 5 * time.Second

// Requirements lists the external binaries a comparison run needs.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{Name: "FFmpeg", Command: cfg.FFmpeg.FFmpegBinary, Description: "Decodes video streams into raw frames"},
		{Name: "FFprobe", Command: cfg.FFmpeg.FFprobeBinary, Description: "Reads stream frame rate, size, and duration"},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// WithVersions fills Version for every available status by running
// "<command> -version" and keeping the first output line.
func WithVersions(ctx context.Context, statuses []Status) []Status {
	out := make([]Status, len(statuses))
	copy(out, statuses)
	for i := range out {
		if !out[i].Available {
			continue
		}
		version, err := probeVersion(ctx, out[i].Command)
		if err != nil {
			out[i].Detail = fmt.Sprintf("version probe failed: %v", err)
			continue
		}
		out[i].Version = version
	}
	return out
}

// Missing returns the required dependencies that are unavailable.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status)
		}
	}
	return missing
}

func probeVersion(ctx context.Context, command string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()
	output, err := commandContext(ctx, command, "-version").Output()
	if err != nil {
		return "", err
	}
	scanner := bufio.NewScanner(bytes.NewReader(output))
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()), nil
	}
	return "", nil
}
