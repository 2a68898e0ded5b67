package tracker

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"

	"gpumand/pkg/types"
)

// processLister enumerates GPU compute processes. Abstracted so tests don't
// depend on the nvidia-smi binary being present.
type processLister interface {
	ListProcesses(ctx context.Context, deviceIndex uint) ([]types.Process, error)
}

// nvidiaSMIProcessLister shells out to nvidia-smi's compute-apps query,
// mirroring the nvmlDeviceGetComputeRunningProcesses call the Python
// original makes — this binding of NVML does not expose that entry point,
// so process enumeration goes through the CLI instead, the same
// os/exec-based pattern the lifecycle manager uses for native services.
type nvidiaSMIProcessLister struct{}

func (nvidiaSMIProcessLister) ListProcesses(ctx context.Context, deviceIndex uint) ([]types.Process, error) {
	cmd := exec.CommandContext(ctx, "nvidia-smi",
		"--query-compute-apps=pid,process_name,used_memory",
		"--format=csv,noheader,nounits",
		"-i", strconv.FormatUint(uint64(deviceIndex), 10),
	)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, err
	}
	return parseComputeApps(out.String()), nil
}

func parseComputeApps(csv string) []types.Process {
	var procs []types.Process
	for _, line := range strings.Split(csv, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != 3 {
			continue
		}
		pid, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil {
			continue
		}
		mem, err := strconv.Atoi(strings.TrimSpace(fields[2]))
		if err != nil {
			continue
		}
		procs = append(procs, types.Process{
			PID:      pid,
			Name:     strings.TrimSpace(fields[1]),
			MemoryMB: mem,
		})
	}
	return procs
}
