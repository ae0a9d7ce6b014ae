package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"callqa/internal/stage"
)

// AdapterProbe adapts a stage adapter health check.
func AdapterProbe(name string, health func(context.Context) stage.Health) Probe {
	return Probe{
		Name: name,
		Check: func(ctx context.Context) Result {
			h := health(ctx)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) && !h.Ready {
				return Result{Detail: "health check timed out"}
			}
			return Result{Passed: h.Ready, Detail: h.Detail}
		},
	}
}

func missingAdapterProbe(name string) Probe {
	return Probe{
		Name: name,
		Check: func(context.Context) Result {
			return Result{Detail: "adapter not configured"}
		},
	}
}

// DirectoryProbe wraps CheckDirectoryAccess.
func DirectoryProbe(name, path string) Probe {
	return Probe{
		Name: name,
		Check: func(context.Context) Result {
			return CheckDirectoryAccess(name, path)
		},
	}
}

// VoiceFileProbe checks that a speaker's reference voice file is present.
func VoiceFileProbe(role, path string) Probe {
	name := "reference voice " + role
	return Probe{
		Name: name,
		Check: func(context.Context) Result {
			return CheckVoiceFile(name, path)
		},
	}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "path not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckVoiceFile verifies a reference voice is a readable, non-empty file.
func CheckVoiceFile(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "path not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", path)}
	}
	if info.Size() == 0 {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: empty file)", path)}
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}
