package packs

import (
	"context"
	"errors"
	"fmt"
	"go-autoagent/internal/pack"
	"os/exec"
	"strings"
)

const (
	ExecuteCommandPack             = "execute_command"
	ExecuteCommandInBackgroundPack = "execute_command_in_background"
	GetProcessStatusPack           = "get_process_status"
)

var commandSchema = pack.Object([]string{"command"}, map[string]pack.Property{
	"command": pack.StringProp("A bash command, run from the workspace directory"),
})

func executeCommandPack(limit int) pack.Pack {
	return pack.Func{
		Desc: pack.Descriptor{
			Name:        ExecuteCommandPack,
			Description: "Runs a bash command in your workspace and waits for it to finish. Use verbose flags where possible and avoid dangerous commands.",
			InputSchema: commandSchema,
			Categories:  []string{CategorySystem},
		},
		Fn: func(ctx context.Context, in pack.Invocation) (pack.Output, error) {
			output, code, err := runCommand(ctx, in.Workspace.Path, in.String("command"))
			if err != nil {
				return pack.Output{}, pack.Errorf(ExecuteCommandPack, err, "output=[%s], exit code=[%d]", truncate(output, limit), code)
			}
			return pack.Output{
				Text: truncate(output, limit),
				Data: map[string]any{"exit_code": code},
			}, nil
		},
	}
}

func runCommand(ctx context.Context, dir, command string) (string, int, error) {
	if strings.TrimSpace(command) == "" {
		return "", -1, errors.New("empty command")
	}
	cmd := exec.CommandContext(ctx, "bash", "-c", command)
	cmd.Dir = dir

	output, err := cmd.CombinedOutput()
	code := -1
	if cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	}
	if err != nil || code != 0 {
		if err == nil {
			err = fmt.Errorf("exit status %d", code)
		}
		return string(output), code, err
	}
	return string(output), code, nil
}

func executeInBackgroundPack(procs *Processes) pack.Pack {
	return pack.Func{
		Desc: pack.Descriptor{
			Name:        ExecuteCommandInBackgroundPack,
			Description: "Starts a long running bash command in your workspace and returns a handle immediately. Use get_process_status with the handle to follow up.",
			InputSchema: commandSchema,
			Categories:  []string{CategorySystem},
			Background:  true,
		},
		Fn: func(_ context.Context, in pack.Invocation) (pack.Output, error) {
			handle, err := procs.Start(in.Workspace.Path, in.String("command"))
			if err != nil {
				return pack.Output{}, pack.Errorf(ExecuteCommandInBackgroundPack, err, "cannot start command")
			}
			return pack.Output{
				Text:   fmt.Sprintf("Process started with handle %s", handle),
				Handle: handle,
			}, nil
		},
	}
}

func processStatusPack(procs *Processes, limit int) pack.Pack {
	return pack.Func{
		Desc: pack.Descriptor{
			Name:        GetProcessStatusPack,
			Description: "Reports whether a background process is still running, its exit code and its output so far.",
			InputSchema: pack.Object([]string{"handle"}, map[string]pack.Property{
				"handle": pack.StringProp("The handle returned when the process was started"),
			}),
			Categories: []string{CategorySystem},
			ReadOnly:   true,
		},
		Fn: func(_ context.Context, in pack.Invocation) (pack.Output, error) {
			status, err := procs.Status(in.String("handle"))
			if err != nil {
				return pack.Output{}, pack.Errorf(GetProcessStatusPack, err, "no status")
			}
			state := "running"
			if !status.Running {
				state = fmt.Sprintf("exited with code %d", status.ExitCode)
			}
			return pack.Output{
				Text: fmt.Sprintf("Process %s is %s. Output:\n%s", status.Handle, state, truncate(status.Output, limit)),
				Data: map[string]any{
					"running":   status.Running,
					"exit_code": status.ExitCode,
				},
				Handle: status.Handle,
			}, nil
		},
	}
}
