package packs

import (
	"context"
	"errors"
	"fmt"
	"go-autoagent/internal/engine"
	"go-autoagent/internal/pack"
	"os"
	"runtime"
)

const OSInfoPack = "os_info"

var errHandledByEngine = errors.New("exit is handled by the engine and never invoked")

// exitPack is only a descriptor: the engine intercepts the name and finishes the task.
func exitPack() pack.Pack {
	return pack.Func{
		Desc: pack.Descriptor{
			Name:        engine.ExitPack,
			Description: "Exits the program, signalling that the objective is complete or cannot be completed.",
			InputSchema: pack.Object([]string{"success", "conclusion"}, map[string]pack.Property{
				"success":    pack.BoolProp("Whether the objective was achieved"),
				"conclusion": pack.StringProp("A summary of what was accomplished, or why it failed"),
			}),
			Categories: []string{CategorySystem},
		},
		Fn: func(context.Context, pack.Invocation) (pack.Output, error) {
			return pack.Output{}, pack.Errorf(engine.ExitPack, errHandledByEngine, "unexpected invocation")
		},
	}
}

func osInfoPack() pack.Pack {
	return pack.Func{
		Desc: pack.Descriptor{
			Name:        OSInfoPack,
			Description: "Get the name and version of the operating system you are running in.",
			Categories:  []string{CategorySystem},
			ReadOnly:    true,
		},
		Fn: func(context.Context, pack.Invocation) (pack.Output, error) {
			host, _ := os.Hostname()
			return pack.Output{
				Text: fmt.Sprintf("OS: %s, architecture: %s, CPUs: %d, Go runtime: %s", runtime.GOOS, runtime.GOARCH, runtime.NumCPU(), runtime.Version()),
				Data: map[string]any{
					"os":       runtime.GOOS,
					"arch":     runtime.GOARCH,
					"cpus":     runtime.NumCPU(),
					"hostname": host,
				},
			}, nil
		},
	}
}
