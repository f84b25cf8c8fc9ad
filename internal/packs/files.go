package packs

import (
	"context"
	"errors"
	"fmt"
	"go-autoagent/internal/pack"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	ReadFilePack  = "read_file"
	WriteFilePack = "write_file"
	ListFilesPack = "list_files"
)

func readFilePack(limit int) pack.Pack {
	return pack.Func{
		Desc: pack.Descriptor{
			Name:        ReadFilePack,
			Description: "Reads and returns the content of a file from your workspace.",
			InputSchema: pack.Object([]string{"filename"}, map[string]pack.Property{
				"filename": pack.StringProp("The path of the file, relative to the workspace"),
			}),
			Categories: []string{CategoryFiles},
			ReadOnly:   true,
		},
		Fn: func(_ context.Context, in pack.Invocation) (pack.Output, error) {
			name := in.String("filename")
			path, err := in.Workspace.Resolve(name)
			if err != nil {
				return pack.Output{}, pack.Errorf(ReadFilePack, err, "cannot read %q", name)
			}
			content, err := os.ReadFile(path)
			if errors.Is(err, fs.ErrNotExist) {
				return pack.Output{}, pack.Errorf(ReadFilePack, err, "file %q does not exist", name)
			}
			if err != nil {
				return pack.Output{}, pack.Errorf(ReadFilePack, err, "cannot read %q", name)
			}
			return pack.Output{
				Text: truncate(string(content), limit),
				Data: map[string]any{"filename": name, "bytes": len(content)},
			}, nil
		},
	}
}

func writeFilePack() pack.Pack {
	return pack.Func{
		Desc: pack.Descriptor{
			Name:        WriteFilePack,
			Description: "Writes text to a file in your workspace, creating it and any parent directories. An existing file is overwritten.",
			InputSchema: pack.Object([]string{"filename", "text_content"}, map[string]pack.Property{
				"filename":     pack.StringProp("The path of the file, relative to the workspace"),
				"text_content": pack.StringProp("The text to write"),
			}),
			Categories: []string{CategoryFiles},
		},
		Fn: func(_ context.Context, in pack.Invocation) (pack.Output, error) {
			name := in.String("filename")
			path, err := in.Workspace.Resolve(name)
			if err != nil {
				return pack.Output{}, pack.Errorf(WriteFilePack, err, "cannot write %q", name)
			}
			if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
				return pack.Output{}, pack.Errorf(WriteFilePack, err, "cannot create directory for %q", name)
			}
			content := in.String("text_content")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return pack.Output{}, pack.Errorf(WriteFilePack, err, "cannot write %q", name)
			}
			return pack.Output{
				Text: fmt.Sprintf("Successfully wrote %d bytes to %s", len(content), name),
				Data: map[string]any{"filename": name, "bytes": len(content)},
			}, nil
		},
	}
}

func listFilesPack() pack.Pack {
	return pack.Func{
		Desc: pack.Descriptor{
			Name:        ListFilesPack,
			Description: "Lists the files in a directory of your workspace, recursively.",
			InputSchema: pack.Object(nil, map[string]pack.Property{
				"path": pack.StringProp("Directory relative to the workspace, defaults to the workspace itself"),
			}),
			Categories: []string{CategoryFiles},
			ReadOnly:   true,
		},
		Fn: func(_ context.Context, in pack.Invocation) (pack.Output, error) {
			dir := in.String("path")
			if dir == "" {
				dir = "."
			}
			root, err := in.Workspace.Resolve(dir)
			if err != nil {
				return pack.Output{}, pack.Errorf(ListFilesPack, err, "cannot list %q", dir)
			}

			var files []string
			err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() {
					return nil
				}
				rel, err := filepath.Rel(root, path)
				if err != nil {
					return err
				}
				files = append(files, filepath.ToSlash(rel))
				return nil
			})
			if err != nil {
				return pack.Output{}, pack.Errorf(ListFilesPack, err, "cannot list %q", dir)
			}
			sort.Strings(files)

			if len(files) == 0 {
				return pack.Output{Text: "The directory is empty", Data: map[string]any{"files": files}}, nil
			}
			return pack.Output{
				Text: strings.Join(files, "\n"),
				Data: map[string]any{"files": files},
			}, nil
		},
	}
}
