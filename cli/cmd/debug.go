package cmd

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/cite-sa/MobiusCore/cli/render"
	"github.com/cite-sa/MobiusCore/command"
	"github.com/cite-sa/MobiusCore/iox"
	"github.com/cite-sa/MobiusCore/ipc"
	"github.com/cite-sa/MobiusCore/types"
)

// previewBytes is how much of a payload debug decode shows.
const previewBytes = 32

// DebugCommand returns the debug command with subcommands.
// Debug commands are opt-in, read-only diagnostic tools.
func DebugCommand() *cli.Command {
	return &cli.Command{
		Name:  "debug",
		Usage: "Diagnostic tools (decode captures, check commands)",
		Subcommands: []*cli.Command{
			debugDecodeCommand(),
			debugCommandCommand(),
		},
	}
}

// FrameInfo describes one frame of a captured byte stream.
type FrameInfo struct {
	Index     int    `json:"index"`
	Offset    int64  `json:"offset"`
	Kind      string `json:"kind"`
	Length    int    `json:"length"`
	Preview   string `json:"preview,omitempty"`
	Decoded   any    `json:"decoded,omitempty"`
	DecodeErr string `json:"decode_error,omitempty"`
}

func debugDecodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "decode",
		Usage:     "Dump the length-prefixed frames of a captured byte stream",
		ArgsUsage: "<file|->",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:  "mode",
				Usage: "Decode payloads under this serialized mode (none, string, byte, pickling, row)",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Stop after this many frames (0 = no limit)",
			},
		),
		Action: debugDecodeAction,
	}
}

func debugDecodeAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("file required (use - for stdin)", 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	// TUI not supported for debug commands
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for debug commands", 1)
	}

	var mode types.SerializedMode
	if s := c.String("mode"); s != "" {
		if mode, err = types.ParseSerializedMode(s); err != nil {
			return cli.Exit(err.Error(), 1)
		}
	}

	in, closeIn, err := openInput(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer closeIn()

	frames, err := decodeFrames(in, mode, c.Int("limit"))
	if err != nil {
		// Partial dumps are still useful; report the stop reason after them.
		if renderErr := r.Render(frames); renderErr != nil {
			return renderErr
		}
		return cli.Exit(fmt.Sprintf("decode stopped after %d frames: %v", len(frames), err), 1)
	}
	return r.Render(frames)
}

// decodeFrames reads frames until a clean EOF, an error or limit.
func decodeFrames(r io.Reader, mode types.SerializedMode, limit int) ([]FrameInfo, error) {
	counter := iox.NewCountingReader(r)
	dec := ipc.NewDecoder(counter)
	frames := []FrameInfo{}
	for limit <= 0 || len(frames) < limit {
		offset := counter.Count()
		f, err := dec.ReadFrame()
		if err != nil {
			var incomplete *ipc.IncompleteReadError
			if errors.As(err, &incomplete) && incomplete.Actual == 0 && errors.Is(err, io.EOF) {
				return frames, nil
			}
			return frames, err
		}
		info := FrameInfo{Index: len(frames), Offset: offset}
		if f.IsSentinel() {
			info.Kind = f.Sentinel.String()
		} else {
			info.Kind = "data"
			info.Length = len(f.Payload)
			info.Preview = preview(f.Payload)
			if mode != "" {
				v, err := ipc.DecodeValue(mode, f.Payload)
				if err != nil {
					info.DecodeErr = err.Error()
				} else {
					info.Decoded = ipc.Normalize(v)
				}
			}
		}
		frames = append(frames, info)
	}
	return frames, nil
}

func preview(b []byte) string {
	if len(b) > previewBytes {
		return hex.EncodeToString(b[:previewBytes]) + "..."
	}
	return hex.EncodeToString(b)
}

// CommandCheck is the result of debug command.
type CommandCheck struct {
	Input    string   `json:"input"`
	Output   string   `json:"output"`
	Stages   []string `json:"stages"`
	Encoded  int      `json:"encoded_bytes"`
	Compiles bool     `json:"compiles"`
	Error    string   `json:"error,omitempty"`
}

func debugCommandCommand() *cli.Command {
	return &cli.Command{
		Name:      "command",
		Usage:     "Check that a command file compiles against the built-in registry",
		ArgsUsage: "<command.yaml>",
		Flags:     ReadOnlyFlags(),
		Action:    debugCommandAction,
	}
}

func debugCommandAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("command file required", 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	// TUI not supported for debug commands
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for debug commands", 1)
	}

	cmd, err := loadCommandFile(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	check, err := checkCommand(cmd)
	if err != nil {
		return err
	}
	if renderErr := r.Render(check); renderErr != nil {
		return renderErr
	}
	if !check.Compiles {
		return cli.Exit("", 1)
	}
	return nil
}

// checkCommand encodes and compiles cmd. Compile failures are reported
// in the result; encoding failures are returned.
func checkCommand(cmd *command.Command) (*CommandCheck, error) {
	encoded, err := command.Encode(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}
	check := &CommandCheck{
		Input:   string(cmd.InputMode),
		Output:  string(cmd.OutputMode),
		Encoded: len(encoded),
	}
	for _, st := range cmd.Stages {
		check.Stages = append(check.Stages, fmt.Sprintf("%s:%s", st.Kind, st.Func))
	}
	if _, err := command.Compile(cmd, command.DefaultRegistry()); err != nil {
		check.Error = err.Error()
		return check, nil
	}
	check.Compiles = true
	return check, nil
}

// openInput opens path, or stdin for "-".
func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, iox.CloseFunc(f), nil
}
