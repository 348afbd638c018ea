package cmd

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/cite-sa/MobiusCore/command"
	"github.com/cite-sa/MobiusCore/driver"
	"github.com/cite-sa/MobiusCore/log"
	"github.com/cite-sa/MobiusCore/session"
	"github.com/cite-sa/MobiusCore/types"
)

// Exit codes of `mobius submit`, one per task outcome.
const (
	exitCompleted = 0
	exitFault     = 1
	exitCrash     = 2
	exitTruncated = 3
)

// SubmitCommand returns the submit command.
// This is the only command that executes work.
func SubmitCommand() *cli.Command {
	return &cli.Command{
		Name:  "submit",
		Usage: "Run one task on a worker (the only execution entrypoint)",
		Flags: []cli.Flag{
			ConfigFlag,
			// Command flags
			&cli.StringFlag{
				Name:  "command",
				Usage: "Path to command YAML file",
			},
			&cli.StringSliceFlag{
				Name:  "stage",
				Usage: "Command stage as kind:func[,arg=value...] (repeatable, alternative to --command)",
			},
			&cli.StringFlag{
				Name:  "input-mode",
				Usage: "Input serialized mode for --stage",
				Value: string(types.ModeString),
			},
			&cli.StringFlag{
				Name:  "output-mode",
				Usage: "Output serialized mode for --stage",
				Value: string(types.ModeString),
			},
			// Task flags
			&cli.StringFlag{
				Name:  "input",
				Usage: "Input records, one per line (- for stdin); non-text modes parse each line as YAML/JSON",
			},
			&cli.IntFlag{
				Name:  "partition",
				Usage: "Partition index",
			},
			&cli.StringSliceFlag{
				Name:  "broadcast",
				Usage: "Broadcast variable as id=path (repeatable)",
			},
			&cli.BoolFlag{
				Name:  "keep-alive",
				Usage: "End with END_OF_STREAM so the worker reports itself reusable",
			},
			// Worker flags
			&cli.StringFlag{
				Name:  "worker",
				Usage: "Path to worker binary",
				Value: "mobius-worker",
			},
			&cli.StringSliceFlag{
				Name:  "worker-arg",
				Usage: "Extra worker argument (repeatable)",
			},
			&cli.StringFlag{
				Name:  "connect",
				Usage: "Submit to a worker daemon at this address instead of launching a worker",
			},
			&cli.StringFlag{
				Name:  "transport",
				Usage: "Transport backend: tcp or vsock (overrides config)",
			},
			// Output flags
			&cli.StringFlag{
				Name:  "report",
				Usage: "Write a JSON task report to this path (- for stderr)",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress record and summary output",
			},
		},
		Action: submitAction,
	}
}

func submitAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	cmd, err := buildCommand(c)
	if err != nil {
		return cli.Exit(err.Error(), exitCrash)
	}

	header, err := buildHeader(c)
	if err != nil {
		return cli.Exit(err.Error(), exitCrash)
	}

	records, err := readInput(c.String("input"), cmd.InputMode)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to read input: %v", err), exitCrash)
	}

	if c.IsSet("transport") {
		cfg.Transport.Backend = c.String("transport")
	}
	tcfg, err := cfg.TransportConfig(os.LookupEnv)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid transport config: %v", err), exitCrash)
	}

	logger := log.NewProcessLogger()
	if c.Bool("quiet") {
		logger = logger.WithOutput(io.Discard)
	}
	d, err := driver.New(&driver.Config{
		Transport: tcfg,
		Worker: driver.WorkerConfig{
			Path: c.String("worker"),
			Args: c.StringSlice("worker-arg"),
		},
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create driver: %w", err)
	}

	task := &driver.Task{
		Header:    header,
		Command:   cmd,
		Records:   records,
		KeepAlive: c.Bool("keep-alive"),
	}

	// Set up context with signal handling
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	progress := logger.Sugar()
	var result *driver.TaskResult
	if addr := c.String("connect"); addr != "" {
		progress.Infof("submitting %d records to worker at %s", len(records), addr)
		result, err = d.Submit(ctx, addr, task)
	} else {
		progress.Infof("submitting %d records to %s", len(records), c.String("worker"))
		result, err = d.Run(ctx, task)
	}
	if err != nil {
		return cli.Exit(fmt.Sprintf("submit failed: %v", err), exitCrash)
	}

	if !c.Bool("quiet") {
		if err := printRecords(os.Stdout, result.Records); err != nil {
			return err
		}
		printSubmitResult(os.Stderr, result)
	}

	if path := c.String("report"); path != "" {
		if err := driver.WriteReport(driver.BuildReport(result), path); err != nil {
			return cli.Exit(err.Error(), exitCrash)
		}
	}

	return cli.Exit("", outcomeToExitCode(result.Outcome.Status))
}

// buildCommand reads --command or assembles the --stage shorthand.
func buildCommand(c *cli.Context) (*command.Command, error) {
	path, stages := c.String("command"), c.StringSlice("stage")
	switch {
	case path != "" && len(stages) > 0:
		return nil, errors.New("--command and --stage are mutually exclusive")
	case path != "":
		return loadCommandFile(path)
	case len(stages) == 0:
		return nil, errors.New("--command or --stage is required")
	}
	cf := commandFile{Input: c.String("input-mode"), Output: c.String("output-mode")}
	for _, s := range stages {
		st, err := parseStage(s)
		if err != nil {
			return nil, err
		}
		cf.Stages = append(cf.Stages, st)
	}
	return cf.build()
}

// buildHeader assembles the session header from --partition and --broadcast.
func buildHeader(c *cli.Context) (session.Header, error) {
	h := session.Header{
		Partition: int32(c.Int("partition")),
		Version:   types.ProtocolVersion,
	}
	if wd, err := os.Getwd(); err == nil {
		h.WorkDir = wd
	}
	for _, b := range c.StringSlice("broadcast") {
		id, path, ok := strings.Cut(b, "=")
		if !ok || path == "" {
			return h, fmt.Errorf("invalid --broadcast %q (want id=path)", b)
		}
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return h, fmt.Errorf("invalid --broadcast id %q: %w", id, err)
		}
		h.Broadcasts = append(h.Broadcasts, session.BroadcastEntry{ID: n, Path: path})
	}
	return h, nil
}

// readInput reads one record per line of path. Text modes keep lines as
// strings; other modes parse each line as a YAML (or JSON) value.
func readInput(path string, mode types.SerializedMode) ([]any, error) {
	if path == "" {
		return nil, nil
	}
	in, closeIn, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer closeIn()

	text := mode == types.ModeString || mode == types.ModeNone || mode == ""
	var records []any
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for line := 1; sc.Scan(); line++ {
		if text {
			records = append(records, sc.Text())
			continue
		}
		if strings.TrimSpace(sc.Text()) == "" {
			continue
		}
		var v any
		if err := yaml.Unmarshal(sc.Bytes(), &v); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, v)
	}
	return records, sc.Err()
}

// printRecords writes strings as-is and other records as JSON lines.
func printRecords(w io.Writer, records []any) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, rec := range records {
		if s, ok := rec.(string); ok {
			fmt.Fprintln(bw, s)
			continue
		}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to print record: %w", err)
		}
	}
	return bw.Flush()
}

func printSubmitResult(w io.Writer, r *driver.TaskResult) {
	fmt.Fprintf(w, "\noutcome=%s, exit_code=%d, records=%d, duration=%s\n",
		r.Outcome.Status,
		r.ExitCode,
		len(r.Records),
		r.Duration.Round(time.Millisecond),
	)
	if r.Outcome.Phase != "" {
		fmt.Fprintf(w, "phase=%s\n", r.Outcome.Phase)
	}
	if r.Outcome.Message != "" {
		fmt.Fprintf(w, "message=%s\n", r.Outcome.Message)
	}
	for _, e := range r.Accumulators {
		fmt.Fprintf(w, "accumulator[%d]=%v\n", e.ID, e.Value)
	}
	if r.Reusable {
		fmt.Fprintln(w, "worker reusable")
	}
}

func outcomeToExitCode(status types.OutcomeStatus) int {
	switch status {
	case types.OutcomeCompleted:
		return exitCompleted
	case types.OutcomeFault:
		return exitFault
	case types.OutcomeTruncated:
		return exitTruncated
	case types.OutcomeCrash:
		return exitCrash
	default:
		return exitCrash
	}
}
