package cmd

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cite-sa/MobiusCore/command"
	"github.com/cite-sa/MobiusCore/types"
)

// commandFile is the YAML form of a command:
//
//	input: string
//	output: string
//	stages:
//	  - kind: flat_map
//	    func: split_words
//	  - kind: map
//	    func: multiply
//	    args: {factor: 10}
type commandFile struct {
	Input  string      `yaml:"input"`
	Output string      `yaml:"output"`
	Key    string      `yaml:"key"`
	Value  string      `yaml:"value"`
	Stages []stageFile `yaml:"stages"`
}

type stageFile struct {
	Kind string         `yaml:"kind"`
	Func string         `yaml:"func"`
	Args map[string]any `yaml:"args"`
}

// loadCommandFile reads a command YAML file. Unknown keys are errors.
func loadCommandFile(path string) (*command.Command, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read command file %q: %w", path, err)
	}
	defer f.Close()

	var cf commandFile
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cf); err != nil {
		return nil, fmt.Errorf("invalid command file %s: %w", path, err)
	}
	return cf.build()
}

func (cf *commandFile) build() (*command.Command, error) {
	if len(cf.Stages) == 0 {
		return nil, fmt.Errorf("command has no stages")
	}
	modes := make([]types.SerializedMode, 4)
	for i, s := range []string{cf.Input, cf.Output, cf.Key, cf.Value} {
		if s == "" && i < 2 {
			s = string(types.ModeString)
		}
		if s == "" {
			continue
		}
		m, err := types.ParseSerializedMode(s)
		if err != nil {
			return nil, err
		}
		modes[i] = m
	}
	stages := make([]command.Stage, len(cf.Stages))
	for i, s := range cf.Stages {
		if s.Kind == "" {
			s.Kind = string(command.KindMap)
		}
		stages[i] = command.Stage{Kind: command.StageKind(s.Kind), Func: s.Func, Args: s.Args}
	}
	c := command.New(modes[0], modes[1], stages...)
	c.KeyMode, c.ValueMode = modes[2], modes[3]
	return c, nil
}

// parseStage parses the --stage shorthand "kind:func,arg=value,...".
// A bare "func" is a map stage. Argument values are YAML scalars, so
// factor=10 is an integer and name=abc a string.
func parseStage(raw string) (stageFile, error) {
	var st stageFile
	head, rest, hasArgs := strings.Cut(raw, ",")
	kind, fn, hasKind := strings.Cut(head, ":")
	if hasKind {
		st.Kind, st.Func = kind, fn
	} else {
		st.Func = head
	}
	if st.Kind == "" {
		st.Kind = string(command.KindMap)
	}
	if !hasArgs {
		return st, nil
	}
	st.Args = make(map[string]any)
	for _, kv := range strings.Split(rest, ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return st, fmt.Errorf("invalid stage argument %q in %q (want name=value)", kv, raw)
		}
		var val any
		if err := yaml.Unmarshal([]byte(v), &val); err != nil {
			return st, fmt.Errorf("invalid value for %q in %q: %w", k, raw, err)
		}
		st.Args[k] = val
	}
	return st, nil
}
