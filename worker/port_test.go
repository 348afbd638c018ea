package worker

import (
	"errors"
	"strings"
	"testing"
)

func TestResolvePort(t *testing.T) {
	env := func(v string) func(string) (string, bool) {
		return func(key string) (string, bool) {
			if key == EnvFactoryPort && v != "" {
				return v, true
			}
			return "", false
		}
	}

	tests := []struct {
		name    string
		flag    string
		stdin   string
		env     string
		want    string
		wantErr bool
	}{
		{name: "flag wins", flag: "5001", stdin: "5002\n", env: "5003", want: "5001"},
		{name: "stdin before env", stdin: "5002\n", env: "5003", want: "5002"},
		{name: "stdin without newline", stdin: " 5002 ", want: "5002"},
		{name: "env last", env: "5003", want: "5003"},
		{name: "blank stdin falls through", stdin: "\n", env: "5003", want: "5003"},
		{name: "vsock address passes through", flag: "3:5000", want: "3:5000"},
		{name: "out of range", flag: "70000", wantErr: true},
		{name: "zero", stdin: "0\n", wantErr: true},
		{name: "nothing", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolvePort(tt.flag, strings.NewReader(tt.stdin), env(tt.env))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ResolvePort() = %q, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolvePort() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolvePort() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolvePort_NilSources(t *testing.T) {
	if _, err := ResolvePort("", nil, nil); !errors.Is(err, ErrNoPort) {
		t.Errorf("error = %v, want ErrNoPort", err)
	}
}
