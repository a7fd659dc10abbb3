package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandString(t *testing.T) {
	t.Parallel()
	cmd := Command{Argv: []string{"apt-get", "install", "-y", "containerd"}}
	assert.Equal(t, "apt-get install -y containerd", cmd.String())
}

func TestCommandString_Sensitive(t *testing.T) {
	t.Parallel()
	cmd := Command{
		Argv:      []string{"kubeadm", "join", "10.0.0.10:6443", "--token", "abcdef.0123456789abcdef"},
		Sensitive: true,
	}

	s := cmd.String()
	assert.Equal(t, "kubeadm [redacted]", s)
	assert.NotContains(t, s, "abcdef")
}

func TestCommandString_SensitiveEmpty(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "[redacted]", Command{Sensitive: true}.String())
}

func TestShellJoin(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		argv []string
		want string
	}{
		{
			name: "plain",
			argv: []string{"apt-get", "update"},
			want: "'apt-get' 'update'",
		},
		{
			name: "argument with spaces",
			argv: []string{"sh", "-c", "echo hello"},
			want: "'sh' '-c' 'echo hello'",
		},
		{
			name: "single quote escaped",
			argv: []string{"echo", "it's"},
			want: `'echo' 'it'\''s'`,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, shellJoin(tt.argv))
		})
	}
}
