package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainerNameForSession(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want string
	}{
		{"plain", "alice", "claude-alice"},
		{"mixed case kept", "Alice-Dev", "claude-Alice-Dev"},
		{"digits kept", "team42", "claude-team42"},
		{"spaces replaced", "my session", "claude-my-session"},
		{"punctuation replaced", "a.b/c:d", "claude-a-b-c-d"},
		{"unicode replaced", "héllo", "claude-h-llo"},
		{"empty key", "", "claude-"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ContainerNameForSession(tt.key))
		})
	}
}

func TestSessionKeyFromContainerName(t *testing.T) {
	key, ok := SessionKeyFromContainerName("claude-alice")
	assert.True(t, ok)
	assert.Equal(t, "alice", key)

	key, ok = SessionKeyFromContainerName("claude-")
	assert.True(t, ok)
	assert.Equal(t, "", key)

	_, ok = SessionKeyFromContainerName("nginx")
	assert.False(t, ok)

	_, ok = SessionKeyFromContainerName("")
	assert.False(t, ok)

	// "claude" without the dash is not ours either.
	_, ok = SessionKeyFromContainerName("claude")
	assert.False(t, ok)
}

// Deriving a name and stripping the prefix must round-trip for any key whose
// characters survive sanitization, and stripping any claude- name must yield
// a key that maps back to the same name.
func TestNameRoundTrip(t *testing.T) {
	for _, key := range []string{"", "alice", "Team-42", "a-b-c"} {
		name := ContainerNameForSession(key)
		got, ok := SessionKeyFromContainerName(name)
		assert.True(t, ok)
		assert.Equal(t, key, got)
	}

	// Inverse direction on arbitrary claude- names.
	for _, name := range []string{"claude-", "claude-x", "claude-weird-name-42"} {
		key, ok := SessionKeyFromContainerName(name)
		assert.True(t, ok)
		assert.Equal(t, name, ContainerNameForSession(key))
	}
}

func TestLastLines(t *testing.T) {
	data := []byte("one\ntwo\nthree\n")
	assert.Equal(t, "three\n", string(lastLines(data, 1)))
	assert.Equal(t, "two\nthree\n", string(lastLines(data, 2)))
	assert.Equal(t, "one\ntwo\nthree\n", string(lastLines(data, 10)))
	assert.Equal(t, "", string(lastLines(nil, 3)))
}

func TestAssistantArgs(t *testing.T) {
	args := assistantArgs(StartOptions{Prompt: "fix the tests"})
	assert.Equal(t, []string{"claude", "-p", "fix the tests", "--output-format", "stream-json", "--verbose"}, args)

	args = assistantArgs(StartOptions{Prompt: "continue", ResumeSessionID: "abc-123"})
	assert.Equal(t, "--resume", args[len(args)-2])
	assert.Equal(t, "abc-123", args[len(args)-1])
}
