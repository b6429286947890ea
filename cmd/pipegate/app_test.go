package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveNamespace_Precedence(t *testing.T) {
	a := newTestApp(t)
	t.Cleanup(func() { flagNamespace = "" })

	// Nothing selected: default.
	flagNamespace = ""
	t.Setenv(namespaceEnv, "")
	ns, err := a.resolveNamespace()
	require.NoError(t, err)
	assert.Equal(t, "_default", ns)

	// Joined namespace wins over the default.
	_, err = a.namespaces.Create("joined")
	require.NoError(t, err)
	require.NoError(t, a.joinNamespace("joined"))
	ns, err = a.resolveNamespace()
	require.NoError(t, err)
	assert.Equal(t, "joined", ns)

	// Env wins over the joined namespace.
	t.Setenv(namespaceEnv, "from-env")
	ns, err = a.resolveNamespace()
	require.NoError(t, err)
	assert.Equal(t, "from-env", ns)

	// Flag wins over everything.
	flagNamespace = "from-flag"
	ns, err = a.resolveNamespace()
	require.NoError(t, err)
	assert.Equal(t, "from-flag", ns)
}

func TestResolveNamespace_RejectsInvalidName(t *testing.T) {
	a := newTestApp(t)
	t.Cleanup(func() { flagNamespace = "" })

	flagNamespace = "../escape"
	_, err := a.resolveNamespace()
	require.Error(t, err)
}

func TestJoinNamespace_RequiresExisting(t *testing.T) {
	a := newTestApp(t)

	err := a.joinNamespace("ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ns create")
}

func TestLeaveNamespace_Idempotent(t *testing.T) {
	a := newTestApp(t)

	require.NoError(t, a.leaveNamespace())

	_, err := a.namespaces.Create("x")
	require.NoError(t, err)
	require.NoError(t, a.joinNamespace("x"))
	require.NoError(t, a.leaveNamespace())
	require.NoError(t, a.leaveNamespace())
}

func TestParseMetadata(t *testing.T) {
	meta, err := parseMetadata([]string{"signal=multi-file", "files=12"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"signal": "multi-file", "files": "12"}, meta)

	_, err = parseMetadata([]string{"no-equals"})
	require.Error(t, err)

	meta, err = parseMetadata(nil)
	require.NoError(t, err)
	assert.Nil(t, meta)
}
