package batch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverSortsAndPairsMasks(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"c.nii.gz", "a.nii.gz", "notes.txt", "b.nii"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.nii.gz"), 0755))

	cases, err := Discover(dir, ".nii.gz", "/masks")
	require.NoError(t, err)

	require.Len(t, cases, 2)
	assert.Equal(t, Case{ID: "a", VolumePath: filepath.Join(dir, "a.nii.gz"), MaskPath: filepath.Join("/masks", "a.nii.gz")}, cases[0])
	assert.Equal(t, "c", cases[1].ID)

	cases, err = Discover(dir, ".nii", "")
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Empty(t, cases[0].MaskPath)

	_, err = Discover(filepath.Join(dir, "missing"), ".nii.gz", "")
	assert.Error(t, err)
}

func TestParseFailurePolicy(t *testing.T) {
	for in, want := range map[string]FailurePolicy{
		"":          SkipAndContinue,
		"skip":      SkipAndContinue,
		"fail-fast": FailFast,
		"FailFast":  FailFast,
	} {
		got, err := ParseFailurePolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseFailurePolicy("retry")
	assert.Error(t, err)

	assert.Equal(t, "fail-fast", FailFast.String())
	assert.Equal(t, "skip", SkipAndContinue.String())
}

func TestCaseOutputName(t *testing.T) {
	assert.Equal(t, "x.nii.gz", Case{ID: "x", VolumePath: "/in/x.nii.gz"}.OutputName())
	assert.Equal(t, "y.nii.gz", Case{ID: "y"}.OutputName())
}
