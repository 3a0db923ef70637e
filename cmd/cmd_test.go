package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/gohalo/sww"
)

func TestLoadParameters(t *testing.T) {
	input := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(input, []byte(`
Title: From File
NumProcs: 3
Nx: 7
FinalTime: 2.
BCs:
  left:
    Type: Dirichlet
    Value: 1.5
`), 0644))
	require.NoError(t, RunCmd.Flags().Set("inputFile", input))
	require.NoError(t, RunCmd.Flags().Set("ny", "5"))
	require.NoError(t, RunCmd.Flags().Set("velocityY", "-1"))
	defer RunCmd.Flags().Set("inputFile", "")
	rp, err := loadParameters(RunCmd)
	require.NoError(t, err)
	assert.Equal(t, "From File", rp.Title)
	assert.Equal(t, 3, rp.NumProcs)
	assert.Equal(t, 7, rp.Nx)
	assert.Equal(t, 5, rp.Ny)
	assert.Equal(t, 2., rp.FinalTime)
	assert.Equal(t, [2]float64{1, -1}, rp.Velocity)
	assert.Equal(t, 1.5, rp.BCs["left"].Value)
	assert.Equal(t, 1.05, rp.ImbalanceTolerance)
	// Three processes need the group transport
	assert.Error(t, rp.Validate())
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	{ // Test partition
		rootCmd.SetArgs([]string{"partition", "-n", "4", "--nx", "6", "--ny", "4", "--haloWidth", "2"})
		require.NoError(t, rootCmd.Execute())
	}
	{ // Test a simulated group run with output
		rootCmd.SetArgs([]string{"run", "-t", "group", "-n", "2", "--nx", "6", "--ny", "6",
			"--maxSteps", "2", "--finalTime", "5", "-o", dir, "--name", "cli"})
		require.NoError(t, rootCmd.Execute())
		f, err := sww.ReadFile(sww.MergedName(dir, "cli"))
		require.NoError(t, err)
		assert.Equal(t, 6*6*4, f.NumVolumes())
		assert.Equal(t, 2, f.NumProcs)
	}
	{ // Test merging the partials again, then removing them
		rootCmd.SetArgs([]string{"merge", "-o", dir, "--name", "cli", "-n", "2", "--deletePartials"})
		require.NoError(t, rootCmd.Execute())
		_, err := os.Stat(sww.PartialName(dir, "cli", 0, 2))
		assert.True(t, os.IsNotExist(err))
	}
	{ // Test a run where every process builds its own mesh
		rootCmd.SetArgs([]string{"run", "-t", "group", "-n", "3", "--nx", "4", "--ny", "4",
			"--maxSteps", "1", "--parallelMesh", "--verifyHalo", "-o", ""})
		require.NoError(t, rootCmd.Execute())
	}
	{ // Test invalid parameters fail before anything runs
		rootCmd.SetArgs([]string{"run", "-t", "local", "-n", "2"})
		assert.Error(t, rootCmd.Execute())
	}
}
