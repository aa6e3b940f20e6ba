package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	root := GetRootCmd()

	t.Run("should expose the expected subcommands", func(t *testing.T) {
		names := make([]string, 0)
		for _, cmd := range root.Commands() {
			names = append(names, cmd.Name())
		}
		assert.Contains(t, names, "deconstruct")
		assert.Contains(t, names, "rules")
	})

	t.Run("should carry the persistent flags", func(t *testing.T) {
		assert.NotNil(t, root.PersistentFlags().Lookup("config"))
		assert.NotNil(t, root.PersistentFlags().Lookup("log-level"))
	})

	t.Run("should require the word flag on deconstruct", func(t *testing.T) {
		deconstruct, _, err := root.Find([]string{"deconstruct"})
		require.NoError(t, err)

		flag := deconstruct.Flags().Lookup("word")
		require.NotNil(t, flag)
		assert.Equal(t, "w", flag.Shorthand)

		verbose := deconstruct.Flags().Lookup("verbose")
		require.NotNil(t, verbose)
		assert.Equal(t, "v", verbose.Shorthand)
	})
}
