package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunTaxonomySearch(t *testing.T) {
	stubConfig(t, testConfig())
	stubClient(t, &fakeClient{})

	t.Run("table", func(t *testing.T) {
		output, err := captureOutput(t, func() error {
			return runTaxonomySearch("browser", nil, 20, "table")
		})
		require.NoError(t, err)
		assert.Contains(t, output, "GROUP")
		assert.Contains(t, output, "$browser")
		assert.Contains(t, output, "$browser_version")
		assert.Contains(t, output, "Browser switchers")
		assert.NotContains(t, output, "$os")
	})

	t.Run("csv with groups and limit", func(t *testing.T) {
		output, err := captureOutput(t, func() error {
			return runTaxonomySearch("", []string{"event_properties"}, 1, "csv")
		})
		require.NoError(t, err)
		assert.Equal(t, "group,value,name\nevent_properties,$browser,$browser\n", output)
	})
}

func TestRunTaxonomySearchValidation(t *testing.T) {
	err := runTaxonomySearch("", []string{"elements"}, 20, "json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid group")

	err = runTaxonomySearch("", nil, 0, "json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit must be between 1 and 1000")
}
