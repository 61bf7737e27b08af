package migrate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionsAreOrderedAndEmbedded(t *testing.T) {
	names := versions()
	assert.Equal(t, []string{"0001_courses.sql", "0002_attempts.sql"}, names)

	for _, name := range names {
		b, err := fs.ReadFile(name)
		require.NoError(t, err)
		assert.True(t, strings.Contains(string(b), "CREATE TABLE"), name)
	}
}
