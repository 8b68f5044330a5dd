package migrate

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourcesArePaired(t *testing.T) {
	names, err := Sources()
	require.NoError(t, err)
	require.NotEmpty(t, names)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, n := range names {
		switch {
		case strings.HasSuffix(n, ".up.sql"):
			ups[strings.TrimSuffix(n, ".up.sql")] = true
		case strings.HasSuffix(n, ".down.sql"):
			downs[strings.TrimSuffix(n, ".down.sql")] = true
		default:
			t.Fatalf("unexpected migration file %q", n)
		}
	}
	assert.Equal(t, ups, downs, "every up migration needs a down migration")
}

func TestSchemaEnforcesInvariants(t *testing.T) {
	identities, err := fs.ReadFile(migrationFS, "sql/000001_identities.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(identities), "create unique index if not exists users_email_key on users (email)")

	contracts, err := fs.ReadFile(migrationFS, "sql/000002_contracts.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(contracts), "references users (id) on delete restrict")
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "version 2", Status{Version: 2}.String())
	assert.Equal(t, "version 1 (dirty)", Status{Version: 1, Dirty: true}.String())
}

func TestRunWithoutDatabase(t *testing.T) {
	err := NewManager(nil).Up()
	require.Error(t, err)
}
