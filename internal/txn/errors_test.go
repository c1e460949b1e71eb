package txn

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Format(t *testing.T) {
	err := &Error{Code: CodeCommit, Datasource: "default", Message: "commit", Err: sql.ErrTxDone}
	assert.Equal(t, "TX_COMMIT: commit (datasource=default): sql: transaction has already been committed or rolled back", err.Error())
	assert.ErrorIs(t, err, sql.ErrTxDone)

	bare := configError("", "missing %q datasource", "default")
	assert.Equal(t, `CONFIGURATION: missing "default" datasource`, bare.Error())
}

func TestError_Helpers(t *testing.T) {
	wrapped := fmt.Errorf("startup: %w", configError("x", "unknown datasource"))

	assert.True(t, IsConfigurationError(wrapped))
	assert.False(t, IsContextLeak(wrapped))
	assert.False(t, IsCommitError(wrapped))

	assert.True(t, IsContextLeak(&Error{Code: CodeContextLeak}))
	assert.True(t, IsCommitError(&Error{Code: CodeCommit}))
	assert.False(t, IsConfigurationError(errors.New("plain")))
	assert.False(t, IsConfigurationError(nil))
}
