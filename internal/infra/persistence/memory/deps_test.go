package memory

import (
	"testing"

	"opsdesk/testutil"
)

func TestImportsAreDomainOrStdlib(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.ModuleImportsExcept("opsdesk/pkg/domain"), "memory store is the base layer")
}
