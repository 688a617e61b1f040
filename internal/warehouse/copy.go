package warehouse

import (
	"fmt"
	"strings"
)

// CopyStatement renders the idempotent bulk copy: matched files are loaded
// once (FORCE = FALSE), and bad rows are skipped (ON_ERROR = 'CONTINUE').
func CopyStatement(table, stage, pattern string) string {
	return fmt.Sprintf(`COPY INTO %s
FROM @%s
PATTERN = '%s'
FILE_FORMAT = (TYPE = 'CSV' FIELD_OPTIONALLY_ENCLOSED_BY = '"' SKIP_HEADER = 1)
ON_ERROR = 'CONTINUE'
FORCE = FALSE`, table, stage, escapeLiteral(pattern))
}

func escapeLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)

	return strings.ReplaceAll(s, "'", `\'`)
}
