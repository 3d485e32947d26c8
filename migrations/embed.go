package migrations

import "embed"

//go:embed org/*.sql
var FS embed.FS

const OrgDir = "org"
