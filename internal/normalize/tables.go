package normalize

import "sort"

// Tables tells the normalizer how individual executables parse their
// options. The catalog's "normalizer:" section uses the same shape and is
// merged on top of DefaultTables.
type Tables struct {
	// ValueFlags lists, per executable, the option spellings that consume
	// the following word as their value ("-C", "--namespace"). The key "*"
	// applies to every executable.
	ValueFlags map[string][]string `yaml:"value_flags,omitempty"`
	// PathFlags lists option spellings whose value is a filesystem path.
	PathFlags map[string][]string `yaml:"path_flags,omitempty"`
	// SingleDashLong lists executables whose options are long names behind
	// a single dash ("find -delete", "terraform -chdir=dir").
	SingleDashLong []string `yaml:"single_dash_long,omitempty"`
}

// DefaultTables returns the built-in option tables.
func DefaultTables() Tables {
	return Tables{
		ValueFlags: map[string][]string{
			"git":               {"-C", "-c", "--git-dir", "--work-tree", "--namespace", "--exec-path", "--config-env", "--repo", "--push-option", "-o"},
			"kubectl":           {"-n", "--namespace", "--context", "--cluster", "--kubeconfig", "--user", "-l", "--selector", "-o", "--output", "-f", "--filename", "-c", "--container", "--field-selector", "--grace-period", "--timeout"},
			"helm":              {"-n", "--namespace", "--kube-context", "--kubeconfig", "-f", "--values", "--set", "--set-string", "--version", "--timeout"},
			"gcloud":            {"--project", "--zone", "--region", "--account", "--configuration", "--format", "--filter", "--impersonate-service-account", "--member", "--role"},
			"gsutil":            {"-o", "-h", "-u"},
			"aws":               {"--profile", "--region", "--output", "--endpoint-url", "--query", "--bucket", "--key", "--instance-ids", "--db-instance-identifier", "--stack-name", "--table-name"},
			"az":                {"-g", "--resource-group", "-n", "--name", "--subscription", "-o", "--output", "--query"},
			"terraform":         {"-var", "-var-file", "-target", "-state", "-state-out", "-backup", "-lock-timeout", "-parallelism", "-replace"},
			"tofu":              {"-var", "-var-file", "-target", "-state", "-state-out", "-backup", "-lock-timeout", "-parallelism", "-replace"},
			"terragrunt":        {"--terragrunt-working-dir", "--terragrunt-config", "-var", "-var-file", "-target"},
			"pulumi":            {"-s", "--stack", "-C", "--cwd", "-m", "--message", "--config-file"},
			"psql":              {"-c", "--command", "-d", "--dbname", "-h", "--host", "-U", "--username", "-p", "--port", "-f", "--file", "-o", "--output", "-v", "--set"},
			"mysql":             {"-e", "--execute", "-u", "--user", "-h", "--host", "-D", "--database", "-P", "--port", "-S", "--socket"},
			"mariadb":           {"-e", "--execute", "-u", "--user", "-h", "--host", "-D", "--database", "-P", "--port", "-S", "--socket"},
			"mysqladmin":        {"-u", "--user", "-h", "--host", "-P", "--port", "-S", "--socket"},
			"sqlite3":           {"-cmd", "-separator", "-newline", "-nullvalue"},
			"mongosh":           {"--eval", "--host", "--port", "-u", "--username", "--authenticationDatabase", "-f", "--file"},
			"mongo":             {"--eval", "--host", "--port", "-u", "--username", "--authenticationDatabase"},
			"redis-cli":         {"-h", "-p", "-a", "-n", "-u", "--user", "--pass"},
			"clickhouse-client": {"-q", "--query", "-h", "--host", "--port", "-u", "--user", "-d", "--database"},
			"cqlsh":             {"-e", "--execute", "-u", "--username", "-k", "--keyspace", "-f", "--file"},
			"sqlcmd":            {"-Q", "-q", "-S", "-U", "-d", "-i"},
			"cp":                {"-t", "--target-directory", "-S", "--suffix"},
			"mv":                {"-t", "--target-directory", "-S", "--suffix"},
			"install":           {"-t", "--target-directory", "-m", "--mode", "-o", "--owner", "-g", "--group", "-S", "--suffix"},
			"ln":                {"-t", "--target-directory", "-S", "--suffix"},
			"tar":               {"-C", "--directory", "-f", "--file", "-T", "--files-from", "-X", "--exclude-from"},
			"make":              {"-C", "--directory", "-f", "--file", "--makefile", "-j", "--jobs", "-I", "--include-dir"},
			"sed":               {"-e", "--expression", "-f", "--file"},
			"tee":               {},
			"chmod":             {"--reference"},
			"chown":             {"--reference", "--from"},
			"rsync":             {"-e", "--rsh", "--exclude", "--include", "--exclude-from", "--include-from", "--filter", "-f"},
			"docker":            {"-H", "--host", "--context", "-c", "-f", "--file", "-p", "--project-name"},
			"migrate":           {"-path", "-database", "-source", "-lock-timeout", "-prefetch"},
			"flyway":            {},
			"alembic":           {"-c", "--config", "-n", "--name", "-x"},
			"flask":             {"-A", "--app", "-e", "--env-file"},
			"goose":             {"-dir", "-table", "-s"},
			"dbmate":            {"-d", "--migrations-dir", "-u", "--url", "-e", "--env"},
			"prisma":            {"--schema"},
			"atlas":             {"-u", "--url", "--env", "--dir", "--to", "--dev-url", "-c", "--config"},
			"find":              {"-name", "-iname", "-path", "-ipath", "-regex", "-type", "-newer", "-user", "-group", "-perm", "-size", "-mtime", "-mmin", "-maxdepth", "-mindepth", "-wholename"},
		},
		PathFlags: map[string][]string{
			"*":         {"--directory", "--target-directory"},
			"git":       {"-C", "--git-dir", "--work-tree"},
			"make":      {"-C", "-f", "--file", "--makefile"},
			"tar":       {"-C", "-f", "--file"},
			"kubectl":   {"-f", "--filename", "--kubeconfig"},
			"helm":      {"-f", "--values", "--kubeconfig"},
			"cp":        {"-t"},
			"mv":        {"-t"},
			"install":   {"-t"},
			"ln":        {"-t"},
			"psql":      {"-f", "--file", "-o", "--output"},
			"sed":       {"-f", "--file"},
			"terraform": {"-chdir", "-var-file", "-state", "-state-out", "-backup"},
			"tofu":      {"-chdir", "-var-file", "-state", "-state-out", "-backup"},
			"pulumi":    {"-C", "--cwd"},
			"migrate":   {"-path"},
			"goose":     {"-dir"},
			"dbmate":    {"-d", "--migrations-dir"},
			"docker":    {"-f", "--file"},
		},
		SingleDashLong: []string{
			"find", "terraform", "tofu", "sqlite3", "openssl", "java", "migrate", "goose", "flyway", "xmllint",
		},
	}
}

// Merge returns t extended with the entries of other. Entries are unioned
// per executable; nothing in t is removed.
func (t Tables) Merge(other Tables) Tables {
	out := Tables{
		ValueFlags:     mergeLists(t.ValueFlags, other.ValueFlags),
		PathFlags:      mergeLists(t.PathFlags, other.PathFlags),
		SingleDashLong: unionStrings(t.SingleDashLong, other.SingleDashLong),
	}
	return out
}

func mergeLists(a, b map[string][]string) map[string][]string {
	out := make(map[string][]string, len(a)+len(b))
	for k, v := range a {
		out[k] = unionStrings(nil, v)
	}
	for k, v := range b {
		out[k] = unionStrings(out[k], v)
	}
	return out
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

type flagSet map[string]map[string]bool

func newFlagSet(m map[string][]string) flagSet {
	fs := make(flagSet, len(m))
	for exe, flags := range m {
		set := make(map[string]bool, len(flags))
		for _, f := range flags {
			set[f] = true
		}
		fs[exe] = set
	}
	return fs
}

func (fs flagSet) has(exe, flag string) bool {
	return fs[exe][flag] || fs["*"][flag]
}
