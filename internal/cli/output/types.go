package output

// OrderEntry is one row of the publish order.
type OrderEntry struct {
	Position  int    `json:"position" yaml:"position"`
	Name      string `json:"name" yaml:"name"`
	Version   string `json:"version" yaml:"version"`
	Weight    int    `json:"weight" yaml:"weight"`
	ID        string `json:"id" yaml:"id"`
	PURL      string `json:"purl" yaml:"purl"`
	Publishes bool   `json:"publishes" yaml:"publishes"`
}

// OrderOutput is the structured output of the order command.
type OrderOutput struct {
	Ranking  string       `json:"ranking" yaml:"ranking"`
	Packages []OrderEntry `json:"packages" yaml:"packages"`
}

// GraphNode is one package of the dependency graph.
type GraphNode struct {
	Name      string   `json:"name" yaml:"name"`
	ID        string   `json:"id" yaml:"id"`
	DependsOn []string `json:"depends_on" yaml:"depends_on"`
	UsedBy    []string `json:"used_by" yaml:"used_by"`
}

// GraphLevel groups packages of equal dependency depth.
type GraphLevel struct {
	Level    int         `json:"level" yaml:"level"`
	Packages []GraphNode `json:"packages" yaml:"packages"`
}

// GraphOutput is the structured output of the graph command.
type GraphOutput struct {
	Levels        []GraphLevel `json:"levels" yaml:"levels"`
	Roots         []string     `json:"roots" yaml:"roots"`
	Leaves        []string     `json:"leaves" yaml:"leaves"`
	TotalPackages int          `json:"total_packages" yaml:"total_packages"`
	TotalEdges    int          `json:"total_edges" yaml:"total_edges"`
}

// PackageGraphOutput is the graph around a single package: everything it
// needs published first, and everything to republish after it changes.
type PackageGraphOutput struct {
	Name       string   `json:"name" yaml:"name"`
	Version    string   `json:"version" yaml:"version"`
	Upstream   []string `json:"upstream" yaml:"upstream"`
	Downstream []string `json:"downstream" yaml:"downstream"`
}

// PublishEntry is the outcome of publishing one package.
type PublishEntry struct {
	Name     string `json:"name" yaml:"name"`
	Version  string `json:"version" yaml:"version"`
	Outcome  string `json:"outcome" yaml:"outcome"`
	ExitCode int    `json:"exit_code" yaml:"exit_code"`
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
}

// PublishOutput is the structured output of the publish command.
type PublishOutput struct {
	DryRun     bool           `json:"dry_run" yaml:"dry_run"`
	AllowDirty bool           `json:"allow_dirty" yaml:"allow_dirty"`
	Packages   []PublishEntry `json:"packages" yaml:"packages"`
}
