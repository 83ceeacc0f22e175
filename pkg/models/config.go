package models

// Config is the typed form of flakereport.yaml
type Config struct {
	Warehouse Warehouse         `yaml:"warehouse" mapstructure:"warehouse"`
	Engine    Engine            `yaml:"engine" mapstructure:"engine"`
	Privacy   Privacy           `yaml:"privacy" mapstructure:"privacy"`
	Output    Output            `yaml:"output" mapstructure:"output"`
	Log       Log               `yaml:"log" mapstructure:"log"`
	Metrics   Metrics           `yaml:"metrics" mapstructure:"metrics"`
	Reports   map[string]Report `yaml:"reports" mapstructure:"reports"`
}

// Warehouse describes the source connection
type Warehouse struct {
	Driver    string `yaml:"driver" mapstructure:"driver"` // snowflake, mysql, pgx, sqlite
	DSN       string `yaml:"dsn" mapstructure:"dsn"`
	Account   string `yaml:"account" mapstructure:"account"`
	Username  string `yaml:"username" mapstructure:"username"`
	Password  string `yaml:"password" mapstructure:"password"`
	Role      string `yaml:"role" mapstructure:"role"`
	Warehouse string `yaml:"warehouse" mapstructure:"warehouse"`
	Database  string `yaml:"database" mapstructure:"database"`
	Schema    string `yaml:"schema" mapstructure:"schema"`
	Timeout   string `yaml:"timeout" mapstructure:"timeout"` // e.g. "5m"
	MaxConns  int    `yaml:"max_conns" mapstructure:"max_conns"`
}

// Engine controls how a run is computed
type Engine struct {
	AsOf          string `yaml:"as_of" mapstructure:"as_of"`       // "", "yesterday", "today" or YYYY-MM-DD
	Timezone      string `yaml:"timezone" mapstructure:"timezone"` // IANA name used for "yesterday"
	Workers       int    `yaml:"workers" mapstructure:"workers"`
	PartitionSize int    `yaml:"partition_size" mapstructure:"partition_size"`
}

// Privacy holds the identifier hashing salt
type Privacy struct {
	Salt string `yaml:"salt" mapstructure:"salt"`
}

// Output lists the sinks every run writes to
type Output struct {
	Sinks []string `yaml:"sinks" mapstructure:"sinks"`
	S3    S3       `yaml:"s3" mapstructure:"s3"`
}

// S3 configures the object storage sink
type S3 struct {
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	Region    string `yaml:"region" mapstructure:"region"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
}

// Log configures the structured logger
type Log struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
}

// Metrics configures the prometheus textfile export
type Metrics struct {
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

// Report overrides the built-in settings of one report
type Report struct {
	Periods []string          `yaml:"periods,omitempty" mapstructure:"periods"`
	Tables  map[string]string `yaml:"tables,omitempty" mapstructure:"tables"`
	Filters Filters           `yaml:"filters,omitempty" mapstructure:"filters"`
	// OrgFallbackToAccount groups by account_id when organization_id is null
	OrgFallbackToAccount *bool `yaml:"org_fallback_to_account,omitempty" mapstructure:"org_fallback_to_account"`
}

// Filters narrows the facts a report reads
type Filters struct {
	OpportunityTypes []string `yaml:"opportunity_types,omitempty" mapstructure:"opportunity_types"`
	ActiveOnly       *bool    `yaml:"active_only,omitempty" mapstructure:"active_only"`
	ModelPattern     string   `yaml:"model_pattern,omitempty" mapstructure:"model_pattern"`
	SuccessStatuses  []string `yaml:"success_statuses,omitempty" mapstructure:"success_statuses"`
}
