package config

// YAML definitions for the stack file. These are the operator-facing shapes;
// Load converts them into internal/model types with defaults applied.

type StackFile struct {
	Name     string       `yaml:"name" validate:"required,slug"`
	Network  string       `yaml:"network" validate:"required,slug"`
	Services []ServiceDef `yaml:"services" validate:"required,min=1,dive"`
	Proxy    *ProxyDef    `yaml:"proxy"`
}

type ServiceDef struct {
	Name          string            `yaml:"name" validate:"required,slug"`
	Image         string            `yaml:"image" validate:"required"`
	Port          int               `yaml:"port" validate:"min=0,max=65535"`
	ContainerPort int               `yaml:"container_port" validate:"required,min=1,max=65535"`
	DependsOn     []string          `yaml:"depends_on"`
	Env           map[string]string `yaml:"env"`
	HealthCheck   *HealthCheckDef   `yaml:"healthcheck"`
}

type HealthCheckDef struct {
	Test        []string `yaml:"test" validate:"required,min=1"`
	Interval    string   `yaml:"interval"`
	Timeout     string   `yaml:"timeout"`
	Retries     int      `yaml:"retries"`
	StartPeriod string   `yaml:"start_period"`
}

type ProxyDef struct {
	Listen         string        `yaml:"listen"`
	AdminListen    string        `yaml:"admin_listen"`
	RequestTimeout string        `yaml:"request_timeout"`
	ProbeInterval  string        `yaml:"probe_interval"`
	ProbeTimeout   string        `yaml:"probe_timeout"`
	RejoinAfter    int           `yaml:"rejoin_after"`
	Routes         []RouteDef    `yaml:"routes" validate:"required,min=1,dive"`
	Zones          []ZoneDef     `yaml:"zones" validate:"dive"`
	Upstreams      []UpstreamDef `yaml:"upstreams" validate:"dive"`
}

type RouteDef struct {
	Pattern  string `yaml:"pattern" validate:"required"`
	Match    string `yaml:"match" validate:"required,oneof=exact prefix regex"`
	Upstream string `yaml:"upstream"`
	Zone     string `yaml:"zone"`
	Static   bool   `yaml:"static"`
}

type ZoneDef struct {
	Name  string  `yaml:"name" validate:"required,slug"`
	Rate  float64 `yaml:"rate" validate:"required,gt=0"`
	Burst int     `yaml:"burst" validate:"required,min=1"`
	KeyBy string  `yaml:"key_by"`
}

type UpstreamDef struct {
	Name       string   `yaml:"name" validate:"required,slug"`
	Members    []string `yaml:"members" validate:"required,min=1"`
	PoolSize   int      `yaml:"pool_size" validate:"min=0"`
	HealthPath string   `yaml:"health_path"`
}
