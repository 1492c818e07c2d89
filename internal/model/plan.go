package model

// Reconcile modes.
type Mode string

const (
	ModeApply   Mode = "apply"
	ModeDestroy Mode = "destroy"
)

// Per-service plan operations.
type Op string

const (
	OpNone     Op = "none"
	OpStart    Op = "start"
	OpCreate   Op = "create"
	OpRecreate Op = "recreate"
	OpRemove   Op = "remove"
)

// Network plan operations.
const (
	NetworkNone   = "none"
	NetworkCreate = "create"
	NetworkRemove = "remove"
)

// Action is one planned step for a single service.
type Action struct {
	Service string       `json:"service"`
	Op      Op           `json:"op"`
	From    ServiceState `json:"from"`
	Reason  string       `json:"reason"`
}

// Plan is the ordered action set computed for one reconciliation. A dry run
// returns the plan without performing any of it.
type Plan struct {
	ID      string   `json:"id"`
	Stack   string   `json:"stack"`
	Mode    Mode     `json:"mode"`
	Network string   `json:"network_op"`
	Actions []Action `json:"actions"`
}

// Changed reports whether the plan contains any mutating action.
func (p *Plan) Changed() bool {
	if p.Network != NetworkNone {
		return true
	}
	for _, a := range p.Actions {
		if a.Op != OpNone {
			return true
		}
	}
	return false
}

// Result statuses for one service after a reconciliation pass.
const (
	ResultOK      = "ok"
	ResultFailed  = "failed"
	ResultBlocked = "blocked"
)

// ServiceResult records the outcome of applying one action.
type ServiceResult struct {
	Service  string `json:"service"`
	Op       Op     `json:"op"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
}

// Report is the structured outcome of a reconciliation: which services
// succeeded, which failed, which were blocked by a failed dependency.
type Report struct {
	Plan           *Plan           `json:"plan"`
	Results        []ServiceResult `json:"results"`
	NetworkRemoved bool            `json:"network_removed,omitempty"`
}

// Failed reports whether any service failed or was blocked.
func (r *Report) Failed() bool {
	for _, res := range r.Results {
		if res.Status != ResultOK {
			return true
		}
	}
	return false
}
