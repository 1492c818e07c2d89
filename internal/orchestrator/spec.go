package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/edvin/stackd/internal/model"
	"github.com/edvin/stackd/internal/runtime"
)

// buildContainerSpec renders the desired container spec for a service,
// including generated environment bindings. Inter-service addressing is by
// service name, resolved through the shared network's DNS.
func buildContainerSpec(topo *model.Topology, svc *model.Service) runtime.ContainerSpec {
	env := make(map[string]string, len(svc.Env)+1+2*len(svc.DependsOn))
	for k, v := range svc.Env {
		env[k] = v
	}
	env["PORT"] = strconv.Itoa(svc.ContainerPort)
	for _, dep := range svc.DependsOn {
		prefix := envPrefix(dep)
		env[prefix+"_HOST"] = dep
		if d := topo.Service(dep); d != nil {
			env[prefix+"_PORT"] = strconv.Itoa(d.ContainerPort)
		}
	}

	spec := runtime.ContainerSpec{
		Name:          svc.Name,
		Image:         svc.Image,
		Network:       topo.Network,
		Env:           env,
		Port:          svc.Port,
		ContainerPort: svc.ContainerPort,
	}
	if svc.Health != nil {
		spec.HealthCheck = &runtime.HealthCheck{
			Test:        svc.Health.Test,
			Interval:    svc.Health.Interval,
			Timeout:     svc.Health.Timeout,
			Retries:     svc.Health.Retries,
			StartPeriod: svc.Health.StartPeriod,
		}
	}

	spec.Labels = map[string]string{
		runtime.LabelStack:      topo.Name,
		runtime.LabelService:    svc.Name,
		runtime.LabelConfigHash: configHash(spec),
	}
	return spec
}

func envPrefix(name string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name))
}

// configHash fingerprints the desired configuration of a container. The
// hash is stamped as a label on creation; a mismatch on a later run means
// drift and forces a recreate.
func configHash(spec runtime.ContainerSpec) string {
	hashable := struct {
		Image         string               `json:"image"`
		Network       string               `json:"network"`
		Env           map[string]string    `json:"env"`
		Port          int                  `json:"port"`
		ContainerPort int                  `json:"container_port"`
		Health        *runtime.HealthCheck `json:"health,omitempty"`
	}{
		Image:         spec.Image,
		Network:       spec.Network,
		Env:           spec.Env,
		Port:          spec.Port,
		ContainerPort: spec.ContainerPort,
		Health:        spec.HealthCheck,
	}

	// Map keys are sorted by encoding/json, so the encoding is canonical.
	data, _ := json.Marshal(hashable)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
