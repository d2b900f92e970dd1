package container

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// inspectJSON mirrors the fields of `docker inspect` we read. Podman emits
// the same shape for containers.
type inspectJSON struct {
	ID      string    `json:"Id"`
	Name    string    `json:"Name"`
	Created time.Time `json:"Created"`
	State   struct {
		Running  bool   `json:"Running"`
		Status   string `json:"Status"`
		ExitCode int    `json:"ExitCode"`
		Health   *struct {
			Status string `json:"Status"`
		} `json:"Health"`
	} `json:"State"`
	Config struct {
		Image       string            `json:"Image"`
		Labels      map[string]string `json:"Labels"`
		Healthcheck *struct {
			Test []string `json:"Test"`
		} `json:"Healthcheck"`
	} `json:"Config"`
	HostConfig struct {
		NetworkMode string `json:"NetworkMode"`
	} `json:"HostConfig"`
	NetworkSettings struct {
		IPAddress string `json:"IPAddress"`
		Ports     map[string][]struct {
			HostIP   string `json:"HostIp"`
			HostPort string `json:"HostPort"`
		} `json:"Ports"`
		Networks map[string]struct {
			IPAddress string `json:"IPAddress"`
		} `json:"Networks"`
	} `json:"NetworkSettings"`
}

func parseInspect(data []byte) (*Details, error) {
	var raw []inspectJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse inspect output: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("failed to parse inspect output: %w", ErrNotFound)
	}
	r := raw[0]

	d := &Details{
		ID:           r.ID,
		Name:         strings.TrimPrefix(r.Name, "/"),
		Image:        r.Config.Image,
		Created:      r.Created,
		Running:      r.State.Running,
		Status:       r.State.Status,
		IPAddress:    r.NetworkSettings.IPAddress,
		NetworkMode:  r.HostConfig.NetworkMode,
		Networks:     make(map[string]string),
		PortBindings: make(map[string][]HostPort),
		Labels:       r.Config.Labels,
	}
	if !r.State.Running {
		code := r.State.ExitCode
		d.ExitCode = &code
	}
	if r.State.Health != nil {
		d.Health = r.State.Health.Status
	}
	if hc := r.Config.Healthcheck; hc != nil && len(hc.Test) > 0 && hc.Test[0] != "NONE" {
		d.HealthCheck = healthCheckString(hc.Test)
	}

	for name, n := range r.NetworkSettings.Networks {
		d.Networks[name] = n.IPAddress
		// User-defined networks leave the top-level address empty.
		if d.IPAddress == "" && n.IPAddress != "" {
			d.IPAddress = n.IPAddress
		}
	}
	for port, bindings := range r.NetworkSettings.Ports {
		for _, b := range bindings {
			p, err := strconv.Atoi(b.HostPort)
			if err != nil {
				continue
			}
			d.PortBindings[port] = append(d.PortBindings[port], HostPort{IP: b.HostIP, Port: p})
		}
	}
	return d, nil
}

// healthCheckString renders a Healthcheck.Test array as the command the
// user configured.
func healthCheckString(test []string) string {
	switch test[0] {
	case "CMD-SHELL", "CMD":
		return strings.Join(test[1:], " ")
	}
	return strings.Join(test, " ")
}

func portKey(port int, proto string) string {
	if proto == "" {
		return strconv.Itoa(port)
	}
	return fmt.Sprintf("%d/%s", port, proto)
}
