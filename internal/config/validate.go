package config

import (
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/edvin/stackd/internal/model"
)

var validate = validator.New()

var nameRegex = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,62}$`)

func init() {
	validate.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return nameRegex.MatchString(fl.Field().String())
	})
}

// Validate runs structural validation plus the cross-field rules the tags
// cannot express: unique names, resolvable dependencies, service-name
// addressing in env bindings, and proxy reference integrity.
func Validate(sf *StackFile) error {
	if err := validate.Struct(sf); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	names := make(map[string]bool, len(sf.Services))
	for _, s := range sf.Services {
		if names[s.Name] {
			return fmt.Errorf("duplicate service name %q", s.Name)
		}
		names[s.Name] = true
	}

	for _, s := range sf.Services {
		for _, dep := range s.DependsOn {
			if dep == s.Name {
				return fmt.Errorf("service %q depends on itself", s.Name)
			}
			if !names[dep] {
				return fmt.Errorf("service %q depends on unknown service %q", s.Name, dep)
			}
		}
		// Inter-service addressing must go by service name through the
		// network's DNS, never by literal address.
		for k, v := range s.Env {
			if strings.HasSuffix(k, "_HOST") && net.ParseIP(v) != nil {
				return fmt.Errorf("service %q: env %s must reference a service name, not IP %q", s.Name, k, v)
			}
		}
	}

	if sf.Proxy != nil {
		if err := validateProxy(sf.Proxy); err != nil {
			return err
		}
	}

	return nil
}

func validateProxy(def *ProxyDef) error {
	groups := make(map[string]bool, len(def.Upstreams))
	for _, u := range def.Upstreams {
		if groups[u.Name] {
			return fmt.Errorf("duplicate upstream group %q", u.Name)
		}
		groups[u.Name] = true
		for _, m := range u.Members {
			if _, _, err := net.SplitHostPort(m); err != nil {
				return fmt.Errorf("upstream %q: member %q is not host:port: %w", u.Name, m, err)
			}
		}
	}

	zones := make(map[string]bool, len(def.Zones))
	for _, z := range def.Zones {
		if zones[z.Name] {
			return fmt.Errorf("duplicate rate limit zone %q", z.Name)
		}
		zones[z.Name] = true
		if z.KeyBy != "" && z.KeyBy != model.KeyByClientIP {
			return fmt.Errorf("zone %q: unknown key_by %q", z.Name, z.KeyBy)
		}
	}

	catchAll := false
	for _, r := range def.Routes {
		if r.Static {
			if r.Upstream != "" {
				return fmt.Errorf("route %q: static routes cannot target an upstream", r.Pattern)
			}
			if r.Zone != "" {
				return fmt.Errorf("route %q: static routes never count against a zone", r.Pattern)
			}
		} else {
			if r.Upstream == "" {
				return fmt.Errorf("route %q: missing upstream group", r.Pattern)
			}
			if !groups[r.Upstream] {
				return fmt.Errorf("route %q: unknown upstream group %q", r.Pattern, r.Upstream)
			}
		}
		if r.Zone != "" && !zones[r.Zone] {
			return fmt.Errorf("route %q: unknown zone %q", r.Pattern, r.Zone)
		}
		if r.Match == model.MatchRegex {
			if _, err := regexp.Compile(r.Pattern); err != nil {
				return fmt.Errorf("route %q: invalid regex: %w", r.Pattern, err)
			}
		}
		if r.Match == model.MatchPrefix && r.Pattern == "/" {
			catchAll = true
		}
	}
	if !catchAll {
		return fmt.Errorf("proxy routes must include a catch-all prefix route for %q", "/")
	}

	return nil
}
