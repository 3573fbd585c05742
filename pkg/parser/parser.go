package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lapiml/stackctl/pkg/errdefs"
)

func (w *MapOrArrayWrapper) UnmarshalYAML(value *yaml.Node) error {
	var envsArray []string
	var envsMap map[string]string
	if err := value.Decode(&envsMap); err == nil {
		for key, val := range envsMap {
			envsArray = append(envsArray, key+"="+val)
		}
	}

	if len(envsArray) == 0 {
		if err := value.Decode(&envsArray); err != nil {
			return err
		}
	}
	*w = envsArray
	return nil
}

func (s *StringOrList) UnmarshalYAML(value *yaml.Node) error {
	var single string
	if err := value.Decode(&single); err == nil {
		*s = []string{single}
		return nil
	}
	var list []string
	if err := value.Decode(&list); err != nil {
		return err
	}
	*s = list
	return nil
}

func (c *Command) UnmarshalYAML(value *yaml.Node) error {
	var single string
	if err := value.Decode(&single); err == nil {
		parts, err := splitCommand(single)
		if err != nil {
			return err
		}
		*c = parts
		return nil
	}
	var list []string
	if err := value.Decode(&list); err != nil {
		return err
	}
	*c = list
	return nil
}

// splitCommand breaks a shell-form command into argv, honoring single and
// double quotes.
func splitCommand(s string) ([]string, error) {
	var args []string
	var cur strings.Builder
	var quote byte
	inWord := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			} else {
				cur.WriteByte(ch)
			}
		case ch == '\'' || ch == '"':
			quote = ch
			inWord = true
		case ch == ' ' || ch == '\t':
			if inWord {
				args = append(args, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteByte(ch)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote in command %q", s)
	}
	if inWord {
		args = append(args, cur.String())
	}
	return args, nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Parse decodes a descriptor and validates its cross references. It is a
// pure function: no filesystem or engine access happens here.
func Parse(data []byte) (*Config, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, errdefs.Newf(errdefs.KindMalformedDescriptor, "descriptor syntax: %w", err)
	}
	if err := checkDuplicateServices(&root); err != nil {
		return nil, err
	}

	var cfg Config
	if err := root.Decode(&cfg); err != nil {
		return nil, errdefs.Newf(errdefs.KindMalformedDescriptor, "descriptor schema: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// checkDuplicateServices walks the raw node tree so that a repeated service
// key is reported as DuplicateService rather than a generic decode error.
func checkDuplicateServices(root *yaml.Node) error {
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		if doc.Content[i].Value != "services" {
			continue
		}
		services := doc.Content[i+1]
		if services.Kind != yaml.MappingNode {
			continue
		}
		seen := map[string]bool{}
		for j := 0; j+1 < len(services.Content); j += 2 {
			name := services.Content[j].Value
			if seen[name] {
				return errdefs.Newf(errdefs.KindDuplicateService, "service %q declared twice", name)
			}
			seen[name] = true
		}
	}
	return nil
}

func validate(cfg *Config) error {
	if len(cfg.Services) == 0 {
		return errdefs.Newf(errdefs.KindMalformedDescriptor, "descriptor declares no services")
	}

	containerNames := map[string]string{}
	for name, svc := range cfg.Services {
		if svc.Image == "" && svc.Build == nil {
			return errdefs.Newf(errdefs.KindMalformedDescriptor, "service %q: neither image nor build set", name)
		}
		if cn := svc.ContainerName; cn != "" {
			if other, ok := containerNames[cn]; ok {
				first, second := other, name
				if second < first {
					first, second = second, first
				}
				return errdefs.Newf(errdefs.KindDuplicateService,
					"services %q and %q both claim container_name %q", first, second, cn)
			}
			containerNames[cn] = name
		}
		for _, dep := range svc.DependsOn {
			if _, ok := cfg.Services[dep]; !ok {
				return errdefs.Newf(errdefs.KindUnknownReference,
					"service %q depends on unknown service %q", name, dep)
			}
			if dep == name {
				return errdefs.Newf(errdefs.KindDependencyCycle,
					"service %q depends on itself", name)
			}
		}
		for _, net := range svc.Networks {
			if _, ok := cfg.Networks[net]; !ok {
				return errdefs.Newf(errdefs.KindUnknownReference,
					"service %q joins undeclared network %q", name, net)
			}
		}
		for _, vol := range svc.Volumes {
			src, _, err := SplitVolumeSpec(vol)
			if err != nil {
				return errdefs.Newf(errdefs.KindMalformedDescriptor, "service %q: %w", name, err)
			}
			if !IsHostPath(src) {
				if _, ok := cfg.Volumes[src]; !ok {
					return errdefs.Newf(errdefs.KindUnknownReference,
						"service %q mounts undeclared volume %q", name, src)
				}
			}
		}
		if hc := svc.HealthCheck; hc != nil {
			if len(hc.Test) == 0 && hc.HTTP == "" {
				return errdefs.Newf(errdefs.KindMalformedDescriptor,
					"service %q: healthcheck has neither test nor http", name)
			}
		}
	}
	return nil
}

// SplitVolumeSpec breaks "src:dst[:mode]" into the source and the rest of
// the spec (destination plus any mode suffix).
func SplitVolumeSpec(spec string) (src, rest string, err error) {
	src, rest, found := strings.Cut(spec, ":")
	if !found || src == "" || rest == "" {
		return "", "", fmt.Errorf("invalid volume spec %q", spec)
	}
	return src, rest, nil
}

// IsHostPath distinguishes a bind-mount source from a named volume.
func IsHostPath(src string) bool {
	return len(src) > 0 && (src[0] == '/' || src[0] == '.' || src[0] == '~')
}
