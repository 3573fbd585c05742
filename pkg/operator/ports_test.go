package operator

import (
	"strings"
	"testing"

	"github.com/lapiml/stackctl/pkg/errdefs"
	"github.com/lapiml/stackctl/pkg/parser"
)

func TestValidatePortsConflict(t *testing.T) {
	services := map[string]parser.Service{
		"minio": {Ports: []string{"127.0.0.1:9000:9000"}},
		"api":   {Ports: []string{"127.0.0.1:9000:8080"}},
	}
	err := ValidatePorts(services)
	if !errdefs.IsKind(err, errdefs.KindPortConflict) {
		t.Fatalf("expected PortConflict, got %v", err)
	}
	if !strings.Contains(err.Error(), "api") || !strings.Contains(err.Error(), "minio") {
		t.Fatalf("error should name both services: %v", err)
	}
}

func TestValidatePortsDistinct(t *testing.T) {
	services := map[string]parser.Service{
		"minio":  {Ports: []string{"127.0.0.1:9000:9000", "127.0.0.1:9001:9001"}},
		"mlflow": {Ports: []string{"127.0.0.1:5000:5000"}},
	}
	if err := ValidatePorts(services); err != nil {
		t.Fatalf("no conflict expected: %v", err)
	}
}

func TestValidatePortsWildcardConflictsWithSpecificIP(t *testing.T) {
	services := map[string]parser.Service{
		"minio": {Ports: []string{"9000:9000"}},
		"api":   {Ports: []string{"127.0.0.1:9000:8080"}},
	}
	err := ValidatePorts(services)
	if !errdefs.IsKind(err, errdefs.KindPortConflict) {
		t.Fatalf("wildcard bind covers every interface, expected PortConflict, got %v", err)
	}
}

func TestValidatePortsExplicitWildcardConflicts(t *testing.T) {
	services := map[string]parser.Service{
		"minio": {Ports: []string{"127.0.0.1:9000:9000"}},
		"api":   {Ports: []string{"0.0.0.0:9000:8080"}},
	}
	err := ValidatePorts(services)
	if !errdefs.IsKind(err, errdefs.KindPortConflict) {
		t.Fatalf("0.0.0.0 is a wildcard bind, expected PortConflict, got %v", err)
	}
}

func TestValidatePortsDistinctIPsSamePort(t *testing.T) {
	services := map[string]parser.Service{
		"minio": {Ports: []string{"127.0.0.1:9000:9000"}},
		"api":   {Ports: []string{"10.0.0.5:9000:8080"}},
	}
	if err := ValidatePorts(services); err != nil {
		t.Fatalf("distinct host addresses do not conflict: %v", err)
	}
}

func TestValidatePortsNoHostBinding(t *testing.T) {
	services := map[string]parser.Service{
		"a": {Ports: []string{"9000"}},
		"b": {Ports: []string{"9000"}},
	}
	if err := ValidatePorts(services); err != nil {
		t.Fatalf("container-only ports never conflict: %v", err)
	}
}

func TestValidatePortsMalformed(t *testing.T) {
	services := map[string]parser.Service{
		"a": {Ports: []string{"not-a-port"}},
	}
	err := ValidatePorts(services)
	if !errdefs.IsKind(err, errdefs.KindMalformedDescriptor) {
		t.Fatalf("expected MalformedDescriptor, got %v", err)
	}
}
