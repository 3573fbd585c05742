package operator

const (
	StackLabel   = "io.stackctl.stack"
	ServiceLabel = "io.stackctl.service"
)

func stackLabels(stack, service string) map[string]string {
	labels := map[string]string{StackLabel: stack}
	if service != "" {
		labels[ServiceLabel] = service
	}
	return labels
}
