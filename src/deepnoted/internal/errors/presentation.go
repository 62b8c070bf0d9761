package errors

import (
	stderr "errors"
	"strings"
)

// Presentation bundles the user-facing fields derived from a lifecycle
// failure: a short summary, the technical details captured at failure time,
// and an ordered list of troubleshooting steps matched to the failure
// signature.
type Presentation struct {
	Summary         string
	Details         string
	Troubleshooting []string
}

// Present maps an error to its presentation fields. It is a pure function;
// the host decides how to render the result.
func Present(err error) Presentation {
	var venv *VenvCreationError
	var install *ToolkitInstallError
	var startup *ServerStartupError
	var timeout *ServerTimeoutError
	var ports *PortExhaustionError

	switch {
	case stderr.As(err, &venv):
		return Presentation{
			Summary:         "Failed to create the Python virtual environment.",
			Details:         venv.Stderr,
			Troubleshooting: troubleshootingSteps(venv.Stderr, "Check that the selected interpreter exists and supports the venv module."),
		}
	case stderr.As(err, &install):
		return Presentation{
			Summary:         "Failed to install the Deepnote toolkit.",
			Details:         install.Stdout + install.Stderr,
			Troubleshooting: troubleshootingSteps(install.Stderr, "Retry the installation; transient index outages are common."),
		}
	case stderr.As(err, &timeout):
		return Presentation{
			Summary:         "The toolkit server did not become ready in time.",
			Details:         timeout.LastStderr,
			Troubleshooting: troubleshootingSteps(timeout.LastStderr, "Inspect the server output above for startup errors."),
		}
	case stderr.As(err, &ports):
		return Presentation{
			Summary: "No free local port could be found for the server.",
			Details: err.Error(),
			Troubleshooting: []string{
				"Close other applications listening on local ports in the default range.",
				"Restart the host to release leaked listeners.",
			},
		}
	case stderr.As(err, &startup):
		return Presentation{
			Summary:         "The toolkit server failed to start.",
			Details:         startup.Output,
			Troubleshooting: troubleshootingSteps(startup.Output, "Inspect the server output above for startup errors."),
		}
	}

	return Presentation{
		Summary: "An unexpected error occurred.",
		Details: err.Error(),
	}
}

// troubleshootingSteps inspects captured output for known failure
// signatures and prepends targeted guidance to the fallback step.
func troubleshootingSteps(output string, fallback string) []string {
	steps := make([]string, 0, 3)
	lower := strings.ToLower(output)

	switch {
	case strings.Contains(lower, "ssl") || strings.Contains(lower, "certificate"):
		steps = append(steps,
			"Your network may intercept TLS traffic. Configure pip to trust your proxy's certificate.",
			"If you are behind a corporate proxy, set HTTPS_PROXY before retrying.")
	case strings.Contains(lower, "connection") || strings.Contains(lower, "timed out") || strings.Contains(lower, "temporary failure"):
		steps = append(steps, "Check your internet connection and any proxy settings, then retry.")
	case strings.Contains(lower, "permission denied") || strings.Contains(lower, "access is denied"):
		steps = append(steps, "Check filesystem permissions on the virtual environment directory.")
	case strings.Contains(lower, "address already in use") || strings.Contains(lower, "eaddrinuse"):
		steps = append(steps, "Another process is using the server's port. Stop it or restart the host.")
	case strings.Contains(lower, "no module named"):
		steps = append(steps, "The toolkit package appears incomplete. Delete the virtual environment and recreate it.")
	}

	return append(steps, fallback)
}
