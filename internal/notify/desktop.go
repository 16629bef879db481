package notify

import (
	"os/exec"
	"runtime"
)

// DesktopNotifier surfaces run outcomes through the OS notification center
type DesktopNotifier struct {
	enabled bool
}

// NewDesktopNotifier creates a new desktop notifier
func NewDesktopNotifier(enabled bool) *DesktopNotifier {
	return &DesktopNotifier{enabled: enabled}
}

// Send sends a desktop notification
func (d *DesktopNotifier) Send(n Notification) error {
	if !d.enabled {
		return nil
	}

	switch runtime.GOOS {
	case "darwin":
		return d.sendMacOS(n)
	case "linux":
		return d.sendLinux(n)
	default:
		return nil // Unsupported
	}
}

func (d *DesktopNotifier) sendMacOS(n Notification) error {
	script := `display notification "` + n.Message + `" with title "` + n.Title +
		`" sound name "` + soundForType(n.Type) + `"`
	cmd := exec.Command("osascript", "-e", script)
	return cmd.Run()
}

func (d *DesktopNotifier) sendLinux(n Notification) error {
	// notify-send is the most widely available option.
	cmd := exec.Command("notify-send",
		"--urgency", urgencyForType(n.Type),
		"--icon", iconForType(n.Type),
		n.Title, n.Message)
	return cmd.Run()
}

// urgencyForType maps a notification type to a notify-send urgency level
func urgencyForType(t NotificationType) string {
	switch t {
	case NotifyError:
		return "critical"
	case NotifySuccess, NotifyWarning:
		return "normal"
	default:
		return "low"
	}
}

func iconForType(t NotificationType) string {
	switch t {
	case NotifySuccess:
		return "dialog-positive"
	case NotifyWarning:
		return "dialog-warning"
	case NotifyError:
		return "dialog-error"
	default:
		return "dialog-information"
	}
}

func soundForType(t NotificationType) string {
	switch t {
	case NotifyError:
		return "Basso"
	case NotifySuccess:
		return "Glass"
	default:
		return "Pop"
	}
}
