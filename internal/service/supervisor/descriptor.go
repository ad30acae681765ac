package supervisor

import (
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/skydriftlabs/skydrift-setup/internal/service/credentials"
)

const (
	// EnvEmail is the unit environment variable carrying the account email.
	// It exists so a later run can read the configured value back.
	EnvEmail = "SKYDRIFT_EMAIL"
	// EnvPassword is the unit environment variable carrying the account password.
	EnvPassword = "SKYDRIFT_PASSWORD"
)

// Descriptor is the desired runtime configuration of the managed service.
// It is created fresh on every reconciliation pass and fully replaces any
// prior unit definition.
type Descriptor struct {
	// ServiceName is the unit name without the .service suffix.
	ServiceName string
	// Description is the unit's human-readable description.
	Description string
	// WorkingDirectory is the live install target directory.
	WorkingDirectory string
	// ExecutablePath is the versioned agent executable.
	ExecutablePath string
	// Credentials are embedded into ExecStart and the environment block.
	Credentials credentials.Credentials
}

// ExecStart renders the agent start command: the target binary invoked with
// its login subcommand and the resolved credentials.
func (d *Descriptor) ExecStart() string {
	return fmt.Sprintf("%s login %s %s", d.ExecutablePath, d.Credentials.Email, d.Credentials.Password)
}

// ExecutableName is the process name the agent runs under.
func (d *Descriptor) ExecutableName() string {
	return filepath.Base(d.ExecutablePath)
}

// unitTemplate is the systemd unit definition for the agent service.
var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description={{.Description}}
After=network.target

[Service]
Type=simple
WorkingDirectory={{.WorkingDirectory}}
ExecStart={{.ExecStart}}
Restart=always
Environment={{.EnvEmail}}={{.Email}}
Environment={{.EnvPassword}}={{.Password}}

[Install]
WantedBy=multi-user.target
`))

// RenderUnit produces the unit file contents for the descriptor.
func RenderUnit(d *Descriptor) (string, error) {
	var rendered strings.Builder

	err := unitTemplate.Execute(&rendered, struct {
		Description      string
		WorkingDirectory string
		ExecStart        string
		EnvEmail         string
		EnvPassword      string
		Email            string
		Password         string
	}{
		Description:      d.Description,
		WorkingDirectory: d.WorkingDirectory,
		ExecStart:        d.ExecStart(),
		EnvEmail:         EnvEmail,
		EnvPassword:      EnvPassword,
		Email:            d.Credentials.Email,
		Password:         d.Credentials.Password,
	})
	if err != nil {
		return "", fmt.Errorf("render unit definition: %w", err)
	}

	return rendered.String(), nil
}
