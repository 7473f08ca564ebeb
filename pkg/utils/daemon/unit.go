package daemon

import "strings"

var (
	unitPath = "/etc/systemd/system/opticalign.service"
)

const unitTemplate = `[Unit]
Description=opticalign alignment test daemon
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
ExecStart=/path/to/opticalign daemon --config /path/to/config --daemon-socket /path/to/socket
ExecReload=/bin/kill -HUP $MAINPID
Restart=on-failure
RestartSec=2

[Install]
WantedBy=multi-user.target
`

// RenderUnit fills the systemd unit template.
func RenderUnit(exePath, configPath, socketPath string) string {
	return strings.NewReplacer(
		"/path/to/opticalign", exePath,
		"/path/to/config", configPath,
		"/path/to/socket", socketPath,
	).Replace(unitTemplate)
}
