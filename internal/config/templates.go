package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

var templates = map[string]string{
	"workbench": workbenchTemplate,
	"modbus":    modbusTemplate,
	"script":    scriptTemplate,
}

// TemplateKinds lists the names Template accepts.
func TemplateKinds() []string {
	kinds := make([]string, 0, len(templates))
	for k := range templates {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

func Template(kind string) (string, error) {
	t, ok := templates[strings.ToLower(strings.TrimSpace(kind))]
	if !ok {
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
	return t, nil
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const workbenchTemplate = `name = "bench"
view = "text"
encoding = "utf-8"
line_ending = "crlf"
checksum = "none"
metrics_addr = ""
cors_origins = ["http://localhost:3000"]

[framing]
strategy = "delimiter"
delimiter = "0D 0A"
strip_delimiter = true
persistence = "persistent"
max_frame_bytes = 65536
reset_on_error = true
`

const modbusTemplate = `name = "modbus-rtu"
view = "hex"
encoding = "utf-8"
line_ending = "none"
checksum = "crc16"
metrics_addr = "127.0.0.1:9464"

[framing]
strategy = "timeout"
timeout_ms = 20
max_frame_bytes = 256
reset_on_error = true
`

const scriptTemplate = `name = "scripted"
view = "hex"
encoding = "utf-8"
line_ending = "none"
checksum = "xor"

[framing]
strategy = "script"
script_timeout_ms = 5
# data is an array of byte values; return the frame length, true for the
# whole buffer, or false while incomplete.
script = """
if (data.length < 2) return false;
var n = data[1] + 2;
return data.length >= n ? n : false;
"""
`
