package conf

import (
	"encoding/json"
	"fmt"
	"time"
)

// Target is the deployment target: who to log in as, where, and which
// directory on the remote host mirrors the local source.
type Target struct {
	Username string `json:"username"`
	Host     string `json:"host"`
	Port     int    `json:"port,omitempty"`
	Path     string `json:"path"`
}

// Addr returns host:port.
func (t Target) Addr() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

func (t Target) String() string {
	return fmt.Sprintf("%s@%s:%s", t.Username, t.Addr(), t.Path)
}

// Auth selects how the SSH session authenticates and verifies the host.
type Auth struct {
	PrivateKeyFile        string `json:"privateKeyFile,omitempty"`
	Passwd                string `json:"passwd,omitempty"`
	Agent                 bool   `json:"agent"`
	KnownHostsFile        string `json:"knownHostsFile,omitempty"`
	InsecureIgnoreHostKey bool   `json:"insecureIgnoreHostKey,omitempty"`
}

// Conf is the complete, immutable input of one deploy run.
type Conf struct {
	LocalPath string   `json:"localPath"`
	Exclude   []string `json:"exclude"`
	Delete    bool     `json:"delete"`
	Checksum  bool     `json:"checksum,omitempty"`
	DryRun    bool     `json:"dryRun,omitempty"`
	Timeout   Duration `json:"timeout,omitempty"`
	Remote    Target   `json:"remote"`
	Auth      Auth     `json:"auth"`
}

// Duration is a time.Duration that decodes from "30s" style strings or from
// a number of nanoseconds.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
}
