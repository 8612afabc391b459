// Package config loads the XML configuration file that describes a
// pantyhose deployment, using encoding/xml struct tags with attribute
// fields tagged `xml:"...,attr"`.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
)

// DefaultConfigPath and DefaultServerID are the startup defaults for
// `pantyhose <config_path> <server_id>`: config path defaulting to
// bin/config.xml, server id defaulting to 1.
const (
	DefaultConfigPath = "bin/config.xml"
	DefaultServerID   = uint32(1)
)

// ServerConfig is the root of the parsed XML document.
type ServerConfig struct {
	XMLName xml.Name    `xml:"pantyhose"`
	RunTime RunTime     `xml:"run_time"`
	Servers []Group     `xml:"servers>group"`
	Log     LogSection  `xml:"log"`
	Author  Author      `xml:"author"`
	Etcd    EtcdSection `xml:"etcd"`
}

// EtcdSection is the optional <etcd .../> element configuring the master's
// best-effort fleet-announce sink. Absent or with an empty Endpoints, no
// announce client is started.
type EtcdSection struct {
	Endpoints string `xml:"endpoints,attr"` // comma-separated
	Prefix    string `xml:"prefix,attr"`
}

// RunTime holds the driver count. This framework always runs with
// worker_threads=1 (single-threaded cooperative driver); the field is
// parsed but not validated, and its value does not change the driver count.
type RunTime struct {
	WorkerThreads int `xml:"worker_threads,attr"`
}

// Group is one <group name="type"> block, holding every configured
// instance of that server type.
type Group struct {
	Name      string     `xml:"name,attr"`
	Instances []Instance `xml:"server"`
}

// Instance is one <server id=N .../> within a group.
type Instance struct {
	ID           uint32 `xml:"id,attr"`
	BackTCPPort  int    `xml:"back_tcp_port,attr"`
	FrontTCPPort int    `xml:"front_tcp_port,attr"`
	FrontWSPort  int    `xml:"front_ws_port,attr"`
}

// LogSection is the <log .../> element: each attribute names a level and
// its value is "terminal", "file", or "terminal,file"; "file" routes to
// logs/<level>.log and any other word is ignored (see ParseSink).
type LogSection struct {
	Debug string `xml:"debug,attr"`
	Info  string `xml:"info,attr"`
	Net   string `xml:"net,attr"`
	Warn  string `xml:"warn,attr"`
	Err   string `xml:"err,attr"`
}

// Author carries the cluster shared secret.
type Author struct {
	Key string `xml:"key,attr"`
}

// Load reads and parses the config file at path.
func Load(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	var cfg ServerConfig
	if err := xml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse %s: %w", path, err)
	}
	return &cfg, nil
}

// FindInstance locates the instance with the given server type and id.
func (c *ServerConfig) FindInstance(serverType string, id uint32) (Instance, bool) {
	for _, g := range c.Servers {
		if g.Name != serverType {
			continue
		}
		for _, inst := range g.Instances {
			if inst.ID == id {
				return inst, true
			}
		}
	}
	return Instance{}, false
}

// ServerTypeOf returns the group name an instance id belongs to, scanning
// every group. Used at startup when only a bare server id is given on the
// command line and the type must be inferred from the config.
func (c *ServerConfig) ServerTypeOf(id uint32) (string, bool) {
	for _, g := range c.Servers {
		for _, inst := range g.Instances {
			if inst.ID == id {
				return g.Name, true
			}
		}
	}
	return "", false
}

// IsMaster reports whether serverType names the designated master role:
// one server is designated master by configuration (server_type ==
// "master").
func IsMaster(serverType string) bool { return serverType == "master" }
