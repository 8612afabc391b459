package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleXML = `<pantyhose>
  <run_time worker_threads="1"/>
  <servers>
    <group name="master">
      <server id="1" back_tcp_port="3000"/>
    </group>
    <group name="chat">
      <server id="11" back_tcp_port="3101" front_tcp_port="3001" front_ws_port="3002"/>
      <server id="12" back_tcp_port="3102"/>
    </group>
  </servers>
  <log debug="terminal" info="terminal,file" net="file" warn="terminal" err="terminal,file"/>
  <author key="s3cret"/>
</pantyhose>`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.xml")
	if err := os.WriteFile(path, []byte(sampleXML), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadParsesServerGroups(t *testing.T) {
	cfg, err := Load(writeSample(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.RunTime.WorkerThreads != 1 {
		t.Errorf("WorkerThreads = %d, want 1", cfg.RunTime.WorkerThreads)
	}
	if cfg.Author.Key != "s3cret" {
		t.Errorf("Author.Key = %q, want s3cret", cfg.Author.Key)
	}

	inst, ok := cfg.FindInstance("chat", 11)
	if !ok {
		t.Fatal("expected to find chat:11")
	}
	if inst.FrontTCPPort != 3001 || inst.BackTCPPort != 3101 {
		t.Errorf("chat:11 ports = %+v", inst)
	}

	st, ok := cfg.ServerTypeOf(12)
	if !ok || st != "chat" {
		t.Errorf("ServerTypeOf(12) = %q, %v, want chat, true", st, ok)
	}
}

func TestFindInstanceMissing(t *testing.T) {
	cfg, err := Load(writeSample(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := cfg.FindInstance("chat", 999); ok {
		t.Fatal("expected FindInstance to fail for unknown id")
	}
}

func TestIsMaster(t *testing.T) {
	if !IsMaster("master") {
		t.Error("IsMaster(master) = false")
	}
	if IsMaster("chat") {
		t.Error("IsMaster(chat) = true")
	}
}

func TestLoggingConfigMapsTerminalAndFile(t *testing.T) {
	cfg, err := Load(writeSample(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	lc := cfg.LoggingConfig()
	if !lc.Debug.Terminal || lc.Debug.File != "" {
		t.Errorf("Debug sink = %+v, want terminal-only", lc.Debug)
	}
	if !lc.Info.Terminal || lc.Info.File != "logs/info.log" {
		t.Errorf("Info sink = %+v, want terminal+logs/info.log", lc.Info)
	}
	if lc.Net.Terminal || lc.Net.File != "logs/net.log" {
		t.Errorf("Net sink = %+v, want file-only", lc.Net)
	}
}
