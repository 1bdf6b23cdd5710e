package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	content := `
[memory]
nodes = 4096
vcells = 8192

[runtime]
trace = 5
macro-depth = 100

[image]
file = "test.image"

[log]
verbosity = 2
gc-verbose = true
`
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Memory.Nodes != 4096 {
		t.Errorf("nodes = %d, want 4096", c.Memory.Nodes)
	}
	if c.Memory.VCells != 8192 {
		t.Errorf("vcells = %d, want 8192", c.Memory.VCells)
	}
	if c.Runtime.Trace != 5 {
		t.Errorf("trace = %d, want 5", c.Runtime.Trace)
	}
	if c.Runtime.MacroDepth != 100 {
		t.Errorf("macro-depth = %d, want 100", c.Runtime.MacroDepth)
	}
	if c.Runtime.Ports != 20 {
		t.Errorf("ports = %d, want default 20", c.Runtime.Ports)
	}
	if c.Log.Verbosity != 2 || !c.Log.GCVerbose {
		t.Errorf("log = %+v, want verbosity 2 with gc-verbose", c.Log)
	}
	if got, want := c.Path(c.Image.File), filepath.Join(c.Dir, "test.image"); got != want {
		t.Errorf("image path = %q, want %q", got, want)
	}
	if c.Image.Source != "ls9.ls9" {
		t.Errorf("source = %q, want default ls9.ls9", c.Image.Source)
	}
}

func TestFindAndLoadWalksUp(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, FileName), []byte("[runtime]\ntrace = 3\n"), 0644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}

	c, err := FindAndLoad(sub)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if c.Runtime.Trace != 3 {
		t.Errorf("trace = %d, want 3", c.Runtime.Trace)
	}
}

func TestFindAndLoadDefaults(t *testing.T) {
	c, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if c.Memory.Nodes != Default().Memory.Nodes {
		t.Errorf("nodes = %d, want default", c.Memory.Nodes)
	}
}

func TestParseRejectsTinyPools(t *testing.T) {
	if _, err := Parse([]byte("[memory]\nnodes = 10\n")); err == nil {
		t.Error("expected an error for a 10 node pool")
	}
	if _, err := Parse([]byte("[memory\n")); err == nil {
		t.Error("expected a parse error")
	}
}

func TestVMConfig(t *testing.T) {
	c := Default()
	c.Memory.Nodes = 2048
	c.Log.GCVerbose = true
	v := c.VM()
	if v.Nodes != 2048 || !v.GCVerbose {
		t.Errorf("VM() = %+v", v)
	}
	if v.MaxFrames != c.Runtime.MaxFrames {
		t.Errorf("max frames = %d, want %d", v.MaxFrames, c.Runtime.MaxFrames)
	}
}
