package disk

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/open-imaging/mediaprep/internal/sysexec"
)

// fakeRunner records invocations and fails the tools listed in failures.
type fakeRunner struct {
	calls    []sysexec.Cmd
	failures map[string]error
}

func (f *fakeRunner) Run(c sysexec.Cmd) (sysexec.Result, error) {
	f.calls = append(f.calls, c)
	if err, ok := f.failures[c.Name]; ok {
		return sysexec.Result{ExitCode: 1}, err
	}
	return sysexec.Result{}, nil
}

func TestCreateSinglePartition(t *testing.T) {
	runner := &fakeRunner{}

	if err := NewPartitioner(runner).CreateSinglePartition("/dev/sdb"); err != nil {
		t.Fatalf("CreateSinglePartition returned error: %v", err)
	}

	if len(runner.calls) != 2 {
		t.Fatalf("expected sfdisk then partprobe, got %d calls", len(runner.calls))
	}

	sfdisk := runner.calls[0]
	if sfdisk.Name != "sfdisk" {
		t.Errorf("first tool = %q, want sfdisk", sfdisk.Name)
	}
	if want := "--force --wipe always /dev/sdb"; strings.Join(sfdisk.Args, " ") != want {
		t.Errorf("sfdisk args = %v, want %q", sfdisk.Args, want)
	}
	if sfdisk.Stdin != "label: dos\ntype=c\n" {
		t.Errorf("sfdisk script = %q, want DOS label and FAT32-LBA type", sfdisk.Stdin)
	}
	if !sfdisk.Elevate {
		t.Error("sfdisk must request elevation")
	}

	partprobe := runner.calls[1]
	if partprobe.Name != "partprobe" {
		t.Errorf("second tool = %q, want partprobe", partprobe.Name)
	}
	if want := "/dev/sdb"; strings.Join(partprobe.Args, " ") != want {
		t.Errorf("partprobe args = %v, want %q", partprobe.Args, want)
	}
	if !partprobe.Elevate {
		t.Error("partprobe must request elevation")
	}
}

func TestCreateSinglePartitionSfdiskFailure(t *testing.T) {
	toolErr := &sysexec.ToolError{Tool: "sfdisk", ExitCode: 1, Output: "device busy"}
	runner := &fakeRunner{failures: map[string]error{"sfdisk": toolErr}}

	err := NewPartitioner(runner).CreateSinglePartition("/dev/sdb")
	if err == nil {
		t.Fatal("expected error when sfdisk fails")
	}

	var got *sysexec.ToolError
	if !errors.As(err, &got) {
		t.Fatalf("error = %v, want wrapped *ToolError", err)
	}
	if !strings.Contains(err.Error(), "device busy") {
		t.Errorf("error %q does not carry the captured tool output", err)
	}
	if len(runner.calls) != 1 {
		t.Error("partprobe must not run after a failed sfdisk")
	}
}

func TestCreateSinglePartitionPartprobeFailureIgnored(t *testing.T) {
	runner := &fakeRunner{failures: map[string]error{
		"partprobe": &sysexec.StartError{Tool: "partprobe", Err: fmt.Errorf("not found")},
	}}

	if err := NewPartitioner(runner).CreateSinglePartition("/dev/sdb"); err != nil {
		t.Errorf("partprobe failure must be non-fatal, got: %v", err)
	}
}

func TestCreateSinglePartitionAuthCancelled(t *testing.T) {
	runner := &fakeRunner{failures: map[string]error{
		"sfdisk": fmt.Errorf("sfdisk: %w", sysexec.ErrAuthCancelled),
	}}

	err := NewPartitioner(runner).CreateSinglePartition("/dev/sdb")
	if !errors.Is(err, sysexec.ErrAuthCancelled) {
		t.Errorf("error = %v, want ErrAuthCancelled to survive wrapping", err)
	}
}

func TestFormatFAT32(t *testing.T) {
	runner := &fakeRunner{}

	if err := NewFormatter(runner).FormatFAT32("/dev/sdb1", "SIMPAD"); err != nil {
		t.Fatalf("FormatFAT32 returned error: %v", err)
	}

	if len(runner.calls) != 1 {
		t.Fatalf("expected a single mkfs.fat call, got %d", len(runner.calls))
	}

	mkfs := runner.calls[0]
	if mkfs.Name != "mkfs.fat" {
		t.Errorf("tool = %q, want mkfs.fat", mkfs.Name)
	}
	if want := "-F 32 -n SIMPAD /dev/sdb1"; strings.Join(mkfs.Args, " ") != want {
		t.Errorf("mkfs.fat args = %v, want %q", mkfs.Args, want)
	}
	if !mkfs.Elevate {
		t.Error("mkfs.fat must request elevation")
	}
	if mkfs.Timeout < mkfsTimeout {
		t.Errorf("mkfs.fat timeout = %v, formatting slow media needs the full budget", mkfs.Timeout)
	}
}

func TestFormatFAT32LabelPassedVerbatim(t *testing.T) {
	runner := &fakeRunner{}

	// No charset validation here; labels go to the tool untouched
	if err := NewFormatter(runner).FormatFAT32("/dev/sdb1", "my label!"); err != nil {
		t.Fatal(err)
	}
	if runner.calls[0].Args[3] != "my label!" {
		t.Errorf("label = %q, want verbatim pass-through", runner.calls[0].Args[3])
	}
}

func TestFormatFAT32AuthCancelled(t *testing.T) {
	runner := &fakeRunner{failures: map[string]error{
		"mkfs.fat": fmt.Errorf("mkfs.fat: %w", sysexec.ErrAuthCancelled),
	}}

	err := NewFormatter(runner).FormatFAT32("/dev/sdb1", "DATA")
	if !errors.Is(err, sysexec.ErrAuthCancelled) {
		t.Errorf("error = %v, want ErrAuthCancelled to survive wrapping", err)
	}
}
