package cmd

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/friscy/rve/internal/config"
	"github.com/friscy/rve/internal/elfload"
	"github.com/friscy/rve/internal/guest"
	"github.com/friscy/rve/internal/iobridge"
	"github.com/friscy/rve/internal/machine"
	"github.com/friscy/rve/internal/machine/fake"
	"github.com/friscy/rve/internal/memmgr"
	"github.com/friscy/rve/internal/netbridge"
	"github.com/friscy/rve/internal/output"
	"github.com/friscy/rve/internal/sched"
	"github.com/friscy/rve/internal/stackbuild"
	"github.com/friscy/rve/internal/vfs"
)

var runLog = log.New().WithField("pkg", "cmd.run")

var (
	rootfsFlag    string
	arenaSizeFlag uint64
)

func addRunCommand(parent *cobra.Command) {
	runCmd := &cobra.Command{
		Use:   "run <entrypoint> [args...]",
		Short: "Boot a rootfs tar and entrypoint to a running guest",
		Long: `Hydrate the VFS from a tar rootfs, load the ELF entrypoint (its
PT_INTERP dynamic linker, if any, is not loaded), build the initial
argv/envp/auxv stack, and hand off to the RISC-V instruction emulator.

This repository implements everything up to the hand-off: VFS, loader,
stack builder, syscall dispatch, scheduler, fork engine, and exec engine.
The instruction decode/execute loop itself is an external collaborator
(see spec's Machine interface) — without one registered, run reports the
fully-prepared guest state instead of executing it.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runRun,
	}
	runCmd.Flags().StringVar(&rootfsFlag, "rootfs", "", "Path to the rootfs tar (default: resolved via config/.rverc)")
	runCmd.Flags().Uint64Var(&arenaSizeFlag, "arena-size", 256*1024*1024, "Guest address space size in bytes")
	parent.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	config.SetConfigDir(ConfigDir)
	rootfsPath, err := config.ResolveRootfs(rootfsFlag, os.Getenv("RVE_ROOTFS"))
	if err != nil {
		return err
	}
	entrypoint := args[0]
	guestArgv := args

	tarBytes, err := os.ReadFile(rootfsPath)
	if err != nil {
		return fmt.Errorf("reading rootfs: %w", err)
	}

	fsys := vfs.New()
	if err := fsys.LoadTar(tarBytes); err != nil {
		return fmt.Errorf("loading rootfs tar: %w", err)
	}
	runLog.WithField("rootfs", rootfsPath).Info("rootfs hydrated")

	id, errno := fsys.Resolve(entrypoint)
	if errno != 0 {
		return fmt.Errorf("resolving entrypoint %s: errno %d", entrypoint, errno)
	}
	raw, errno := fsys.ReadAll(id)
	if errno != 0 {
		return fmt.Errorf("reading entrypoint %s: errno %d", entrypoint, errno)
	}

	img, err := elfload.Parse(raw)
	if err != nil {
		return fmt.Errorf("parsing ELF: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	m := fake.New(arenaSizeFlag)
	const loadBase = 0 // non-PIE default; PIE images relocate below the stack
	base := uint64(loadBase)
	if img.Dynamic {
		base = 0x10000
	}
	res, err := elfload.Load(img, m, base)
	if err != nil {
		return fmt.Errorf("loading segments: %w", err)
	}

	stackTop := arenaSizeFlag - stackGuard
	if err := m.SetPageAttrs(stackTop-stackWindow, stackWindow, machine.ProtRead|machine.ProtWrite); err != nil {
		return fmt.Errorf("mapping stack: %w", err)
	}
	envp := os.Environ()
	var random [16]byte
	// interpBase is 0: this command loads only the requested entrypoint
	// image, not a separate PT_INTERP dynamic linker, so AT_BASE reports no
	// interpreter.
	sres, err := stackbuild.Build(m, stackTop, guestArgv, envp, entrypoint, res, 0, random)
	if err != nil {
		return fmt.Errorf("building stack: %w", err)
	}

	net := netbridge.New(netbridge.UnixHostNet{})
	bridge := iobridge.New()
	bridge.SetTermSize(int32(cfg.Terminal.Rows), int32(cfg.Terminal.Cols))
	st := guest.New(fsys, &memmgr.Manager{
		State: &memmgr.State{MmapFrontier: res.HiLoad + (1 << 20)},
		Mem:   m,
		Anon:  memmgr.NewHostAnonAllocator(res.HiLoad + (2 << 20)),
		VFS:   fsys,
	}, bridge, net, sched.New(1, res.Entry, sres.SP))
	st.Exec = guest.ExecCtx{
		MainBytes:    raw,
		MainBase:     base,
		OrigStackTop: stackTop,
		Dynamic:      img.Dynamic,
		MainPath:     entrypoint,
		EnvStrings:   envp,
	}

	m.SetPC(res.Entry)
	m.SetReg(2, sres.SP)

	runLog.WithFields(log.Fields{
		"entry": fmt.Sprintf("%#x", res.Entry),
		"sp":    fmt.Sprintf("%#x", sres.SP),
	}).Info("guest prepared")

	if output.IsJSON() {
		return output.PrintJSON(cmd.OutOrStdout(), map[string]any{
			"status":    "prepared",
			"entry":     res.Entry,
			"sp":        sres.SP,
			"segments":  len(img.Segments()),
			"interp":    img.Interp,
			"prefer_huge_pages": cfg.Memory.PreferHugePages,
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Guest prepared: entry=%#x sp=%#x\n", res.Entry, sres.SP)
	fmt.Fprintln(cmd.OutOrStdout(), "No instruction emulator is registered in this build; the guest will not execute.")
	fmt.Fprintln(cmd.OutOrStdout(), "Wire a machine.Machine implementation (the external RISC-V decode/execute loop) to drive it forward.")
	return nil
}

const (
	stackGuard  = 1 << 20
	stackWindow = 256 * 1024
)
