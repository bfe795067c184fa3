package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/friscy/rve/internal/config"
	"github.com/friscy/rve/internal/elfload"
	"github.com/friscy/rve/internal/guest"
	"github.com/friscy/rve/internal/iobridge"
	"github.com/friscy/rve/internal/machine/fake"
	"github.com/friscy/rve/internal/memmgr"
	"github.com/friscy/rve/internal/netbridge"
	"github.com/friscy/rve/internal/output"
	"github.com/friscy/rve/internal/sched"
	"github.com/friscy/rve/internal/tui"
	"github.com/friscy/rve/internal/vfs"
)

var (
	inspectRootfsFlag string
	inspectRunning    bool
	inspectInteractive bool
)

func addInspectCommand(parent *cobra.Command) {
	inspectCmd := &cobra.Command{
		Use:   "inspect [path]",
		Short: "Inspect a rootfs tar and/or ELF binary without executing it",
		Long: `Parse a tar rootfs and print a directory summary, or give a path
inside that rootfs to print its ELF program-header layout.

--running loads the entrypoint far enough to build a guest.State and prints
its DebugDump snapshot (main binary path, heap and mmap bookkeeping, fork
state, thread count, environment) without handing off to an instruction
emulator.

--interactive opens a small terminal browser over the hydrated VFS tree.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runInspect,
	}
	inspectCmd.Flags().StringVar(&inspectRootfsFlag, "rootfs", "", "Path to the rootfs tar (default: resolved via config/.rverc)")
	inspectCmd.Flags().BoolVar(&inspectRunning, "running", false, "Boot far enough to dump guest.State instead of listing the path")
	inspectCmd.Flags().BoolVar(&inspectInteractive, "interactive", false, "Open an interactive VFS/ELF browser")
	parent.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	config.SetConfigDir(ConfigDir)
	rootfsPath, err := config.ResolveRootfs(inspectRootfsFlag, os.Getenv("RVE_ROOTFS"))
	if err != nil {
		return err
	}

	tarBytes, err := os.ReadFile(rootfsPath)
	if err != nil {
		return fmt.Errorf("reading rootfs: %w", err)
	}

	fsys := vfs.New()
	if err := fsys.LoadTar(tarBytes); err != nil {
		return fmt.Errorf("loading rootfs tar: %w", err)
	}

	if inspectInteractive {
		return tui.RunBrowser(fsys)
	}

	if inspectRunning {
		if len(args) == 0 {
			return fmt.Errorf("inspect --running requires an entrypoint path")
		}
		return inspectRunningState(cmd, fsys, args[0])
	}

	if len(args) == 0 {
		return inspectDir(cmd, fsys, "/")
	}
	return inspectPath(cmd, fsys, args[0])
}

func inspectDir(cmd *cobra.Command, fsys *vfs.FS, path string) error {
	id, errno := fsys.Resolve(path)
	if errno != 0 {
		return fmt.Errorf("resolving %s: errno %d", path, errno)
	}
	entry := fsys.Get(id)
	names := make([]string, 0, len(entry.Children))
	for name := range entry.Children {
		names = append(names, name)
	}

	if output.IsJSON() {
		return output.PrintJSON(cmd.OutOrStdout(), map[string]any{
			"path":    path,
			"entries": names,
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n", path)
	for _, name := range names {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", name)
	}
	return nil
}

func inspectPath(cmd *cobra.Command, fsys *vfs.FS, path string) error {
	id, errno := fsys.Resolve(path)
	if errno != 0 {
		return fmt.Errorf("resolving %s: errno %d", path, errno)
	}
	if fsys.Get(id).Type == vfs.TypeDir {
		return inspectDir(cmd, fsys, path)
	}

	raw, errno := fsys.ReadAll(id)
	if errno != 0 {
		return fmt.Errorf("reading %s: errno %d", path, errno)
	}
	img, err := elfload.Parse(raw)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	segs := img.Segments()
	if output.IsJSON() {
		return output.PrintJSON(cmd.OutOrStdout(), map[string]any{
			"path":    path,
			"entry":   img.Entry,
			"dynamic": img.Dynamic,
			"interp":  img.Interp,
			"segments": segs,
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n", path)
	fmt.Fprintf(cmd.OutOrStdout(), "  entry   %#x\n", img.Entry)
	fmt.Fprintf(cmd.OutOrStdout(), "  dynamic %v\n", img.Dynamic)
	if img.Interp != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "  interp  %s\n", img.Interp)
	}
	for _, s := range segs {
		fmt.Fprintf(cmd.OutOrStdout(), "  PT_LOAD vaddr=%#010x memsz=%#x flags=%#o\n", s.Vaddr, s.Memsz, s.Flags)
	}
	return nil
}

// inspectRunningState mirrors run.go's boot-prep sequence far enough to
// build a guest.State, then dumps it instead of handing off execution.
func inspectRunningState(cmd *cobra.Command, fsys *vfs.FS, entrypoint string) error {
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

	const arenaSize = 256 * 1024 * 1024
	m := fake.New(arenaSize)
	base := uint64(0)
	if img.Dynamic {
		base = 0x10000
	}
	res, err := elfload.Load(img, m, base)
	if err != nil {
		return fmt.Errorf("loading segments: %w", err)
	}

	st := guest.New(fsys, &memmgr.Manager{
		State: &memmgr.State{MmapFrontier: res.HiLoad + (1 << 20)},
		Mem:   m,
		Anon:  memmgr.NewHostAnonAllocator(res.HiLoad + (2 << 20)),
		VFS:   fsys,
	}, iobridge.New(), netbridge.New(netbridge.UnixHostNet{}), sched.New(1, res.Entry, 0))
	st.Exec = guest.ExecCtx{
		MainBytes: raw,
		MainBase:  base,
		Dynamic:   img.Dynamic,
		MainPath:  entrypoint,
	}

	dump, err := st.DebugDump()
	if err != nil {
		return fmt.Errorf("dumping guest state: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(dump))
	return nil
}
