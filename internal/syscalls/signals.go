package syscalls

// Signal delivery is not emulated: guest programs that install handlers for
// SIGCHLD/SIGWINCH/etc. see their registration succeed but the handler is
// never invoked, matching a guest running with an empty default signal
// mask and no pending signals.
func registerSignalSyscalls(t Table) {
	t[sysRtSigaction] = zeroResult
	t[sysRtSigprocmask] = zeroResult
	t[sysSigaltstack] = zeroResult
}
