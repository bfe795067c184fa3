package syscalls

// Linux syscall numbers for the riscv64 (generic) ABI. These are guest-ABI
// constants, independent of the host architecture this emulator itself
// runs on, so they are declared here rather than sourced from
// golang.org/x/sys/unix (whose SYS_* constants are only defined for the
// host's own GOARCH).
const (
	sysGetcwd            = 17
	sysDup               = 23
	sysDup3              = 24
	sysFcntl             = 25
	sysIoctl             = 29
	sysFaccessat         = 48
	sysChdir             = 49
	sysFchmodat          = 53
	sysFchownat          = 54
	sysFchmod            = 52
	sysFlock             = 32
	sysOpenat            = 56
	sysClose             = 57
	sysPipe2             = 59
	sysGetdents64        = 61
	sysLseek             = 62
	sysRead              = 63
	sysWrite             = 64
	sysReadv             = 65
	sysWritev            = 66
	sysPread64           = 67
	sysPwrite64          = 68
	sysPwritev           = 70
	sysSendfile          = 71
	sysPselect6          = 72
	sysPpoll             = 73
	sysReadlinkat        = 78
	sysNewfstatat        = 79
	sysFstat             = 80
	sysFsync             = 82
	sysUnlinkat          = 35
	sysSymlinkat         = 36
	sysLinkat            = 37
	sysMkdirat           = 34
	sysRenameat          = 38
	sysFtruncate         = 46
	sysExitGroup         = 94
	sysExit              = 93
	sysSetTidAddress     = 96
	sysFutex             = 98
	sysSetRobustList     = 99
	sysNanosleep         = 101
	sysClockGettime      = 113
	sysClockGetres       = 114
	sysSyslog            = 116
	sysSchedYield        = 124
	sysSchedGetaffinity  = 123
	sysSchedGetscheduler = 120
	sysSchedGetparam     = 121
	sysKill              = 129
	sysTkill             = 130
	sysTgkill            = 131
	sysRtSigreturn       = 139
	sysRtSigaction       = 134
	sysRtSigprocmask     = 135
	sysSigaltstack       = 132
	sysUname             = 160
	sysGetrlimit         = 163
	sysPrlimit64         = 261
	sysGetrusage         = 165
	sysUmask             = 166
	sysPrctl             = 167
	sysGetpid            = 172
	sysGettid            = 178
	sysGetuid            = 174
	sysGeteuid           = 175
	sysGetgid            = 176
	sysGetegid           = 177
	sysGetppid           = 173
	sysGetpgid           = 155
	sysGetresuid         = 148
	sysGetresgid         = 150
	sysGetgroups         = 158
	sysSysinfo           = 179
	sysSocket            = 198
	sysSocketpair        = 199
	sysBind              = 200
	sysListen            = 201
	sysAccept            = 202
	sysConnect           = 203
	sysGetsockname       = 204
	sysGetpeername       = 205
	sysSendto            = 206
	sysRecvfrom          = 207
	sysSetsockopt        = 208
	sysGetsockopt        = 209
	sysSendmsg           = 211
	sysRecvmsg           = 212
	sysShutdown          = 210
	sysAccept4           = 242
	sysBrk               = 214
	sysMunmap            = 215
	sysClone             = 220
	sysExecve            = 221
	sysMmap              = 222
	sysMprotect          = 226
	sysMadvise           = 233
	sysMremap            = 216
	sysWait4             = 260
	sysEventfd2          = 19
	sysEpollCreate1      = 20
	sysEpollCtl          = 21
	sysEpollPwait        = 22
	sysFaccessat2        = 439
	sysStatx             = 291
	sysCloseRange        = 436
	sysGetrandom         = 278
	sysIoUringSetup      = 425
	sysRseq              = 293
	sysRiscvHwprobe      = 258
	sysMembarrier        = 283
	sysCapget            = 90
)
