package sandbox

import "encoding/json"

// seccompSyscallRule denies one or more syscall names with a fixed errno,
// mirroring the shape of a container runtime's seccomp profile JSON.
type seccompSyscallRule struct {
	Names  []string `json:"names"`
	Action string   `json:"action"`
}

// seccompProfile is a minimal, self-contained seccomp profile document: a
// default action plus a list of syscall rules, serialized the way a
// container runtime's --security-opt seccomp=<path> expects it.
type seccompProfile struct {
	DefaultAction string                 `json:"defaultAction"`
	Syscalls      []seccompSyscallRule   `json:"syscalls"`
}

const (
	seccompActAllow = "SCMP_ACT_ALLOW"
	seccompActErrno = "SCMP_ACT_ERRNO"
)

// blockedSyscalls is the agent's syscall denylist (spec §4.7 "agent"):
// filesystem-namespace and mount manipulation, process tracing, kernel
// module loading, and machine-control syscalls have no legitimate use for
// the user command and are blocked unconditionally.
var blockedSyscalls = []string{
	"mount", "umount", "umount2", "pivot_root", "chroot",
	"ptrace", "process_vm_readv", "process_vm_writev",
	"init_module", "finit_module", "delete_module",
	"reboot", "kexec_load", "kexec_file_load",
}

// AgentSeccompProfile builds the agent container's syscall filter: every
// syscall is allowed except the fixed denylist, which is rejected with
// EPERM rather than silently allowed (spec §4.7). Raw-socket families are
// handled by capability drop (CAP_NET_RAW) rather than this profile, since
// seccomp filters syscalls, not socket() arguments, without a richer rule
// language than this profile format supports.
func AgentSeccompProfile() *seccompProfile {
	return &seccompProfile{
		DefaultAction: seccompActAllow,
		Syscalls: []seccompSyscallRule{
			{Names: append([]string(nil), blockedSyscalls...), Action: seccompActErrno},
		},
	}
}

// RenderJSON serializes the profile to the JSON document a container
// runtime's --security-opt seccomp=<path> flag expects.
func (p *seccompProfile) RenderJSON() ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}
