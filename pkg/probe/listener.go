package probe

import (
	"github.com/pkg/errors"
	gopsnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

// maxAncestorHops bounds the walk up the process tree.
const maxAncestorHops = 16

// VerifyListener confirms that the process listening on the port is the
// launched process or one of its descendants. It guards against a leftover
// listener from a prior, improperly cleaned run answering health probes in
// place of the server just started.
func VerifyListener(port, launchedPid int) error {
	conns, err := gopsnet.Connections("tcp")
	if err != nil {
		return errors.Wrap(err, "reading connection table failed")
	}

	var listenerPid int
	for _, conn := range conns {
		if conn.Status == "LISTEN" && conn.Laddr.Port == uint32(port) && conn.Pid > 0 {
			listenerPid = int(conn.Pid)
			break
		}
	}

	if listenerPid == 0 {
		return errors.Errorf("no process is listening on port %d", port)
	}
	if isSameOrDescendant(listenerPid, launchedPid) {
		return nil
	}
	return errors.Errorf("port %d is served by pid %d, not by launched pid %d or its children",
		port, listenerPid, launchedPid)
}

// isSameOrDescendant walks up the parent chain from pid looking for ancestor.
func isSameOrDescendant(pid, ancestor int) bool {
	current := int32(pid)
	for hops := 0; hops < maxAncestorHops; hops++ {
		if current == int32(ancestor) {
			return true
		}
		proc, err := process.NewProcess(current)
		if err != nil {
			return false
		}
		parent, err := proc.Ppid()
		if err != nil || parent <= 1 {
			return false
		}
		current = parent
	}
	return false
}
